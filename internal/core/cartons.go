package core

import (
	"github.com/shopspring/decimal"
)

// cmPerMeter converts carton dimensions (stored in centimeters) to cubic meters.
var cubicCmPerM3 = decimal.NewFromInt(1_000_000)

// CartonsForUnits converts ordered units to whole cartons. Units must divide
// evenly; the issue gate rejects lines where they do not, so a remainder here
// indicates the caller skipped the gate.
func CartonsForUnits(units, unitsPerCarton int64) int64 {
	if unitsPerCarton <= 0 {
		return 0
	}
	return units / unitsPerCarton
}

// PalletsForCartons returns the pallet count for a carton count, as a decimal
// with partial pallets rounded up to whole pallets (a partial pallet occupies
// a full slot).
func PalletsForCartons(cartons, cartonsPerPallet int64) decimal.Decimal {
	if cartonsPerPallet <= 0 || cartons <= 0 {
		return decimal.Zero
	}
	pallets := (cartons + cartonsPerPallet - 1) / cartonsPerPallet
	return decimal.NewFromInt(pallets)
}

// CartonVolumeM3 returns the volume of a single carton in cubic meters, or
// nil when any dimension is missing or non-positive.
func (l *PurchaseOrderLine) CartonVolumeM3() *decimal.Decimal {
	if l.CartonLengthCm == nil || l.CartonWidthCm == nil || l.CartonHeightCm == nil {
		return nil
	}
	if !l.CartonLengthCm.IsPositive() || !l.CartonWidthCm.IsPositive() || !l.CartonHeightCm.IsPositive() {
		return nil
	}
	v := l.CartonLengthCm.Mul(*l.CartonWidthCm).Mul(*l.CartonHeightCm).Div(cubicCmPerM3)
	return &v
}

// CargoTotals are the aggregate shipping figures for a set of lines.
type CargoTotals struct {
	Cartons  int64
	Pallets  int64
	WeightKg decimal.Decimal
	VolumeM3 decimal.Decimal
}

// ComputeCargoTotals derives total cartons, pallets, gross weight and volume
// from the given lines. Cancelled lines must be filtered out by the caller
// (use ActiveLines). Lines without dimensions contribute no volume; lines
// without a gross weight contribute no weight. Pallet counts use the shipping
// cartons-per-pallet figure, falling back to the storage figure.
func ComputeCargoTotals(lines []PurchaseOrderLine) CargoTotals {
	var t CargoTotals
	for _, l := range lines {
		cartons := l.CartonQty
		t.Cartons += cartons

		if cpp := l.shippingCartonsPerPallet(); cpp > 0 {
			t.Pallets += PalletsForCartons(cartons, cpp).IntPart()
		}
		if l.GrossWeightKg != nil {
			t.WeightKg = t.WeightKg.Add(l.GrossWeightKg.Mul(decimal.NewFromInt(cartons)))
		}
		if vol := l.CartonVolumeM3(); vol != nil {
			t.VolumeM3 = t.VolumeM3.Add(vol.Mul(decimal.NewFromInt(cartons)))
		}
	}
	return t
}

func (l *PurchaseOrderLine) shippingCartonsPerPallet() int64 {
	if l.CartonsPerPalletShipping != nil && *l.CartonsPerPalletShipping > 0 {
		return *l.CartonsPerPalletShipping
	}
	if l.CartonsPerPalletStorage != nil && *l.CartonsPerPalletStorage > 0 {
		return *l.CartonsPerPalletStorage
	}
	return 0
}

func (l *PurchaseOrderLine) storageCartonsPerPallet() int64 {
	if l.CartonsPerPalletStorage != nil && *l.CartonsPerPalletStorage > 0 {
		return *l.CartonsPerPalletStorage
	}
	if l.CartonsPerPalletShipping != nil && *l.CartonsPerPalletShipping > 0 {
		return *l.CartonsPerPalletShipping
	}
	return 0
}

// availableCartons returns how many cartons of this line's range remain
// available to allocate: the range width when a range is present, otherwise
// the carton quantity.
func (l *PurchaseOrderLine) availableCartons() int64 {
	if l.RangeStart != nil && l.RangeEnd != nil {
		return *l.RangeEnd - *l.RangeStart + 1
	}
	return l.CartonQty
}
