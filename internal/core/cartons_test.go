package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func int64Ptr(n int64) *int64 { return &n }

func strPtr(s string) *string { return &s }

func TestCartonsForUnits(t *testing.T) {
	if got := CartonsForUnits(1000, 100); got != 10 {
		t.Errorf("CartonsForUnits(1000, 100) = %d, want 10", got)
	}
	if got := CartonsForUnits(0, 100); got != 0 {
		t.Errorf("CartonsForUnits(0, 100) = %d, want 0", got)
	}
	if got := CartonsForUnits(1000, 0); got != 0 {
		t.Errorf("CartonsForUnits(1000, 0) = %d, want 0", got)
	}
	// truncation on non-divisible input; divisibility is the gate's concern
	if got := CartonsForUnits(1050, 100); got != 10 {
		t.Errorf("CartonsForUnits(1050, 100) = %d, want 10", got)
	}
}

func TestPalletsForCartons(t *testing.T) {
	check := func(cartons, perPallet int64, want string) {
		t.Helper()
		got := PalletsForCartons(cartons, perPallet)
		if got.String() != want {
			t.Errorf("PalletsForCartons(%d, %d) = %s, want %s", cartons, perPallet, got, want)
		}
	}
	check(40, 20, "2")
	check(41, 20, "3") // partial pallet occupies a full slot
	check(1, 20, "1")
	check(0, 20, "0")
	check(40, 0, "0")
	check(-5, 20, "0")
}

func TestCartonVolumeM3(t *testing.T) {
	l := PurchaseOrderLine{
		CartonLengthCm: decPtr("50"),
		CartonWidthCm:  decPtr("40"),
		CartonHeightCm: decPtr("30"),
	}
	vol := l.CartonVolumeM3()
	if vol == nil {
		t.Fatal("expected volume, got nil")
	}
	if !vol.Equal(dec("0.06")) {
		t.Errorf("CartonVolumeM3() = %s, want 0.06", vol)
	}

	missing := PurchaseOrderLine{CartonLengthCm: decPtr("50"), CartonWidthCm: decPtr("40")}
	if got := missing.CartonVolumeM3(); got != nil {
		t.Errorf("expected nil volume with missing dimension, got %s", got)
	}

	zero := PurchaseOrderLine{
		CartonLengthCm: decPtr("50"),
		CartonWidthCm:  decPtr("0"),
		CartonHeightCm: decPtr("30"),
	}
	if got := zero.CartonVolumeM3(); got != nil {
		t.Errorf("expected nil volume with zero dimension, got %s", got)
	}
}

func TestComputeCargoTotals(t *testing.T) {
	lines := []PurchaseOrderLine{
		{
			CartonQty:                10,
			GrossWeightKg:            decPtr("12.5"),
			CartonLengthCm:           decPtr("50"),
			CartonWidthCm:            decPtr("40"),
			CartonHeightCm:           decPtr("30"),
			CartonsPerPalletShipping: int64Ptr(4),
		},
		{
			CartonQty:               6,
			GrossWeightKg:           decPtr("8"),
			CartonsPerPalletStorage: int64Ptr(6), // shipping figure absent, storage fallback
		},
		{
			CartonQty: 3, // no weight, no dims, no pallet figure
		},
	}

	got := ComputeCargoTotals(lines)
	if got.Cartons != 19 {
		t.Errorf("Cartons = %d, want 19", got.Cartons)
	}
	// 10/4 -> 3 pallets, 6/6 -> 1 pallet, third line contributes none
	if got.Pallets != 4 {
		t.Errorf("Pallets = %d, want 4", got.Pallets)
	}
	if !got.WeightKg.Equal(dec("173")) { // 10*12.5 + 6*8
		t.Errorf("WeightKg = %s, want 173", got.WeightKg)
	}
	if !got.VolumeM3.Equal(dec("0.6")) { // 10 * 0.06
		t.Errorf("VolumeM3 = %s, want 0.6", got.VolumeM3)
	}
}

func TestPalletFigureFallbacks(t *testing.T) {
	both := PurchaseOrderLine{
		CartonsPerPalletShipping: int64Ptr(8),
		CartonsPerPalletStorage:  int64Ptr(10),
	}
	if got := both.shippingCartonsPerPallet(); got != 8 {
		t.Errorf("shippingCartonsPerPallet = %d, want 8", got)
	}
	if got := both.storageCartonsPerPallet(); got != 10 {
		t.Errorf("storageCartonsPerPallet = %d, want 10", got)
	}

	storageOnly := PurchaseOrderLine{CartonsPerPalletStorage: int64Ptr(10)}
	if got := storageOnly.shippingCartonsPerPallet(); got != 10 {
		t.Errorf("shipping fallback to storage = %d, want 10", got)
	}
	shippingOnly := PurchaseOrderLine{CartonsPerPalletShipping: int64Ptr(8)}
	if got := shippingOnly.storageCartonsPerPallet(); got != 8 {
		t.Errorf("storage fallback to shipping = %d, want 8", got)
	}

	var none PurchaseOrderLine
	if got := none.shippingCartonsPerPallet(); got != 0 {
		t.Errorf("shippingCartonsPerPallet with neither figure = %d, want 0", got)
	}
}

func TestAvailableCartons(t *testing.T) {
	ranged := PurchaseOrderLine{CartonQty: 10, RangeStart: int64Ptr(7), RangeEnd: int64Ptr(10)}
	if got := ranged.availableCartons(); got != 4 {
		t.Errorf("availableCartons with range = %d, want 4", got)
	}
	whole := PurchaseOrderLine{CartonQty: 10}
	if got := whole.availableCartons(); got != 10 {
		t.Errorf("availableCartons without range = %d, want 10", got)
	}
}
