package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPlanDispatchSplitPartial(t *testing.T) {
	lines := []PurchaseOrderLine{{
		ID:             1,
		SKUCode:        "WIDGET-A",
		UnitsOrdered:   1000,
		UnitsPerCarton: 100,
		CartonQty:      10,
		TotalCost:      decPtr("1000.00"),
		Status:         LineStatusPending,
	}}

	plan := planDispatchSplit(lines, map[int]int64{1: 6})
	if !plan.HasRemainder {
		t.Fatal("expected remainder")
	}
	if len(plan.Lines) != 1 {
		t.Fatalf("got %d plan lines, want 1", len(plan.Lines))
	}
	sl := plan.Lines[0]

	if sl.ShipCartons != 6 || sl.ShipUnits != 600 {
		t.Errorf("ship side = %d cartons / %d units, want 6 / 600", sl.ShipCartons, sl.ShipUnits)
	}
	if sl.ShipRangeStart != 1 || sl.ShipRangeEnd != 6 {
		t.Errorf("ship range = [%d,%d], want [1,6]", sl.ShipRangeStart, sl.ShipRangeEnd)
	}
	if !sl.ShipCost.Equal(dec("600.00")) {
		t.Errorf("ShipCost = %s, want 600.00", sl.ShipCost)
	}

	if sl.RemainCartons != 4 || sl.RemainUnits != 400 {
		t.Errorf("remainder = %d cartons / %d units, want 4 / 400", sl.RemainCartons, sl.RemainUnits)
	}
	if sl.RemainRangeStart != 7 || sl.RemainRangeEnd != 10 {
		t.Errorf("remainder range = [%d,%d], want [7,10]", sl.RemainRangeStart, sl.RemainRangeEnd)
	}
	if !sl.RemainCost.Equal(dec("400.00")) {
		t.Errorf("RemainCost = %s, want 400.00", sl.RemainCost)
	}
}

func TestPlanDispatchSplitFullShipment(t *testing.T) {
	lines := []PurchaseOrderLine{{
		ID:             7,
		UnitsPerCarton: 50,
		CartonQty:      4,
		TotalCost:      decPtr("333.33"),
		Status:         LineStatusPending,
	}}

	plan := planDispatchSplit(lines, map[int]int64{7: 4})
	if plan.HasRemainder {
		t.Fatal("full shipment must not produce a remainder")
	}
	sl := plan.Lines[0]
	if !sl.ShipCost.Equal(dec("333.33")) {
		t.Errorf("ShipCost = %s, want full 333.33", sl.ShipCost)
	}
	if !sl.RemainCost.IsZero() {
		t.Errorf("RemainCost = %s, want 0", sl.RemainCost)
	}
	if sl.RemainRangeStart != 0 || sl.RemainRangeEnd != 0 {
		t.Errorf("remainder range = [%d,%d], want zero", sl.RemainRangeStart, sl.RemainRangeEnd)
	}
}

func TestPlanDispatchSplitZeroShipment(t *testing.T) {
	lines := []PurchaseOrderLine{{
		ID:             3,
		UnitsPerCarton: 10,
		CartonQty:      5,
		TotalCost:      decPtr("99.99"),
		Status:         LineStatusPending,
	}}

	plan := planDispatchSplit(lines, map[int]int64{3: 0})
	if !plan.HasRemainder {
		t.Fatal("zero shipment must leave a remainder")
	}
	sl := plan.Lines[0]
	if !sl.ShipCost.IsZero() {
		t.Errorf("ShipCost = %s, want 0", sl.ShipCost)
	}
	if !sl.RemainCost.Equal(dec("99.99")) {
		t.Errorf("RemainCost = %s, want full 99.99", sl.RemainCost)
	}
	if sl.ShipRangeStart != 0 || sl.ShipRangeEnd != 0 {
		t.Errorf("ship range = [%d,%d], want zero", sl.ShipRangeStart, sl.ShipRangeEnd)
	}
	if sl.RemainRangeStart != 1 || sl.RemainRangeEnd != 5 {
		t.Errorf("remainder range = [%d,%d], want [1,5]", sl.RemainRangeStart, sl.RemainRangeEnd)
	}
}

func TestPlanDispatchSplitCostSumsExactly(t *testing.T) {
	// 3 of 7 cartons at an awkward total: the rounded ship share plus the
	// remainder must reproduce the original cost to the cent.
	lines := []PurchaseOrderLine{{
		ID:             1,
		UnitsPerCarton: 3,
		CartonQty:      7,
		TotalCost:      decPtr("100.00"),
		Status:         LineStatusPending,
	}}

	plan := planDispatchSplit(lines, map[int]int64{1: 3})
	sl := plan.Lines[0]
	if !sl.ShipCost.Equal(dec("42.86")) { // 100 * 9/21 rounded
		t.Errorf("ShipCost = %s, want 42.86", sl.ShipCost)
	}
	if !sl.RemainCost.Equal(dec("57.14")) {
		t.Errorf("RemainCost = %s, want 57.14", sl.RemainCost)
	}
	if !sl.ShipCost.Add(sl.RemainCost).Equal(dec("100.00")) {
		t.Errorf("cost sides sum to %s, want 100.00", sl.ShipCost.Add(sl.RemainCost))
	}
}

func TestPlanDispatchSplitRespectsExistingRange(t *testing.T) {
	// A line already narrowed to cartons 7-10 by a previous split.
	lines := []PurchaseOrderLine{{
		ID:             2,
		UnitsPerCarton: 10,
		CartonQty:      10,
		RangeStart:     int64Ptr(7),
		RangeEnd:       int64Ptr(10),
		Status:         LineStatusPending,
	}}

	plan := planDispatchSplit(lines, map[int]int64{2: 2})
	sl := plan.Lines[0]
	if sl.ShipRangeStart != 7 || sl.ShipRangeEnd != 8 {
		t.Errorf("ship range = [%d,%d], want [7,8]", sl.ShipRangeStart, sl.ShipRangeEnd)
	}
	if sl.RemainRangeStart != 9 || sl.RemainRangeEnd != 10 {
		t.Errorf("remainder range = [%d,%d], want [9,10]", sl.RemainRangeStart, sl.RemainRangeEnd)
	}
}

func TestPlanDispatchSplitSkipsCancelledLines(t *testing.T) {
	lines := []PurchaseOrderLine{
		{ID: 1, UnitsPerCarton: 10, CartonQty: 5, Status: LineStatusCancelled},
		{ID: 2, UnitsPerCarton: 10, CartonQty: 5, TotalCost: decPtr("50"), Status: LineStatusPending},
	}
	plan := planDispatchSplit(lines, map[int]int64{2: 5})
	if len(plan.Lines) != 1 {
		t.Fatalf("got %d plan lines, want 1", len(plan.Lines))
	}
	if plan.Lines[0].Line.ID != 2 {
		t.Errorf("planned line ID = %d, want 2", plan.Lines[0].Line.ID)
	}
	if plan.HasRemainder {
		t.Error("cancelled line must not force a remainder")
	}
}

func TestPlanDispatchSplitNoCost(t *testing.T) {
	lines := []PurchaseOrderLine{{
		ID:             1,
		UnitsPerCarton: 10,
		CartonQty:      4,
		Status:         LineStatusPending,
	}}
	plan := planDispatchSplit(lines, map[int]int64{1: 2})
	sl := plan.Lines[0]
	if !sl.ShipCost.Equal(decimal.Zero) || !sl.RemainCost.Equal(decimal.Zero) {
		t.Errorf("costless line split costs = %s / %s, want 0 / 0", sl.ShipCost, sl.RemainCost)
	}
}
