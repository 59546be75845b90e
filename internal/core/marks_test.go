package core

import (
	"errors"
	"strings"
	"testing"
)

func TestRenderShippingMarks(t *testing.T) {
	po := warehouseStageOrder()
	po.OrderRef = "ORD-GEN-00042~2"
	po.Lines[0].CountryOfOrigin = strPtr("cn")

	marks, err := renderShippingMarks(po)
	if err != nil {
		t.Fatal(err)
	}
	if marks.OrderRef != "ORD-GEN-00042" {
		t.Errorf("OrderRef = %q, want public form", marks.OrderRef)
	}
	if len(marks.Labels) != 1 {
		t.Fatalf("got %d labels, want 1", len(marks.Labels))
	}
	label := marks.Labels[0]
	for _, want := range []string{
		"ORD-GEN-00042",
		"SKU: WIDGET-A",
		"100% cotton knit t-shirts",
		"MADE IN CN",
		"HS CODE: 61091000",
		"QTY: 100 PCS/CTN",
		"CARTON 1-10 OF 10",
		"G.W.: 12.50 KG",
	} {
		if !strings.Contains(label, want) {
			t.Errorf("label missing %q:\n%s", want, label)
		}
	}
}

func TestRenderShippingMarksRange(t *testing.T) {
	po := warehouseStageOrder()
	po.Lines[0].RangeStart = int64Ptr(7)
	po.Lines[0].RangeEnd = int64Ptr(10)
	po.Lines[0].RangeTotal = int64Ptr(10)

	marks, err := renderShippingMarks(po)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(marks.Labels[0], "CARTON 7-10 OF 10") {
		t.Errorf("label missing narrowed range:\n%s", marks.Labels[0])
	}
}

func TestRenderShippingMarksSupplierCountryFallback(t *testing.T) {
	po := warehouseStageOrder()
	po.SupplierCountry = "vn"
	po.Lines[0].CountryOfOrigin = nil

	marks, err := renderShippingMarks(po)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(marks.Labels[0], "MADE IN VN") {
		t.Errorf("label should fall back to the supplier country:\n%s", marks.Labels[0])
	}
}

func TestRenderShippingMarksOmitsEmptySections(t *testing.T) {
	po := warehouseStageOrder()
	po.Lines[0].MaterialDescription = nil
	po.Lines[0].GrossWeightKg = nil

	marks, err := renderShippingMarks(po)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(marks.Labels[0], "G.W.") {
		t.Errorf("label should omit weight line:\n%s", marks.Labels[0])
	}
}

func TestRenderShippingMarksNoActiveLines(t *testing.T) {
	po := warehouseStageOrder()
	po.Lines[0].Status = LineStatusCancelled

	_, err := renderShippingMarks(po)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
