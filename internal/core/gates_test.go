package core

import (
	"testing"
	"time"
)

// compliantLine returns a line that passes every trade-compliance check.
func compliantLine(id int) PurchaseOrderLine {
	return PurchaseOrderLine{
		ID:                      id,
		SKUCode:                 "WIDGET-A",
		UnitsOrdered:            1000,
		UnitsPerCarton:          100,
		CartonQty:               10,
		TotalCost:               decPtr("1000.00"),
		CommodityCode:           strPtr("61091000"),
		CountryOfOrigin:         strPtr("CN"),
		MaterialDescription:     strPtr("100% cotton knit t-shirts"),
		NetWeightKg:             decPtr("10"),
		GrossWeightKg:           decPtr("12.5"),
		CartonLengthCm:          decPtr("50"),
		CartonWidthCm:           decPtr("40"),
		CartonHeightCm:          decPtr("30"),
		CartonsPerPalletStorage: int64Ptr(4),
		Status:                  LineStatusPending,
	}
}

func issuedReadyOrder() *PurchaseOrder {
	now := time.Now()
	return &PurchaseOrder{
		SupplierID:         5,
		SupplierHasBanking: true,
		SupplierCountry:    "CN",
		CargoReadyDate:     &now,
		Incoterms:          "FOB",
		PaymentTerms:       "30% deposit, 70% before shipment",
		Status:             StatusIssued,
		Lines:              []PurchaseOrderLine{compliantLine(1)},
	}
}

func TestIssuedGate(t *testing.T) {
	t.Run("complete header and costing passes", func(t *testing.T) {
		v := evaluateStageGate(StatusIssued, GateContext{Order: issuedReadyOrder()})
		if len(v) != 0 {
			t.Errorf("unexpected violations: %v", v)
		}
	})

	t.Run("missing header fields", func(t *testing.T) {
		po := issuedReadyOrder()
		po.CargoReadyDate = nil
		po.Incoterms = ""
		po.PaymentTerms = ""
		v := evaluateStageGate(StatusIssued, GateContext{Order: po})
		for _, key := range []string{"order.cargoReadyDate", "order.incoterms", "order.paymentTerms"} {
			if _, ok := v[key]; !ok {
				t.Errorf("missing violation %q in %v", key, v.Keys())
			}
		}
	})

	t.Run("supplier without banking", func(t *testing.T) {
		po := issuedReadyOrder()
		po.SupplierHasBanking = false
		v := evaluateStageGate(StatusIssued, GateContext{Order: po})
		if _, ok := v["order.supplierBanking"]; !ok {
			t.Errorf("expected order.supplierBanking violation, got %v", v.Keys())
		}
	})

	t.Run("missing supplier suppresses banking check", func(t *testing.T) {
		po := issuedReadyOrder()
		po.SupplierID = 0
		po.SupplierHasBanking = false
		v := evaluateStageGate(StatusIssued, GateContext{Order: po})
		if _, ok := v["order.supplier"]; !ok {
			t.Errorf("expected order.supplier violation, got %v", v.Keys())
		}
		if _, ok := v["order.supplierBanking"]; ok {
			t.Error("banking violation should not be reported without a supplier")
		}
	})

	t.Run("line without resolvable cost", func(t *testing.T) {
		po := issuedReadyOrder()
		po.Lines[0].UnitCost = nil
		po.Lines[0].TotalCost = nil
		v := evaluateStageGate(StatusIssued, GateContext{Order: po})
		if _, ok := v["lines.1.totalCost"]; !ok {
			t.Errorf("expected lines.1.totalCost violation, got %v", v.Keys())
		}
	})

	t.Run("indivisible units", func(t *testing.T) {
		po := issuedReadyOrder()
		po.Lines[0].UnitsOrdered = 1050
		v := evaluateStageGate(StatusIssued, GateContext{Order: po})
		if _, ok := v["lines.1.unitsPerCarton"]; !ok {
			t.Errorf("expected lines.1.unitsPerCarton violation, got %v", v.Keys())
		}
	})

	t.Run("cancelled lines are skipped", func(t *testing.T) {
		po := issuedReadyOrder()
		bad := compliantLine(2)
		bad.TotalCost = nil
		bad.Status = LineStatusCancelled
		po.Lines = append(po.Lines, bad)
		v := evaluateStageGate(StatusIssued, GateContext{Order: po})
		if len(v) != 0 {
			t.Errorf("cancelled line must not contribute violations: %v", v)
		}
	})
}

func TestManufacturingGate(t *testing.T) {
	t.Run("compliant line passes", func(t *testing.T) {
		v := evaluateStageGate(StatusManufacturing, GateContext{Order: issuedReadyOrder()})
		if len(v) != 0 {
			t.Errorf("unexpected violations: %v", v)
		}
	})

	t.Run("country falls back to supplier", func(t *testing.T) {
		po := issuedReadyOrder()
		po.Lines[0].CountryOfOrigin = nil
		v := evaluateStageGate(StatusManufacturing, GateContext{Order: po})
		if len(v) != 0 {
			t.Errorf("supplier country should satisfy origin, got %v", v)
		}

		po.SupplierCountry = ""
		v = evaluateStageGate(StatusManufacturing, GateContext{Order: po})
		if _, ok := v["lines.1.countryOfOrigin"]; !ok {
			t.Errorf("expected lines.1.countryOfOrigin violation, got %v", v.Keys())
		}
	})

	t.Run("missing compliance fields", func(t *testing.T) {
		po := issuedReadyOrder()
		l := &po.Lines[0]
		l.CommodityCode = nil
		l.MaterialDescription = strPtr("   ")
		l.NetWeightKg = decPtr("0")
		l.GrossWeightKg = nil
		l.CartonHeightCm = nil
		v := evaluateStageGate(StatusManufacturing, GateContext{Order: po})
		for _, key := range []string{
			"lines.1.commodityCode",
			"lines.1.materialDescription",
			"lines.1.netWeightKg",
			"lines.1.grossWeightKg",
			"lines.1.cartonDimensions",
		} {
			if _, ok := v[key]; !ok {
				t.Errorf("missing violation %q in %v", key, v.Keys())
			}
		}
	})
}

func TestValidateCommodityCode(t *testing.T) {
	cases := []struct {
		code, country string
		valid         bool
	}{
		{"610910", "CN", true},
		{"61091000", "CN", true},
		{"6109100012", "CN", true},
		{"6109", "CN", false},
		{"610910001", "CN", false},
		{"6109100012", "US", true},
		{"61091000", "US", false},
		{"610910", "us", false},
		{"6109-10", "CN", false},
		{"61091O", "CN", false},
	}
	for _, tc := range cases {
		msg := validateCommodityCode(tc.code, tc.country)
		if tc.valid && msg != "" {
			t.Errorf("validateCommodityCode(%q, %q) = %q, want valid", tc.code, tc.country, msg)
		}
		if !tc.valid && msg == "" {
			t.Errorf("validateCommodityCode(%q, %q) accepted, want rejection", tc.code, tc.country)
		}
	}
}

func TestNormalizeDocKey(t *testing.T) {
	cases := []struct{ in, want string }{
		{"INV-2026/001", "INV2026001"},
		{"inv 2026 001", "INV2026001"},
		{"CI#88.b", "CI88B"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeDocKey(tc.in); got != tc.want {
			t.Errorf("NormalizeDocKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestOceanDocumentsGate(t *testing.T) {
	order := issuedReadyOrder()
	docs := []OrderDocument{
		{Stage: StatusOcean, Type: DocTypeBillOfLading},
		{Stage: StatusOcean, Type: DocTypePackingList},
		{Stage: StatusOcean, Type: DocTypeCommercialInvoice, DocKey: "INV2026001"},
	}
	invoices := []OrderInvoice{{Kind: InvoiceKindCommercial, InvoiceNumber: "INV-2026/001"}}

	t.Run("complete document set passes", func(t *testing.T) {
		v := evaluateStageGate(StatusOcean, GateContext{Order: order, Documents: docs, Invoices: invoices})
		if len(v) != 0 {
			t.Errorf("unexpected violations: %v", v)
		}
	})

	t.Run("missing required documents", func(t *testing.T) {
		v := evaluateStageGate(StatusOcean, GateContext{Order: order, Invoices: invoices})
		for _, key := range []string{"documents.billOfLading", "documents.packingList"} {
			if _, ok := v[key]; !ok {
				t.Errorf("missing violation %q in %v", key, v.Keys())
			}
		}
	})

	t.Run("no commercial invoice record", func(t *testing.T) {
		v := evaluateStageGate(StatusOcean, GateContext{Order: order, Documents: docs})
		if _, ok := v["documents.commercialInvoice"]; !ok {
			t.Errorf("expected documents.commercialInvoice violation, got %v", v.Keys())
		}
	})

	t.Run("invoice without matching document", func(t *testing.T) {
		extra := append(invoices, OrderInvoice{Kind: InvoiceKindCommercial, InvoiceNumber: "INV-2026/002"})
		v := evaluateStageGate(StatusOcean, GateContext{Order: order, Documents: docs, Invoices: extra})
		if _, ok := v["documents.commercialInvoice.INV2026002"]; !ok {
			t.Errorf("expected per-invoice violation, got %v", v.Keys())
		}
	})

	t.Run("documents from other stages do not count", func(t *testing.T) {
		wrongStage := []OrderDocument{
			{Stage: StatusManufacturing, Type: DocTypeBillOfLading},
			{Stage: StatusOcean, Type: DocTypePackingList},
			{Stage: StatusOcean, Type: DocTypeCommercialInvoice, DocKey: "INV2026001"},
		}
		v := evaluateStageGate(StatusOcean, GateContext{Order: order, Documents: wrongStage, Invoices: invoices})
		if _, ok := v["documents.billOfLading"]; !ok {
			t.Errorf("expected documents.billOfLading violation, got %v", v.Keys())
		}
	})
}

func TestDispatchGate(t *testing.T) {
	order := issuedReadyOrder() // one active line, ID 1, 10 cartons
	docs := []OrderDocument{
		{Stage: StatusOcean, Type: DocTypeBillOfLading},
		{Stage: StatusOcean, Type: DocTypePackingList},
		{Stage: StatusOcean, Type: DocTypeCommercialInvoice, DocKey: "INV2026001"},
	}
	invoices := []OrderInvoice{{Kind: InvoiceKindCommercial, InvoiceNumber: "INV-2026/001"}}
	gc := func(dispatch map[int]int64) GateContext {
		return GateContext{Order: order, Documents: docs, Invoices: invoices, Dispatch: dispatch}
	}

	t.Run("valid allocation passes", func(t *testing.T) {
		if v := evaluateStageGate(StatusOcean, gc(map[int]int64{1: 6})); len(v) != 0 {
			t.Errorf("unexpected violations: %v", v)
		}
	})

	t.Run("nil allocation skips dispatch checks", func(t *testing.T) {
		if v := evaluateStageGate(StatusOcean, gc(nil)); len(v) != 0 {
			t.Errorf("unexpected violations: %v", v)
		}
	})

	t.Run("missing line", func(t *testing.T) {
		v := evaluateStageGate(StatusOcean, gc(map[int]int64{}))
		if _, ok := v["lines.1.shipNowCartons"]; !ok {
			t.Errorf("expected lines.1.shipNowCartons violation, got %v", v.Keys())
		}
	})

	t.Run("negative count", func(t *testing.T) {
		v := evaluateStageGate(StatusOcean, gc(map[int]int64{1: -1}))
		if _, ok := v["lines.1.shipNowCartons"]; !ok {
			t.Errorf("expected lines.1.shipNowCartons violation, got %v", v.Keys())
		}
	})

	t.Run("over-allocation", func(t *testing.T) {
		v := evaluateStageGate(StatusOcean, gc(map[int]int64{1: 11}))
		if _, ok := v["lines.1.shipNowCartons"]; !ok {
			t.Errorf("expected lines.1.shipNowCartons violation, got %v", v.Keys())
		}
	})

	t.Run("zero overall total", func(t *testing.T) {
		v := evaluateStageGate(StatusOcean, gc(map[int]int64{1: 0}))
		if _, ok := v["dispatch.total"]; !ok {
			t.Errorf("expected dispatch.total violation, got %v", v.Keys())
		}
	})
}

func TestWarehouseGate(t *testing.T) {
	order := issuedReadyOrder()
	v := evaluateStageGate(StatusWarehouse, GateContext{Order: order, ForwardingCostCount: 0})
	if _, ok := v["costs.forwarding"]; !ok {
		t.Errorf("expected costs.forwarding violation, got %v", v.Keys())
	}
	v = evaluateStageGate(StatusWarehouse, GateContext{Order: order, ForwardingCostCount: 2})
	if len(v) != 0 {
		t.Errorf("unexpected violations: %v", v)
	}
}

func TestReceiptGate(t *testing.T) {
	base := func() *PurchaseOrder {
		po := issuedReadyOrder()
		po.Status = StatusWarehouse
		po.CustomsEntryNo = strPtr("C-12345")
		cleared := time.Now()
		po.CustomsClearedDate = &cleared
		po.WarehouseCode = strPtr("WH-EAST")
		po.ReceiveType = strPtr("PALLETS")
		return po
	}
	fullReceipt := ReceiptInput{Lines: []ReceiptLineInput{{LineID: 1, ReceivedCartons: 10}}}

	t.Run("complete receipt passes", func(t *testing.T) {
		if v := evaluateReceiptGate(base(), fullReceipt); len(v) != 0 {
			t.Errorf("unexpected violations: %v", v)
		}
	})

	t.Run("input fields satisfy missing order fields", func(t *testing.T) {
		po := base()
		po.CustomsEntryNo = nil
		po.CustomsClearedDate = nil
		po.WarehouseCode = nil
		po.ReceiveType = nil
		cleared := time.Now()
		in := ReceiptInput{
			CustomsEntryNo:     "C-99",
			CustomsClearedDate: &cleared,
			WarehouseCode:      "WH-WEST",
			ReceiveType:        "CARTONS",
			Lines:              fullReceipt.Lines,
		}
		if v := evaluateReceiptGate(po, in); len(v) != 0 {
			t.Errorf("unexpected violations: %v", v)
		}
	})

	t.Run("missing customs and warehouse data", func(t *testing.T) {
		po := base()
		po.CustomsEntryNo = nil
		po.CustomsClearedDate = nil
		po.WarehouseCode = nil
		po.ReceiveType = nil
		v := evaluateReceiptGate(po, ReceiptInput{Lines: fullReceipt.Lines})
		for _, key := range []string{
			"receipt.customsEntryNo",
			"receipt.customsClearedDate",
			"receipt.warehouseCode",
			"receipt.receiveType",
		} {
			if _, ok := v[key]; !ok {
				t.Errorf("missing violation %q in %v", key, v.Keys())
			}
		}
	})

	t.Run("unresolvable cartons per pallet", func(t *testing.T) {
		po := base()
		po.Lines[0].CartonsPerPalletStorage = nil
		po.Lines[0].CartonsPerPalletShipping = nil
		v := evaluateReceiptGate(po, fullReceipt)
		if _, ok := v["lines.1.cartonsPerPallet"]; !ok {
			t.Errorf("expected lines.1.cartonsPerPallet violation, got %v", v.Keys())
		}
	})

	t.Run("missing line count", func(t *testing.T) {
		v := evaluateReceiptGate(base(), ReceiptInput{})
		if _, ok := v["lines.1.receivedCartons"]; !ok {
			t.Errorf("expected lines.1.receivedCartons violation, got %v", v.Keys())
		}
	})

	t.Run("shortfall without notes", func(t *testing.T) {
		in := ReceiptInput{Lines: []ReceiptLineInput{{LineID: 1, ReceivedCartons: 8}}}
		v := evaluateReceiptGate(base(), in)
		if _, ok := v["lines.1.discrepancyNotes"]; !ok {
			t.Errorf("expected lines.1.discrepancyNotes violation, got %v", v.Keys())
		}

		in.Lines[0].DiscrepancyNotes = "2 cartons water damaged, rejected at dock"
		if v := evaluateReceiptGate(base(), in); len(v) != 0 {
			t.Errorf("notes should clear the discrepancy violation: %v", v)
		}
	})
}
