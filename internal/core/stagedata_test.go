package core

import (
	"testing"
	"time"
)

func TestFilterStageInput(t *testing.T) {
	now := time.Now()
	in := StageInput{
		CargoReadyDate: &now,
		Incoterms:      strPtr("FOB"),
		MfgStartDate:   &now,
		VesselName:     strPtr("EVER GIVEN"),
		WarehouseCode:  strPtr("WH-EAST"),
		Dispatch:       map[int]int64{1: 5},
	}

	t.Run("issue stage keeps only header fields", func(t *testing.T) {
		out := filterStageInput(in, StatusIssued)
		if out.CargoReadyDate == nil || out.Incoterms == nil {
			t.Error("issue-stage fields dropped")
		}
		if out.MfgStartDate != nil || out.VesselName != nil || out.WarehouseCode != nil {
			t.Error("out-of-stage fields leaked through")
		}
		if out.Dispatch != nil {
			t.Error("dispatch must not survive outside the ocean stage")
		}
	})

	t.Run("ocean stage carries dispatch", func(t *testing.T) {
		out := filterStageInput(in, StatusOcean)
		if out.VesselName == nil {
			t.Error("ocean-stage field dropped")
		}
		if out.Dispatch == nil {
			t.Error("dispatch dropped at ocean stage")
		}
		if out.CargoReadyDate != nil || out.WarehouseCode != nil {
			t.Error("out-of-stage fields leaked through")
		}
	})

	t.Run("cargo totals editable at manufacturing and ocean", func(t *testing.T) {
		totals := StageInput{TotalCartons: int64Ptr(40), TotalWeightKg: decPtr("500")}
		for _, stage := range []Status{StatusManufacturing, StatusOcean} {
			out := filterStageInput(totals, stage)
			if out.TotalCartons == nil || out.TotalWeightKg == nil {
				t.Errorf("totals dropped at %s", stage)
			}
		}
		out := filterStageInput(totals, StatusWarehouse)
		if out.TotalCartons != nil {
			t.Error("totals must not be editable at warehouse stage")
		}
	})
}

func TestApplyStageInput(t *testing.T) {
	po := &PurchaseOrder{Incoterms: "EXW", PaymentTerms: "TT in advance"}
	now := time.Now()
	applyStageInput(po, StageInput{
		Incoterms:     strPtr("FOB"),
		MfgStartDate:  &now,
		TotalCartons:  int64Ptr(40),
		VesselName:    strPtr("EVER GIVEN"),
		WarehouseCode: strPtr("WH-EAST"),
	})

	if po.Incoterms != "FOB" {
		t.Errorf("Incoterms = %q, want FOB", po.Incoterms)
	}
	if po.PaymentTerms != "TT in advance" {
		t.Errorf("unsupplied field changed: PaymentTerms = %q", po.PaymentTerms)
	}
	if po.MfgStartDate == nil || po.TotalCartons == nil || *po.TotalCartons != 40 {
		t.Error("supplied fields not applied")
	}
	if po.VesselName == nil || *po.VesselName != "EVER GIVEN" {
		t.Error("VesselName not applied")
	}
	if po.WarehouseCode == nil || *po.WarehouseCode != "WH-EAST" {
		t.Error("WarehouseCode not applied")
	}
}

func TestDiffStageFields(t *testing.T) {
	po := &PurchaseOrder{Status: StatusIssued, Incoterms: "EXW"}
	before := snapshotStageFields(po)

	po.Status = StatusManufacturing
	po.Incoterms = "FOB"
	now := time.Now()
	po.MfgStartDate = &now
	after := snapshotStageFields(po)

	oldVals, newVals := diffStageFields(before, after)
	if len(oldVals) != 3 {
		t.Fatalf("got %d changed fields %v, want 3", len(oldVals), newVals)
	}
	if oldVals["status"] != "ISSUED" || newVals["status"] != "MANUFACTURING" {
		t.Errorf("status diff = %q -> %q", oldVals["status"], newVals["status"])
	}
	if oldVals["incoterms"] != "EXW" || newVals["incoterms"] != "FOB" {
		t.Errorf("incoterms diff = %q -> %q", oldVals["incoterms"], newVals["incoterms"])
	}
	if oldVals["mfgStartDate"] != "" || newVals["mfgStartDate"] != now.Format("2006-01-02") {
		t.Errorf("mfgStartDate diff = %q -> %q", oldVals["mfgStartDate"], newVals["mfgStartDate"])
	}

	sameOld, sameNew := diffStageFields(after, snapshotStageFields(po))
	if len(sameOld) != 0 || len(sameNew) != 0 {
		t.Errorf("no-op diff not empty: %v / %v", sameOld, sameNew)
	}
}
