package core

import (
	"testing"
	"time"
)

func TestNewOrderView(t *testing.T) {
	now := time.Now()
	po := warehouseStageOrder()
	po.OrderRef = "ORD-GEN-00042~2"
	parent := 9
	po.ParentOrderID = &parent
	po.TotalWeightKg = decPtr("125.5")
	po.TotalVolumeM3 = decPtr("0.6")
	po.PostedAt = &now
	approved := now.Add(-time.Hour)
	po.IssuedApprovedAt = &approved
	po.ManufacturingApprovedAt = &approved

	v := NewOrderView(po)
	if v.OrderRef != "ORD-GEN-00042" {
		t.Errorf("OrderRef = %q, want public form", v.OrderRef)
	}
	if !v.SplitSibling {
		t.Error("expected SplitSibling")
	}
	if !v.Posted {
		t.Error("expected Posted")
	}
	if v.TotalWeightKg == nil || *v.TotalWeightKg != "125.50" {
		t.Errorf("TotalWeightKg = %v, want 125.50", v.TotalWeightKg)
	}
	if v.TotalVolumeM3 == nil || *v.TotalVolumeM3 != "0.600" {
		t.Errorf("TotalVolumeM3 = %v, want 0.600", v.TotalVolumeM3)
	}
	if len(v.LegalNextStatuses) != 2 {
		t.Errorf("LegalNextStatuses = %v", v.LegalNextStatuses)
	}
	if v.IssuedApprovedAt == nil || !v.IssuedApprovedAt.Equal(approved) {
		t.Errorf("IssuedApprovedAt = %v, want %v", v.IssuedApprovedAt, approved)
	}
	if v.ManufacturingApprovedAt == nil || !v.ManufacturingApprovedAt.Equal(approved) {
		t.Errorf("ManufacturingApprovedAt = %v, want %v", v.ManufacturingApprovedAt, approved)
	}
	if v.OceanApprovedAt != nil || v.WarehouseApprovedAt != nil {
		t.Error("unapproved stages must project no timestamp")
	}
}

func TestMarksStaleness(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	po := warehouseStageOrder()
	po.UpdatedAt = base
	po.Lines[0].UpdatedAt = base

	t.Run("no marks", func(t *testing.T) {
		v := NewOrderView(po)
		if v.MarksGenerated || v.MarksStale {
			t.Errorf("MarksGenerated=%v MarksStale=%v, want false/false", v.MarksGenerated, v.MarksStale)
		}
	})

	t.Run("fresh marks", func(t *testing.T) {
		at := base.Add(time.Hour)
		po.MarksGeneratedAt = &at
		v := NewOrderView(po)
		if !v.MarksGenerated || v.MarksStale {
			t.Errorf("MarksGenerated=%v MarksStale=%v, want true/false", v.MarksGenerated, v.MarksStale)
		}
	})

	t.Run("line edit after generation makes marks stale", func(t *testing.T) {
		at := base.Add(time.Hour)
		po.MarksGeneratedAt = &at
		po.Lines[0].UpdatedAt = base.Add(2 * time.Hour)
		v := NewOrderView(po)
		if !v.MarksStale {
			t.Error("expected stale marks after a line mutation")
		}
	})
}
