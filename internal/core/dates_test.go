package core

import (
	"strings"
	"testing"
	"time"
)

func datePtr(s string) *time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestValidateMilestoneOrder(t *testing.T) {
	t.Run("ordered chain passes", func(t *testing.T) {
		po := &PurchaseOrder{
			MfgStartDate:      datePtr("2026-01-05"),
			MfgCompletionDate: datePtr("2026-02-01"),
			DepartureDate:     datePtr("2026-02-10"),
			ArrivalDate:       datePtr("2026-03-15"),
			ReceivedDate:      datePtr("2026-03-20"),
		}
		if err := validateMilestoneOrder(po); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("equal dates pass", func(t *testing.T) {
		po := &PurchaseOrder{
			DepartureDate: datePtr("2026-02-10"),
			ArrivalDate:   datePtr("2026-02-10"),
		}
		if err := validateMilestoneOrder(po); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("regression fails and names both fields", func(t *testing.T) {
		po := &PurchaseOrder{
			DepartureDate: datePtr("2026-03-01"),
			ArrivalDate:   datePtr("2026-02-20"),
		}
		err := validateMilestoneOrder(po)
		if err == nil {
			t.Fatal("expected error")
		}
		msg := err.Error()
		if !strings.Contains(msg, "arrivalDate") || !strings.Contains(msg, "departureDate") {
			t.Errorf("error should name both milestones, got %q", msg)
		}
		if !strings.Contains(msg, "2026-02-20") || !strings.Contains(msg, "2026-03-01") {
			t.Errorf("error should include both dates, got %q", msg)
		}
	})

	t.Run("gaps skip to the latest known baseline", func(t *testing.T) {
		// No departure or arrival recorded: customsClearedDate is bounded by
		// mfgCompletionDate, not by the missing intermediates.
		po := &PurchaseOrder{
			MfgCompletionDate:  datePtr("2026-02-01"),
			CustomsClearedDate: datePtr("2026-03-01"),
		}
		if err := validateMilestoneOrder(po); err != nil {
			t.Errorf("unexpected error: %v", err)
		}

		po.CustomsClearedDate = datePtr("2026-01-15")
		err := validateMilestoneOrder(po)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "mfgCompletionDate") {
			t.Errorf("baseline should be mfgCompletionDate, got %q", err.Error())
		}
	})

	t.Run("empty chain passes", func(t *testing.T) {
		if err := validateMilestoneOrder(&PurchaseOrder{}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
