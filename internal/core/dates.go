package core

import "time"

// milestone is one dated step of the order's physical journey. The slice
// order below is the required chronology.
type milestone struct {
	field string
	at    *time.Time
}

// validateMilestoneOrder enforces chronological ordering between dependent
// date fields using the baseline-pick rule: the latest KNOWN upstream
// milestone is the lower bound for the next known milestone; unknown
// milestones impose no constraint. Violations name both fields involved.
func validateMilestoneOrder(po *PurchaseOrder) error {
	chain := []milestone{
		{"mfgStartDate", po.MfgStartDate},
		{"mfgCompletionDate", po.MfgCompletionDate},
		{"departureDate", po.DepartureDate},
		{"arrivalDate", po.ArrivalDate},
		{"customsClearedDate", po.CustomsClearedDate},
		{"receivedDate", po.ReceivedDate},
	}

	var baseline *milestone
	for i := range chain {
		m := chain[i]
		if m.at == nil {
			continue
		}
		if baseline != nil && m.at.Before(*baseline.at) {
			return validationErrorf("%s (%s) must not be before %s (%s)",
				m.field, m.at.Format("2006-01-02"),
				baseline.field, baseline.at.Format("2006-01-02"))
		}
		baseline = &chain[i]
	}
	return nil
}
