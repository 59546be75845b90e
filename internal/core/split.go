package core

import (
	"github.com/shopspring/decimal"
)

// SplitLine is the per-line outcome of a dispatch split plan.
// Ship* describes the line as it remains on the shipping order; Remain*
// describes the sibling line carried by the remainder order. Cost is split so
// ShipCost + RemainCost equals the original total cost exactly.
type SplitLine struct {
	Line *PurchaseOrderLine

	ShipCartons int64
	ShipUnits   int64
	ShipCost    decimal.Decimal
	// ShipRange is the [start,end] carton sub-range shipping now; zero when
	// nothing ships (the line is cancelled on the shipping order).
	ShipRangeStart int64
	ShipRangeEnd   int64

	RemainCartons    int64
	RemainUnits      int64
	RemainCost       decimal.Decimal
	RemainRangeStart int64
	RemainRangeEnd   int64
}

// SplitPlan is the full outcome of planning a dispatch split.
// HasRemainder is false when every line ships in full, in which case the
// split is a no-op and no sibling order is created.
type SplitPlan struct {
	Lines        []SplitLine
	HasRemainder bool
}

// planDispatchSplit computes, per active line, the ship-now and remainder
// carton ranges, unit counts and cost shares for the supplied allocation.
// The allocation must already have passed the dispatch gate: every active
// line present, counts within range, positive overall total.
//
// Cost apportionment: a fully shipped line takes the entire original cost on
// the shipping side and a zero-shipped line takes it entirely on the
// remainder side, so rounding never leaks on whole-line moves. The general
// case gives the shipping side a 2-decimal-rounded proportional share of the
// original total, with the remainder absorbing the residual: the two sides
// always sum exactly to the original cost.
func planDispatchSplit(lines []PurchaseOrderLine, alloc map[int]int64) SplitPlan {
	var plan SplitPlan
	for i := range lines {
		l := &lines[i]
		if l.Status == LineStatusCancelled {
			continue
		}
		shipCartons := alloc[l.ID]
		avail := l.availableCartons()
		remainCartons := avail - shipCartons

		sl := SplitLine{
			Line:          l,
			ShipCartons:   shipCartons,
			ShipUnits:     shipCartons * l.UnitsPerCarton,
			RemainCartons: remainCartons,
			RemainUnits:   remainCartons * l.UnitsPerCarton,
		}

		start := int64(1)
		if l.RangeStart != nil {
			start = *l.RangeStart
		}
		end := start + avail - 1
		if shipCartons > 0 {
			sl.ShipRangeStart = start
			sl.ShipRangeEnd = start + shipCartons - 1
		}
		if remainCartons > 0 {
			sl.RemainRangeStart = start + shipCartons
			sl.RemainRangeEnd = end
			plan.HasRemainder = true
		}

		if total := l.ResolveTotalCost(); total != nil {
			switch {
			case remainCartons == 0:
				sl.ShipCost = *total
			case shipCartons == 0:
				sl.RemainCost = *total
			default:
				units := decimal.NewFromInt(avail * l.UnitsPerCarton)
				shipUnits := decimal.NewFromInt(sl.ShipUnits)
				sl.ShipCost = total.Mul(shipUnits).Div(units).Round(2)
				sl.RemainCost = total.Sub(sl.ShipCost)
			}
		}

		plan.Lines = append(plan.Lines, sl)
	}
	return plan
}
