package core

import (
	"fmt"
	"strings"
)

// Status is the workflow stage of a purchase order.
//
// Stage progression:
//
//	ISSUED ──> MANUFACTURING ──> OCEAN ──> WAREHOUSE ──> SHIPPED
//	   │              │             │           │
//	   └──────────────┴─────────────┴───────────┴──> CLOSED
//
// SHIPPED and CLOSED are terminal. SHIPPED is never a manual transition
// target: outbound shipping is driven by a downstream dispatch object.
// CLOSED is the cancellation terminal, reachable from every non-terminal
// stage. A transition whose target equals the current stage is the in-place
// edit path: stage data may change but the stage does not advance.
type Status string

const (
	StatusIssued        Status = "ISSUED"
	StatusManufacturing Status = "MANUFACTURING"
	StatusOcean         Status = "OCEAN"
	StatusWarehouse     Status = "WAREHOUSE"
	StatusShipped       Status = "SHIPPED"
	StatusClosed        Status = "CLOSED"
)

// legacy status values still present in rows imported from the previous
// system. They are aliased at the aggregate's load boundary and never appear
// in the transition table.
const (
	legacyStatusRFQ       = "RFQ"
	legacyStatusRejected  = "REJECTED"
	legacyStatusCancelled = "CANCELLED"
)

// NormalizeStatus maps legacy status strings onto the current enum.
// Compatibility shim for pre-migration rows; applied once when the aggregate
// is loaded, so the transition table itself stays free of aliases.
func NormalizeStatus(raw string) (Status, error) {
	switch raw {
	case legacyStatusRFQ:
		return StatusIssued, nil
	case legacyStatusRejected, legacyStatusCancelled:
		return StatusClosed, nil
	case string(StatusIssued), string(StatusManufacturing), string(StatusOcean),
		string(StatusWarehouse), string(StatusShipped), string(StatusClosed):
		return Status(raw), nil
	default:
		return "", fmt.Errorf("unknown purchase order status %q", raw)
	}
}

// transitionTable is the static adjacency map of legal stage advances.
// CLOSED is reachable from every non-terminal stage and SHIPPED only from
// WAREHOUSE; neither appears as a key because terminal stages have no
// successors.
var transitionTable = map[Status][]Status{
	StatusIssued:        {StatusManufacturing, StatusClosed},
	StatusManufacturing: {StatusOcean, StatusClosed},
	StatusOcean:         {StatusWarehouse, StatusClosed},
	StatusWarehouse:     {StatusShipped, StatusClosed},
}

// LegalNextStatuses returns the stages reachable from the given stage, in
// table order. Terminal stages return nil.
func LegalNextStatuses(from Status) []Status {
	next := transitionTable[from]
	out := make([]Status, len(next))
	copy(out, next)
	if len(out) == 0 {
		return nil
	}
	return out
}

// IsTerminal reports whether no further stage advance is possible.
func (s Status) IsTerminal() bool {
	return s == StatusShipped || s == StatusClosed
}

// CanTransition reports whether from -> to is in the adjacency table.
// The in-place edit path (to == from) is handled separately by the caller.
func CanTransition(from, to Status) bool {
	for _, next := range transitionTable[from] {
		if next == to {
			return true
		}
	}
	return false
}

// illegalTransitionError builds the error for a target status not reachable
// from the current one, listing exactly the legal next stages.
func illegalTransitionError(from, to Status) error {
	next := LegalNextStatuses(from)
	if len(next) == 0 {
		return validationErrorf("cannot transition from terminal status %s", from)
	}
	names := make([]string, len(next))
	for i, s := range next {
		names[i] = string(s)
	}
	return validationErrorf("cannot transition from %s to %s: legal next statuses are %s",
		from, to, strings.Join(names, ", "))
}

// LineStatus is the lifecycle state of a purchase order line.
type LineStatus string

const (
	LineStatusPending   LineStatus = "PENDING"
	LineStatusPosted    LineStatus = "POSTED"
	LineStatusCancelled LineStatus = "CANCELLED"
)
