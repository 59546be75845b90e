package app

import (
	"importdesk/internal/core"
)

// OrderResult wraps a single projected order.
type OrderResult struct {
	Order core.OrderView `json:"order"`
}

// OrderListResult wraps a projected order list.
type OrderListResult struct {
	Orders []core.OrderView `json:"orders"`
	Total  int              `json:"total"`
}

// TransitionResult wraps a transition outcome. Sibling is set when a
// dispatch split forked a remainder order.
type TransitionResult struct {
	Order   core.OrderView  `json:"order"`
	Sibling *core.OrderView `json:"sibling,omitempty"`
}

// MarksResult wraps a rendered shipping mark set.
type MarksResult struct {
	Marks core.ShippingMarks `json:"marks"`
}
