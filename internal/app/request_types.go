package app

import (
	"time"

	"github.com/shopspring/decimal"

	"importdesk/internal/core"
)

// CreateOrderRequest creates and issues a new purchase order.
type CreateOrderRequest struct {
	ActorID        int                         `json:"actor_id"`
	SKUGroup       string                      `json:"sku_group"`
	SupplierID     int                         `json:"supplier_id"`
	Incoterms      string                      `json:"incoterms"`
	PaymentTerms   string                      `json:"payment_terms"`
	CargoReadyDate *time.Time                  `json:"cargo_ready_date,omitempty"`
	ExpectedDate   *time.Time                  `json:"expected_date,omitempty"`
	Lines          []core.CreateOrderLineInput `json:"lines"`
}

// ListOrdersRequest filters the order list.
type ListOrdersRequest struct {
	Status          string `json:"status,omitempty"`
	SKUGroup        string `json:"sku_group,omitempty"`
	SupplierID      *int   `json:"supplier_id,omitempty"`
	IncludeArchived bool   `json:"include_archived,omitempty"`
}

// TransitionRequest moves an order to a new stage, optionally supplying
// stage data and a dispatch allocation in the same call.
type TransitionRequest struct {
	ActorID int             `json:"actor_id"`
	OrderID int             `json:"order_id"`
	Target  string          `json:"target"`
	Input   core.StageInput `json:"input"`
}

// UpdateFieldsRequest edits stage fields without moving the order.
type UpdateFieldsRequest struct {
	ActorID int             `json:"actor_id"`
	OrderID int             `json:"order_id"`
	Input   core.StageInput `json:"input"`
}

// ReceiveRequest posts a warehouse receipt.
type ReceiveRequest struct {
	ActorID int               `json:"actor_id"`
	OrderID int               `json:"order_id"`
	Input   core.ReceiptInput `json:"input"`
}

// AddDocumentRequest attaches a document record to an order.
type AddDocumentRequest struct {
	ActorID int    `json:"actor_id"`
	OrderID int    `json:"order_id"`
	Stage   string `json:"stage"`
	Type    string `json:"type"`
	DocKey  string `json:"doc_key,omitempty"`
	FileRef string `json:"file_ref"`
}

// AddInvoiceRequest records a supplier invoice against an order.
type AddInvoiceRequest struct {
	ActorID       int             `json:"actor_id"`
	OrderID       int             `json:"order_id"`
	Kind          string          `json:"kind"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// ForwardingCostRequest records a freight cost against an order.
type ForwardingCostRequest struct {
	ActorID  int             `json:"actor_id"`
	OrderID  int             `json:"order_id"`
	CostName string          `json:"cost_name"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}
