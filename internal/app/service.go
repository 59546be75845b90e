package app

import (
	"context"

	"importdesk/internal/core"
)

// ApplicationService is the facade the adapters talk to. It composes the
// order, document and cost services into request/result shaped operations.
type ApplicationService interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error)
	GetOrder(ctx context.Context, orderID int) (*OrderResult, error)
	ListOrders(ctx context.Context, req ListOrdersRequest) (*OrderListResult, error)

	TransitionStage(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
	UpdateStageFields(ctx context.Context, req UpdateFieldsRequest) (*OrderResult, error)
	ArchiveOrder(ctx context.Context, actorID, orderID int) (*OrderResult, error)

	ReceiveInventory(ctx context.Context, req ReceiveRequest) (*OrderResult, error)
	GenerateShippingMarks(ctx context.Context, actorID, orderID int) (*MarksResult, error)

	AddDocument(ctx context.Context, req AddDocumentRequest) (*core.OrderDocument, error)
	ListDocuments(ctx context.Context, orderID int) ([]core.OrderDocument, error)
	AddInvoice(ctx context.Context, req AddInvoiceRequest) (*core.OrderInvoice, error)
	ListInvoices(ctx context.Context, orderID int) ([]core.OrderInvoice, error)

	RecordForwardingCost(ctx context.Context, req ForwardingCostRequest) (*core.ForwardingCost, error)
	ListAuditLog(ctx context.Context, orderID int) ([]core.AuditEvent, error)
}
