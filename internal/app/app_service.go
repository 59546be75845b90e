package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"importdesk/internal/core"
)

type appService struct {
	pool   *pgxpool.Pool
	orders core.PurchaseOrderService
	docs   core.DocumentService
	costs  core.CostLedgerService
	audit  core.AuditSink
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	pool *pgxpool.Pool,
	orders core.PurchaseOrderService,
	docs core.DocumentService,
	costs core.CostLedgerService,
	audit core.AuditSink,
) ApplicationService {
	return &appService{
		pool:   pool,
		orders: orders,
		docs:   docs,
		costs:  costs,
		audit:  audit,
	}
}

// resolveActor loads the caller identity. Authentication happens upstream;
// here the id just has to exist.
func (s *appService) resolveActor(ctx context.Context, actorID int) (core.User, error) {
	var u core.User
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, email FROM users WHERE id = $1", actorID,
	).Scan(&u.ID, &u.Name, &u.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.User{}, fmt.Errorf("user %d not found", actorID)
		}
		return core.User{}, fmt.Errorf("load user %d: %w", actorID, err)
	}
	return u, nil
}

func (s *appService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	actor, err := s.resolveActor(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	po, err := s.orders.CreateOrder(ctx, actor, core.CreateOrderInput{
		SKUGroup:       req.SKUGroup,
		SupplierID:     req.SupplierID,
		Incoterms:      req.Incoterms,
		PaymentTerms:   req.PaymentTerms,
		CargoReadyDate: req.CargoReadyDate,
		ExpectedDate:   req.ExpectedDate,
		Lines:          req.Lines,
	})
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: core.NewOrderView(po)}, nil
}

func (s *appService) GetOrder(ctx context.Context, orderID int) (*OrderResult, error) {
	po, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: core.NewOrderView(po)}, nil
}

func (s *appService) ListOrders(ctx context.Context, req ListOrdersRequest) (*OrderListResult, error) {
	filter := core.OrderFilter{
		SKUGroup:        req.SKUGroup,
		SupplierID:      req.SupplierID,
		IncludeArchived: req.IncludeArchived,
	}
	if req.Status != "" {
		status, err := core.NormalizeStatus(req.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}
	orders, err := s.orders.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &OrderListResult{Orders: core.NewOrderViews(orders), Total: len(orders)}, nil
}

func (s *appService) TransitionStage(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	actor, err := s.resolveActor(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	target, err := core.NormalizeStatus(req.Target)
	if err != nil {
		return nil, err
	}
	res, err := s.orders.TransitionStage(ctx, actor, req.OrderID, target, req.Input)
	if err != nil {
		return nil, err
	}
	out := &TransitionResult{Order: core.NewOrderView(res.Order)}
	if res.Sibling != nil {
		v := core.NewOrderView(res.Sibling)
		out.Sibling = &v
	}
	return out, nil
}

func (s *appService) UpdateStageFields(ctx context.Context, req UpdateFieldsRequest) (*OrderResult, error) {
	actor, err := s.resolveActor(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	po, err := s.orders.UpdateStageFields(ctx, actor, req.OrderID, req.Input)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: core.NewOrderView(po)}, nil
}

func (s *appService) ArchiveOrder(ctx context.Context, actorID, orderID int) (*OrderResult, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	po, err := s.orders.ArchiveOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: core.NewOrderView(po)}, nil
}

func (s *appService) ReceiveInventory(ctx context.Context, req ReceiveRequest) (*OrderResult, error) {
	actor, err := s.resolveActor(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	po, err := s.orders.ReceiveInventory(ctx, actor, req.OrderID, req.Input)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: core.NewOrderView(po)}, nil
}

func (s *appService) GenerateShippingMarks(ctx context.Context, actorID, orderID int) (*MarksResult, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	marks, err := s.orders.GenerateShippingMarks(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	return &MarksResult{Marks: *marks}, nil
}

func (s *appService) AddDocument(ctx context.Context, req AddDocumentRequest) (*core.OrderDocument, error) {
	actor, err := s.resolveActor(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	stage, err := core.NormalizeStatus(req.Stage)
	if err != nil {
		return nil, err
	}
	return s.docs.AddDocument(ctx, actor, req.OrderID, stage, core.DocumentType(req.Type), req.DocKey, req.FileRef)
}

func (s *appService) ListDocuments(ctx context.Context, orderID int) ([]core.OrderDocument, error) {
	return s.docs.ListDocuments(ctx, orderID)
}

func (s *appService) AddInvoice(ctx context.Context, req AddInvoiceRequest) (*core.OrderInvoice, error) {
	actor, err := s.resolveActor(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	return s.docs.AddInvoice(ctx, actor, req.OrderID, core.InvoiceKind(req.Kind), req.InvoiceNumber, req.Amount, req.Currency)
}

func (s *appService) ListInvoices(ctx context.Context, orderID int) ([]core.OrderInvoice, error) {
	return s.docs.ListInvoices(ctx, orderID)
}

func (s *appService) RecordForwardingCost(ctx context.Context, req ForwardingCostRequest) (*core.ForwardingCost, error) {
	if _, err := s.resolveActor(ctx, req.ActorID); err != nil {
		return nil, err
	}
	fc, err := s.costs.RecordForwardingCost(ctx, req.OrderID, req.CostName, req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	// A cost recorded after receipt changes the apportionment; rebuild it.
	if err := s.costs.RecomputeForwarding(ctx, req.OrderID); err != nil {
		return nil, err
	}
	return fc, nil
}

func (s *appService) ListAuditLog(ctx context.Context, orderID int) ([]core.AuditEvent, error) {
	return s.audit.ListForOrder(ctx, orderID)
}
