package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"importdesk/internal/outbox"
)

// maxTxAttempts bounds the retry loop around serialization conflicts:
// version-check failures and unique violations from concurrent reference
// issuance both retry from a fresh load.
const maxTxAttempts = 5

// CreateOrderLineInput is one SKU position of a new order.
type CreateOrderLineInput struct {
	SKUCode        string           `json:"sku_code"`
	UnitsOrdered   int64            `json:"units_ordered"`
	UnitsPerCarton int64            `json:"units_per_carton"`
	UnitCost       *decimal.Decimal `json:"unit_cost,omitempty"`
	TotalCost      *decimal.Decimal `json:"total_cost,omitempty"`
	Currency       string           `json:"currency"`

	CommodityCode       *string          `json:"commodity_code,omitempty"`
	CountryOfOrigin     *string          `json:"country_of_origin,omitempty"`
	MaterialDescription *string          `json:"material_description,omitempty"`
	NetWeightKg         *decimal.Decimal `json:"net_weight_kg,omitempty"`
	GrossWeightKg       *decimal.Decimal `json:"gross_weight_kg,omitempty"`
	CartonLengthCm      *decimal.Decimal `json:"carton_length_cm,omitempty"`
	CartonWidthCm       *decimal.Decimal `json:"carton_width_cm,omitempty"`
	CartonHeightCm      *decimal.Decimal `json:"carton_height_cm,omitempty"`
	Packaging           *string          `json:"packaging,omitempty"`

	CartonsPerPalletStorage  *int64 `json:"cartons_per_pallet_storage,omitempty"`
	CartonsPerPalletShipping *int64 `json:"cartons_per_pallet_shipping,omitempty"`
}

// CreateOrderInput is the full payload for creating and issuing an order.
type CreateOrderInput struct {
	SKUGroup       string                 `json:"sku_group"`
	SupplierID     int                    `json:"supplier_id"`
	Incoterms      string                 `json:"incoterms"`
	PaymentTerms   string                 `json:"payment_terms"`
	CargoReadyDate *time.Time             `json:"cargo_ready_date,omitempty"`
	ExpectedDate   *time.Time             `json:"expected_date,omitempty"`
	Lines          []CreateOrderLineInput `json:"lines"`
}

// OrderFilter narrows ListOrders. The zero value lists every non-archived
// order.
type OrderFilter struct {
	Status          *Status `json:"status,omitempty"`
	SKUGroup        string  `json:"sku_group,omitempty"`
	SupplierID      *int    `json:"supplier_id,omitempty"`
	IncludeArchived bool    `json:"include_archived,omitempty"`
}

// TransitionResult is the outcome of a stage transition. Sibling is non-nil
// only when a dispatch split forked a remainder order.
type TransitionResult struct {
	Order   *PurchaseOrder `json:"order"`
	Sibling *PurchaseOrder `json:"sibling,omitempty"`
}

// PurchaseOrderService is the stage-transition and cost-allocation engine's
// front door. Every mutating operation is transactional, permission-checked
// and audited.
type PurchaseOrderService interface {
	CreateOrder(ctx context.Context, actor User, in CreateOrderInput) (*PurchaseOrder, error)
	GetOrder(ctx context.Context, orderID int) (*PurchaseOrder, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error)

	// TransitionStage advances (or cancels, target CLOSED) an order,
	// running the target stage's validation gate first. A dispatch
	// allocation on the manufacturing -> ocean advance may fork a sibling.
	TransitionStage(ctx context.Context, actor User, orderID int, target Status, in StageInput) (*TransitionResult, error)

	// UpdateStageFields edits the fields editable at the order's current
	// stage without moving it.
	UpdateStageFields(ctx context.Context, actor User, orderID int, in StageInput) (*PurchaseOrder, error)

	// ReceiveInventory posts the warehouse receipt: inventory transactions,
	// inbound and forwarding costs, and any discrepancy adjustment. At most
	// once per order.
	ReceiveInventory(ctx context.Context, actor User, orderID int, in ReceiptInput) (*PurchaseOrder, error)

	// GenerateShippingMarks renders carton labels after re-running the trade
	// compliance checks, stamping the generation time on success.
	GenerateShippingMarks(ctx context.Context, actor User, orderID int) (*ShippingMarks, error)

	ArchiveOrder(ctx context.Context, actor User, orderID int) (*PurchaseOrder, error)
}

type orderService struct {
	pool  *pgxpool.Pool
	refs  ReferenceGenerator
	perms PermissionService
	audit AuditSink
	costs CostLedgerService
}

// NewPurchaseOrderService constructs a PurchaseOrderService backed by PostgreSQL.
func NewPurchaseOrderService(pool *pgxpool.Pool, refs ReferenceGenerator, perms PermissionService, audit AuditSink, costs CostLedgerService) PurchaseOrderService {
	return &orderService{pool: pool, refs: refs, perms: perms, audit: audit, costs: costs}
}

// withRetry re-runs fn on retryable conflicts: optimistic version failures
// and unique violations from concurrent sequence issuance. fn must re-load
// all state it writes on every attempt.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !isRetryableTxError(err) {
			return err
		}
	}
	return fmt.Errorf("operation did not converge after %d attempts: %w", maxTxAttempts, err)
}

func (s *orderService) GetOrder(ctx context.Context, orderID int) (*PurchaseOrder, error) {
	return loadOrder(ctx, s.pool, orderID)
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error) {
	query := "SELECT " + orderColumns + " FROM purchase_orders WHERE 1=1"
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filter.IncludeArchived {
		query += " AND archived = false"
	}
	if filter.Status != nil {
		query += " AND status = " + arg(string(*filter.Status))
	}
	if filter.SKUGroup != "" {
		query += " AND sku_group = " + arg(filter.SKUGroup)
	}
	if filter.SupplierID != nil {
		query += " AND supplier_id = " + arg(*filter.SupplierID)
	}
	query += " ORDER BY id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines, err = loadOrderLines(ctx, s.pool, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// CreateOrder builds the order, runs the issue gate and persists it already
// in the ISSUED stage with a freshly sequenced order reference and PO number.
func (s *orderService) CreateOrder(ctx context.Context, actor User, in CreateOrderInput) (*PurchaseOrder, error) {
	if in.SKUGroup == "" {
		return nil, validationErrorf("sku group is required")
	}
	if len(in.Lines) == 0 {
		return nil, validationErrorf("order must have at least one line")
	}
	ok, err := s.perms.CanApprove(ctx, actor.ID, StatusIssued)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conflictErrorf("user %d may not issue orders", actor.ID)
	}

	var created *PurchaseOrder
	err = withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		po := &PurchaseOrder{
			SKUGroup:     in.SKUGroup,
			Status:       StatusIssued,
			SupplierID:   in.SupplierID,
			Incoterms:    in.Incoterms,
			PaymentTerms: in.PaymentTerms,
		}
		po.CargoReadyDate = in.CargoReadyDate
		po.ExpectedDate = in.ExpectedDate

		if err := tx.QueryRow(ctx, `
			SELECT name, country, COALESCE(address, ''),
			       bank_name IS NOT NULL AND bank_account IS NOT NULL
			FROM suppliers WHERE id = $1`,
			in.SupplierID,
		).Scan(&po.SupplierName, &po.SupplierCountry, &po.SupplierAddress, &po.SupplierHasBanking); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFoundErrorf("supplier %d not found", in.SupplierID)
			}
			return fmt.Errorf("load supplier %d: %w", in.SupplierID, err)
		}

		codes := make([]string, 0, len(in.Lines))
		for _, li := range in.Lines {
			codes = append(codes, li.SKUCode)
		}
		groups, err := loadSKUGroups(ctx, tx, codes)
		if err != nil {
			return err
		}
		for _, li := range in.Lines {
			group, found := groups[li.SKUCode]
			if !found {
				return validationErrorf("unknown SKU %s", li.SKUCode)
			}
			if group != in.SKUGroup {
				return validationErrorf("SKU %s belongs to group %s, not %s", li.SKUCode, group, in.SKUGroup)
			}
		}

		po.OrderRef, err = s.refs.NextOrderRef(ctx, tx, in.SKUGroup)
		if err != nil {
			return err
		}
		poNumber, err := s.refs.NextPONumber(ctx, tx, in.SKUGroup)
		if err != nil {
			return err
		}
		po.PONumber = &poNumber

		for _, li := range in.Lines {
			if li.UnitsPerCarton <= 0 {
				return validationErrorf("line %s: units per carton must be positive", li.SKUCode)
			}
			cartons := CartonsForUnits(li.UnitsOrdered, li.UnitsPerCarton)
			total := cartons
			po.Lines = append(po.Lines, PurchaseOrderLine{
				SKUCode:        li.SKUCode,
				LotRef:         lotRefFor(po.OrderRef, li.SKUCode),
				UnitsOrdered:   li.UnitsOrdered,
				UnitsPerCarton: li.UnitsPerCarton,
				CartonQty:      cartons,
				RangeTotal:     &total,
				UnitCost:       li.UnitCost,
				TotalCost:      li.TotalCost,
				Currency:       li.Currency,

				CommodityCode:       li.CommodityCode,
				CountryOfOrigin:     li.CountryOfOrigin,
				MaterialDescription: li.MaterialDescription,
				NetWeightKg:         li.NetWeightKg,
				GrossWeightKg:       li.GrossWeightKg,
				CartonLengthCm:      li.CartonLengthCm,
				CartonWidthCm:       li.CartonWidthCm,
				CartonHeightCm:      li.CartonHeightCm,
				Packaging:           li.Packaging,

				CartonsPerPalletStorage:  li.CartonsPerPalletStorage,
				CartonsPerPalletShipping: li.CartonsPerPalletShipping,
				Status:                   LineStatusPending,
			})
		}

		if v := evaluateStageGate(StatusIssued, GateContext{Order: po}); len(v) > 0 {
			return &StageGateError{Stage: StatusIssued, Violations: v}
		}

		now := time.Now().UTC()
		po.IssuedApprovedAt = &now
		if err := insertOrder(ctx, tx, po); err != nil {
			return err
		}
		for i := range po.Lines {
			po.Lines[i].OrderID = po.ID
			if err := insertLine(ctx, tx, &po.Lines[i]); err != nil {
				return err
			}
		}

		if err := s.audit.RecordTx(ctx, tx, AuditEvent{
			OrderID:   po.ID,
			Action:    AuditActionCreate,
			ActorID:   actor.ID,
			NewValues: snapshotStageFields(po),
		}); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit order creation: %w", err)
		}
		created = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// TransitionStage moves an order along the stage chain. The target gate runs
// against the order with the stage input already merged, so a transition can
// supply the data it is gated on in the same call.
func (s *orderService) TransitionStage(ctx context.Context, actor User, orderID int, target Status, in StageInput) (*TransitionResult, error) {
	if target == StatusShipped {
		return nil, conflictErrorf("SHIPPED is set by outbound dispatch, not by manual transition")
	}
	if _, known := stagePermissions[target]; !known && target != StatusClosed {
		return nil, validationErrorf("unknown target stage %q", target)
	}

	var result *TransitionResult
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		po, err := loadOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if po.Archived {
			return conflictErrorf("order %s is archived", PublicRef(po.OrderRef))
		}
		if po.Legacy && target != StatusClosed {
			return conflictErrorf("legacy order %s can only be closed", PublicRef(po.OrderRef))
		}

		if target == po.Status {
			// In-place pseudo-transition: edit the current stage's fields
			// without advancing. Gated by the edit permission, not the
			// stage approval.
			ok, err := s.perms.HasPermission(ctx, actor.ID, PermEditOrder)
			if err != nil {
				return err
			}
			if !ok {
				return conflictErrorf("user %d may not edit orders", actor.ID)
			}
			if err := s.editStageFieldsTx(ctx, tx, actor, po, in); err != nil {
				return err
			}
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("commit in-place edit: %w", err)
			}
			result = &TransitionResult{Order: po}
			return nil
		}

		perm := PermCancelOrder
		if target != StatusClosed {
			perm = stagePermissions[target]
		}
		ok, err := s.perms.HasPermission(ctx, actor.ID, perm)
		if err != nil {
			return err
		}
		if !ok {
			return conflictErrorf("user %d lacks permission %s", actor.ID, perm)
		}

		if !CanTransition(po.Status, target) {
			return illegalTransitionError(po.Status, target)
		}

		before := snapshotStageFields(po)
		fromStatus := po.Status

		if target == StatusClosed {
			if err := s.cancelOrderTx(ctx, tx, actor, po, before); err != nil {
				return err
			}
			result = &TransitionResult{Order: po}
			return nil
		}

		filtered := filterStageInput(in, target)
		applyStageInput(po, filtered)
		if err := validateMilestoneOrder(po); err != nil {
			return err
		}

		gc := GateContext{Order: po, Dispatch: filtered.Dispatch}
		gc.Documents, err = loadOrderDocuments(ctx, tx, po.ID)
		if err != nil {
			return err
		}
		gc.Invoices, err = loadOrderInvoices(ctx, tx, po.ID)
		if err != nil {
			return err
		}
		gc.ForwardingCostCount, err = countForwardingCosts(ctx, tx, po.ID)
		if err != nil {
			return err
		}
		if v := evaluateStageGate(target, gc); len(v) > 0 {
			return &StageGateError{Stage: target, Violations: v}
		}

		var sibling *PurchaseOrder
		if target == StatusOcean && filtered.Dispatch != nil {
			sibling, err = s.applySplit(ctx, tx, po, filtered.Dispatch)
			if err != nil {
				return err
			}
		}
		if target == StatusOcean {
			// After any split, so derived totals describe the cargo that
			// actually ships on this order.
			deriveCargoTotals(po)
		}

		now := time.Now().UTC()
		po.Status = target
		switch target {
		case StatusManufacturing:
			po.ManufacturingApprovedAt = &now
		case StatusOcean:
			po.OceanApprovedAt = &now
		case StatusWarehouse:
			po.WarehouseApprovedAt = &now
		}

		if err := saveOrder(ctx, tx, po); err != nil {
			return err
		}

		oldVals, newVals := diffStageFields(before, snapshotStageFields(po))
		if err := s.audit.RecordTx(ctx, tx, AuditEvent{
			OrderID:   po.ID,
			Action:    AuditActionStageChange,
			ActorID:   actor.ID,
			OldValues: oldVals,
			NewValues: newVals,
		}); err != nil {
			return err
		}
		if sibling != nil {
			if err := s.audit.RecordTx(ctx, tx, AuditEvent{
				OrderID: sibling.ID,
				Action:  AuditActionSplit,
				ActorID: actor.ID,
				NewValues: map[string]string{
					"parentOrderRef": PublicRef(po.OrderRef),
					"orderRef":       sibling.OrderRef,
				},
			}); err != nil {
				return err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit transition %s -> %s: %w", fromStatus, target, err)
		}
		result = &TransitionResult{Order: po, Sibling: sibling}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// cancelOrderTx unwinds the order inside the caller's transaction: any
// posted inventory transactions and their cost rows are deleted, every line
// is cancelled with its quantities zeroed, the posted marker is cleared and
// a storage rebuild is queued for each tuple the order occupied.
func (s *orderService) cancelOrderTx(ctx context.Context, tx pgx.Tx, actor User, po *PurchaseOrder, before map[string]string) error {
	tuples, err := deleteInventoryTransactions(ctx, tx, po.ID)
	if err != nil {
		return err
	}
	if err := cancelOrderLines(ctx, tx, po.ID); err != nil {
		return err
	}
	for i := range po.Lines {
		po.Lines[i].Status = LineStatusCancelled
		po.Lines[i].PostedCartons = 0
		po.Lines[i].ReceivedCartons = 0
	}
	po.PostedAt = nil
	po.Status = StatusClosed
	if err := saveOrder(ctx, tx, po); err != nil {
		return err
	}
	for _, tuple := range tuples {
		if err := outbox.EnqueueTx(ctx, tx, outbox.TopicStorageRecalculate, tuple); err != nil {
			return err
		}
	}
	oldVals, newVals := diffStageFields(before, snapshotStageFields(po))
	if err := s.audit.RecordTx(ctx, tx, AuditEvent{
		OrderID:   po.ID,
		Action:    AuditActionCancel,
		ActorID:   actor.ID,
		OldValues: oldVals,
		NewValues: newVals,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cancellation of %s: %w", PublicRef(po.OrderRef), err)
	}
	return nil
}

// deriveCargoTotals fills the manufacturing cargo totals from line detail
// when no explicit figure was supplied. Explicit input always wins.
func deriveCargoTotals(po *PurchaseOrder) {
	totals := ComputeCargoTotals(po.ActiveLines())
	if po.TotalCartons == nil && totals.Cartons > 0 {
		po.TotalCartons = &totals.Cartons
	}
	if po.TotalPallets == nil && totals.Pallets > 0 {
		po.TotalPallets = &totals.Pallets
	}
	if po.TotalWeightKg == nil && totals.WeightKg.IsPositive() {
		w := totals.WeightKg
		po.TotalWeightKg = &w
	}
	if po.TotalVolumeM3 == nil && totals.VolumeM3.IsPositive() {
		v := totals.VolumeM3
		po.TotalVolumeM3 = &v
	}
}

// applySplit executes a dispatch split plan: the locked order keeps the
// ship-now slices and a remainder sibling is forked in MANUFACTURING with
// the balance, sharing a split group id and carrying copies of the
// documents and proforma invoices.
func (s *orderService) applySplit(ctx context.Context, tx pgx.Tx, po *PurchaseOrder, alloc map[int]int64) (*PurchaseOrder, error) {
	plan := planDispatchSplit(po.Lines, alloc)
	if !plan.HasRemainder {
		// Everything ships now; just record the allocation.
		for _, sl := range plan.Lines {
			ship := sl.ShipCartons
			sl.Line.ShipNowCartons = &ship
			if err := updateLineSplit(ctx, tx, sl.Line); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	groupID := po.SplitGroupID
	if groupID == nil {
		g := uuid.NewString()
		groupID = &g
		po.SplitGroupID = groupID
	}
	var siblingCount int
	if err := tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM purchase_orders WHERE split_group_id = $1", *groupID,
	).Scan(&siblingCount); err != nil {
		return nil, fmt.Errorf("count split siblings: %w", err)
	}

	sibling := &PurchaseOrder{
		OrderRef:     siblingOrderRef(po.OrderRef, siblingCount+1),
		PONumber:     po.PONumber,
		SKUGroup:     po.SKUGroup,
		Status:       StatusManufacturing,
		SupplierID:   po.SupplierID,
		SupplierName: po.SupplierName, SupplierCountry: po.SupplierCountry,
		SupplierAddress: po.SupplierAddress, SupplierHasBanking: po.SupplierHasBanking,
		Incoterms: po.Incoterms, PaymentTerms: po.PaymentTerms,
		CargoReadyDate: po.CargoReadyDate, ExpectedDate: po.ExpectedDate,
		MfgStartDate: po.MfgStartDate, MfgCompletionDate: po.MfgCompletionDate,
		SplitGroupID:            groupID,
		ParentOrderID:           &po.ID,
		IssuedApprovedAt:        po.IssuedApprovedAt,
		ManufacturingApprovedAt: po.ManufacturingApprovedAt,
	}
	if err := insertOrder(ctx, tx, sibling); err != nil {
		return nil, err
	}

	for _, sl := range plan.Lines {
		if sl.RemainCartons > 0 {
			remainCost := sl.RemainCost
			rs, re := sl.RemainRangeStart, sl.RemainRangeEnd
			remainLine := PurchaseOrderLine{
				OrderID:        sibling.ID,
				SKUCode:        sl.Line.SKUCode,
				LotRef:         lotRefFor(sibling.OrderRef, sl.Line.SKUCode),
				UnitsOrdered:   sl.RemainUnits,
				UnitsPerCarton: sl.Line.UnitsPerCarton,
				CartonQty:      sl.RemainCartons,
				RangeStart:     &rs,
				RangeEnd:       &re,
				RangeTotal:     sl.Line.RangeTotal,
				TotalCost:      &remainCost,
				Currency:       sl.Line.Currency,

				CommodityCode:       sl.Line.CommodityCode,
				CountryOfOrigin:     sl.Line.CountryOfOrigin,
				MaterialDescription: sl.Line.MaterialDescription,
				NetWeightKg:         sl.Line.NetWeightKg,
				GrossWeightKg:       sl.Line.GrossWeightKg,
				CartonLengthCm:      sl.Line.CartonLengthCm,
				CartonWidthCm:       sl.Line.CartonWidthCm,
				CartonHeightCm:      sl.Line.CartonHeightCm,
				Packaging:           sl.Line.Packaging,

				CartonsPerPalletStorage:  sl.Line.CartonsPerPalletStorage,
				CartonsPerPalletShipping: sl.Line.CartonsPerPalletShipping,
				Status:                   LineStatusPending,
			}
			if err := insertLine(ctx, tx, &remainLine); err != nil {
				return nil, err
			}
			sibling.Lines = append(sibling.Lines, remainLine)
		}

		// Narrow the original line to its ship-now slice.
		ship := sl.ShipCartons
		sl.Line.ShipNowCartons = &ship
		if sl.ShipCartons == 0 {
			sl.Line.Status = LineStatusCancelled
		} else {
			ss, se := sl.ShipRangeStart, sl.ShipRangeEnd
			shipCost := sl.ShipCost
			sl.Line.UnitsOrdered = sl.ShipUnits
			sl.Line.CartonQty = sl.ShipCartons
			sl.Line.RangeStart = &ss
			sl.Line.RangeEnd = &se
			sl.Line.UnitCost = nil
			sl.Line.TotalCost = &shipCost
		}
		if err := updateLineSplit(ctx, tx, sl.Line); err != nil {
			return nil, err
		}
	}

	if err := copyDocumentsTo(ctx, tx, po.ID, sibling.ID); err != nil {
		return nil, err
	}
	if err := copyProformaInvoicesTo(ctx, tx, po.ID, sibling.ID); err != nil {
		return nil, err
	}
	return sibling, nil
}

// UpdateStageFields edits the fields editable at the order's current stage.
// No-op edits record no audit event.
func (s *orderService) UpdateStageFields(ctx context.Context, actor User, orderID int, in StageInput) (*PurchaseOrder, error) {
	ok, err := s.perms.HasPermission(ctx, actor.ID, PermEditOrder)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conflictErrorf("user %d may not edit orders", actor.ID)
	}

	var updated *PurchaseOrder
	err = withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		po, err := loadOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if po.Archived {
			return conflictErrorf("order %s is archived", PublicRef(po.OrderRef))
		}
		if err := s.editStageFieldsTx(ctx, tx, actor, po, in); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit field update: %w", err)
		}
		updated = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// editStageFieldsTx applies an in-place edit of the current stage's fields to
// the locked order. A diff that changes nothing writes nothing and records no
// audit event.
func (s *orderService) editStageFieldsTx(ctx context.Context, tx pgx.Tx, actor User, po *PurchaseOrder, in StageInput) error {
	if po.Status.IsTerminal() {
		return conflictErrorf("order %s is %s and can no longer be edited", PublicRef(po.OrderRef), po.Status)
	}

	before := snapshotStageFields(po)
	filtered := filterStageInput(in, po.Status)
	filtered.Dispatch = nil
	applyStageInput(po, filtered)
	if err := validateMilestoneOrder(po); err != nil {
		return err
	}

	oldVals, newVals := diffStageFields(before, snapshotStageFields(po))
	if len(newVals) == 0 {
		return nil
	}

	if err := saveOrder(ctx, tx, po); err != nil {
		return err
	}
	return s.audit.RecordTx(ctx, tx, AuditEvent{
		OrderID:   po.ID,
		Action:    AuditActionFieldsUpdate,
		ActorID:   actor.ID,
		OldValues: oldVals,
		NewValues: newVals,
	})
}

// ReceiveInventory posts the warehouse receipt exactly once. The whole
// posting is one transaction: inventory transactions, line receipt state,
// discrepancy adjustment, inbound and forwarding costs, and the storage
// recalculation enqueue all commit or roll back together.
func (s *orderService) ReceiveInventory(ctx context.Context, actor User, orderID int, in ReceiptInput) (*PurchaseOrder, error) {
	ok, err := s.perms.HasPermission(ctx, actor.ID, PermReceiveInventory)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conflictErrorf("user %d may not receive inventory", actor.ID)
	}
	if in.ReceivedDate.IsZero() {
		return nil, validationErrorf("received date is required")
	}

	var received *PurchaseOrder
	err = withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		po, err := loadOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if po.Status != StatusWarehouse {
			return conflictErrorf("order %s is %s; receipts post at the WAREHOUSE stage", PublicRef(po.OrderRef), po.Status)
		}
		if po.PostedAt != nil {
			return conflictErrorf("order %s was already received on %s", PublicRef(po.OrderRef), po.PostedAt.Format("2006-01-02"))
		}

		if v := evaluateReceiptGate(po, in); len(v) > 0 {
			return &StageGateError{Stage: StatusWarehouse, Violations: v}
		}

		if in.CustomsEntryNo != "" {
			po.CustomsEntryNo = &in.CustomsEntryNo
		}
		if in.CustomsClearedDate != nil {
			po.CustomsClearedDate = in.CustomsClearedDate
		}
		if wh := in.resolvedWarehouse(po); wh != "" {
			po.WarehouseCode = &wh
		}
		if rt := in.resolvedReceiveType(po); rt != "" {
			po.ReceiveType = &rt
		}
		receivedDate := in.ReceivedDate
		po.ReceivedDate = &receivedDate
		if err := validateMilestoneOrder(po); err != nil {
			return err
		}

		txns, err := buildReceiptTransactions(po, in)
		if err != nil {
			return err
		}
		for i := range txns {
			if err := insertInventoryTransaction(ctx, tx, &txns[i]); err != nil {
				return err
			}
		}

		byLine := map[int]ReceiptLineInput{}
		for _, rl := range in.Lines {
			byLine[rl.LineID] = rl
		}
		for _, l := range po.ActiveLines() {
			rl := byLine[l.ID]
			if rl.ReceivedCartons == 0 {
				// Nothing arrived for this line; it stays PENDING and the
				// shortfall is carried by the discrepancy adjustment.
				continue
			}
			if err := updateLineReceipt(ctx, tx, l.ID, rl.ReceivedCartons, rl.ReceivedCartons); err != nil {
				return err
			}
		}

		if adj := receiptAdjustment(po, in); adj != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO financial_ledger_entries
				       (source_type, source_id, entry_type, description, amount, currency, entry_date)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (source_type, source_id)
				DO UPDATE SET entry_type = EXCLUDED.entry_type,
				              description = EXCLUDED.description,
				              amount      = EXCLUDED.amount,
				              currency    = EXCLUDED.currency,
				              entry_date  = EXCLUDED.entry_date`,
				adj.SourceType, adj.SourceID, adj.EntryType, adj.Description,
				adj.Amount, adj.Currency, adj.EntryDate,
			); err != nil {
				return fmt.Errorf("upsert receipt adjustment: %w", err)
			}
		}

		if err := s.costs.PostInboundCostsTx(ctx, tx, txns, receivedDate); err != nil {
			return err
		}
		fwd, err := loadForwardingCosts(ctx, tx, po.ID)
		if err != nil {
			return err
		}
		for _, fc := range fwd {
			if err := s.costs.ApportionForwardingTx(ctx, tx, fc, txns, receivedDate); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		po.PostedAt = &now
		if err := saveOrder(ctx, tx, po); err != nil {
			return err
		}

		seen := map[StorageTuple]bool{}
		for _, t := range txns {
			tuple := StorageTuple{WarehouseCode: t.WarehouseCode, SKUCode: t.SKUCode, LotRef: t.LotRef}
			if seen[tuple] {
				continue
			}
			seen[tuple] = true
			if err := outbox.EnqueueTx(ctx, tx, outbox.TopicStorageRecalculate, tuple); err != nil {
				return err
			}
		}
		if err := outbox.EnqueueTx(ctx, tx, outbox.TopicOrderReceived, map[string]any{
			"order_id":  po.ID,
			"order_ref": PublicRef(po.OrderRef),
		}); err != nil {
			return err
		}

		if err := s.audit.RecordTx(ctx, tx, AuditEvent{
			OrderID: po.ID,
			Action:  AuditActionReceive,
			ActorID: actor.ID,
			NewValues: map[string]string{
				"receivedDate": receivedDate.Format("2006-01-02"),
				"transactions": fmt.Sprintf("%d", len(txns)),
			},
		}); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit inventory receipt: %w", err)
		}
		received = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	return received, nil
}

// GenerateShippingMarks re-runs the trade compliance checks and renders the
// carton labels. The generation stamp is only written on success, so a
// failed run never masks staleness.
func (s *orderService) GenerateShippingMarks(ctx context.Context, actor User, orderID int) (*ShippingMarks, error) {
	var marks *ShippingMarks
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		po, err := loadOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if v := evaluateStageGate(StatusManufacturing, GateContext{Order: po}); len(v) > 0 {
			return &StageGateError{Stage: StatusManufacturing, Violations: v}
		}

		rendered, err := renderShippingMarks(po)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		po.MarksGeneratedAt = &now
		po.MarksGeneratedBy = &actor.Name
		if err := saveOrder(ctx, tx, po); err != nil {
			return err
		}
		if err := s.audit.RecordTx(ctx, tx, AuditEvent{
			OrderID:   po.ID,
			Action:    AuditActionMarks,
			ActorID:   actor.ID,
			NewValues: map[string]string{"labels": fmt.Sprintf("%d", len(rendered.Labels))},
		}); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit shipping marks: %w", err)
		}
		marks = rendered
		return nil
	})
	if err != nil {
		return nil, err
	}
	return marks, nil
}

// ArchiveOrder hides a terminal order from default listings. Only CLOSED and
// SHIPPED orders may be archived.
func (s *orderService) ArchiveOrder(ctx context.Context, actor User, orderID int) (*PurchaseOrder, error) {
	var archived *PurchaseOrder
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		po, err := loadOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if po.Archived {
			archived = po
			return tx.Commit(ctx)
		}
		if !po.Status.IsTerminal() {
			return conflictErrorf("order %s is %s; only terminal orders can be archived", PublicRef(po.OrderRef), po.Status)
		}
		po.Archived = true
		if err := saveOrder(ctx, tx, po); err != nil {
			return err
		}
		if err := s.audit.RecordTx(ctx, tx, AuditEvent{
			OrderID: po.ID,
			Action:  AuditActionArchive,
			ActorID: actor.ID,
		}); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit archive: %w", err)
		}
		archived = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

// insertInventoryTransaction writes one inbound posting and fills in its id.
func insertInventoryTransaction(ctx context.Context, tx pgx.Tx, t *InventoryTransaction) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO inventory_transactions
		       (order_id, order_line_id, warehouse_code, sku_code, lot_ref,
		        cartons_in, cartons_out, pallets_in, units_per_carton,
		        carton_volume_m3, gross_weight_kg, transaction_date)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		t.OrderID, t.OrderLineID, t.WarehouseCode, t.SKUCode, t.LotRef,
		t.CartonsIn, t.PalletsIn, t.UnitsPerCarton,
		t.CartonVolumeM3, t.GrossWeightKg, t.TransactionDate,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert inventory transaction for line %d: %w", t.OrderLineID, err)
	}
	return nil
}
