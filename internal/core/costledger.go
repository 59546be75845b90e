package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// CostLedgerService turns received and shipped cargo into itemized cost
// ledger rows and mirrors them into the financial ledger. Entries are
// immutable facts: recomputation deletes the prior rows for the affected
// transactions and reinserts, never updates.
type CostLedgerService interface {
	// PostInboundCostsTx writes inbound cost rows for freshly created
	// inventory transactions, inside the caller's transaction.
	PostInboundCostsTx(ctx context.Context, tx pgx.Tx, txns []InventoryTransaction, entryDate time.Time) error
	// ApportionForwardingTx spreads a forwarding cost total across the
	// shipment's inventory transactions by carton-volume share.
	ApportionForwardingTx(ctx context.Context, tx pgx.Tx, fc ForwardingCost, txns []InventoryTransaction, entryDate time.Time) error
	// RecordForwardingCost registers a freight cost against an order.
	RecordForwardingCost(ctx context.Context, orderID int, costName string, amount decimal.Decimal, currency string) (*ForwardingCost, error)
	// RecomputeForwarding re-derives the forwarding ledger rows for an
	// already-received order after a forwarding cost was edited.
	RecomputeForwarding(ctx context.Context, orderID int) error
	// RecalculateStorage rebuilds the storage cost rows for one
	// (warehouse, SKU, lot) tuple from current on-hand inventory.
	RecalculateStorage(ctx context.Context, tuple StorageTuple) error
}

type costLedgerService struct {
	pool *pgxpool.Pool
}

// NewCostLedgerService constructs a CostLedgerService backed by PostgreSQL.
func NewCostLedgerService(pool *pgxpool.Pool) CostLedgerService {
	return &costLedgerService{pool: pool}
}

// pickEffectiveRate returns the first rate for each cost name whose effective
// date is not after asOf. rates must be ordered by cost name, then effective
// date descending: the first match per name wins.
func pickEffectiveRates(rates []CostRate, asOf time.Time) []CostRate {
	var out []CostRate
	seen := map[string]bool{}
	for _, r := range rates {
		if seen[r.CostName] || r.EffectiveFrom.After(asOf) {
			continue
		}
		seen[r.CostName] = true
		out = append(out, r)
	}
	return out
}

// rateQuantity resolves the billable quantity for a rate's unit of measure
// against one inventory transaction.
func rateQuantity(unit RateUnit, txn InventoryTransaction) decimal.Decimal {
	switch unit {
	case RatePerCarton:
		return decimal.NewFromInt(txn.CartonsIn)
	case RatePerPallet:
		return txn.PalletsIn
	case RatePerCBM:
		if txn.CartonVolumeM3 == nil {
			return decimal.Zero
		}
		return txn.CartonVolumeM3.Mul(decimal.NewFromInt(txn.CartonsIn))
	case RateFlat:
		return decimal.NewFromInt(1)
	}
	return decimal.Zero
}

// buildCostEntries produces one ledger row per (transaction, applicable cost
// name): quantity x unit rate = total cost, rounded to 2 decimals.
func buildCostEntries(rates []CostRate, txns []InventoryTransaction, entryDate time.Time) []CostLedgerEntry {
	var entries []CostLedgerEntry
	for _, txn := range txns {
		for _, r := range rates {
			qty := rateQuantity(r.Unit, txn)
			if qty.IsZero() {
				continue
			}
			entries = append(entries, CostLedgerEntry{
				TransactionID: txn.ID,
				Category:      r.Category,
				CostName:      r.CostName,
				Quantity:      qty,
				UnitRate:      r.Rate,
				TotalCost:     qty.Mul(r.Rate).Round(2),
				Currency:      r.Currency,
				WarehouseCode: txn.WarehouseCode,
				EntryDate:     entryDate,
			})
		}
	}
	return entries
}

// apportionByShare splits a total across weighted shares, each amount rounded
// to 2 decimals with the rounding residual assigned to the last share, so the
// allocation sums exactly to the input total. A zero weight sum falls back to
// an equal split.
func apportionByShare(total decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	n := len(weights)
	if n == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	amounts := make([]decimal.Decimal, n)
	allocated := decimal.Zero
	for i := 0; i < n-1; i++ {
		var share decimal.Decimal
		if sum.IsZero() {
			share = total.Div(decimal.NewFromInt(int64(n))).Round(2)
		} else {
			share = total.Mul(weights[i]).Div(sum).Round(2)
		}
		amounts[i] = share
		allocated = allocated.Add(share)
	}
	amounts[n-1] = total.Sub(allocated)
	return amounts
}

// forwardingWeights derives the apportionment weights for a set of inventory
// transactions: total carton volume per transaction, falling back to carton
// count for the whole set when any transaction is missing dimensions.
func forwardingWeights(txns []InventoryTransaction) []decimal.Decimal {
	weights := make([]decimal.Decimal, len(txns))
	byVolume := true
	for _, txn := range txns {
		if txn.CartonVolumeM3 == nil || txn.CartonVolumeM3.IsZero() {
			byVolume = false
			break
		}
	}
	for i, txn := range txns {
		if byVolume {
			weights[i] = txn.CartonVolumeM3.Mul(decimal.NewFromInt(txn.CartonsIn))
		} else {
			weights[i] = decimal.NewFromInt(txn.CartonsIn)
		}
	}
	return weights
}

// mirroredCategories are the cost categories projected into the financial
// ledger. Storage rows churn on every recalculation and are reported straight
// from the cost ledger instead.
var mirroredCategories = map[CostCategory]bool{
	CostCategoryInbound:    true,
	CostCategoryOutbound:   true,
	CostCategoryForwarding: true,
}

// costEntrySourceID is the stable financial-ledger source key for a cost
// ledger row. It survives delete-and-recreate cycles, keeping the mirror
// upsert idempotent.
func costEntrySourceID(transactionID int, costName string) string {
	return fmt.Sprintf("%d:%s", transactionID, costName)
}

func (s *costLedgerService) PostInboundCostsTx(ctx context.Context, tx pgx.Tx, txns []InventoryTransaction, entryDate time.Time) error {
	if len(txns) == 0 {
		return nil
	}
	rates, err := loadRates(ctx, tx, txns[0].WarehouseCode, CostCategoryInbound)
	if err != nil {
		return err
	}
	entries := buildCostEntries(pickEffectiveRates(rates, entryDate), txns, entryDate)
	return insertCostEntries(ctx, tx, entries)
}

func (s *costLedgerService) ApportionForwardingTx(ctx context.Context, tx pgx.Tx, fc ForwardingCost, txns []InventoryTransaction, entryDate time.Time) error {
	if len(txns) == 0 {
		return nil
	}
	amounts := apportionByShare(fc.Amount, forwardingWeights(txns))
	entries := make([]CostLedgerEntry, 0, len(txns))
	for i, txn := range txns {
		entries = append(entries, CostLedgerEntry{
			TransactionID: txn.ID,
			Category:      CostCategoryForwarding,
			CostName:      fc.CostName,
			Quantity:      decimal.NewFromInt(txn.CartonsIn),
			UnitRate:      decimal.Zero,
			TotalCost:     amounts[i],
			Currency:      fc.Currency,
			WarehouseCode: txn.WarehouseCode,
			EntryDate:     entryDate,
		})
	}
	return insertCostEntries(ctx, tx, entries)
}

func (s *costLedgerService) RecordForwardingCost(ctx context.Context, orderID int, costName string, amount decimal.Decimal, currency string) (*ForwardingCost, error) {
	if !amount.IsPositive() {
		return nil, validationErrorf("forwarding cost amount must be positive")
	}
	if costName == "" {
		return nil, validationErrorf("forwarding cost name is required")
	}
	var fc ForwardingCost
	err := s.pool.QueryRow(ctx, `
		INSERT INTO forwarding_costs (order_id, cost_name, amount, currency)
		VALUES ($1, $2, $3, $4)
		RETURNING id, order_id, cost_name, amount, currency, created_at`,
		orderID, costName, amount, currency,
	).Scan(&fc.ID, &fc.OrderID, &fc.CostName, &fc.Amount, &fc.Currency, &fc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert forwarding cost: %w", err)
	}
	return &fc, nil
}

// RecomputeForwarding deletes the forwarding rows for the order's inventory
// transactions and rebuilds them from the current forwarding cost records.
// No-op for orders that have not been received yet.
func (s *costLedgerService) RecomputeForwarding(ctx context.Context, orderID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin forwarding recompute: %w", err)
	}
	defer tx.Rollback(ctx)

	txns, err := loadInventoryTransactions(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		return nil
	}

	ids := make([]int, len(txns))
	for i, t := range txns {
		ids[i] = t.ID
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM financial_ledger_entries
		WHERE source_type = $1 AND source_id IN (
			SELECT transaction_id::text || ':' || cost_name
			FROM cost_ledger_entries
			WHERE transaction_id = ANY($2) AND category = $3
		)`,
		SourceTypeCostLedger, ids, string(CostCategoryForwarding),
	); err != nil {
		return fmt.Errorf("delete forwarding mirrors: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM cost_ledger_entries
		WHERE transaction_id = ANY($1) AND category = $2`,
		ids, string(CostCategoryForwarding),
	); err != nil {
		return fmt.Errorf("delete forwarding cost entries: %w", err)
	}

	costs, err := loadForwardingCosts(ctx, tx, orderID)
	if err != nil {
		return err
	}
	entryDate := time.Now().UTC()
	for _, fc := range costs {
		if err := s.ApportionForwardingTx(ctx, tx, fc, txns, entryDate); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit forwarding recompute: %w", err)
	}
	return nil
}

// RecalculateStorage rebuilds the storage rows for a (warehouse, SKU, lot)
// tuple: prior storage entries for the tuple's transactions are deleted and
// fresh ones derived from current on-hand pallets and the storage rate table.
func (s *costLedgerService) RecalculateStorage(ctx context.Context, tuple StorageTuple) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin storage recalculation: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, order_id, order_line_id, warehouse_code, sku_code, lot_ref,
		       cartons_in, cartons_out, pallets_in, units_per_carton,
		       carton_volume_m3, gross_weight_kg, transaction_date, created_at
		FROM inventory_transactions
		WHERE warehouse_code = $1 AND sku_code = $2 AND lot_ref = $3
		ORDER BY id`,
		tuple.WarehouseCode, tuple.SKUCode, tuple.LotRef,
	)
	if err != nil {
		return fmt.Errorf("load inventory transactions for storage recalculation: %w", err)
	}
	txns, err := scanInventoryTransactions(rows)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		return tx.Commit(ctx)
	}

	ids := make([]int, len(txns))
	var onHand int64
	for i, t := range txns {
		ids[i] = t.ID
		onHand += t.CartonsIn - t.CartonsOut
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM cost_ledger_entries
		WHERE transaction_id = ANY($1) AND category = $2`,
		ids, string(CostCategoryStorage),
	); err != nil {
		return fmt.Errorf("delete storage cost entries: %w", err)
	}

	if onHand > 0 {
		rates, err := loadRates(ctx, tx, tuple.WarehouseCode, CostCategoryStorage)
		if err != nil {
			return err
		}
		entryDate := time.Now().UTC()
		// Storage accrues against the inbound transactions still holding stock.
		var holding []InventoryTransaction
		for _, t := range txns {
			if t.CartonsIn > 0 {
				holding = append(holding, t)
			}
		}
		entries := buildCostEntries(pickEffectiveRates(rates, entryDate), holding, entryDate)
		if err := insertCostEntries(ctx, tx, entries); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit storage recalculation: %w", err)
	}
	return nil
}

// insertCostEntries writes the rows and upserts their financial mirrors.
func insertCostEntries(ctx context.Context, tx pgx.Tx, entries []CostLedgerEntry) error {
	for _, e := range entries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO cost_ledger_entries
			       (transaction_id, category, cost_name, quantity, unit_rate, total_cost,
			        currency, warehouse_code, entry_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.TransactionID, string(e.Category), e.CostName, e.Quantity, e.UnitRate, e.TotalCost,
			e.Currency, e.WarehouseCode, e.EntryDate,
		); err != nil {
			return fmt.Errorf("insert cost ledger entry %s for transaction %d: %w", e.CostName, e.TransactionID, err)
		}

		if !mirroredCategories[e.Category] {
			continue
		}
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
			SourceTypeCostLedger, costEntrySourceID(e.TransactionID, e.CostName),
			string(e.Category),
			fmt.Sprintf("%s (%s)", e.CostName, e.WarehouseCode),
			e.TotalCost, e.Currency, e.EntryDate,
		); err != nil {
			return fmt.Errorf("upsert financial mirror for %s: %w", e.CostName, err)
		}
	}
	return nil
}

// loadRates returns the rate table rows for a warehouse and category, ordered
// so pickEffectiveRates can apply first-match-wins per cost name.
func loadRates(ctx context.Context, q pgxQuerier, warehouseCode string, category CostCategory) ([]CostRate, error) {
	rows, err := q.Query(ctx, `
		SELECT id, cost_name, category, unit, rate, currency, warehouse_code, effective_from
		FROM cost_rates
		WHERE warehouse_code = $1 AND category = $2
		ORDER BY cost_name, effective_from DESC`,
		warehouseCode, string(category),
	)
	if err != nil {
		return nil, fmt.Errorf("load %s cost rates for warehouse %s: %w", category, warehouseCode, err)
	}
	defer rows.Close()

	var rates []CostRate
	for rows.Next() {
		var r CostRate
		var cat, unit string
		if err := rows.Scan(&r.ID, &r.CostName, &cat, &unit, &r.Rate, &r.Currency, &r.WarehouseCode, &r.EffectiveFrom); err != nil {
			return nil, fmt.Errorf("scan cost rate: %w", err)
		}
		r.Category = CostCategory(cat)
		r.Unit = RateUnit(unit)
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

func loadForwardingCosts(ctx context.Context, q pgxQuerier, orderID int) ([]ForwardingCost, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, cost_name, amount, currency, created_at
		FROM forwarding_costs
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("load forwarding costs for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var costs []ForwardingCost
	for rows.Next() {
		var fc ForwardingCost
		if err := rows.Scan(&fc.ID, &fc.OrderID, &fc.CostName, &fc.Amount, &fc.Currency, &fc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan forwarding cost: %w", err)
		}
		costs = append(costs, fc)
	}
	return costs, rows.Err()
}

func loadInventoryTransactions(ctx context.Context, q pgxQuerier, orderID int) ([]InventoryTransaction, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, order_line_id, warehouse_code, sku_code, lot_ref,
		       cartons_in, cartons_out, pallets_in, units_per_carton,
		       carton_volume_m3, gross_weight_kg, transaction_date, created_at
		FROM inventory_transactions
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("load inventory transactions for order %d: %w", orderID, err)
	}
	return scanInventoryTransactions(rows)
}

func scanInventoryTransactions(rows pgx.Rows) ([]InventoryTransaction, error) {
	defer rows.Close()
	var txns []InventoryTransaction
	for rows.Next() {
		var t InventoryTransaction
		if err := rows.Scan(
			&t.ID, &t.OrderID, &t.OrderLineID, &t.WarehouseCode, &t.SKUCode, &t.LotRef,
			&t.CartonsIn, &t.CartonsOut, &t.PalletsIn, &t.UnitsPerCarton,
			&t.CartonVolumeM3, &t.GrossWeightKg, &t.TransactionDate, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan inventory transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
