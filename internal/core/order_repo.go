package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const orderColumns = `
	id, order_ref, po_number, sku_group, status, archived, legacy,
	supplier_id, supplier_name, supplier_country, supplier_address, supplier_has_banking,
	incoterms, payment_terms, cargo_ready_date, expected_date,
	mfg_start_date, mfg_completion_date, total_cartons, total_pallets, total_weight_kg, total_volume_m3,
	vessel_name, container_no, bill_of_lading_no, forwarder_ref, departure_date, arrival_date,
	customs_entry_no, customs_cleared_date, warehouse_code, receive_type, received_date,
	split_group_id, parent_order_id,
	issued_approved_at, manufacturing_approved_at, ocean_approved_at, warehouse_approved_at,
	posted_at, marks_generated_at, marks_generated_by,
	version, created_at, updated_at`

const lineColumns = `
	id, order_id, sku_code, lot_ref, units_ordered, units_per_carton, carton_qty,
	range_start, range_end, range_total, unit_cost, total_cost, currency,
	commodity_code, country_of_origin, material_description,
	net_weight_kg, gross_weight_kg, carton_length_cm, carton_width_cm, carton_height_cm, packaging,
	cartons_per_pallet_storage, cartons_per_pallet_shipping,
	status, posted_cartons, received_cartons, ship_now_cartons, updated_at`

// scanOrder reads one purchase_orders row. Legacy status values are
// normalized at the boundary so the rest of the engine only ever sees
// canonical stages.
func scanOrder(row pgx.Row) (*PurchaseOrder, error) {
	var po PurchaseOrder
	var rawStatus string
	if err := row.Scan(
		&po.ID, &po.OrderRef, &po.PONumber, &po.SKUGroup, &rawStatus, &po.Archived, &po.Legacy,
		&po.SupplierID, &po.SupplierName, &po.SupplierCountry, &po.SupplierAddress, &po.SupplierHasBanking,
		&po.Incoterms, &po.PaymentTerms, &po.CargoReadyDate, &po.ExpectedDate,
		&po.MfgStartDate, &po.MfgCompletionDate, &po.TotalCartons, &po.TotalPallets, &po.TotalWeightKg, &po.TotalVolumeM3,
		&po.VesselName, &po.ContainerNo, &po.BillOfLadingNo, &po.ForwarderRef, &po.DepartureDate, &po.ArrivalDate,
		&po.CustomsEntryNo, &po.CustomsClearedDate, &po.WarehouseCode, &po.ReceiveType, &po.ReceivedDate,
		&po.SplitGroupID, &po.ParentOrderID,
		&po.IssuedApprovedAt, &po.ManufacturingApprovedAt, &po.OceanApprovedAt, &po.WarehouseApprovedAt,
		&po.PostedAt, &po.MarksGeneratedAt, &po.MarksGeneratedBy,
		&po.Version, &po.CreatedAt, &po.UpdatedAt,
	); err != nil {
		return nil, err
	}
	status, err := NormalizeStatus(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", po.ID, err)
	}
	po.Status = status
	return &po, nil
}

func loadOrderLines(ctx context.Context, q pgxQuerier, orderID int) ([]PurchaseOrderLine, error) {
	rows, err := q.Query(ctx,
		"SELECT "+lineColumns+" FROM purchase_order_lines WHERE order_id = $1 ORDER BY id",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("load lines for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var lines []PurchaseOrderLine
	for rows.Next() {
		var l PurchaseOrderLine
		var rawStatus string
		if err := rows.Scan(
			&l.ID, &l.OrderID, &l.SKUCode, &l.LotRef, &l.UnitsOrdered, &l.UnitsPerCarton, &l.CartonQty,
			&l.RangeStart, &l.RangeEnd, &l.RangeTotal, &l.UnitCost, &l.TotalCost, &l.Currency,
			&l.CommodityCode, &l.CountryOfOrigin, &l.MaterialDescription,
			&l.NetWeightKg, &l.GrossWeightKg, &l.CartonLengthCm, &l.CartonWidthCm, &l.CartonHeightCm, &l.Packaging,
			&l.CartonsPerPalletStorage, &l.CartonsPerPalletShipping,
			&rawStatus, &l.PostedCartons, &l.ReceivedCartons, &l.ShipNowCartons, &l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan line for order %d: %w", orderID, err)
		}
		l.Status = LineStatus(rawStatus)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// loadOrder fetches an order with its lines, without locking.
func loadOrder(ctx context.Context, q pgxQuerier, orderID int) (*PurchaseOrder, error) {
	po, err := scanOrder(q.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM purchase_orders WHERE id = $1", orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErrorf("order %d not found", orderID)
		}
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	po.Lines, err = loadOrderLines(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	return po, nil
}

// loadOrderForUpdate fetches an order with its lines, taking a row lock on
// the header so concurrent transitions serialize on the same order.
func loadOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID int) (*PurchaseOrder, error) {
	po, err := scanOrder(tx.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM purchase_orders WHERE id = $1 FOR UPDATE", orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErrorf("order %d not found", orderID)
		}
		return nil, fmt.Errorf("lock order %d: %w", orderID, err)
	}
	po.Lines, err = loadOrderLines(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	return po, nil
}

func loadOrderDocuments(ctx context.Context, q pgxQuerier, orderID int) ([]OrderDocument, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, stage, type, doc_key, file_ref, uploaded_by, created_at
		FROM order_documents
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("load documents for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var docs []OrderDocument
	for rows.Next() {
		var d OrderDocument
		var stage, docType string
		if err := rows.Scan(&d.ID, &d.OrderID, &stage, &docType, &d.DocKey, &d.FileRef, &d.UploadedBy, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document for order %d: %w", orderID, err)
		}
		d.Stage = Status(stage)
		d.Type = DocumentType(docType)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func loadOrderInvoices(ctx context.Context, q pgxQuerier, orderID int) ([]OrderInvoice, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, kind, invoice_number, amount, currency, created_at
		FROM order_invoices
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("load invoices for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var invs []OrderInvoice
	for rows.Next() {
		var inv OrderInvoice
		var kind string
		if err := rows.Scan(&inv.ID, &inv.OrderID, &kind, &inv.InvoiceNumber, &inv.Amount, &inv.Currency, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice for order %d: %w", orderID, err)
		}
		inv.Kind = InvoiceKind(kind)
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

func countForwardingCosts(ctx context.Context, q pgxQuerier, orderID int) (int, error) {
	var n int
	if err := q.QueryRow(ctx,
		"SELECT COUNT(*) FROM forwarding_costs WHERE order_id = $1", orderID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count forwarding costs for order %d: %w", orderID, err)
	}
	return n, nil
}

// saveOrder writes the order's mutable fields back, asserting the version the
// caller loaded. A zero-row update means someone else committed in between;
// the caller retries from a fresh load.
func saveOrder(ctx context.Context, tx pgx.Tx, po *PurchaseOrder) error {
	tag, err := tx.Exec(ctx, `
		UPDATE purchase_orders SET
			po_number = $1, status = $2, archived = $3,
			incoterms = $4, payment_terms = $5, cargo_ready_date = $6, expected_date = $7,
			mfg_start_date = $8, mfg_completion_date = $9,
			total_cartons = $10, total_pallets = $11, total_weight_kg = $12, total_volume_m3 = $13,
			vessel_name = $14, container_no = $15, bill_of_lading_no = $16, forwarder_ref = $17,
			departure_date = $18, arrival_date = $19,
			customs_entry_no = $20, customs_cleared_date = $21, warehouse_code = $22,
			receive_type = $23, received_date = $24,
			split_group_id = $25,
			issued_approved_at = $26, manufacturing_approved_at = $27,
			ocean_approved_at = $28, warehouse_approved_at = $29,
			posted_at = $30, marks_generated_at = $31, marks_generated_by = $32,
			version = version + 1, updated_at = NOW()
		WHERE id = $33 AND version = $34`,
		po.PONumber, string(po.Status), po.Archived,
		po.Incoterms, po.PaymentTerms, po.CargoReadyDate, po.ExpectedDate,
		po.MfgStartDate, po.MfgCompletionDate,
		po.TotalCartons, po.TotalPallets, po.TotalWeightKg, po.TotalVolumeM3,
		po.VesselName, po.ContainerNo, po.BillOfLadingNo, po.ForwarderRef,
		po.DepartureDate, po.ArrivalDate,
		po.CustomsEntryNo, po.CustomsClearedDate, po.WarehouseCode,
		po.ReceiveType, po.ReceivedDate,
		po.SplitGroupID,
		po.IssuedApprovedAt, po.ManufacturingApprovedAt,
		po.OceanApprovedAt, po.WarehouseApprovedAt,
		po.PostedAt, po.MarksGeneratedAt, po.MarksGeneratedBy,
		po.ID, po.Version,
	)
	if err != nil {
		return fmt.Errorf("update order %d: %w", po.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return errVersionConflict
	}
	po.Version++
	return nil
}

// insertOrder writes a new order header and returns its id.
func insertOrder(ctx context.Context, tx pgx.Tx, po *PurchaseOrder) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (
			order_ref, po_number, sku_group, status, archived, legacy,
			supplier_id, supplier_name, supplier_country, supplier_address, supplier_has_banking,
			incoterms, payment_terms, cargo_ready_date, expected_date,
			mfg_start_date, mfg_completion_date,
			total_cartons, total_pallets, total_weight_kg, total_volume_m3,
			vessel_name, container_no, bill_of_lading_no, forwarder_ref, departure_date, arrival_date,
			customs_entry_no, customs_cleared_date, warehouse_code, receive_type, received_date,
			split_group_id, parent_order_id,
			issued_approved_at, manufacturing_approved_at, ocean_approved_at, warehouse_approved_at,
			posted_at, marks_generated_at, marks_generated_by, version
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17,
			$18, $19, $20, $21,
			$22, $23, $24, $25, $26, $27,
			$28, $29, $30, $31, $32,
			$33, $34,
			$35, $36, $37, $38,
			$39, $40, $41, $42
		)
		RETURNING id, created_at, updated_at`,
		po.OrderRef, po.PONumber, po.SKUGroup, string(po.Status), po.Archived, po.Legacy,
		po.SupplierID, po.SupplierName, po.SupplierCountry, po.SupplierAddress, po.SupplierHasBanking,
		po.Incoterms, po.PaymentTerms, po.CargoReadyDate, po.ExpectedDate,
		po.MfgStartDate, po.MfgCompletionDate,
		po.TotalCartons, po.TotalPallets, po.TotalWeightKg, po.TotalVolumeM3,
		po.VesselName, po.ContainerNo, po.BillOfLadingNo, po.ForwarderRef, po.DepartureDate, po.ArrivalDate,
		po.CustomsEntryNo, po.CustomsClearedDate, po.WarehouseCode, po.ReceiveType, po.ReceivedDate,
		po.SplitGroupID, po.ParentOrderID,
		po.IssuedApprovedAt, po.ManufacturingApprovedAt, po.OceanApprovedAt, po.WarehouseApprovedAt,
		po.PostedAt, po.MarksGeneratedAt, po.MarksGeneratedBy, po.Version,
	).Scan(&po.ID, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", po.OrderRef, err)
	}
	return nil
}

// insertLine writes one line and fills in its id.
func insertLine(ctx context.Context, tx pgx.Tx, l *PurchaseOrderLine) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO purchase_order_lines (
			order_id, sku_code, lot_ref, units_ordered, units_per_carton, carton_qty,
			range_start, range_end, range_total, unit_cost, total_cost, currency,
			commodity_code, country_of_origin, material_description,
			net_weight_kg, gross_weight_kg, carton_length_cm, carton_width_cm, carton_height_cm, packaging,
			cartons_per_pallet_storage, cartons_per_pallet_shipping,
			status, posted_cartons, received_cartons, ship_now_cartons
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19, $20, $21,
			$22, $23,
			$24, $25, $26, $27
		)
		RETURNING id, updated_at`,
		l.OrderID, l.SKUCode, l.LotRef, l.UnitsOrdered, l.UnitsPerCarton, l.CartonQty,
		l.RangeStart, l.RangeEnd, l.RangeTotal, l.UnitCost, l.TotalCost, l.Currency,
		l.CommodityCode, l.CountryOfOrigin, l.MaterialDescription,
		l.NetWeightKg, l.GrossWeightKg, l.CartonLengthCm, l.CartonWidthCm, l.CartonHeightCm, l.Packaging,
		l.CartonsPerPalletStorage, l.CartonsPerPalletShipping,
		string(l.Status), l.PostedCartons, l.ReceivedCartons, l.ShipNowCartons,
	).Scan(&l.ID, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert line %s for order %d: %w", l.SKUCode, l.OrderID, err)
	}
	return nil
}

// updateLineSplit narrows a line to its ship-now slice after a dispatch split.
func updateLineSplit(ctx context.Context, tx pgx.Tx, l *PurchaseOrderLine) error {
	if _, err := tx.Exec(ctx, `
		UPDATE purchase_order_lines SET
			units_ordered = $1, carton_qty = $2,
			range_start = $3, range_end = $4, range_total = $5,
			unit_cost = $6, total_cost = $7,
			status = $8, ship_now_cartons = $9, updated_at = NOW()
		WHERE id = $10`,
		l.UnitsOrdered, l.CartonQty,
		l.RangeStart, l.RangeEnd, l.RangeTotal,
		l.UnitCost, l.TotalCost,
		string(l.Status), l.ShipNowCartons, l.ID,
	); err != nil {
		return fmt.Errorf("update line %d after split: %w", l.ID, err)
	}
	return nil
}

// copyDocumentsTo duplicates the pre-ocean document records onto a split
// sibling. The sibling restarts in MANUFACTURING, so ocean and warehouse
// paperwork stays with the shipping order it was gathered for.
func copyDocumentsTo(ctx context.Context, tx pgx.Tx, fromOrderID, toOrderID int) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_documents (order_id, stage, type, doc_key, file_ref, uploaded_by)
		SELECT $2, stage, type, doc_key, file_ref, uploaded_by
		FROM order_documents WHERE order_id = $1 AND stage IN ($3, $4)`,
		fromOrderID, toOrderID, string(StatusIssued), string(StatusManufacturing),
	); err != nil {
		return fmt.Errorf("copy documents from order %d to %d: %w", fromOrderID, toOrderID, err)
	}
	return nil
}

// copyProformaInvoicesTo duplicates proforma invoice records onto a sibling.
// Commercial invoices stay with the shipping order they were raised against.
func copyProformaInvoicesTo(ctx context.Context, tx pgx.Tx, fromOrderID, toOrderID int) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_invoices (order_id, kind, invoice_number, amount, currency)
		SELECT $2, kind, invoice_number, amount, currency
		FROM order_invoices WHERE order_id = $1 AND kind = $3`,
		fromOrderID, toOrderID, string(InvoiceKindProforma),
	); err != nil {
		return fmt.Errorf("copy proforma invoices from order %d to %d: %w", fromOrderID, toOrderID, err)
	}
	return nil
}

// loadSKUGroups resolves the catalog group tag for each of the given SKU
// codes. Codes absent from the catalog are simply missing from the result.
func loadSKUGroups(ctx context.Context, q pgxQuerier, codes []string) (map[string]string, error) {
	rows, err := q.Query(ctx,
		"SELECT sku_code, sku_group FROM skus WHERE sku_code = ANY($1)", codes)
	if err != nil {
		return nil, fmt.Errorf("resolve skus: %w", err)
	}
	defer rows.Close()

	groups := map[string]string{}
	for rows.Next() {
		var code, group string
		if err := rows.Scan(&code, &group); err != nil {
			return nil, fmt.Errorf("scan sku: %w", err)
		}
		groups[code] = group
	}
	return groups, rows.Err()
}

// cancelOrderLines marks every line CANCELLED with its posted and received
// quantities zeroed, part of the order cancellation path.
func cancelOrderLines(ctx context.Context, tx pgx.Tx, orderID int) error {
	if _, err := tx.Exec(ctx, `
		UPDATE purchase_order_lines
		SET status = $1, posted_cartons = 0, received_cartons = 0, updated_at = NOW()
		WHERE order_id = $2`,
		string(LineStatusCancelled), orderID,
	); err != nil {
		return fmt.Errorf("cancel lines of order %d: %w", orderID, err)
	}
	return nil
}

// deleteInventoryTransactions removes every inventory transaction posted for
// the order and returns the distinct storage tuples they occupied, so the
// storage ledger can be rebuilt without them. Dependent cost ledger rows go
// with them.
func deleteInventoryTransactions(ctx context.Context, tx pgx.Tx, orderID int) ([]StorageTuple, error) {
	if _, err := tx.Exec(ctx, `
		DELETE FROM financial_ledger_entries
		WHERE source_type = $1 AND source_id IN (
			SELECT transaction_id::text || ':' || cost_name
			FROM cost_ledger_entries
			WHERE transaction_id IN (SELECT id FROM inventory_transactions WHERE order_id = $2)
		)`,
		SourceTypeCostLedger, orderID,
	); err != nil {
		return nil, fmt.Errorf("delete cost mirrors of order %d: %w", orderID, err)
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM cost_ledger_entries
		WHERE transaction_id IN (SELECT id FROM inventory_transactions WHERE order_id = $1)`,
		orderID,
	); err != nil {
		return nil, fmt.Errorf("delete cost entries of order %d: %w", orderID, err)
	}
	rows, err := tx.Query(ctx, `
		DELETE FROM inventory_transactions WHERE order_id = $1
		RETURNING warehouse_code, sku_code, lot_ref`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("delete inventory transactions of order %d: %w", orderID, err)
	}
	defer rows.Close()

	seen := map[StorageTuple]bool{}
	var tuples []StorageTuple
	for rows.Next() {
		var t StorageTuple
		if err := rows.Scan(&t.WarehouseCode, &t.SKUCode, &t.LotRef); err != nil {
			return nil, fmt.Errorf("scan deleted transaction tuple: %w", err)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		tuples = append(tuples, t)
	}
	return tuples, rows.Err()
}

func updateLineReceipt(ctx context.Context, tx pgx.Tx, lineID int, receivedCartons, postedCartons int64) error {
	if _, err := tx.Exec(ctx, `
		UPDATE purchase_order_lines
		SET received_cartons = $1, posted_cartons = $2, status = $3, updated_at = NOW()
		WHERE id = $4`,
		receivedCartons, postedCartons, string(LineStatusPosted), lineID,
	); err != nil {
		return fmt.Errorf("update line %d receipt: %w", lineID, err)
	}
	return nil
}
