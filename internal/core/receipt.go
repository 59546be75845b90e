package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptInput is the warehouse receipt posting for an order. Customs and
// warehouse fields may be omitted when the order already carries them from
// the warehouse stage transition.
type ReceiptInput struct {
	ReceivedDate       time.Time          `json:"received_date"`
	WarehouseCode      string             `json:"warehouse_code,omitempty"`
	ReceiveType        string             `json:"receive_type,omitempty"`
	CustomsEntryNo     string             `json:"customs_entry_no,omitempty"`
	CustomsClearedDate *time.Time         `json:"customs_cleared_date,omitempty"`
	Lines              []ReceiptLineInput `json:"lines"`
}

// ReceiptLineInput records what actually arrived for one order line.
type ReceiptLineInput struct {
	LineID           int    `json:"line_id"`
	ReceivedCartons  int64  `json:"received_cartons"`
	DiscrepancyNotes string `json:"discrepancy_notes,omitempty"`
}

// resolvedWarehouse prefers the receipt input, falling back to the code
// captured at the warehouse stage transition.
func (in ReceiptInput) resolvedWarehouse(po *PurchaseOrder) string {
	if in.WarehouseCode != "" {
		return in.WarehouseCode
	}
	if po.WarehouseCode != nil {
		return *po.WarehouseCode
	}
	return ""
}

func (in ReceiptInput) resolvedReceiveType(po *PurchaseOrder) string {
	if in.ReceiveType != "" {
		return in.ReceiveType
	}
	if po.ReceiveType != nil {
		return *po.ReceiveType
	}
	return ""
}

// buildReceiptTransactions turns the receipt into inbound inventory
// transactions, one per active line with a nonzero received count. Pallets
// are computed from the line's storage cartons-per-pallet.
func buildReceiptTransactions(po *PurchaseOrder, in ReceiptInput) ([]InventoryTransaction, error) {
	warehouse := in.resolvedWarehouse(po)
	byLine := map[int]ReceiptLineInput{}
	for _, rl := range in.Lines {
		byLine[rl.LineID] = rl
	}

	var txns []InventoryTransaction
	totalPallets := decimal.Zero
	for _, l := range po.ActiveLines() {
		rl, ok := byLine[l.ID]
		if !ok || rl.ReceivedCartons == 0 {
			continue
		}
		perPallet := l.storageCartonsPerPallet()
		if perPallet <= 0 {
			return nil, validationErrorf("line %d has no resolvable cartons-per-pallet", l.ID)
		}
		pallets := PalletsForCartons(rl.ReceivedCartons, perPallet)
		totalPallets = totalPallets.Add(pallets)

		lot := l.LotRef
		if lot == "" {
			lot = lotRefFor(po.OrderRef, l.SKUCode)
		}
		txns = append(txns, InventoryTransaction{
			OrderID:         po.ID,
			OrderLineID:     l.ID,
			WarehouseCode:   warehouse,
			SKUCode:         l.SKUCode,
			LotRef:          lot,
			CartonsIn:       rl.ReceivedCartons,
			PalletsIn:       pallets,
			UnitsPerCarton:  l.UnitsPerCarton,
			CartonVolumeM3:  l.CartonVolumeM3(),
			GrossWeightKg:   l.GrossWeightKg,
			TransactionDate: in.ReceivedDate,
		})
	}
	if len(txns) == 0 {
		return nil, validationErrorf("receipt posts no cartons: every line received zero")
	}
	if !totalPallets.IsPositive() {
		return nil, validationErrorf("receipt must occupy a positive number of storage pallets")
	}
	return txns, nil
}

// receiptAdjustment nets each line's receipt discrepancy at cost. A net
// shortfall produces a supplier debit note, a net overage a credit note; nil
// means everything arrived as ordered. The returned entry is keyed by order
// id so re-posting after a correction upserts rather than duplicates.
func receiptAdjustment(po *PurchaseOrder, in ReceiptInput) *FinancialLedgerEntry {
	byLine := map[int]ReceiptLineInput{}
	for _, rl := range in.Lines {
		byLine[rl.LineID] = rl
	}

	net := decimal.Zero
	currency := ""
	var notes []string
	for _, l := range po.ActiveLines() {
		rl, ok := byLine[l.ID]
		if !ok {
			continue
		}
		shortfall := l.CartonQty - rl.ReceivedCartons
		if shortfall == 0 {
			continue
		}
		unitCost := l.ResolveUnitCost()
		if unitCost == nil {
			continue
		}
		if currency == "" {
			currency = l.Currency
		}
		net = net.Add(unitCost.Mul(decimal.NewFromInt(shortfall * l.UnitsPerCarton)))
		if s := strings.TrimSpace(rl.DiscrepancyNotes); s != "" {
			notes = append(notes, fmt.Sprintf("%s: %s", l.SKUCode, s))
		}
	}
	if net.IsZero() {
		return nil
	}

	entryType := EntryTypeSupplierDebitNote
	amount := net.Round(2)
	if net.IsNegative() {
		entryType = EntryTypeSupplierCreditNote
		amount = amount.Neg()
	}
	description := fmt.Sprintf("receipt discrepancy on %s", PublicRef(po.OrderRef))
	if len(notes) > 0 {
		description = fmt.Sprintf("%s (%s)", description, strings.Join(notes, "; "))
	}
	return &FinancialLedgerEntry{
		SourceType:  SourceTypeReceiptAdjustment,
		SourceID:    fmt.Sprintf("%d", po.ID),
		EntryType:   entryType,
		Description: description,
		Amount:      amount,
		Currency:    currency,
		EntryDate:   in.ReceivedDate,
	}
}
