package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the caller identity attached to every mutating operation.
// Authentication happens upstream; by the time the engine runs, the identity
// is already resolved.
type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PurchaseOrder is the aggregate root tracked by the stage-transition engine.
// OrderRef is the human-readable reference; internal references of split
// siblings carry a "~n" suffix that is stripped from API responses.
// PONumber is issued exactly once, when the order is issued.
type PurchaseOrder struct {
	ID       int     `json:"id"`
	OrderRef string  `json:"order_ref"`
	PONumber *string `json:"po_number,omitempty"`
	SKUGroup string  `json:"sku_group"`
	Status   Status  `json:"status"`
	Archived bool    `json:"archived"`
	Legacy   bool    `json:"legacy"`

	// Supplier snapshot, frozen at creation.
	SupplierID         int    `json:"supplier_id"`
	SupplierName       string `json:"supplier_name"`
	SupplierCountry    string `json:"supplier_country"`
	SupplierAddress    string `json:"supplier_address"`
	SupplierHasBanking bool   `json:"supplier_has_banking"`

	// Commercial terms.
	Incoterms      string     `json:"incoterms"`
	PaymentTerms   string     `json:"payment_terms"`
	CargoReadyDate *time.Time `json:"cargo_ready_date,omitempty"`
	ExpectedDate   *time.Time `json:"expected_date,omitempty"`

	// Manufacturing detail block.
	MfgStartDate      *time.Time       `json:"mfg_start_date,omitempty"`
	MfgCompletionDate *time.Time       `json:"mfg_completion_date,omitempty"`
	TotalCartons      *int64           `json:"total_cartons,omitempty"`
	TotalPallets      *int64           `json:"total_pallets,omitempty"`
	TotalWeightKg     *decimal.Decimal `json:"total_weight_kg,omitempty"`
	TotalVolumeM3     *decimal.Decimal `json:"total_volume_m3,omitempty"`

	// Ocean logistics detail block.
	VesselName     *string    `json:"vessel_name,omitempty"`
	ContainerNo    *string    `json:"container_no,omitempty"`
	BillOfLadingNo *string    `json:"bill_of_lading_no,omitempty"`
	ForwarderRef   *string    `json:"forwarder_ref,omitempty"`
	DepartureDate  *time.Time `json:"departure_date,omitempty"`
	ArrivalDate    *time.Time `json:"arrival_date,omitempty"`

	// Customs / warehouse detail block.
	CustomsEntryNo     *string    `json:"customs_entry_no,omitempty"`
	CustomsClearedDate *time.Time `json:"customs_cleared_date,omitempty"`
	WarehouseCode      *string    `json:"warehouse_code,omitempty"`
	ReceiveType        *string    `json:"receive_type,omitempty"`
	ReceivedDate       *time.Time `json:"received_date,omitempty"`

	// Split provenance. SplitGroupID is shared by all siblings produced from
	// the same original order; ParentOrderID points at the order this one was
	// forked from (one-directional, never cyclic).
	SplitGroupID  *string `json:"split_group_id,omitempty"`
	ParentOrderID *int    `json:"parent_order_id,omitempty"`

	// Per-stage approval bookkeeping.
	IssuedApprovedAt        *time.Time `json:"issued_approved_at,omitempty"`
	ManufacturingApprovedAt *time.Time `json:"manufacturing_approved_at,omitempty"`
	OceanApprovedAt         *time.Time `json:"ocean_approved_at,omitempty"`
	WarehouseApprovedAt     *time.Time `json:"warehouse_approved_at,omitempty"`

	// PostedAt marks that inventory has been received for this order.
	// Set at most once; a posted order can never be received again.
	PostedAt *time.Time `json:"posted_at,omitempty"`

	// Shipping-mark generation marker for staleness tracking.
	MarksGeneratedAt *time.Time `json:"marks_generated_at,omitempty"`
	MarksGeneratedBy *string    `json:"marks_generated_by,omitempty"`

	// Version increases on every persisted mutation; writes assert it
	// unchanged so a concurrent transition surfaces as a retryable conflict.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lines []PurchaseOrderLine `json:"lines"`
}

// ActiveLines returns the non-cancelled lines. Cancelled lines are retained
// for audit but excluded from every cargo and cost computation.
func (po *PurchaseOrder) ActiveLines() []PurchaseOrderLine {
	var active []PurchaseOrderLine
	for _, l := range po.Lines {
		if l.Status != LineStatusCancelled {
			active = append(active, l)
		}
	}
	return active
}

// PurchaseOrderLine is one SKU position of a purchase order. The carton range
// tracks which physical cartons of a larger production run this line instance
// represents; a split narrows the range, never expands it.
type PurchaseOrderLine struct {
	ID      int    `json:"id"`
	OrderID int    `json:"order_id"`
	SKUCode string `json:"sku_code"`
	// LotRef is derived from the order reference plus SKU and is unique per line.
	LotRef         string `json:"lot_ref"`
	UnitsOrdered   int64  `json:"units_ordered"`
	UnitsPerCarton int64  `json:"units_per_carton"`
	CartonQty      int64  `json:"carton_qty"`

	RangeStart *int64 `json:"range_start,omitempty"`
	RangeEnd   *int64 `json:"range_end,omitempty"`
	RangeTotal *int64 `json:"range_total,omitempty"`

	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
	TotalCost *decimal.Decimal `json:"total_cost,omitempty"`
	Currency  string           `json:"currency"`

	// Trade compliance and physical attributes.
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

	Status          LineStatus `json:"status"`
	PostedCartons   int64      `json:"posted_cartons"`
	ReceivedCartons int64      `json:"received_cartons"`

	// ShipNowCartons is the dispatch allocation captured at the
	// manufacturing -> ocean transition.
	ShipNowCartons *int64 `json:"ship_now_cartons,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ResolveUnitCost returns the explicit unit cost when present, otherwise the
// total cost divided by ordered units. Nil when neither is resolvable.
func (l *PurchaseOrderLine) ResolveUnitCost() *decimal.Decimal {
	if l.UnitCost != nil {
		return l.UnitCost
	}
	if l.TotalCost != nil && l.UnitsOrdered > 0 {
		uc := l.TotalCost.Div(decimal.NewFromInt(l.UnitsOrdered))
		return &uc
	}
	return nil
}

// ResolveTotalCost returns the explicit total cost when present, otherwise
// unit cost times ordered units. Nil when neither is resolvable.
func (l *PurchaseOrderLine) ResolveTotalCost() *decimal.Decimal {
	if l.TotalCost != nil {
		return l.TotalCost
	}
	if l.UnitCost != nil {
		tc := l.UnitCost.Mul(decimal.NewFromInt(l.UnitsOrdered))
		return &tc
	}
	return nil
}

// DocumentType classifies uploaded order documents. The stage gates require
// specific type sets per stage.
type DocumentType string

const (
	DocTypeProformaInvoice   DocumentType = "PROFORMA_INVOICE"
	DocTypeCommercialInvoice DocumentType = "COMMERCIAL_INVOICE"
	DocTypeBillOfLading      DocumentType = "BILL_OF_LADING"
	DocTypePackingList       DocumentType = "PACKING_LIST"
)

// OrderDocument is an uploaded file record tagged to an order and stage.
// File storage itself is external; only the metadata the gates need lives here.
type OrderDocument struct {
	ID      int          `json:"id"`
	OrderID int          `json:"order_id"`
	Stage   Status       `json:"stage"`
	Type    DocumentType `json:"type"`
	// DocKey is the normalized invoice-number-derived key for per-shipment
	// invoice documents; empty for documents not tied to an invoice.
	DocKey     string    `json:"doc_key,omitempty"`
	FileRef    string    `json:"file_ref"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// InvoiceKind distinguishes proforma from commercial order invoices.
type InvoiceKind string

const (
	InvoiceKindProforma   InvoiceKind = "PROFORMA"
	InvoiceKindCommercial InvoiceKind = "COMMERCIAL"
)

// OrderInvoice is a supplier invoice record attached to an order.
type OrderInvoice struct {
	ID            int             `json:"id"`
	OrderID       int             `json:"order_id"`
	Kind          InvoiceKind     `json:"kind"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CostCategory groups cost ledger entries.
type CostCategory string

const (
	CostCategoryInbound    CostCategory = "INBOUND"
	CostCategoryStorage    CostCategory = "STORAGE"
	CostCategoryOutbound   CostCategory = "OUTBOUND"
	CostCategoryForwarding CostCategory = "FORWARDING"
)

// RateUnit is the unit of measure a cost rate is quoted in.
type RateUnit string

const (
	RatePerCarton RateUnit = "PER_CARTON"
	RatePerPallet RateUnit = "PER_PALLET"
	RatePerCBM    RateUnit = "PER_CBM"
	RateFlat      RateUnit = "FLAT"
)

// CostRate is one row of the active rate table. For a given cost name the
// first rate whose effective date is not after the transaction date wins.
type CostRate struct {
	ID            int             `json:"id"`
	CostName      string          `json:"cost_name"`
	Category      CostCategory    `json:"category"`
	Unit          RateUnit        `json:"unit"`
	Rate          decimal.Decimal `json:"rate"`
	Currency      string          `json:"currency"`
	WarehouseCode string          `json:"warehouse_code"`
	EffectiveFrom time.Time       `json:"effective_from"`
}

// CostLedgerEntry is an immutable itemized cost fact. Entries are never
// mutated; when a source recalculates, prior entries are deleted and fresh
// ones inserted.
type CostLedgerEntry struct {
	ID            int             `json:"id"`
	TransactionID int             `json:"transaction_id"`
	Category      CostCategory    `json:"category"`
	CostName      string          `json:"cost_name"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitRate      decimal.Decimal `json:"unit_rate"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Currency      string          `json:"currency"`
	WarehouseCode string          `json:"warehouse_code"`
	EntryDate     time.Time       `json:"entry_date"`
	CreatedAt     time.Time       `json:"created_at"`
}

// FinancialLedgerEntry mirrors selected cost-ledger categories and manual
// adjustments into the reporting ledger. (SourceType, SourceID) is the
// idempotent upsert key.
type FinancialLedgerEntry struct {
	ID          int             `json:"id"`
	SourceType  string          `json:"source_type"`
	SourceID    string          `json:"source_id"`
	EntryType   string          `json:"entry_type"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	EntryDate   time.Time       `json:"entry_date"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Financial ledger source types.
const (
	SourceTypeCostLedger        = "COST_LEDGER"
	SourceTypeReceiptAdjustment = "PO_RECEIPT_ADJUSTMENT"
)

// Financial ledger entry types for receipt discrepancy adjustments.
const (
	EntryTypeSupplierDebitNote  = "SUPPLIER_DEBIT_NOTE"
	EntryTypeSupplierCreditNote = "SUPPLIER_CREDIT_NOTE"
)

// InventoryTransaction is one posting of cartons moving into or out of a
// warehouse for a SKU/lot. Created once per (PO line, receipt event) and
// never updated afterwards.
type InventoryTransaction struct {
	ID              int              `json:"id"`
	OrderID         int              `json:"order_id"`
	OrderLineID     int              `json:"order_line_id"`
	WarehouseCode   string           `json:"warehouse_code"`
	SKUCode         string           `json:"sku_code"`
	LotRef          string           `json:"lot_ref"`
	CartonsIn       int64            `json:"cartons_in"`
	CartonsOut      int64            `json:"cartons_out"`
	PalletsIn       decimal.Decimal  `json:"pallets_in"`
	UnitsPerCarton  int64            `json:"units_per_carton"`
	CartonVolumeM3  *decimal.Decimal `json:"carton_volume_m3,omitempty"`
	GrossWeightKg   *decimal.Decimal `json:"gross_weight_kg,omitempty"`
	TransactionDate time.Time        `json:"transaction_date"`
	CreatedAt       time.Time        `json:"created_at"`
}

// ForwardingCost is a freight cost recorded against a shipment. Its total is
// apportioned across the shipment's inventory transactions at receipt.
type ForwardingCost struct {
	ID        int             `json:"id"`
	OrderID   int             `json:"order_id"`
	CostName  string          `json:"cost_name"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
}

// StorageTuple identifies inventory for storage-cost recalculation.
type StorageTuple struct {
	WarehouseCode string `json:"warehouse_code"`
	SKUCode       string `json:"sku_code"`
	LotRef        string `json:"lot_ref"`
}
