package core

import (
	"time"
)

// OrderView is the outward projection of a purchase order. Split-sibling
// references are collapsed to their public form and generated artifacts carry
// a staleness flag instead of raw timestamps for the caller to compare.
type OrderView struct {
	ID       int     `json:"id"`
	OrderRef string  `json:"order_ref"`
	PONumber *string `json:"po_number,omitempty"`
	SKUGroup string  `json:"sku_group"`
	Status   Status  `json:"status"`
	Archived bool    `json:"archived"`
	Legacy   bool    `json:"legacy"`

	// LegalNextStatuses drives the caller's transition UI; cancel targets
	// are included.
	LegalNextStatuses []Status `json:"legal_next_statuses"`

	SupplierID      int    `json:"supplier_id"`
	SupplierName    string `json:"supplier_name"`
	SupplierCountry string `json:"supplier_country"`

	Incoterms      string     `json:"incoterms"`
	PaymentTerms   string     `json:"payment_terms"`
	CargoReadyDate *time.Time `json:"cargo_ready_date,omitempty"`
	ExpectedDate   *time.Time `json:"expected_date,omitempty"`

	MfgStartDate      *time.Time `json:"mfg_start_date,omitempty"`
	MfgCompletionDate *time.Time `json:"mfg_completion_date,omitempty"`
	TotalCartons      *int64     `json:"total_cartons,omitempty"`
	TotalPallets      *int64     `json:"total_pallets,omitempty"`
	TotalWeightKg     *string    `json:"total_weight_kg,omitempty"`
	TotalVolumeM3     *string    `json:"total_volume_m3,omitempty"`

	VesselName     *string    `json:"vessel_name,omitempty"`
	ContainerNo    *string    `json:"container_no,omitempty"`
	BillOfLadingNo *string    `json:"bill_of_lading_no,omitempty"`
	ForwarderRef   *string    `json:"forwarder_ref,omitempty"`
	DepartureDate  *time.Time `json:"departure_date,omitempty"`
	ArrivalDate    *time.Time `json:"arrival_date,omitempty"`

	CustomsEntryNo     *string    `json:"customs_entry_no,omitempty"`
	CustomsClearedDate *time.Time `json:"customs_cleared_date,omitempty"`
	WarehouseCode      *string    `json:"warehouse_code,omitempty"`
	ReceiveType        *string    `json:"receive_type,omitempty"`
	ReceivedDate       *time.Time `json:"received_date,omitempty"`

	// Approval history: when each stage was approved, in stage order.
	IssuedApprovedAt        *time.Time `json:"issued_approved_at,omitempty"`
	ManufacturingApprovedAt *time.Time `json:"manufacturing_approved_at,omitempty"`
	OceanApprovedAt         *time.Time `json:"ocean_approved_at,omitempty"`
	WarehouseApprovedAt     *time.Time `json:"warehouse_approved_at,omitempty"`

	// SplitSibling is true for orders forked off a dispatch split.
	SplitSibling  bool `json:"split_sibling"`
	ParentOrderID *int `json:"parent_order_id,omitempty"`

	Posted bool `json:"posted"`

	// MarksGenerated / MarksStale: marks exist, and the order or its lines
	// changed after they were generated.
	MarksGenerated   bool       `json:"marks_generated"`
	MarksStale       bool       `json:"marks_stale"`
	MarksGeneratedAt *time.Time `json:"marks_generated_at,omitempty"`
	MarksGeneratedBy *string    `json:"marks_generated_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lines []PurchaseOrderLine `json:"lines"`
}

// lastMutation is the latest updated-at across the order and its lines,
// the reference point for artifact staleness.
func (po *PurchaseOrder) lastMutation() time.Time {
	last := po.UpdatedAt
	for _, l := range po.Lines {
		if l.UpdatedAt.After(last) {
			last = l.UpdatedAt
		}
	}
	return last
}

// NewOrderView projects an order for API responses.
func NewOrderView(po *PurchaseOrder) OrderView {
	v := OrderView{
		ID:       po.ID,
		OrderRef: PublicRef(po.OrderRef),
		PONumber: po.PONumber,
		SKUGroup: po.SKUGroup,
		Status:   po.Status,
		Archived: po.Archived,
		Legacy:   po.Legacy,

		LegalNextStatuses: LegalNextStatuses(po.Status),

		SupplierID:      po.SupplierID,
		SupplierName:    po.SupplierName,
		SupplierCountry: po.SupplierCountry,

		Incoterms:      po.Incoterms,
		PaymentTerms:   po.PaymentTerms,
		CargoReadyDate: po.CargoReadyDate,
		ExpectedDate:   po.ExpectedDate,

		MfgStartDate:      po.MfgStartDate,
		MfgCompletionDate: po.MfgCompletionDate,
		TotalCartons:      po.TotalCartons,
		TotalPallets:      po.TotalPallets,

		VesselName:     po.VesselName,
		ContainerNo:    po.ContainerNo,
		BillOfLadingNo: po.BillOfLadingNo,
		ForwarderRef:   po.ForwarderRef,
		DepartureDate:  po.DepartureDate,
		ArrivalDate:    po.ArrivalDate,

		CustomsEntryNo:     po.CustomsEntryNo,
		CustomsClearedDate: po.CustomsClearedDate,
		WarehouseCode:      po.WarehouseCode,
		ReceiveType:        po.ReceiveType,
		ReceivedDate:       po.ReceivedDate,

		IssuedApprovedAt:        po.IssuedApprovedAt,
		ManufacturingApprovedAt: po.ManufacturingApprovedAt,
		OceanApprovedAt:         po.OceanApprovedAt,
		WarehouseApprovedAt:     po.WarehouseApprovedAt,

		SplitSibling:  po.ParentOrderID != nil,
		ParentOrderID: po.ParentOrderID,

		Posted: po.PostedAt != nil,

		MarksGeneratedAt: po.MarksGeneratedAt,
		MarksGeneratedBy: po.MarksGeneratedBy,

		CreatedAt: po.CreatedAt,
		UpdatedAt: po.UpdatedAt,
		Lines:     po.Lines,
	}
	if po.TotalWeightKg != nil {
		s := po.TotalWeightKg.StringFixed(2)
		v.TotalWeightKg = &s
	}
	if po.TotalVolumeM3 != nil {
		s := po.TotalVolumeM3.StringFixed(3)
		v.TotalVolumeM3 = &s
	}
	if po.MarksGeneratedAt != nil {
		v.MarksGenerated = true
		v.MarksStale = po.MarksGeneratedAt.Before(po.lastMutation())
	}
	return v
}

// NewOrderViews projects a slice of orders.
func NewOrderViews(orders []PurchaseOrder) []OrderView {
	views := make([]OrderView, 0, len(orders))
	for i := range orders {
		views = append(views, NewOrderView(&orders[i]))
	}
	return views
}
