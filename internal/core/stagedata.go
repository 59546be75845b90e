package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// StageInput carries the caller-supplied stage data for a transition. Every
// field is optional; only the fields editable at the target stage are applied
// and the rest are silently dropped (see stageEditableFields). Dispatch is
// the per-line "ship now" carton allocation, honored only on the
// manufacturing -> ocean transition.
type StageInput struct {
	// Issue stage.
	CargoReadyDate *time.Time `json:"cargo_ready_date,omitempty"`
	Incoterms      *string    `json:"incoterms,omitempty"`
	PaymentTerms   *string    `json:"payment_terms,omitempty"`
	ExpectedDate   *time.Time `json:"expected_date,omitempty"`

	// Manufacturing stage.
	MfgStartDate      *time.Time       `json:"mfg_start_date,omitempty"`
	MfgCompletionDate *time.Time       `json:"mfg_completion_date,omitempty"`
	TotalCartons      *int64           `json:"total_cartons,omitempty"`
	TotalPallets      *int64           `json:"total_pallets,omitempty"`
	TotalWeightKg     *decimal.Decimal `json:"total_weight_kg,omitempty"`
	TotalVolumeM3     *decimal.Decimal `json:"total_volume_m3,omitempty"`

	// Ocean stage.
	VesselName     *string    `json:"vessel_name,omitempty"`
	ContainerNo    *string    `json:"container_no,omitempty"`
	BillOfLadingNo *string    `json:"bill_of_lading_no,omitempty"`
	ForwarderRef   *string    `json:"forwarder_ref,omitempty"`
	DepartureDate  *time.Time `json:"departure_date,omitempty"`
	ArrivalDate    *time.Time `json:"arrival_date,omitempty"`

	// Customs / warehouse stage.
	CustomsEntryNo     *string    `json:"customs_entry_no,omitempty"`
	CustomsClearedDate *time.Time `json:"customs_cleared_date,omitempty"`
	WarehouseCode      *string    `json:"warehouse_code,omitempty"`
	ReceiveType        *string    `json:"receive_type,omitempty"`

	// Dispatch maps line ID -> ship-now carton count. nil means "ship all
	// cargo now" (no split); non-nil triggers the dispatch split engine.
	Dispatch map[int]int64 `json:"dispatch,omitempty"`
}

// stageInputFields names every StageInput field, paired with a copier so the
// allow-list below stays a plain data table.
var stageInputFields = map[string]func(dst *StageInput, src *StageInput){
	"cargoReadyDate":     func(d, s *StageInput) { d.CargoReadyDate = s.CargoReadyDate },
	"incoterms":          func(d, s *StageInput) { d.Incoterms = s.Incoterms },
	"paymentTerms":       func(d, s *StageInput) { d.PaymentTerms = s.PaymentTerms },
	"expectedDate":       func(d, s *StageInput) { d.ExpectedDate = s.ExpectedDate },
	"mfgStartDate":       func(d, s *StageInput) { d.MfgStartDate = s.MfgStartDate },
	"mfgCompletionDate":  func(d, s *StageInput) { d.MfgCompletionDate = s.MfgCompletionDate },
	"totalCartons":       func(d, s *StageInput) { d.TotalCartons = s.TotalCartons },
	"totalPallets":       func(d, s *StageInput) { d.TotalPallets = s.TotalPallets },
	"totalWeightKg":      func(d, s *StageInput) { d.TotalWeightKg = s.TotalWeightKg },
	"totalVolumeM3":      func(d, s *StageInput) { d.TotalVolumeM3 = s.TotalVolumeM3 },
	"vesselName":         func(d, s *StageInput) { d.VesselName = s.VesselName },
	"containerNo":        func(d, s *StageInput) { d.ContainerNo = s.ContainerNo },
	"billOfLadingNo":     func(d, s *StageInput) { d.BillOfLadingNo = s.BillOfLadingNo },
	"forwarderRef":       func(d, s *StageInput) { d.ForwarderRef = s.ForwarderRef },
	"departureDate":      func(d, s *StageInput) { d.DepartureDate = s.DepartureDate },
	"arrivalDate":        func(d, s *StageInput) { d.ArrivalDate = s.ArrivalDate },
	"customsEntryNo":     func(d, s *StageInput) { d.CustomsEntryNo = s.CustomsEntryNo },
	"customsClearedDate": func(d, s *StageInput) { d.CustomsClearedDate = s.CustomsClearedDate },
	"warehouseCode":      func(d, s *StageInput) { d.WarehouseCode = s.WarehouseCode },
	"receiveType":        func(d, s *StageInput) { d.ReceiveType = s.ReceiveType },
}

// stageEditableFields is the allow-list of fields editable at each stage.
// The manufacturing cargo totals are also editable at the ocean stage so an
// explicitly supplied figure at dispatch time wins over derivation.
var stageEditableFields = map[Status][]string{
	StatusIssued: {
		"cargoReadyDate", "incoterms", "paymentTerms", "expectedDate",
	},
	StatusManufacturing: {
		"mfgStartDate", "mfgCompletionDate",
		"totalCartons", "totalPallets", "totalWeightKg", "totalVolumeM3",
	},
	StatusOcean: {
		"mfgCompletionDate",
		"totalCartons", "totalPallets", "totalWeightKg", "totalVolumeM3",
		"vesselName", "containerNo", "billOfLadingNo", "forwarderRef",
		"departureDate", "arrivalDate",
	},
	StatusWarehouse: {
		"customsEntryNo", "customsClearedDate", "warehouseCode", "receiveType",
	},
}

// filterStageInput keeps only the fields editable at the given stage.
// Out-of-stage fields are dropped, never applied. The dispatch allocation is
// carried through for the ocean stage only; the state machine further
// restricts it to the manufacturing -> ocean advance.
func filterStageInput(in StageInput, stage Status) StageInput {
	var out StageInput
	for _, field := range stageEditableFields[stage] {
		stageInputFields[field](&out, &in)
	}
	if stage == StatusOcean {
		out.Dispatch = in.Dispatch
	}
	return out
}

// applyStageInput writes every supplied field onto the order.
// The input must already be filtered for the target stage.
func applyStageInput(po *PurchaseOrder, in StageInput) {
	if in.CargoReadyDate != nil {
		po.CargoReadyDate = in.CargoReadyDate
	}
	if in.Incoterms != nil {
		po.Incoterms = *in.Incoterms
	}
	if in.PaymentTerms != nil {
		po.PaymentTerms = *in.PaymentTerms
	}
	if in.ExpectedDate != nil {
		po.ExpectedDate = in.ExpectedDate
	}
	if in.MfgStartDate != nil {
		po.MfgStartDate = in.MfgStartDate
	}
	if in.MfgCompletionDate != nil {
		po.MfgCompletionDate = in.MfgCompletionDate
	}
	if in.TotalCartons != nil {
		po.TotalCartons = in.TotalCartons
	}
	if in.TotalPallets != nil {
		po.TotalPallets = in.TotalPallets
	}
	if in.TotalWeightKg != nil {
		po.TotalWeightKg = in.TotalWeightKg
	}
	if in.TotalVolumeM3 != nil {
		po.TotalVolumeM3 = in.TotalVolumeM3
	}
	if in.VesselName != nil {
		po.VesselName = in.VesselName
	}
	if in.ContainerNo != nil {
		po.ContainerNo = in.ContainerNo
	}
	if in.BillOfLadingNo != nil {
		po.BillOfLadingNo = in.BillOfLadingNo
	}
	if in.ForwarderRef != nil {
		po.ForwarderRef = in.ForwarderRef
	}
	if in.DepartureDate != nil {
		po.DepartureDate = in.DepartureDate
	}
	if in.ArrivalDate != nil {
		po.ArrivalDate = in.ArrivalDate
	}
	if in.CustomsEntryNo != nil {
		po.CustomsEntryNo = in.CustomsEntryNo
	}
	if in.CustomsClearedDate != nil {
		po.CustomsClearedDate = in.CustomsClearedDate
	}
	if in.WarehouseCode != nil {
		po.WarehouseCode = in.WarehouseCode
	}
	if in.ReceiveType != nil {
		po.ReceiveType = in.ReceiveType
	}
}

// snapshotStageFields captures the current value of every stage-data field as
// a display string for audit diffing. Unset fields are empty strings.
func snapshotStageFields(po *PurchaseOrder) map[string]string {
	fmtDate := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02")
	}
	fmtStr := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	fmtInt := func(n *int64) string {
		if n == nil {
			return ""
		}
		return decimal.NewFromInt(*n).String()
	}
	fmtDec := func(d *decimal.Decimal) string {
		if d == nil {
			return ""
		}
		return d.String()
	}

	return map[string]string{
		"status":             string(po.Status),
		"cargoReadyDate":     fmtDate(po.CargoReadyDate),
		"incoterms":          po.Incoterms,
		"paymentTerms":       po.PaymentTerms,
		"expectedDate":       fmtDate(po.ExpectedDate),
		"mfgStartDate":       fmtDate(po.MfgStartDate),
		"mfgCompletionDate":  fmtDate(po.MfgCompletionDate),
		"totalCartons":       fmtInt(po.TotalCartons),
		"totalPallets":       fmtInt(po.TotalPallets),
		"totalWeightKg":      fmtDec(po.TotalWeightKg),
		"totalVolumeM3":      fmtDec(po.TotalVolumeM3),
		"vesselName":         fmtStr(po.VesselName),
		"containerNo":        fmtStr(po.ContainerNo),
		"billOfLadingNo":     fmtStr(po.BillOfLadingNo),
		"forwarderRef":       fmtStr(po.ForwarderRef),
		"departureDate":      fmtDate(po.DepartureDate),
		"arrivalDate":        fmtDate(po.ArrivalDate),
		"customsEntryNo":     fmtStr(po.CustomsEntryNo),
		"customsClearedDate": fmtDate(po.CustomsClearedDate),
		"warehouseCode":      fmtStr(po.WarehouseCode),
		"receiveType":        fmtStr(po.ReceiveType),
	}
}

// diffStageFields returns the before/after values of every field whose value
// actually changed. Empty result means nothing changed and no audit event
// should be emitted.
func diffStageFields(before, after map[string]string) (oldVals, newVals map[string]string) {
	oldVals = map[string]string{}
	newVals = map[string]string{}
	for k, b := range before {
		if a := after[k]; a != b {
			oldVals[k] = b
			newVals[k] = a
		}
	}
	return oldVals, newVals
}
