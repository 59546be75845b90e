package core

import (
	"fmt"
	"strings"
	"unicode"
)

// GateContext is the read snapshot a stage gate evaluates against. The order
// carries the candidate state (stage input already merged); nothing in the
// gate engine has side effects.
type GateContext struct {
	Order               *PurchaseOrder
	Documents           []OrderDocument
	Invoices            []OrderInvoice
	ForwardingCostCount int
	// Dispatch is the per-line ship-now allocation when one was supplied for
	// this transition; nil otherwise.
	Dispatch map[int]int64
}

// evaluateStageGate runs the fixed rule set for the target stage and returns
// every violation found. Callers turn a non-empty result into a single
// StageGateError; violations are never surfaced one at a time.
func evaluateStageGate(target Status, gc GateContext) Violations {
	v := Violations{}
	switch target {
	case StatusIssued:
		checkHeaderCompleteness(gc.Order, v)
		checkCostingCompleteness(gc.Order, v)
	case StatusManufacturing:
		checkTradeCompliance(gc.Order, v)
	case StatusOcean:
		checkOceanDocuments(gc, v)
		if gc.Dispatch != nil {
			checkDispatchCompleteness(gc.Order, gc.Dispatch, v)
		}
	case StatusWarehouse:
		if gc.ForwardingCostCount == 0 {
			v.Add("costs.forwarding", "at least one forwarding cost record is required before the warehouse stage")
		}
	}
	return v
}

// checkHeaderCompleteness verifies the commercial header needed to issue an
// order: a counterparty with on-file banking details, a cargo ready date,
// incoterms and payment terms.
func checkHeaderCompleteness(po *PurchaseOrder, v Violations) {
	if po.SupplierID == 0 {
		v.Add("order.supplier", "supplier is required")
	} else if !po.SupplierHasBanking {
		v.Add("order.supplierBanking", "supplier has no banking details on file")
	}
	if po.CargoReadyDate == nil {
		v.Add("order.cargoReadyDate", "cargo ready date is required")
	}
	if po.Incoterms == "" {
		v.Add("order.incoterms", "incoterms are required")
	}
	if po.PaymentTerms == "" {
		v.Add("order.paymentTerms", "payment terms are required")
	}
}

// checkCostingCompleteness verifies that a total cost is resolvable for every
// active line, and that units divide evenly into cartons.
func checkCostingCompleteness(po *PurchaseOrder, v Violations) {
	for _, l := range po.ActiveLines() {
		prefix := fmt.Sprintf("lines.%d.", l.ID)
		if l.ResolveTotalCost() == nil {
			v.Add(prefix+"totalCost", "a unit or total cost is required")
		}
		checkCartonDivisibility(&l, prefix, v)
	}
}

func checkCartonDivisibility(l *PurchaseOrderLine, prefix string, v Violations) {
	if l.UnitsOrdered <= 0 {
		v.Add(prefix+"unitsOrdered", "ordered units must be positive")
		return
	}
	if l.UnitsPerCarton <= 0 {
		v.Add(prefix+"unitsPerCarton", "units per carton must be positive")
		return
	}
	if l.UnitsOrdered%l.UnitsPerCarton != 0 {
		v.Add(prefix+"unitsPerCarton",
			fmt.Sprintf("%d units do not divide evenly into cartons of %d", l.UnitsOrdered, l.UnitsPerCarton))
	}
}

// checkTradeCompliance verifies the customs-facing completeness of every
// active line: commodity code format, derivable country of origin, material
// description, positive weights and resolvable carton dimensions.
func checkTradeCompliance(po *PurchaseOrder, v Violations) {
	for _, l := range po.ActiveLines() {
		prefix := fmt.Sprintf("lines.%d.", l.ID)

		country := po.SupplierCountry
		if l.CountryOfOrigin != nil && *l.CountryOfOrigin != "" {
			country = *l.CountryOfOrigin
		}
		if country == "" {
			v.Add(prefix+"countryOfOrigin", "country of origin is not derivable from the supplier address")
		}

		if l.CommodityCode == nil || *l.CommodityCode == "" {
			v.Add(prefix+"commodityCode", "commodity code is required")
		} else if msg := validateCommodityCode(*l.CommodityCode, country); msg != "" {
			v.Add(prefix+"commodityCode", msg)
		}

		if l.MaterialDescription == nil || strings.TrimSpace(*l.MaterialDescription) == "" {
			v.Add(prefix+"materialDescription", "material description is required")
		}
		if l.NetWeightKg == nil || !l.NetWeightKg.IsPositive() {
			v.Add(prefix+"netWeightKg", "net weight must be positive")
		}
		if l.GrossWeightKg == nil || !l.GrossWeightKg.IsPositive() {
			v.Add(prefix+"grossWeightKg", "gross weight must be positive")
		}
		if l.CartonVolumeM3() == nil {
			v.Add(prefix+"cartonDimensions", "carton dimensions are not resolvable")
		}
		checkCartonDivisibility(&l, prefix, v)
	}
}

// validateCommodityCode applies the country-specific digit-length rule:
// 10 digits for US-origin goods (HTS), 6, 8 or 10 digits elsewhere (HS).
// Returns an empty string when the code is valid.
func validateCommodityCode(code, country string) string {
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return "commodity code must contain digits only"
		}
	}
	if strings.EqualFold(country, "US") {
		if len(code) != 10 {
			return "commodity code must be exactly 10 digits for US origin"
		}
		return ""
	}
	switch len(code) {
	case 6, 8, 10:
		return ""
	default:
		return "commodity code must be 6, 8 or 10 digits"
	}
}

// oceanRequiredDocs is the document set required at the ocean stage.
// The commercial invoice is checked separately against invoice-derived keys.
var oceanRequiredDocs = []DocumentType{DocTypeBillOfLading, DocTypePackingList}

// checkOceanDocuments verifies the stage document set: a bill of lading and a
// packing list tagged to the ocean stage, plus one commercial invoice
// document per commercial invoice record, matched by the normalized
// invoice-number-derived document key.
func checkOceanDocuments(gc GateContext, v Violations) {
	byType := map[DocumentType][]OrderDocument{}
	for _, d := range gc.Documents {
		if d.Stage == StatusOcean {
			byType[d.Type] = append(byType[d.Type], d)
		}
	}

	for _, t := range oceanRequiredDocs {
		if len(byType[t]) == 0 {
			v.Add("documents."+docFieldName(t), fmt.Sprintf("a %s document is required at the ocean stage", docDisplayName(t)))
		}
	}

	var commercial []OrderInvoice
	for _, inv := range gc.Invoices {
		if inv.Kind == InvoiceKindCommercial {
			commercial = append(commercial, inv)
		}
	}
	if len(commercial) == 0 {
		v.Add("documents.commercialInvoice", "a commercial invoice is required at the ocean stage")
		return
	}
	for _, inv := range commercial {
		key := NormalizeDocKey(inv.InvoiceNumber)
		found := false
		for _, d := range byType[DocTypeCommercialInvoice] {
			if d.DocKey == key {
				found = true
				break
			}
		}
		if !found {
			v.Add("documents.commercialInvoice."+key,
				fmt.Sprintf("no commercial invoice document uploaded for invoice %s", inv.InvoiceNumber))
		}
	}
}

func docFieldName(t DocumentType) string {
	switch t {
	case DocTypeBillOfLading:
		return "billOfLading"
	case DocTypePackingList:
		return "packingList"
	case DocTypeCommercialInvoice:
		return "commercialInvoice"
	case DocTypeProformaInvoice:
		return "proformaInvoice"
	}
	return strings.ToLower(string(t))
}

func docDisplayName(t DocumentType) string {
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", " ")
}

// NormalizeDocKey derives the matching key for per-shipment-invoice documents
// from an invoice number: uppercased with every non-alphanumeric stripped.
func NormalizeDocKey(invoiceNumber string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(invoiceNumber) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// checkDispatchCompleteness verifies a supplied ship-now allocation: every
// active line carries a non-negative count within its available carton range,
// and at least one carton ships overall.
func checkDispatchCompleteness(po *PurchaseOrder, dispatch map[int]int64, v Violations) {
	var total int64
	for _, l := range po.ActiveLines() {
		prefix := fmt.Sprintf("lines.%d.", l.ID)
		shipNow, ok := dispatch[l.ID]
		if !ok {
			v.Add(prefix+"shipNowCartons", "a ship-now carton count is required for every active line")
			continue
		}
		if shipNow < 0 {
			v.Add(prefix+"shipNowCartons", "ship-now carton count must not be negative")
			continue
		}
		if avail := l.availableCartons(); shipNow > avail {
			v.Add(prefix+"shipNowCartons",
				fmt.Sprintf("ship-now count %d exceeds the %d cartons available on this line", shipNow, avail))
			continue
		}
		total += shipNow
	}
	if len(v) == 0 && total <= 0 {
		v.Add("dispatch.total", "at least one carton must ship now")
	}
}

// evaluateReceiptGate runs the warehouse-receipt gate: customs entry and
// clearance date, warehouse selection, receive type, a resolvable
// cartons-per-pallet figure per line, and discrepancy notes whenever received
// differs from ordered.
func evaluateReceiptGate(po *PurchaseOrder, in ReceiptInput) Violations {
	v := Violations{}
	if po.CustomsEntryNo == nil || *po.CustomsEntryNo == "" {
		if in.CustomsEntryNo == "" {
			v.Add("receipt.customsEntryNo", "customs entry number is required")
		}
	}
	if po.CustomsClearedDate == nil && in.CustomsClearedDate == nil {
		v.Add("receipt.customsClearedDate", "customs clearance date is required")
	}
	warehouse := in.WarehouseCode
	if warehouse == "" && po.WarehouseCode != nil {
		warehouse = *po.WarehouseCode
	}
	if warehouse == "" {
		v.Add("receipt.warehouseCode", "a warehouse must be selected")
	}
	receiveType := in.ReceiveType
	if receiveType == "" && po.ReceiveType != nil {
		receiveType = *po.ReceiveType
	}
	if receiveType == "" {
		v.Add("receipt.receiveType", "a receive type is required")
	}

	byLine := map[int]ReceiptLineInput{}
	for _, rl := range in.Lines {
		byLine[rl.LineID] = rl
	}
	for _, l := range po.ActiveLines() {
		prefix := fmt.Sprintf("lines.%d.", l.ID)
		if l.storageCartonsPerPallet() <= 0 {
			v.Add(prefix+"cartonsPerPallet", "storage cartons-per-pallet is not resolvable")
		}
		rl, ok := byLine[l.ID]
		if !ok {
			v.Add(prefix+"receivedCartons", "a received carton count is required for every active line")
			continue
		}
		if rl.ReceivedCartons < 0 {
			v.Add(prefix+"receivedCartons", "received carton count must not be negative")
			continue
		}
		if rl.ReceivedCartons != l.CartonQty && strings.TrimSpace(rl.DiscrepancyNotes) == "" {
			v.Add(prefix+"discrepancyNotes",
				fmt.Sprintf("discrepancy notes are required: received %d of %d ordered cartons", rl.ReceivedCartons, l.CartonQty))
		}
	}
	return v
}
