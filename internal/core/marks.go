package core

import (
	"fmt"
	"strings"
	"text/template"
)

// ShippingMarks is the rendered carton label set for an order: one label per
// active line, covering the line's full carton range.
type ShippingMarks struct {
	OrderRef string   `json:"order_ref"`
	Labels   []string `json:"labels"`
}

// markTemplate is the carton label layout. One label per line; the carton
// range reads "1 of N .. N of N" so warehouse staff can spot missing cartons.
var markTemplate = template.Must(template.New("mark").Parse(
	`{{.OrderRef}}
SKU: {{.SKUCode}}{{if .Description}}
{{.Description}}{{end}}
MADE IN {{.CountryOfOrigin}}
HS CODE: {{.CommodityCode}}
QTY: {{.UnitsPerCarton}} PCS/CTN
CARTON {{.RangeStart}}-{{.RangeEnd}} OF {{.RangeTotal}}{{if .GrossWeightKg}}
G.W.: {{.GrossWeightKg}} KG{{end}}`))

type markData struct {
	OrderRef        string
	SKUCode         string
	Description     string
	CountryOfOrigin string
	CommodityCode   string
	UnitsPerCarton  int64
	RangeStart      int64
	RangeEnd        int64
	RangeTotal      int64
	GrossWeightKg   string
}

// renderShippingMarks renders the label set. Callers must have passed the
// trade compliance gate first: commodity codes are rendered as-is and the
// country falls back to the supplier's, exactly as the gate resolves it.
func renderShippingMarks(po *PurchaseOrder) (*ShippingMarks, error) {
	marks := &ShippingMarks{OrderRef: PublicRef(po.OrderRef)}
	for _, l := range po.ActiveLines() {
		start := int64(1)
		if l.RangeStart != nil {
			start = *l.RangeStart
		}
		end := start + l.availableCartons() - 1
		total := l.availableCartons()
		if l.RangeTotal != nil {
			total = *l.RangeTotal
		}
		data := markData{
			OrderRef:       marks.OrderRef,
			SKUCode:        l.SKUCode,
			UnitsPerCarton: l.UnitsPerCarton,
			RangeStart:     start,
			RangeEnd:       end,
			RangeTotal:     total,
		}
		if l.MaterialDescription != nil {
			data.Description = *l.MaterialDescription
		}
		// Same derivation the trade compliance gate accepts: line country
		// first, supplier country when the line carries none.
		country := po.SupplierCountry
		if l.CountryOfOrigin != nil && *l.CountryOfOrigin != "" {
			country = *l.CountryOfOrigin
		}
		data.CountryOfOrigin = strings.ToUpper(country)
		if l.CommodityCode != nil {
			data.CommodityCode = *l.CommodityCode
		}
		if l.GrossWeightKg != nil {
			data.GrossWeightKg = l.GrossWeightKg.StringFixed(2)
		}
		var sb strings.Builder
		if err := markTemplate.Execute(&sb, data); err != nil {
			return nil, fmt.Errorf("render shipping mark for %s: %w", l.SKUCode, err)
		}
		marks.Labels = append(marks.Labels, sb.String())
	}
	if len(marks.Labels) == 0 {
		return nil, validationErrorf("order has no active lines to mark")
	}
	return marks, nil
}
