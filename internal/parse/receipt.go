package parse

import "github.com/jdsanchez93/costco-receipt-parser/internal/ocr"

// FieldName identifies one of the labeled summary fields on a receipt.
type FieldName string

const (
	FieldSubtotal FieldName = "subtotal"
	FieldTax      FieldName = "tax"
	FieldTotal    FieldName = "total"
)

// Item is one purchased line item. Discount starts at zero and only grows as
// discount lines are associated with the item. ItemID is assigned after the
// parse pass, purely from emission order.
type Item struct {
	ItemNumber string  `json:"item_number"`
	ItemID     string  `json:"item_id"`
	Name       string  `json:"item_name"`
	Price      float64 `json:"price"`
	Discount   float64 `json:"discount"`
	TaxCode    string  `json:"tax_code,omitempty"`
}

// SpecialField is a summary label paired with its value line, keeping the
// geometry of both so a UI can highlight them on the source image.
// Confidence is the minimum of the two lines' confidences.
type SpecialField struct {
	FieldName     FieldName    `json:"field_name"`
	LabelText     string       `json:"label_text"`
	LabelGeometry ocr.Geometry `json:"label_geometry"`
	ValueText     string       `json:"value_text"`
	ValueGeometry ocr.Geometry `json:"value_geometry"`
	Confidence    float64      `json:"confidence"`
}

// Receipt is the assembled parse output. No referential invariant holds
// between the item list and the field mapping.
type Receipt struct {
	Items         []Item                     `json:"items"`
	SpecialFields map[FieldName]SpecialField `json:"special_fields"`
}

// Assemble bundles the two pass outputs. It performs no cross-validation;
// reconciling the subtotal against summed item totals is deliberately not
// done here.
func Assemble(items []Item, fields map[FieldName]SpecialField) *Receipt {
	return &Receipt{Items: items, SpecialFields: fields}
}

// Parse runs both passes over the same line sequence and assembles the
// result.
func Parse(lines []ocr.Line) *Receipt {
	return Assemble(ParseItems(lines), DetectSpecialFields(lines))
}
