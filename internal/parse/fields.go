package parse

import (
	"math"
	"regexp"
	"strings"

	"github.com/jdsanchez93/costco-receipt-parser/internal/ocr"
)

// Unsigned amount with exactly two decimal digits.
var fieldValueRe = regexp.MustCompile(`^\d+\.\d{2}$`)

// classifyFieldLabel runs the label rule chain on a normalized (trimmed,
// uppercased) line. First match wins and the order is load-bearing: the
// exact/prefix "TOTAL" rule precedes the TAX rule, so "TOTAL TAX" reads as
// total, while "SUBTOTAL" never reads as total because the prefix rule does
// not do substring matching.
func classifyFieldLabel(text string) (FieldName, bool) {
	switch {
	case strings.Contains(text, "SUBTOTAL"):
		return FieldSubtotal, true
	case text == "TOTAL" || strings.HasPrefix(text, "TOTAL "):
		return FieldTotal, true
	case strings.Contains(text, "TAX") && !strings.Contains(text, "TOTAL"):
		return FieldTax, true
	}
	return "", false
}

// DetectSpecialFields makes a single forward pass over the line sequence,
// committing a label at index i only when line i+1 is an unsigned two
// decimal amount. A label with no valid value line is skipped without retry.
// When a field is detected more than once the later detection overwrites the
// earlier one.
func DetectSpecialFields(lines []ocr.Line) map[FieldName]SpecialField {
	fields := make(map[FieldName]SpecialField)

	for i := 0; i < len(lines)-1; i++ {
		normalized := strings.ToUpper(strings.TrimSpace(lines[i].Text))
		name, ok := classifyFieldLabel(normalized)
		if !ok {
			continue
		}
		value := strings.TrimSpace(lines[i+1].Text)
		if !fieldValueRe.MatchString(value) {
			continue
		}
		fields[name] = SpecialField{
			FieldName:     name,
			LabelText:     strings.TrimSpace(lines[i].Text),
			LabelGeometry: lines[i].Geometry,
			ValueText:     value,
			ValueGeometry: lines[i+1].Geometry,
			Confidence:    math.Min(lines[i].Confidence, lines[i+1].Confidence),
		}
	}
	return fields
}
