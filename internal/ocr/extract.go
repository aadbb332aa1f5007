package ocr

import "fmt"

// ContractError reports OCR output that violates the input contract: a
// missing document, or a LINE block without text, confidence or geometry.
// Unparseable receipt content is not a contract violation; the parser
// handles that by skipping lines.
type ContractError struct {
	Index  int // block index, -1 when the document itself is invalid
	Reason string
}

func (e *ContractError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("ocr input contract violation: %s", e.Reason)
	}
	return fmt.Sprintf("ocr input contract violation: block %d: %s", e.Index, e.Reason)
}

// ExtractLines reshapes a raw OCR document into the ordered line sequence
// the parser consumes. Only LINE blocks are kept, in the exact order the
// engine emitted them.
func ExtractLines(doc *Document) ([]Line, error) {
	if doc == nil {
		return nil, &ContractError{Index: -1, Reason: "document is nil"}
	}

	lines := make([]Line, 0, len(doc.Blocks))
	for i, block := range doc.Blocks {
		if block.BlockType != BlockTypeLine {
			continue
		}
		switch {
		case block.Text == nil:
			return nil, &ContractError{Index: i, Reason: "line block has no text"}
		case block.Confidence == nil:
			return nil, &ContractError{Index: i, Reason: "line block has no confidence"}
		case block.Geometry == nil:
			return nil, &ContractError{Index: i, Reason: "line block has no geometry"}
		}
		lines = append(lines, Line{
			Text:       *block.Text,
			Geometry:   *block.Geometry,
			Confidence: *block.Confidence,
		})
	}
	return lines, nil
}
