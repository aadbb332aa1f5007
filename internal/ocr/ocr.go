package ocr

import "context"

// BlockTypeLine is the only block type the line extractor consumes.
const BlockTypeLine = "LINE"

// Point is one vertex of a detection polygon, as fractions of the image
// dimensions.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox frames a detected block, as fractions of the image dimensions.
type BoundingBox struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
}

// Geometry carries the position of a detected block. The parser passes it
// through untouched.
type Geometry struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Polygon     []Point     `json:"polygon"`
}

// Block is one raw detection from an OCR engine. Text, Confidence and
// Geometry are pointers so the extractor can tell a missing attribute from a
// zero value.
type Block struct {
	BlockType  string    `json:"block_type"`
	Text       *string   `json:"text,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Geometry   *Geometry `json:"geometry,omitempty"`
}

// Document is the full result of one OCR engine invocation. Block order is
// the engine's emission order and is significant.
type Document struct {
	Blocks []Block `json:"blocks"`
}

// Line is one detected text line. Confidence is on the 0-100 scale.
type Line struct {
	Text       string   `json:"text"`
	Geometry   Geometry `json:"geometry"`
	Confidence float64  `json:"confidence"`
}

// Engine runs text detection over a prepared (PNG) receipt image.
type Engine interface {
	// DetectDocumentText returns the raw block document for one image.
	DetectDocumentText(ctx context.Context, imageData []byte) (*Document, error)
	// Close releases any engine resources.
	Close() error
}
