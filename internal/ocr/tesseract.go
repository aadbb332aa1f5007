package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements Engine against a local Tesseract installation.
type Tesseract struct {
	client *gosseract.Client
}

// NewTesseract creates a Tesseract engine for the given language ("eng" when
// empty).
func NewTesseract(language string) (*Tesseract, error) {
	if language == "" {
		language = "eng"
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting tesseract language: %w", err)
	}
	return &Tesseract{client: client}, nil
}

// DetectDocumentText runs line-level recognition and converts the pixel
// boxes Tesseract reports into fractional geometry.
func (t *Tesseract) DetectDocumentText(ctx context.Context, imageData []byte) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("reading image dimensions: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("image has zero dimensions")
	}

	if err := t.client.SetImageFromBytes(imageData); err != nil {
		return nil, fmt.Errorf("setting tesseract image: %w", err)
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("running tesseract: %w", err)
	}

	doc := &Document{Blocks: make([]Block, 0, len(boxes))}
	for _, box := range boxes {
		text := strings.TrimRight(box.Word, "\n")
		confidence := box.Confidence // already 0-100
		geometry := pixelGeometry(box.Box, cfg.Width, cfg.Height)
		doc.Blocks = append(doc.Blocks, Block{
			BlockType:  BlockTypeLine,
			Text:       &text,
			Confidence: &confidence,
			Geometry:   &geometry,
		})
	}
	return doc, nil
}

// Close releases the Tesseract client.
func (t *Tesseract) Close() error {
	return t.client.Close()
}

// pixelGeometry converts a pixel rectangle to fractional geometry with a
// clockwise four-point polygon.
func pixelGeometry(r image.Rectangle, width, height int) Geometry {
	w := float64(width)
	h := float64(height)
	left := float64(r.Min.X) / w
	top := float64(r.Min.Y) / h
	boxW := float64(r.Dx()) / w
	boxH := float64(r.Dy()) / h
	return Geometry{
		BoundingBox: BoundingBox{Width: boxW, Height: boxH, Left: left, Top: top},
		Polygon: []Point{
			{X: left, Y: top},
			{X: left + boxW, Y: top},
			{X: left + boxW, Y: top + boxH},
			{X: left, Y: top + boxH},
		},
	}
}
