package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
	"github.com/gofrs/uuid"
)

// AzureRead implements Engine against the Azure Computer Vision Read API.
// Read is asynchronous: a submitted image yields an operation that is polled
// until it settles.
type AzureRead struct {
	client       *computervision.BaseClient
	pollInterval time.Duration
}

// NewAzureRead creates an Azure Read engine.
func NewAzureRead(endpoint, apiKey string) (*AzureRead, error) {
	if endpoint == "" || apiKey == "" {
		return nil, fmt.Errorf("azure endpoint and api key are required")
	}
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)
	return &AzureRead{
		client:       &client,
		pollInterval: time.Second,
	}, nil
}

// DetectDocumentText submits the image, polls the read operation, and
// converts the result into the block document shape.
func (a *AzureRead) DetectDocumentText(ctx context.Context, imageData []byte) (*Document, error) {
	reader := io.NopCloser(bytes.NewReader(imageData))
	submitted, err := a.client.ReadInStream(ctx, reader, computervision.En)
	if err != nil {
		return nil, fmt.Errorf("submitting read operation: %w", err)
	}

	operationID, err := readOperationID(submitted.Header.Get("Operation-Location"))
	if err != nil {
		return nil, err
	}

	for {
		result, err := a.client.GetReadResult(ctx, operationID)
		if err != nil {
			return nil, fmt.Errorf("polling read operation: %w", err)
		}
		switch result.Status {
		case computervision.Succeeded:
			return readDocument(result), nil
		case computervision.Failed:
			return nil, fmt.Errorf("read operation failed")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}
}

// Close is a no-op; the underlying client holds no connections.
func (a *AzureRead) Close() error {
	return nil
}

// readOperationID pulls the operation UUID off the Operation-Location header.
func readOperationID(location string) (uuid.UUID, error) {
	if location == "" {
		return uuid.Nil, fmt.Errorf("read operation returned no Operation-Location header")
	}
	idx := strings.LastIndex(location, "/")
	id, err := uuid.FromString(location[idx+1:])
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing operation id from %q: %w", location, err)
	}
	return id, nil
}

// readDocument flattens the per-page read results into one ordered block
// document, normalizing pixel quads into fractional geometry and word
// confidences (0-1) onto the 0-100 scale.
func readDocument(result computervision.ReadOperationResult) *Document {
	doc := &Document{}
	if result.AnalyzeResult == nil || result.AnalyzeResult.ReadResults == nil {
		return doc
	}

	for _, page := range *result.AnalyzeResult.ReadResults {
		if page.Lines == nil || page.Width == nil || page.Height == nil {
			continue
		}
		width := *page.Width
		height := *page.Height
		if width == 0 || height == 0 {
			continue
		}
		for _, line := range *page.Lines {
			if line.Text == nil || line.BoundingBox == nil {
				continue
			}
			text := *line.Text
			confidence := lineConfidence(line)
			geometry := quadGeometry(*line.BoundingBox, width, height)
			doc.Blocks = append(doc.Blocks, Block{
				BlockType:  BlockTypeLine,
				Text:       &text,
				Confidence: &confidence,
				Geometry:   &geometry,
			})
		}
	}
	return doc
}

// lineConfidence is the minimum word confidence on the line, rescaled to
// 0-100.
func lineConfidence(line computervision.Line) float64 {
	confidence := 100.0
	if line.Words == nil {
		return confidence
	}
	for _, word := range *line.Words {
		if word.Confidence == nil {
			continue
		}
		if scaled := *word.Confidence * 100; scaled < confidence {
			confidence = scaled
		}
	}
	return confidence
}

// quadGeometry converts an eight-value pixel quad (x1,y1 .. x4,y4) into
// fractional geometry.
func quadGeometry(quad []float64, width, height float64) Geometry {
	geometry := Geometry{}
	if len(quad) < 8 {
		return geometry
	}

	minX, minY := quad[0], quad[1]
	maxX, maxY := quad[0], quad[1]
	for i := 0; i+1 < len(quad); i += 2 {
		x, y := quad[i], quad[i+1]
		geometry.Polygon = append(geometry.Polygon, Point{X: x / width, Y: y / height})
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	geometry.BoundingBox = BoundingBox{
		Width:  (maxX - minX) / width,
		Height: (maxY - minY) / height,
		Left:   minX / width,
		Top:    minY / height,
	}
	return geometry
}
