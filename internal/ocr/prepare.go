package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// PrepareImage normalizes an uploaded receipt into a PNG the engines can
// consume. PDFs are rendered (first page), HEIC photos are decoded with the
// pure Go decoder, and everything gets a contrast/sharpen pass so faded
// thermal-paper text survives OCR.
func PrepareImage(data []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	img, err := decodeUpload(data, mimeType)
	if err != nil {
		return nil, err
	}

	enhanced := enhanceForText(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, enhanced); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeUpload(data []byte, mimeType string) (image.Image, error) {
	if mimeType == "application/pdf" {
		return renderPDFPage(data)
	}
	if isHEICData(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// renderPDFPage rasterizes the first page. Receipts are single page.
func renderPDFPage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// enhanceForText applies a grayscale/contrast/sharpen pass tuned for printed
// receipt text.
func enhanceForText(src image.Image) image.Image {
	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, 20)
	return imaging.Sharpen(img, 1.0)
}

// isHEICData checks for the ftyp box brands iPhone photos carry.
func isHEICData(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
