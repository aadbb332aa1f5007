package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jdsanchez93/costco-receipt-parser/internal/ocr"
	"github.com/jdsanchez93/costco-receipt-parser/internal/parse"
)

// IDGenerator generates receipt IDs.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Content types accepted for receipt uploads, and the extension their
// objects are stored under.
var contentTypeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"image/heif":      ".heif",
	"application/pdf": ".pdf",
}

// Service runs the receipt pipeline and the membership/share operations
// around it.
type Service struct {
	db          DB
	engine      ocr.Engine
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service with default ID generator and time source.
func NewService(db DB, engine ocr.Engine, storage Storage) *Service {
	return NewServiceWithDeps(db, engine, storage, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(db DB, engine ocr.Engine, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		engine:      engine,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// ProcessedReceipt is the result of one pipeline run.
type ProcessedReceipt struct {
	ReceiptID string         `json:"receipt_id"`
	ObjectKey string         `json:"object_key"`
	Receipt   *parse.Receipt `json:"receipt"`
}

// ProcessReceipt stores the uploaded image, runs OCR and both parse passes,
// and persists the structured result plus a pending entry for the uploader.
func (s *Service) ProcessReceipt(ctx context.Context, userID string, data []byte, contentType string) (*ProcessedReceipt, error) {
	ext, ok := contentTypeExtensions[contentType]
	if !ok {
		return nil, fmt.Errorf("unsupported content type: %q", contentType)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()
	key := ObjectKey(userID, id, ext)

	if _, err := s.storage.Save(key, data); err != nil {
		return nil, fmt.Errorf("saving image: %w", err)
	}

	prepared, err := ocr.PrepareImage(data, contentType)
	if err != nil {
		s.removeObject(key)
		return nil, fmt.Errorf("preparing image: %w", err)
	}

	doc, err := s.engine.DetectDocumentText(ctx, prepared)
	if err != nil {
		slog.Error("Text detection failed", "receipt_id", id, "error", err)
		s.removeObject(key)
		return nil, fmt.Errorf("detecting text: %w", err)
	}

	lines, err := ocr.ExtractLines(doc)
	if err != nil {
		// Contract violations are the engine's fault, not the image's;
		// keep the stored object for inspection.
		return nil, err
	}

	receipt := parse.Parse(lines)

	if err := s.db.SaveItems(id, itemRecords(id, receipt.Items, now)); err != nil {
		return nil, fmt.Errorf("saving items: %w", err)
	}
	if err := s.db.SaveGeometry(geometryRecords(id, receipt.SpecialFields, now)); err != nil {
		return nil, fmt.Errorf("saving geometry: %w", err)
	}
	if err := s.db.SaveUserReceipt(&UserReceiptRecord{
		EntityType: entityUserReceipt,
		UserID:     userID,
		ReceiptID:  id,
		ObjectKey:  key,
		Status:     StatusPending,
		CreatedAt:  now,
	}); err != nil {
		return nil, fmt.Errorf("saving pending receipt: %w", err)
	}

	slog.Info("Processed receipt",
		"receipt_id", id,
		"user_id", userID,
		"lines", len(lines),
		"items", len(receipt.Items),
		"fields", len(receipt.SpecialFields),
	)

	return &ProcessedReceipt{ReceiptID: id, ObjectKey: key, Receipt: receipt}, nil
}

// removeObject deletes a stored object after a pipeline failure, logging
// when the orphan could not be removed.
func (s *Service) removeObject(key string) {
	if err := s.storage.Delete(key); err != nil {
		slog.Error("Failed to remove stored object", "key", key, "error", err)
	}
}

// GetItems returns the stored items for a receipt.
func (s *Service) GetItems(receiptID string) ([]ItemRecord, error) {
	items, err := s.db.GetItems(receiptID)
	if err != nil {
		return nil, fmt.Errorf("getting items: %w", err)
	}
	return items, nil
}

// GetGeometry returns the stored summary-field geometry for a receipt.
func (s *Service) GetGeometry(receiptID string) (map[string]FieldGeometry, error) {
	fields, err := s.db.GetGeometry(receiptID)
	if err != nil {
		return nil, fmt.Errorf("getting geometry: %w", err)
	}
	return fields, nil
}

// ListUserReceipts returns the receipts indexed for a user.
func (s *Service) ListUserReceipts(userID string) ([]UserReceiptRecord, error) {
	records, err := s.db.GetUserReceipts(userID)
	if err != nil {
		return nil, fmt.Errorf("listing user receipts: %w", err)
	}
	return records, nil
}

// GetReceiptFile returns the stored image for a receipt object key.
func (s *Service) GetReceiptFile(key string) ([]byte, error) {
	data, err := s.storage.Get(key)
	if err != nil {
		return nil, fmt.Errorf("getting receipt file: %w", err)
	}
	return data, nil
}

// itemRecords converts parsed items into storage records.
func itemRecords(receiptID string, items []parse.Item, now time.Time) []ItemRecord {
	records := make([]ItemRecord, 0, len(items))
	for _, item := range items {
		records = append(records, ItemRecord{
			EntityType:    entityReceiptItem,
			ReceiptID:     receiptID,
			ItemID:        item.ItemID,
			ItemNumber:    item.ItemNumber,
			ItemName:      item.Name,
			Price:         item.Price,
			Discount:      item.Discount,
			TaxCode:       item.TaxCode,
			AssignedUsers: []string{},
			CreatedAt:     now,
		})
	}
	return records
}

// geometryRecords flattens detected fields into label and value records.
func geometryRecords(receiptID string, fields map[parse.FieldName]parse.SpecialField, now time.Time) []GeometryRecord {
	records := make([]GeometryRecord, 0, 2*len(fields))
	for _, field := range fields {
		records = append(records,
			GeometryRecord{
				EntityType:  entityReceiptGeometry,
				ReceiptID:   receiptID,
				FieldName:   string(field.FieldName),
				FieldType:   "label",
				Text:        field.LabelText,
				Confidence:  field.Confidence,
				BoundingBox: field.LabelGeometry.BoundingBox,
				Polygon:     field.LabelGeometry.Polygon,
				CreatedAt:   now,
			},
			GeometryRecord{
				EntityType:  entityReceiptGeometry,
				ReceiptID:   receiptID,
				FieldName:   string(field.FieldName),
				FieldType:   "value",
				Text:        field.ValueText,
				Confidence:  field.Confidence,
				BoundingBox: field.ValueGeometry.BoundingBox,
				Polygon:     field.ValueGeometry.Polygon,
				CreatedAt:   now,
			},
		)
	}
	return records
}
