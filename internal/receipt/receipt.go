package receipt

import (
	"time"

	"github.com/jdsanchez93/costco-receipt-parser/internal/ocr"
)

// Entity type tags stored on every record.
const (
	entityReceiptItem     = "RECEIPT_ITEM"
	entityReceiptMember   = "RECEIPT_MEMBER"
	entityReceiptShare    = "RECEIPT_SHARE"
	entityReceiptGeometry = "RECEIPT_GEOMETRY"
	entityUserReceipt     = "USER_RECEIPT"
)

// Member user types.
const (
	UserTypeAuthenticated = "authenticated"
	UserTypePlaceholder   = "placeholder"
)

// Member roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// StatusPending marks a receipt that has been parsed but not yet reviewed by
// its owner.
const StatusPending = "pending"

// ItemRecord is one stored receipt line item.
type ItemRecord struct {
	EntityType    string    `json:"entity_type"`
	ReceiptID     string    `json:"receipt_id"`
	ItemID        string    `json:"item_id"`
	ItemNumber    string    `json:"item_number"`
	ItemName      string    `json:"item_name"`
	Price         float64   `json:"price"`
	Discount      float64   `json:"discount"`
	TaxCode       string    `json:"tax_code,omitempty"`
	AssignedUsers []string  `json:"assigned_users"`
	CreatedAt     time.Time `json:"created_at"`
}

// MemberRecord is one user's membership on a receipt. Placeholder members
// have no email and carry a generated user ID until claimed.
type MemberRecord struct {
	EntityType  string     `json:"entity_type"`
	ReceiptID   string     `json:"receipt_id"`
	UserID      string     `json:"user_id"`
	UserType    string     `json:"user_type"`
	DisplayName string     `json:"display_name"`
	Email       string     `json:"email,omitempty"`
	Role        string     `json:"role,omitempty"`
	AddedBy     string     `json:"added_by"`
	AddedAt     time.Time  `json:"added_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	ClaimedFrom string     `json:"claimed_from_placeholder,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
}

// ShareRecord is one share token granting access to a receipt.
type ShareRecord struct {
	EntityType  string     `json:"entity_type"`
	ReceiptID   string     `json:"receipt_id"`
	ShareToken  string     `json:"share_token"`
	OwnerUserID string     `json:"owner_user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	IsActive    bool       `json:"is_active"`
	CurrentUses int        `json:"current_uses"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// GeometryRecord stores one side (label or value) of a detected summary
// field, for highlighting on the source image.
type GeometryRecord struct {
	EntityType  string          `json:"entity_type"`
	ReceiptID   string          `json:"receipt_id"`
	FieldName   string          `json:"field_name"`
	FieldType   string          `json:"field_type"` // "label" or "value"
	Text        string          `json:"text"`
	Confidence  float64         `json:"confidence"`
	BoundingBox ocr.BoundingBox `json:"bounding_box"`
	Polygon     []ocr.Point     `json:"polygon"`
	CreatedAt   time.Time       `json:"created_at"`
}

// FieldGeometry pairs the stored label and value geometry of one field.
type FieldGeometry struct {
	Label *GeometryRecord `json:"label,omitempty"`
	Value *GeometryRecord `json:"value,omitempty"`
}

// UserReceiptRecord is one entry in the user-to-receipt index.
type UserReceiptRecord struct {
	EntityType string    `json:"entity_type"`
	UserID     string    `json:"user_id"`
	ReceiptID  string    `json:"receipt_id"`
	ObjectKey  string    `json:"object_key,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
