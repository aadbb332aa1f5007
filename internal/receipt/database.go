package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "records"

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when a create would overwrite an existing
// record.
var ErrAlreadyExists = errors.New("record already exists")

// DB defines the persistence operations the service needs. All records live
// in one keyspace; see keys.go for the layout.
type DB interface {
	// SaveItems writes parsed line items for a receipt. Fails if any item
	// key already exists.
	SaveItems(receiptID string, items []ItemRecord) error

	// GetItems returns all stored items for a receipt.
	GetItems(receiptID string) ([]ItemRecord, error)

	// SaveGeometry writes summary-field geometry records for a receipt.
	SaveGeometry(records []GeometryRecord) error

	// GetGeometry returns stored geometry grouped by field name.
	GetGeometry(receiptID string) (map[string]FieldGeometry, error)

	// AddMember writes a membership record plus its user-index entry.
	AddMember(member *MemberRecord) error

	// GetMembers returns all members of a receipt.
	GetMembers(receiptID string) ([]MemberRecord, error)

	// DeleteMember removes a membership and its user-index entry.
	DeleteMember(receiptID, userID string) error

	// UpdateMemberDetails updates display name and/or email on an existing
	// membership. Empty arguments leave the field unchanged.
	UpdateMemberDetails(receiptID, userID, displayName, email string, now time.Time) (*MemberRecord, error)

	// SaveUserReceipt writes one user-to-receipt index entry.
	SaveUserReceipt(record *UserReceiptRecord) error

	// GetUserReceipts returns the receipts indexed for a user.
	GetUserReceipts(userID string) ([]UserReceiptRecord, error)

	// SaveShare writes a share record and its receipt-side index entry.
	SaveShare(share *ShareRecord) error

	// GetShareByToken returns the share stored under a token.
	GetShareByToken(token string) (*ShareRecord, error)

	// GetActiveShares returns the active shares of a receipt.
	GetActiveShares(receiptID string) ([]ShareRecord, error)

	// IncrementShareUsage bumps the usage counter on an active share.
	IncrementShareUsage(token, receiptID string, now time.Time) (*ShareRecord, error)

	// DeactivateShare marks a share inactive.
	DeactivateShare(token, receiptID string, now time.Time) error

	// Close closes the database.
	Close() error
}

// BoltStore implements DB on a single bbolt bucket.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the store at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// putNew writes a record only when the key is absent.
func putNew(bucket *bbolt.Bucket, key []byte, record any) error {
	if bucket.Get(key) != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}
	return put(bucket, key, record)
}

func put(bucket *bbolt.Bucket, key []byte, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	return bucket.Put(key, data)
}

// scanPrefix decodes every record stored under a key prefix, in key order.
func scanPrefix[T any](bucket *bbolt.Bucket, prefix []byte) ([]T, error) {
	records := make([]T, 0)
	c := bucket.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var record T
		if err := json.Unmarshal(v, &record); err != nil {
			return nil, fmt.Errorf("unmarshaling record %s: %w", k, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// SaveItems writes parsed line items for a receipt.
func (b *BoltStore) SaveItems(receiptID string, items []ItemRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		for i := range items {
			key := itemSchema.Key(receiptID, items[i].ItemID)
			if err := putNew(bucket, key, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetItems returns all stored items for a receipt.
func (b *BoltStore) GetItems(receiptID string) ([]ItemRecord, error) {
	var items []ItemRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		items, err = scanPrefix[ItemRecord](tx.Bucket([]byte(bucketName)), itemSchema.Prefix(receiptID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SaveGeometry writes summary-field geometry records.
func (b *BoltStore) SaveGeometry(records []GeometryRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		for i := range records {
			r := &records[i]
			key := geometrySchema.Key(r.ReceiptID, r.FieldName, r.FieldType)
			if err := putNew(bucket, key, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetGeometry returns stored geometry grouped by field name.
func (b *BoltStore) GetGeometry(receiptID string) (map[string]FieldGeometry, error) {
	fields := make(map[string]FieldGeometry)
	err := b.db.View(func(tx *bbolt.Tx) error {
		records, err := scanPrefix[GeometryRecord](tx.Bucket([]byte(bucketName)), geometrySchema.Prefix(receiptID))
		if err != nil {
			return err
		}
		for i := range records {
			r := records[i]
			entry := fields[r.FieldName]
			switch r.FieldType {
			case "label":
				entry.Label = &r
			case "value":
				entry.Value = &r
			}
			fields[r.FieldName] = entry
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// AddMember writes a membership record plus its user-index entry.
func (b *BoltStore) AddMember(member *MemberRecord) error {
	index := &UserReceiptRecord{
		EntityType: entityUserReceipt,
		UserID:     member.UserID,
		ReceiptID:  member.ReceiptID,
		CreatedAt:  member.AddedAt,
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if err := putNew(bucket, memberSchema.Key(member.ReceiptID, member.UserID), member); err != nil {
			return err
		}
		return put(bucket, userReceiptSchema.Key(member.UserID, member.ReceiptID), index)
	})
}

// GetMembers returns all members of a receipt.
func (b *BoltStore) GetMembers(receiptID string) ([]MemberRecord, error) {
	var members []MemberRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		members, err = scanPrefix[MemberRecord](tx.Bucket([]byte(bucketName)), memberSchema.Prefix(receiptID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// DeleteMember removes a membership and its user-index entry.
func (b *BoltStore) DeleteMember(receiptID, userID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if err := bucket.Delete(memberSchema.Key(receiptID, userID)); err != nil {
			return err
		}
		return bucket.Delete(userReceiptSchema.Key(userID, receiptID))
	})
}

// UpdateMemberDetails updates display name and/or email on an existing
// membership.
func (b *BoltStore) UpdateMemberDetails(receiptID, userID, displayName, email string, now time.Time) (*MemberRecord, error) {
	var member MemberRecord
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		key := memberSchema.Key(receiptID, userID)
		data := bucket.Get(key)
		if data == nil {
			return fmt.Errorf("%w: member %s on receipt %s", ErrNotFound, userID, receiptID)
		}
		if err := json.Unmarshal(data, &member); err != nil {
			return fmt.Errorf("unmarshaling member: %w", err)
		}
		if displayName != "" {
			member.DisplayName = displayName
		}
		if email != "" {
			member.Email = email
		}
		member.UpdatedAt = &now
		return put(bucket, key, &member)
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// SaveUserReceipt writes one user-to-receipt index entry.
func (b *BoltStore) SaveUserReceipt(record *UserReceiptRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket([]byte(bucketName)), userReceiptSchema.Key(record.UserID, record.ReceiptID), record)
	})
}

// GetUserReceipts returns the receipts indexed for a user.
func (b *BoltStore) GetUserReceipts(userID string) ([]UserReceiptRecord, error) {
	var records []UserReceiptRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		records, err = scanPrefix[UserReceiptRecord](tx.Bucket([]byte(bucketName)), userReceiptSchema.Prefix(userID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SaveShare writes a share under its token key and under the receipt-side
// index key, so it can be found either way.
func (b *BoltStore) SaveShare(share *ShareRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if err := putNew(bucket, shareSchema.Key(share.ShareToken, share.ReceiptID), share); err != nil {
			return err
		}
		return put(bucket, shareIndexSchema.Key(share.ReceiptID, share.ShareToken), share)
	})
}

// GetShareByToken returns the share stored under a token.
func (b *BoltStore) GetShareByToken(token string) (*ShareRecord, error) {
	var share *ShareRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		shares, err := scanPrefix[ShareRecord](tx.Bucket([]byte(bucketName)), shareSchema.Prefix(token))
		if err != nil {
			return err
		}
		if len(shares) == 0 {
			return fmt.Errorf("%w: share %s", ErrNotFound, token)
		}
		share = &shares[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return share, nil
}

// GetActiveShares returns the active shares of a receipt.
func (b *BoltStore) GetActiveShares(receiptID string) ([]ShareRecord, error) {
	active := make([]ShareRecord, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		shares, err := scanPrefix[ShareRecord](tx.Bucket([]byte(bucketName)), shareIndexSchema.Prefix(receiptID))
		if err != nil {
			return err
		}
		for _, share := range shares {
			if share.IsActive {
				active = append(active, share)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return active, nil
}

// IncrementShareUsage bumps the usage counter on an active share.
func (b *BoltStore) IncrementShareUsage(token, receiptID string, now time.Time) (*ShareRecord, error) {
	var share ShareRecord
	err := b.mutateShare(token, receiptID, func(s *ShareRecord) error {
		if !s.IsActive {
			return fmt.Errorf("%w: share %s", ErrNotFound, token)
		}
		s.CurrentUses++
		s.UpdatedAt = &now
		share = *s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// DeactivateShare marks a share inactive.
func (b *BoltStore) DeactivateShare(token, receiptID string, now time.Time) error {
	return b.mutateShare(token, receiptID, func(s *ShareRecord) error {
		s.IsActive = false
		s.UpdatedAt = &now
		return nil
	})
}

// mutateShare applies fn to a share inside one transaction, rewriting both
// the token-keyed record and the receipt-side index entry.
func (b *BoltStore) mutateShare(token, receiptID string, fn func(*ShareRecord) error) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		key := shareSchema.Key(token, receiptID)
		data := bucket.Get(key)
		if data == nil {
			return fmt.Errorf("%w: share %s", ErrNotFound, token)
		}
		var share ShareRecord
		if err := json.Unmarshal(data, &share); err != nil {
			return fmt.Errorf("unmarshaling share: %w", err)
		}
		if err := fn(&share); err != nil {
			return err
		}
		if err := put(bucket, key, &share); err != nil {
			return err
		}
		return put(bucket, shareIndexSchema.Key(receiptID, token), &share)
	})
}

// Close closes the database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}
