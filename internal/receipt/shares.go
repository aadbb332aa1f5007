package receipt

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const defaultShareLifetime = 30 * 24 * time.Hour

// newShareToken returns a URL-safe random token.
func newShareToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// CreateShare issues a share token for a receipt. A zero lifetime uses the
// 30 day default.
func (s *Service) CreateShare(receiptID, ownerUserID string, lifetime time.Duration) (*ShareRecord, error) {
	if lifetime <= 0 {
		lifetime = defaultShareLifetime
	}
	token, err := newShareToken()
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	share := &ShareRecord{
		EntityType:  entityReceiptShare,
		ReceiptID:   receiptID,
		ShareToken:  token,
		OwnerUserID: ownerUserID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(lifetime),
		IsActive:    true,
	}
	if err := s.db.SaveShare(share); err != nil {
		return nil, fmt.Errorf("saving share: %w", err)
	}
	return share, nil
}

// ResolveShare looks up a share token and records the use. Inactive or
// expired shares resolve to ErrNotFound, same as unknown tokens.
func (s *Service) ResolveShare(token string) (*ShareRecord, error) {
	share, err := s.db.GetShareByToken(token)
	if err != nil {
		return nil, err
	}
	now := s.timeSource.Now()
	if !share.IsActive || now.After(share.ExpiresAt) {
		return nil, fmt.Errorf("%w: share %s", ErrNotFound, token)
	}
	updated, err := s.db.IncrementShareUsage(share.ShareToken, share.ReceiptID, now)
	if err != nil {
		return nil, fmt.Errorf("recording share use: %w", err)
	}
	return updated, nil
}

// ListActiveShares returns the active shares of a receipt.
func (s *Service) ListActiveShares(receiptID string) ([]ShareRecord, error) {
	shares, err := s.db.GetActiveShares(receiptID)
	if err != nil {
		return nil, fmt.Errorf("listing shares: %w", err)
	}
	return shares, nil
}

// DeactivateShare revokes a share token.
func (s *Service) DeactivateShare(receiptID, token string) error {
	if err := s.db.DeactivateShare(token, receiptID, s.timeSource.Now()); err != nil {
		return fmt.Errorf("deactivating share: %w", err)
	}
	return nil
}
