package receipt

import (
	"fmt"

	"github.com/google/uuid"
)

// AddAuthenticatedMember adds an authenticated user to a receipt.
func (s *Service) AddAuthenticatedMember(receiptID, userID, displayName, email, addedBy, role string) (*MemberRecord, error) {
	if role == "" {
		role = RoleMember
	}
	member := &MemberRecord{
		EntityType:  entityReceiptMember,
		ReceiptID:   receiptID,
		UserID:      userID,
		UserType:    UserTypeAuthenticated,
		DisplayName: displayName,
		Email:       email,
		Role:        role,
		AddedBy:     addedBy,
		AddedAt:     s.timeSource.Now(),
	}
	if err := s.db.AddMember(member); err != nil {
		return nil, fmt.Errorf("adding member: %w", err)
	}
	return member, nil
}

// AddPlaceholderMember adds a named member with no account yet; it gets a
// generated user ID that an authenticated user can claim later.
func (s *Service) AddPlaceholderMember(receiptID, displayName, addedBy string) (*MemberRecord, error) {
	member := &MemberRecord{
		EntityType:  entityReceiptMember,
		ReceiptID:   receiptID,
		UserID:      uuid.NewString(),
		UserType:    UserTypePlaceholder,
		DisplayName: displayName,
		AddedBy:     addedBy,
		AddedAt:     s.timeSource.Now(),
	}
	if err := s.db.AddMember(member); err != nil {
		return nil, fmt.Errorf("adding placeholder member: %w", err)
	}
	return member, nil
}

// GetMembers returns all members of a receipt.
func (s *Service) GetMembers(receiptID string) ([]MemberRecord, error) {
	members, err := s.db.GetMembers(receiptID)
	if err != nil {
		return nil, fmt.Errorf("getting members: %w", err)
	}
	return members, nil
}

// UpdateMemberDetails changes a member's display name and/or email.
func (s *Service) UpdateMemberDetails(receiptID, userID, displayName, email string) (*MemberRecord, error) {
	member, err := s.db.UpdateMemberDetails(receiptID, userID, displayName, email, s.timeSource.Now())
	if err != nil {
		return nil, fmt.Errorf("updating member: %w", err)
	}
	return member, nil
}

// ClaimPlaceholder converts every membership held by a placeholder into a
// membership of the claiming authenticated user.
func (s *Service) ClaimPlaceholder(placeholderID, userID, displayName, email string) ([]MemberRecord, error) {
	indexed, err := s.db.GetUserReceipts(placeholderID)
	if err != nil {
		return nil, fmt.Errorf("looking up placeholder receipts: %w", err)
	}

	now := s.timeSource.Now()
	claimed := make([]MemberRecord, 0, len(indexed))
	for _, entry := range indexed {
		old, err := s.memberOn(entry.ReceiptID, placeholderID)
		if err != nil {
			return nil, err
		}
		if old == nil || old.UserType != UserTypePlaceholder {
			continue
		}
		if err := s.db.DeleteMember(entry.ReceiptID, placeholderID); err != nil {
			return nil, fmt.Errorf("removing placeholder membership: %w", err)
		}
		member := &MemberRecord{
			EntityType:  entityReceiptMember,
			ReceiptID:   entry.ReceiptID,
			UserID:      userID,
			UserType:    UserTypeAuthenticated,
			DisplayName: displayName,
			Email:       email,
			Role:        RoleMember,
			AddedBy:     old.AddedBy,
			AddedAt:     now,
			ClaimedFrom: placeholderID,
			ClaimedAt:   &now,
		}
		if err := s.db.AddMember(member); err != nil {
			return nil, fmt.Errorf("adding claimed membership: %w", err)
		}
		claimed = append(claimed, *member)
	}
	return claimed, nil
}

// memberOn finds one user's membership on a receipt, nil when absent.
func (s *Service) memberOn(receiptID, userID string) (*MemberRecord, error) {
	members, err := s.db.GetMembers(receiptID)
	if err != nil {
		return nil, fmt.Errorf("getting members: %w", err)
	}
	for i := range members {
		if members[i].UserID == userID {
			return &members[i], nil
		}
	}
	return nil, nil
}
