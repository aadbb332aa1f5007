package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jdsanchez93/costco-receipt-parser/internal/ocr"
)

var _ = Describe("BoltStore", func() {
	var (
		store *BoltStore
		now   time.Time
	)

	BeforeEach(func() {
		var err error
		store, err = NewBoltStore(filepath.Join(GinkgoT().TempDir(), "receipts.db"))
		Expect(err).NotTo(HaveOccurred())
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	itemFixture := func(receiptID, itemID, name string) ItemRecord {
		return ItemRecord{
			EntityType:    entityReceiptItem,
			ReceiptID:     receiptID,
			ItemID:        itemID,
			ItemNumber:    "100",
			ItemName:      name,
			Price:         3.99,
			AssignedUsers: []string{},
			CreatedAt:     now,
		}
	}

	Describe("Items", func() {
		It("should round-trip items in item ID order", func() {
			Expect(store.SaveItems("r1", []ItemRecord{
				itemFixture("r1", "001", "EGGS"),
				itemFixture("r1", "000", "MILK"),
			})).To(Succeed())

			items, err := store.GetItems("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
			Expect(items[0].ItemName).To(Equal("MILK"))
			Expect(items[1].ItemName).To(Equal("EGGS"))
		})

		It("should not mix items across receipts", func() {
			Expect(store.SaveItems("r1", []ItemRecord{itemFixture("r1", "000", "MILK")})).To(Succeed())
			Expect(store.SaveItems("r2", []ItemRecord{itemFixture("r2", "000", "EGGS")})).To(Succeed())

			items, err := store.GetItems("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
			Expect(items[0].ItemName).To(Equal("MILK"))
		})

		It("should refuse to overwrite an existing item", func() {
			Expect(store.SaveItems("r1", []ItemRecord{itemFixture("r1", "000", "MILK")})).To(Succeed())
			err := store.SaveItems("r1", []ItemRecord{itemFixture("r1", "000", "MILK")})
			Expect(err).To(MatchError(ErrAlreadyExists))
		})

		It("should return an empty list for an unknown receipt", func() {
			items, err := store.GetItems("missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(BeEmpty())
		})
	})

	Describe("Geometry", func() {
		geometryFixture := func(receiptID, fieldName, fieldType, text string) GeometryRecord {
			return GeometryRecord{
				EntityType:  entityReceiptGeometry,
				ReceiptID:   receiptID,
				FieldName:   fieldName,
				FieldType:   fieldType,
				Text:        text,
				Confidence:  90,
				BoundingBox: ocr.BoundingBox{Width: 0.5, Height: 0.04, Left: 0.1, Top: 0.8},
				CreatedAt:   now,
			}
		}

		It("should group stored records by field name", func() {
			Expect(store.SaveGeometry([]GeometryRecord{
				geometryFixture("r1", "subtotal", "label", "SUBTOTAL"),
				geometryFixture("r1", "subtotal", "value", "12.50"),
				geometryFixture("r1", "total", "label", "TOTAL"),
				geometryFixture("r1", "total", "value", "13.56"),
			})).To(Succeed())

			fields, err := store.GetGeometry("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(fields).To(HaveLen(2))
			Expect(fields["subtotal"].Label.Text).To(Equal("SUBTOTAL"))
			Expect(fields["subtotal"].Value.Text).To(Equal("12.50"))
			Expect(fields["total"].Value.Text).To(Equal("13.56"))
		})

		It("should return an empty map for an unknown receipt", func() {
			fields, err := store.GetGeometry("missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(fields).To(BeEmpty())
		})
	})

	Describe("Members", func() {
		memberFixture := func(receiptID, userID string) *MemberRecord {
			return &MemberRecord{
				EntityType:  entityReceiptMember,
				ReceiptID:   receiptID,
				UserID:      userID,
				UserType:    UserTypeAuthenticated,
				DisplayName: "Alex",
				Role:        RoleMember,
				AddedBy:     "owner-1",
				AddedAt:     now,
			}
		}

		It("should store the membership and index the receipt for the user", func() {
			Expect(store.AddMember(memberFixture("r1", "user-2"))).To(Succeed())

			members, err := store.GetMembers("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(members).To(HaveLen(1))
			Expect(members[0].UserID).To(Equal("user-2"))

			indexed, err := store.GetUserReceipts("user-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(indexed).To(HaveLen(1))
			Expect(indexed[0].ReceiptID).To(Equal("r1"))
		})

		It("should reject a duplicate membership", func() {
			Expect(store.AddMember(memberFixture("r1", "user-2"))).To(Succeed())
			Expect(store.AddMember(memberFixture("r1", "user-2"))).To(MatchError(ErrAlreadyExists))
		})

		It("should remove both sides on delete", func() {
			Expect(store.AddMember(memberFixture("r1", "user-2"))).To(Succeed())
			Expect(store.DeleteMember("r1", "user-2")).To(Succeed())

			members, err := store.GetMembers("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(members).To(BeEmpty())

			indexed, err := store.GetUserReceipts("user-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(indexed).To(BeEmpty())
		})

		Describe("UpdateMemberDetails", func() {
			BeforeEach(func() {
				Expect(store.AddMember(memberFixture("r1", "user-2"))).To(Succeed())
			})

			It("should update only the given fields", func() {
				updated, err := store.UpdateMemberDetails("r1", "user-2", "", "alex@example.com", now.Add(time.Hour))
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.DisplayName).To(Equal("Alex"))
				Expect(updated.Email).To(Equal("alex@example.com"))
				Expect(updated.UpdatedAt).NotTo(BeNil())
				Expect(*updated.UpdatedAt).To(Equal(now.Add(time.Hour)))
			})

			It("should persist the update", func() {
				_, err := store.UpdateMemberDetails("r1", "user-2", "Alexandra", "", now)
				Expect(err).NotTo(HaveOccurred())

				members, err := store.GetMembers("r1")
				Expect(err).NotTo(HaveOccurred())
				Expect(members[0].DisplayName).To(Equal("Alexandra"))
			})

			It("should return not found for an unknown member", func() {
				_, err := store.UpdateMemberDetails("r1", "nobody", "X", "", now)
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("User receipts", func() {
		It("should round-trip index entries per user", func() {
			Expect(store.SaveUserReceipt(&UserReceiptRecord{
				EntityType: entityUserReceipt,
				UserID:     "user-1",
				ReceiptID:  "r1",
				ObjectKey:  "uploads/user-1/r1.png",
				Status:     StatusPending,
				CreatedAt:  now,
			})).To(Succeed())

			records, err := store.GetUserReceipts("user-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].ObjectKey).To(Equal("uploads/user-1/r1.png"))
			Expect(records[0].Status).To(Equal(StatusPending))

			other, err := store.GetUserReceipts("user-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(other).To(BeEmpty())
		})
	})

	Describe("Shares", func() {
		shareFixture := func(token, receiptID string) *ShareRecord {
			return &ShareRecord{
				EntityType:  entityReceiptShare,
				ReceiptID:   receiptID,
				ShareToken:  token,
				OwnerUserID: "user-1",
				CreatedAt:   now,
				ExpiresAt:   now.Add(time.Hour),
				IsActive:    true,
			}
		}

		It("should find a stored share by token", func() {
			Expect(store.SaveShare(shareFixture("tok-1", "r1"))).To(Succeed())

			share, err := store.GetShareByToken("tok-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(share.ReceiptID).To(Equal("r1"))
		})

		It("should return not found for an unknown token", func() {
			_, err := store.GetShareByToken("missing")
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should list only active shares of a receipt", func() {
			Expect(store.SaveShare(shareFixture("tok-1", "r1"))).To(Succeed())
			Expect(store.SaveShare(shareFixture("tok-2", "r1"))).To(Succeed())
			Expect(store.DeactivateShare("tok-2", "r1", now)).To(Succeed())

			shares, err := store.GetActiveShares("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(shares).To(HaveLen(1))
			Expect(shares[0].ShareToken).To(Equal("tok-1"))
		})

		It("should persist usage increments on both keys", func() {
			Expect(store.SaveShare(shareFixture("tok-1", "r1"))).To(Succeed())

			updated, err := store.IncrementShareUsage("tok-1", "r1", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.CurrentUses).To(Equal(1))

			byToken, err := store.GetShareByToken("tok-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(byToken.CurrentUses).To(Equal(1))

			active, err := store.GetActiveShares("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(active[0].CurrentUses).To(Equal(1))
		})

		It("should refuse to count a use of an inactive share", func() {
			Expect(store.SaveShare(shareFixture("tok-1", "r1"))).To(Succeed())
			Expect(store.DeactivateShare("tok-1", "r1", now)).To(Succeed())

			_, err := store.IncrementShareUsage("tok-1", "r1", now)
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should mark the share inactive on both keys", func() {
			Expect(store.SaveShare(shareFixture("tok-1", "r1"))).To(Succeed())
			Expect(store.DeactivateShare("tok-1", "r1", now)).To(Succeed())

			share, err := store.GetShareByToken("tok-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(share.IsActive).To(BeFalse())
		})
	})
})
