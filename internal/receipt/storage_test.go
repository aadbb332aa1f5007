package receipt

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ObjectKey", func() {
	It("should build the canonical upload key", func() {
		Expect(ObjectKey("user-1", "receipt-1", ".png")).To(Equal("uploads/user-1/receipt-1.png"))
	})
})

var _ = Describe("LocalStorage", func() {
	var (
		basePath string
		storage  *LocalStorage
	)

	BeforeEach(func() {
		basePath = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(basePath, "objects"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should round-trip an object under a nested key", func() {
		key, err := storage.Save("uploads/user-1/receipt-1.png", []byte("image data"))
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("uploads/user-1/receipt-1.png"))

		data, err := storage.Get(key)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("image data")))
	})

	It("should report existence", func() {
		exists, err := storage.Exists("uploads/user-1/receipt-1.png")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())

		_, err = storage.Save("uploads/user-1/receipt-1.png", []byte("image data"))
		Expect(err).NotTo(HaveOccurred())

		exists, err = storage.Exists("uploads/user-1/receipt-1.png")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())
	})

	It("should delete an object", func() {
		_, err := storage.Save("uploads/user-1/receipt-1.png", []byte("image data"))
		Expect(err).NotTo(HaveOccurred())

		Expect(storage.Delete("uploads/user-1/receipt-1.png")).To(Succeed())

		exists, err := storage.Exists("uploads/user-1/receipt-1.png")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
	})

	It("should reject keys that escape the base directory", func() {
		_, err := storage.Save("../outside.txt", []byte("nope"))
		Expect(err).To(MatchError(ContainSubstring("invalid object key")))

		_, statErr := os.Stat(filepath.Join(basePath, "outside.txt"))
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})

	It("should reject absolute keys", func() {
		_, err := storage.Get("/etc/passwd")
		Expect(err).To(MatchError(ContainSubstring("invalid object key")))
	})
})
