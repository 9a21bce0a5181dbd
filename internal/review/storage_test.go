package review

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = filepath.Join(GinkgoT().TempDir(), "exports")
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should create the directory", func() {
		Expect(tmpDir).To(BeADirectory())
	})

	Describe("Save", func() {
		var (
			name      string
			savedName string
			err       error
		)

		BeforeEach(func() {
			name = "receipt.png"
		})

		JustBeforeEach(func() {
			savedName, err = storage.Save(name, []byte("test file content"))
		})

		When("saving succeeds", func() {
			It("should return the name", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedName).To(Equal(name))
			})

			It("should save the file to disk", func() {
				Expect(filepath.Join(tmpDir, name)).To(BeAnExistingFile())
			})
		})

		When("the name escapes the directory", func() {
			BeforeEach(func() {
				name = "../escape.png"
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("invalid file name")))
				Expect(filepath.Join(tmpDir, "..", "escape.png")).NotTo(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		It("should read a saved file", func() {
			_, err := storage.Save("a.json", []byte(`{}`))
			Expect(err).NotTo(HaveOccurred())
			data, err := storage.Get("a.json")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte(`{}`)))
		})

		It("returns an error for a missing file", func() {
			_, err := storage.Get("missing.json")
			Expect(err).To(MatchError(ContainSubstring("reading file")))
		})
	})

	Describe("Delete", func() {
		It("should remove the file", func() {
			_, err := storage.Save("a.json", []byte(`{}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.Delete("a.json")).To(Succeed())
			_, statErr := os.Stat(filepath.Join(tmpDir, "a.json"))
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})

		It("returns an error for a missing file", func() {
			Expect(storage.Delete("missing.json")).To(MatchError(ContainSubstring("deleting file")))
		})
	})

	Describe("Path", func() {
		It("should join the name onto the directory", func() {
			Expect(storage.Path("a.json")).To(Equal(filepath.Join(tmpDir, "a.json")))
		})
	})
})
