package dispatch

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalArchive", func() {
	var (
		tmpDir  string
		archive Archive
	)

	BeforeEach(func() {
		tmpDir = filepath.Join(GinkgoT().TempDir(), "archive")
		var err error
		archive, err = NewLocalArchive(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should create the directory", func() {
		Expect(tmpDir).To(BeADirectory())
	})

	It("should save, read and delete snapshots", func() {
		name, err := archive.Save("order.json", []byte(`{"key":{}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Join(tmpDir, name)).To(BeAnExistingFile())

		data, err := archive.Get(name)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(`{"key":{}}`))

		Expect(archive.Delete(name)).To(Succeed())
		Expect(filepath.Join(tmpDir, name)).NotTo(BeAnExistingFile())
	})

	It("should refuse names outside the directory", func() {
		_, err := archive.Save("../escape.json", []byte("{}"))
		Expect(err).To(HaveOccurred())
	})

	It("should fail for missing snapshots", func() {
		_, err := archive.Get("missing.json")
		Expect(err).To(HaveOccurred())
		Expect(archive.Delete("missing.json")).NotTo(Succeed())
	})
})
