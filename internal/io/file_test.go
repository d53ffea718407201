package io_test

import (
	"encoding/json"
	"os"
	"path/filepath"

	iopkg "github.com/jrh3k5/walletops/internal/io"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("JSON files", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	Context("WriteJSON", func() {
		It("writes indented JSON, creating the directory", func() {
			path := filepath.Join(dir, "nested", "out.json")
			Expect(iopkg.WriteJSON(path, map[string]int{"count": 2})).To(Succeed())

			contents, err := os.ReadFile(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(contents)).To(Equal("{\n  \"count\": 2\n}\n"))
		})

		It("replaces an existing file and leaves no temporary files", func() {
			path := filepath.Join(dir, "out.json")
			Expect(os.WriteFile(path, []byte("old"), 0o644)).To(Succeed())

			Expect(iopkg.WriteJSON(path, []string{"new"})).To(Succeed())

			var decoded []string
			contents, err := os.ReadFile(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(json.Unmarshal(contents, &decoded)).To(Succeed())
			Expect(decoded).To(Equal([]string{"new"}))

			entries, err := os.ReadDir(dir)
			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(HaveLen(1))
		})

		It("does not touch the target when encoding fails", func() {
			path := filepath.Join(dir, "out.json")

			err := iopkg.WriteJSON(path, map[string]any{"bad": make(chan int)})
			Expect(err).To(HaveOccurred())

			entries, err := os.ReadDir(dir)
			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})
	})

	Context("UniquePath", func() {
		It("uses the plain name when it is free", func() {
			path, err := iopkg.UniquePath(dir, "report", ".json")
			Expect(err).ToNot(HaveOccurred())
			Expect(path).To(Equal(filepath.Join(dir, "report.json")))
		})

		It("numbers the name until it is free", func() {
			Expect(os.WriteFile(filepath.Join(dir, "report.json"), nil, 0o644)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "report-2.json"), nil, 0o644)).To(Succeed())

			path, err := iopkg.UniquePath(dir, "report", ".json")
			Expect(err).ToNot(HaveOccurred())
			Expect(path).To(Equal(filepath.Join(dir, "report-3.json")))
		})
	})

	Context("FileExists", func() {
		It("reports whether a file is present", func() {
			path := filepath.Join(dir, "present")
			Expect(os.WriteFile(path, nil, 0o644)).To(Succeed())

			exists, err := iopkg.FileExists(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(exists).To(BeTrue())

			exists, err = iopkg.FileExists(filepath.Join(dir, "absent"))
			Expect(err).ToNot(HaveOccurred())
			Expect(exists).To(BeFalse())
		})
	})
})
