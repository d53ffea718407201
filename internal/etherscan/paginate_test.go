package etherscan_test

import (
	"context"
	"errors"

	"github.com/jrh3k5/walletops/internal/etherscan"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Paginate", func() {
	pagesOf := func(sizes ...int) (func(context.Context, int) ([]int, error), *[]int) {
		var requested []int

		return func(_ context.Context, page int) ([]int, error) {
			requested = append(requested, page)
			if page > len(sizes) {
				return nil, nil
			}

			records := make([]int, sizes[page-1])
			for i := range records {
				records[i] = page
			}

			return records, nil
		}, &requested
	}

	It("stops at the first short page", func() {
		fetch, requested := pagesOf(3, 3, 1)
		records, err := etherscan.Paginate(context.Background(), 3, fetch)
		Expect(err).ToNot(HaveOccurred())
		Expect(records).To(Equal([]int{1, 1, 1, 2, 2, 2, 3}))
		Expect(*requested).To(Equal([]int{1, 2, 3}))
	})

	It("stops at the first empty page", func() {
		fetch, requested := pagesOf(3, 3)
		records, err := etherscan.Paginate(context.Background(), 3, fetch)
		Expect(err).ToNot(HaveOccurred())
		Expect(records).To(HaveLen(6))
		Expect(*requested).To(Equal([]int{1, 2, 3}))
	})

	It("returns nothing for an empty history", func() {
		fetch, requested := pagesOf()
		records, err := etherscan.Paginate(context.Background(), 100, fetch)
		Expect(err).ToNot(HaveOccurred())
		Expect(records).To(BeEmpty())
		Expect(*requested).To(Equal([]int{1}))
	})

	It("fails the whole pagination when a page fails", func() {
		cause := errors.New("boom")
		_, err := etherscan.Paginate(context.Background(), 2, func(_ context.Context, page int) ([]int, error) {
			if page == 2 {
				return nil, cause
			}

			return []int{1, 2}, nil
		})
		Expect(err).To(MatchError(cause))
		Expect(err.Error()).To(ContainSubstring("page 2"))
	})

	It("rejects a non-positive page size", func() {
		_, err := etherscan.Paginate(context.Background(), 0, func(_ context.Context, _ int) ([]int, error) {
			return nil, nil
		})
		Expect(err).To(HaveOccurred())
	})
})
