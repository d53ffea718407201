package big_test

import (
	"math/big"

	ctsbig "github.com/jrh3k5/walletops/internal/big"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("amounts", func() {
	Context("BigIntFromString", func() {
		DescribeTable("parses integers with separators", func(in string, expected string) {
			value, err := ctsbig.BigIntFromString(in)
			Expect(err).ToNot(HaveOccurred())
			Expect(value.String()).To(Equal(expected))
		},
			Entry("commas", "4,157", "4157"),
			Entry("negative", "-1,234", "-1234"),
			Entry("spaces", " 1 234 ", "1234"),
			Entry("underscores", "1_234", "1234"),
		)

		It("rejects blanks and fractions", func() {
			_, err := ctsbig.BigIntFromString("  ")
			Expect(err).To(HaveOccurred())

			_, err = ctsbig.BigIntFromString("1.5")
			Expect(err).To(MatchError(ContainSubstring("invalid integer string")))
		})
	})

	Context("ParseAmount", func() {
		It("accepts thousands separators", func() {
			amount, err := ctsbig.ParseAmount(" 1,250.5 ")
			Expect(err).ToNot(HaveOccurred())
			Expect(amount.Equal(decimal.RequireFromString("1250.5"))).To(BeTrue())
		})

		It("rejects text that is not a number", func() {
			_, err := ctsbig.ParseAmount("ten")
			Expect(err).To(MatchError(ContainSubstring("invalid amount 'ten'")))
		})
	})

	Context("ToBaseUnits", func() {
		DescribeTable("scales by the token's decimals", func(amount string, decimals int, expected string) {
			value, err := ctsbig.ToBaseUnits(decimal.RequireFromString(amount), decimals)
			Expect(err).ToNot(HaveOccurred())
			Expect(value.String()).To(Equal(expected))
		},
			Entry("whole amount", "5", 6, "5000000"),
			Entry("fractional amount", "1.234567", 6, "1234567"),
			Entry("eighteen decimals", "0.1", 18, "100000000000000000"),
			Entry("zero decimals", "42", 0, "42"),
		)

		It("rejects precision the token cannot represent", func() {
			_, err := ctsbig.ToBaseUnits(decimal.RequireFromString("0.0000001"), 6)
			Expect(err).To(MatchError(ContainSubstring("more than 6 decimal places")))
		})
	})

	Context("FromBaseUnits", func() {
		It("reverses ToBaseUnits", func() {
			Expect(ctsbig.FromBaseUnits(big.NewInt(1200000), 6).String()).To(Equal("1.2"))
			Expect(ctsbig.FromBaseUnits(big.NewInt(1), 6).String()).To(Equal("0.000001"))
		})

		It("treats nil as zero", func() {
			Expect(ctsbig.FromBaseUnits(nil, 6).IsZero()).To(BeTrue())
		})
	})
})
