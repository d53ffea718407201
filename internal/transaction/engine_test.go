package transaction_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/jrh3k5/walletops/internal/etherscan"
	"github.com/jrh3k5/walletops/internal/token"
	"github.com/jrh3k5/walletops/internal/transaction"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const (
	wallet   = "0x9134fc7112b478e97eE6F0E6A7bf81EcAfef19ED"
	stranger = "0x1111111111111111111111111111111111111111"
	usdc     = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	nft      = "0x2222222222222222222222222222222222222222"
	items    = "0x3333333333333333333333333333333333333333"
)

// fakeExplorer serves a fixed dataset page by page.
type fakeExplorer struct {
	mu sync.Mutex

	transactions []etherscan.Transaction
	internals    []etherscan.InternalTransaction
	tokens       map[etherscan.TokenStandard][]etherscan.TokenTransfer
	details      map[string]*token.Details

	failStandard  etherscan.TokenStandard
	failDetailsOf string

	calls        int64
	detailsCalls map[string]int
}

func newFakeExplorer() *fakeExplorer {
	return &fakeExplorer{
		tokens:       make(map[etherscan.TokenStandard][]etherscan.TokenTransfer),
		details:      make(map[string]*token.Details),
		detailsCalls: make(map[string]int),
	}
}

func page[T any](records []T, query etherscan.Query) []T {
	start := (query.Page - 1) * query.Offset
	if start >= len(records) {
		return nil
	}

	end := min(start+query.Offset, len(records))

	return records[start:end]
}

func (f *fakeExplorer) count() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func (f *fakeExplorer) GetTransactions(_ context.Context, query etherscan.Query) ([]etherscan.Transaction, error) {
	f.count()

	return page(f.transactions, query), nil
}

func (f *fakeExplorer) GetInternalTransactions(_ context.Context, query etherscan.Query) ([]etherscan.InternalTransaction, error) {
	f.count()

	return page(f.internals, query), nil
}

func (f *fakeExplorer) GetTokenTransfers(_ context.Context, standard etherscan.TokenStandard, query etherscan.Query) ([]etherscan.TokenTransfer, error) {
	f.count()
	if standard == f.failStandard {
		return nil, errors.New("explorer API error: NOTOK")
	}

	return page(f.tokens[standard], query), nil
}

func (f *fakeExplorer) GetTokenDetails(_ context.Context, contractAddress string) (*token.Details, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.detailsCalls[strings.ToLower(contractAddress)]++
	if strings.EqualFold(contractAddress, f.failDetailsOf) {
		return nil, errors.New("tokeninfo unavailable")
	}

	return f.details[strings.ToLower(contractAddress)], nil
}

func (f *fakeExplorer) CallCount() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func at(day int) time.Time {
	return time.Date(2025, time.March, day, 12, 0, 0, 0, time.UTC)
}

func txn(hash string, from string, to string, day int) etherscan.Transaction {
	return etherscan.Transaction{Hash: hash, From: from, To: to, Timestamp: at(day), BlockNumber: uint64(day), Value: big.NewInt(1)}
}

func transfer(hash string, contract string, from string, to string, day int) etherscan.TokenTransfer {
	return etherscan.TokenTransfer{Hash: hash, ContractAddress: contract, From: from, To: to, Timestamp: at(day), BlockNumber: uint64(day), Value: big.NewInt(10)}
}

var _ = Describe("Engine", func() {
	var explorer *fakeExplorer
	var engine *transaction.Engine
	var criteria transaction.Criteria

	BeforeEach(func() {
		explorer = newFakeExplorer()
		explorer.transactions = []etherscan.Transaction{
			txn("0xa1", stranger, strings.ToLower(wallet), 1),
			txn("0xa2", wallet, stranger, 2),
			txn("0xa3", stranger, strings.ToUpper("0x"+wallet[2:]), 3),
			txn("0xa4", wallet, stranger, 10),
			txn("0xa5", stranger, wallet, 11),
		}
		explorer.internals = []etherscan.InternalTransaction{
			{Hash: "0xa2", From: stranger, To: wallet, Timestamp: at(2), Value: big.NewInt(5)},
		}
		explorer.tokens[etherscan.ERC20] = []etherscan.TokenTransfer{transfer("0xa2", usdc, wallet, stranger, 2)}
		explorer.tokens[etherscan.ERC721] = []etherscan.TokenTransfer{transfer("0xa2", nft, stranger, wallet, 2)}
		explorer.tokens[etherscan.ERC1155] = []etherscan.TokenTransfer{
			transfer("0xa2", items, wallet, stranger, 2),
			transfer("0xb9", items, stranger, wallet, 4),
		}
		explorer.details[strings.ToLower(usdc)] = &token.Details{Address: usdc, Name: "USD Coin", Symbol: "USDC", Decimals: 6}

		engine = transaction.NewEngine(explorer, nil, 2)
		criteria = transaction.Criteria{
			Address:         wallet,
			Start:           at(1),
			End:             at(5),
			IncludeInternal: true,
			IncludeERC20:    true,
			IncludeERC721:   true,
			IncludeERC1155:  true,
		}
	})

	It("pages through the whole history and keeps the records inside the window", func() {
		result, err := engine.FilterTransactions(context.Background(), criteria)
		Expect(err).ToNot(HaveOccurred())

		var hashes []string
		for _, entry := range result.Entries {
			hashes = append(hashes, entry.Hash)
		}
		Expect(hashes).To(Equal([]string{"0xa1", "0xa2", "0xa3", "0xb9"}))
		Expect(result.Summary.Transactions).To(Equal(3))
		Expect(result.Summary.InternalTransactions).To(Equal(1))
		Expect(result.Summary.ERC20Transfers).To(Equal(1))
		Expect(result.Summary.ERC721Transfers).To(Equal(1))
		Expect(result.Summary.ERC1155Transfers).To(Equal(2))
		Expect(result.Summary.UniqueTokens).To(Equal(3))
		Expect(result.Summary.Wallet).To(Equal(wallet))
		Expect(result.Summary.StartDate).To(Equal(at(1)))
		Expect(result.Summary.EndDate).To(Equal(at(5)))
		Expect(result.Metadata.APICalls).To(Equal(explorer.CallCount()))
		Expect(result.Metadata.GeneratedAt).ToNot(BeZero())
	})

	It("includes records exactly on the window's bounds", func() {
		criteria.Start = at(2)
		criteria.End = at(2)

		result, err := engine.FilterTransactions(context.Background(), criteria)
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Entries).To(HaveLen(1))
		Expect(result.Entries[0].Hash).To(Equal("0xa2"))
	})

	It("finds nothing when the window holds no records", func() {
		criteria.Start = at(20)
		criteria.End = at(20)

		result, err := engine.FilterTransactions(context.Background(), criteria)
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Entries).To(BeEmpty())
		Expect(result.InternalTransactions).To(BeEmpty())
		Expect(result.Summary.Transactions).To(BeZero())
	})

	It("merges transfers of every standard onto the transaction that shares their hash", func() {
		result, err := engine.FilterTransactions(context.Background(), criteria)
		Expect(err).ToNot(HaveOccurred())

		entry := result.Entries[1]
		Expect(entry.Hash).To(Equal("0xa2"))
		Expect(entry.Transaction).ToNot(BeNil())
		Expect(entry.TokenTransfers).To(HaveLen(3))

		var standards []etherscan.TokenStandard
		for _, tr := range entry.TokenTransfers {
			standards = append(standards, tr.Standard)
		}
		Expect(standards).To(ConsistOf(etherscan.ERC20, etherscan.ERC721, etherscan.ERC1155))
	})

	It("gives transfers without a parent transaction an entry of their own", func() {
		result, err := engine.FilterTransactions(context.Background(), criteria)
		Expect(err).ToNot(HaveOccurred())

		orphan := result.Entries[3]
		Expect(orphan.Hash).To(Equal("0xb9"))
		Expect(orphan.Transaction).To(BeNil())
		Expect(orphan.Timestamp).To(Equal(at(4)))
		Expect(orphan.TokenTransfers).To(HaveLen(1))
	})

	When("only incoming records are requested", func() {
		It("keeps records sent to the wallet regardless of address case", func() {
			criteria.IncomingOnly = true

			result, err := engine.FilterTransactions(context.Background(), criteria)
			Expect(err).ToNot(HaveOccurred())

			for _, entry := range result.Entries {
				if entry.Transaction != nil {
					Expect(strings.EqualFold(entry.Transaction.To, wallet)).To(BeTrue())
				}
				for _, tr := range entry.TokenTransfers {
					Expect(strings.EqualFold(tr.ToAddress, wallet)).To(BeTrue())
				}
			}
			Expect(result.Summary.Transactions).To(Equal(2))
			Expect(result.Summary.ERC20Transfers).To(BeZero())
			Expect(result.Summary.ERC721Transfers).To(Equal(1))
		})
	})

	When("only outgoing records are requested", func() {
		It("keeps records sent from the wallet", func() {
			criteria.OutgoingOnly = true

			result, err := engine.FilterTransactions(context.Background(), criteria)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Summary.Transactions).To(Equal(1))
			Expect(result.Summary.InternalTransactions).To(BeZero())
			Expect(result.Entries[0].Transaction.From).To(Equal(wallet))
		})
	})

	It("leaves out ignored hashes", func() {
		criteria.Ignore = transaction.NewIgnoreList(transaction.IgnoredHash{Hash: "0xB9", Reason: "spam"})

		result, err := engine.FilterTransactions(context.Background(), criteria)
		Expect(err).ToNot(HaveOccurred())
		for _, entry := range result.Entries {
			Expect(entry.Hash).ToNot(Equal("0xb9"))
		}
	})

	It("skips the fetches that were not requested", func() {
		criteria.IncludeInternal = false
		criteria.IncludeERC721 = false
		criteria.IncludeERC1155 = false
		explorer.failStandard = etherscan.ERC721

		result, err := engine.FilterTransactions(context.Background(), criteria)
		Expect(err).ToNot(HaveOccurred())
		Expect(result.InternalTransactions).To(BeEmpty())
		Expect(result.Summary.ERC721Transfers).To(BeZero())
	})

	When("any fetch fails", func() {
		It("returns no result at all", func() {
			explorer.failStandard = etherscan.ERC721

			result, err := engine.FilterTransactions(context.Background(), criteria)
			Expect(result).To(BeNil())
			Expect(err).To(MatchError(ContainSubstring("failed to fetch ERC-721 transfers")))
		})
	})

	Context("token metadata", func() {
		It("is looked up once per contract and cached across runs", func() {
			_, err := engine.FilterTransactions(context.Background(), criteria)
			Expect(err).ToNot(HaveOccurred())
			result, err := engine.FilterTransactions(context.Background(), criteria)
			Expect(err).ToNot(HaveOccurred())

			Expect(explorer.detailsCalls[strings.ToLower(usdc)]).To(Equal(1))
			Expect(explorer.detailsCalls[strings.ToLower(items)]).To(Equal(1))

			usdcTransfer := result.Entries[1].TokenTransfers[0]
			Expect(usdcTransfer.Metadata).ToNot(BeNil())
			Expect(usdcTransfer.Metadata.Symbol).To(Equal("USDC"))
		})

		It("is looked up again after the cache is cleared", func() {
			_, err := engine.FilterTransactions(context.Background(), criteria)
			Expect(err).ToNot(HaveOccurred())
			engine.ClearCache()
			_, err = engine.FilterTransactions(context.Background(), criteria)
			Expect(err).ToNot(HaveOccurred())

			Expect(explorer.detailsCalls[strings.ToLower(usdc)]).To(Equal(2))
		})

		It("is left out when the lookup fails", func() {
			explorer.failDetailsOf = usdc

			result, err := engine.FilterTransactions(context.Background(), criteria)
			Expect(err).ToNot(HaveOccurred())

			for _, entry := range result.Entries {
				for _, tr := range entry.TokenTransfers {
					if tr.ContractAddress == usdc {
						Expect(tr.Metadata).To(BeNil())
					}
				}
			}
		})
	})

	DescribeTable("rejects invalid criteria before fetching anything", func(mutate func(*transaction.Criteria)) {
		mutate(&criteria)

		_, err := engine.FilterTransactions(context.Background(), criteria)
		Expect(err).To(MatchError(ContainSubstring("invalid filter criteria")))
		Expect(explorer.CallCount()).To(BeZero())
	},
		Entry("both directions", func(c *transaction.Criteria) { c.IncomingOnly = true; c.OutgoingOnly = true }),
		Entry("inverted window", func(c *transaction.Criteria) { c.Start = at(5); c.End = at(1) }),
		Entry("malformed address", func(c *transaction.Criteria) { c.Address = "0x1234" }),
	)
})
