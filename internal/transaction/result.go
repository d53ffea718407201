package transaction

import (
	"time"

	"github.com/jrh3k5/walletops/internal/etherscan"
)

// Result is the output of a filter run.
type Result struct {
	Entries              []Entry                         `json:"transactions"`
	InternalTransactions []etherscan.InternalTransaction `json:"internalTransactions,omitempty"`
	Summary              Summary                         `json:"summary"`
	Metadata             Metadata                        `json:"metadata"`
}

// Entry gathers everything that happened in one transaction. Transaction is nil
// when the wallet's token transfers happened in a transaction the wallet did not send
// or that fell outside the filters.
type Entry struct {
	Hash           string                 `json:"hash"`
	BlockNumber    uint64                 `json:"blockNumber"`
	Timestamp      time.Time              `json:"timestamp"`
	Transaction    *etherscan.Transaction `json:"transaction,omitempty"`
	TokenTransfers []TokenTransfer        `json:"tokenTransfers,omitempty"`
}

// Summary counts the records that survived filtering.
type Summary struct {
	Wallet               string    `json:"wallet"`
	StartDate            time.Time `json:"startDate,omitzero"`
	EndDate              time.Time `json:"endDate,omitzero"`
	Transactions         int       `json:"transactions"`
	InternalTransactions int       `json:"internalTransactions"`
	ERC20Transfers       int       `json:"erc20Transfers"`
	ERC721Transfers      int       `json:"erc721Transfers"`
	ERC1155Transfers     int       `json:"erc1155Transfers"`
	UniqueTokens         int       `json:"uniqueTokens"`
}

// Metadata describes how the result was produced.
type Metadata struct {
	GeneratedAt    time.Time     `json:"generatedAt"`
	ProcessingTime time.Duration `json:"processingTimeNanos"`
	APICalls       int64         `json:"apiCalls"`
}
