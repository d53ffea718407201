package etherscan

import (
	"context"

	"github.com/jrh3k5/walletops/internal/token"
)

// Client defines the interface for interacting with an Etherscan-compatible explorer API.
// An individual client instance is bound to a particular chain.
type Client interface {
	token.DetailsService

	// GetTransactions retrieves a page of normal transactions sent from or to the queried address.
	// Pages are 1-based; the offset is the number of records in each page.
	GetTransactions(ctx context.Context, query Query) ([]Transaction, error)

	// GetInternalTransactions retrieves a page of internal (contract-initiated) transactions.
	GetInternalTransactions(ctx context.Context, query Query) ([]InternalTransaction, error)

	// GetTokenTransfers retrieves a page of token transfers of the given standard.
	GetTokenTransfers(ctx context.Context, standard TokenStandard, query Query) ([]TokenTransfer, error)

	// CallCount reports how many HTTP round-trips the client has completed.
	CallCount() int64
}

// Query selects a page of an address's history.
type Query struct {
	Address         string
	ContractAddress string // optional; narrows token transfers to a single contract
	Page            int
	Offset          int
}
