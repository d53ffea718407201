package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jrh3k5/walletops/internal/etherscan"
	"github.com/jrh3k5/walletops/internal/token"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPageSize is the number of records requested per explorer page.
	DefaultPageSize = 1000

	metadataLookupConcurrency = 4
)

// Engine fetches a wallet's history from an explorer and reduces it to the records
// matching a Criteria. Token metadata looked up by an Engine is cached for its lifetime.
type Engine struct {
	client   etherscan.Client
	metadata *token.CachingDetailsService
	pageSize int
}

// NewEngine builds an Engine. If details is nil, token metadata is looked up through the explorer client.
func NewEngine(client etherscan.Client, details token.DetailsService, pageSize int) *Engine {
	if details == nil {
		details = client
	}

	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	return &Engine{
		client:   client,
		metadata: token.NewCachingDetailsService(details),
		pageSize: pageSize,
	}
}

// ClearCache forgets all token metadata looked up so far.
func (e *Engine) ClearCache() {
	e.metadata.Clear()
}

type fetched struct {
	transactions []etherscan.Transaction
	internals    []etherscan.InternalTransaction
	tokens       map[etherscan.TokenStandard][]etherscan.TokenTransfer
}

// FilterTransactions fetches the wallet's history and returns the records matching
// the criteria. If any of the fetches fails, no result is returned.
func (e *Engine) FilterTransactions(ctx context.Context, criteria Criteria) (*Result, error) {
	startedAt := time.Now()

	if err := criteria.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter criteria: %w", err)
	}

	data, err := e.fetch(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history of '%s': %w", criteria.Address, err)
	}

	var transactions []etherscan.Transaction
	for _, txn := range data.transactions {
		if criteria.keeps(txn.Hash, txn.From, txn.To, txn.Timestamp) {
			transactions = append(transactions, txn)
		}
	}

	var internals []etherscan.InternalTransaction
	for _, internal := range data.internals {
		if criteria.keeps(internal.Hash, internal.From, internal.To, internal.Timestamp) {
			internals = append(internals, internal)
		}
	}

	summary := Summary{
		Wallet:               criteria.Address,
		StartDate:            criteria.Start,
		EndDate:              criteria.End,
		Transactions:         len(transactions),
		InternalTransactions: len(internals),
	}

	var transfers []TokenTransfer
	for _, standard := range []etherscan.TokenStandard{etherscan.ERC20, etherscan.ERC721, etherscan.ERC1155} {
		for _, raw := range data.tokens[standard] {
			if !criteria.keeps(raw.Hash, raw.From, raw.To, raw.Timestamp) {
				continue
			}

			transfers = append(transfers, newTokenTransfer(standard, raw))

			switch standard {
			case etherscan.ERC20:
				summary.ERC20Transfers++
			case etherscan.ERC721:
				summary.ERC721Transfers++
			case etherscan.ERC1155:
				summary.ERC1155Transfers++
			}
		}
	}

	summary.UniqueTokens = e.enrich(ctx, transfers)

	result := &Result{
		Entries:              groupByHash(transactions, transfers),
		InternalTransactions: internals,
		Summary:              summary,
	}

	result.Metadata = Metadata{
		GeneratedAt:    time.Now().UTC(),
		ProcessingTime: time.Since(startedAt),
		APICalls:       e.client.CallCount(),
	}

	slog.InfoContext(
		ctx,
		fmt.Sprintf("Filtered history of '%s' down to %d entries", criteria.Address, len(result.Entries)),
		"transactions", summary.Transactions,
		"tokenTransfers", len(transfers),
		"apiCalls", result.Metadata.APICalls,
	)

	return result, nil
}

func (e *Engine) fetch(ctx context.Context, criteria Criteria) (*fetched, error) {
	data := &fetched{tokens: make(map[etherscan.TokenStandard][]etherscan.TokenTransfer)}
	var tokensMu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		txns, err := etherscan.Paginate(groupCtx, e.pageSize, func(ctx context.Context, page int) ([]etherscan.Transaction, error) {
			return e.client.GetTransactions(ctx, e.query(criteria, page))
		})
		if err != nil {
			return fmt.Errorf("failed to fetch transactions: %w", err)
		}
		data.transactions = txns

		return nil
	})

	if criteria.IncludeInternal {
		group.Go(func() error {
			internals, err := etherscan.Paginate(groupCtx, e.pageSize, func(ctx context.Context, page int) ([]etherscan.InternalTransaction, error) {
				return e.client.GetInternalTransactions(ctx, e.query(criteria, page))
			})
			if err != nil {
				return fmt.Errorf("failed to fetch internal transactions: %w", err)
			}
			data.internals = internals

			return nil
		})
	}

	for standard, included := range map[etherscan.TokenStandard]bool{
		etherscan.ERC20:   criteria.IncludeERC20,
		etherscan.ERC721:  criteria.IncludeERC721,
		etherscan.ERC1155: criteria.IncludeERC1155,
	} {
		if !included {
			continue
		}

		group.Go(func() error {
			transfers, err := etherscan.Paginate(groupCtx, e.pageSize, func(ctx context.Context, page int) ([]etherscan.TokenTransfer, error) {
				return e.client.GetTokenTransfers(ctx, standard, e.query(criteria, page))
			})
			if err != nil {
				return fmt.Errorf("failed to fetch %s transfers: %w", standard, err)
			}

			tokensMu.Lock()
			data.tokens[standard] = transfers
			tokensMu.Unlock()

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return data, nil
}

func (e *Engine) query(criteria Criteria, page int) etherscan.Query {
	return etherscan.Query{
		Address: criteria.Address,
		Page:    page,
		Offset:  e.pageSize,
	}
}

// enrich attaches token metadata to the transfers, looking each contract up once.
// A failed lookup leaves that contract's transfers without metadata. It returns the
// number of distinct contracts.
func (e *Engine) enrich(ctx context.Context, transfers []TokenTransfer) int {
	var contracts []string
	seen := make(map[string]struct{})
	for _, transfer := range transfers {
		key := strings.ToLower(transfer.ContractAddress)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		contracts = append(contracts, transfer.ContractAddress)
	}

	var mu sync.Mutex
	details := make(map[string]*token.Details, len(contracts))

	var group errgroup.Group
	group.SetLimit(metadataLookupConcurrency)
	for _, contract := range contracts {
		group.Go(func() error {
			found, err := e.metadata.GetTokenDetails(ctx, contract)
			if err != nil {
				slog.WarnContext(ctx, fmt.Sprintf("Unable to look up token details for '%s'", contract), "error", err)

				return nil
			}

			mu.Lock()
			details[strings.ToLower(contract)] = found
			mu.Unlock()

			return nil
		})
	}
	_ = group.Wait()

	for i := range transfers {
		transfers[i].Metadata = details[strings.ToLower(transfers[i].ContractAddress)]
	}

	return len(contracts)
}

// groupByHash attaches token transfers to the transaction that produced them.
// Transfers without a matching transaction get an entry of their own.
func groupByHash(transactions []etherscan.Transaction, transfers []TokenTransfer) []Entry {
	byHash := make(map[string]*Entry, len(transactions))
	var order []string

	for i := range transactions {
		txn := transactions[i]
		key := strings.ToLower(txn.Hash)
		if _, exists := byHash[key]; exists {
			continue
		}

		byHash[key] = &Entry{
			Hash:        txn.Hash,
			BlockNumber: txn.BlockNumber,
			Timestamp:   txn.Timestamp,
			Transaction: &txn,
		}
		order = append(order, key)
	}

	for _, transfer := range transfers {
		key := strings.ToLower(transfer.TransactionHash)
		entry, exists := byHash[key]
		if !exists {
			entry = &Entry{
				Hash:        transfer.TransactionHash,
				BlockNumber: transfer.BlockNumber,
				Timestamp:   transfer.ExecutionTime,
			}
			byHash[key] = entry
			order = append(order, key)
		}

		entry.TokenTransfers = append(entry.TokenTransfers, transfer)
	}

	entries := make([]Entry, 0, len(order))
	for _, key := range order {
		entries = append(entries, *byHash[key])
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}

		return entries[i].Hash < entries[j].Hash
	})

	return entries
}
