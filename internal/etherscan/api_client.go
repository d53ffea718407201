package etherscan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	ctsbig "github.com/jrh3k5/walletops/internal/big"
	ctshttp "github.com/jrh3k5/walletops/internal/http"
	"github.com/jrh3k5/walletops/internal/metrics"
	"github.com/jrh3k5/walletops/internal/queue"
	"github.com/jrh3k5/walletops/internal/retry"
	"github.com/jrh3k5/walletops/internal/token"
)

const (
	// DefaultBaseURL is the multichain Etherscan endpoint.
	DefaultBaseURL = "https://api.etherscan.io/v2/api"

	statusOK = "1"

	startBlock = "0"
	endBlock   = "99999999"
)

// messages the explorer uses in a status "0" envelope to say a query matched nothing
var noRecordsMessages = []string{
	"no transactions found",
	"no records found",
	"no token transfers found",
	"no internal transactions found",
	"no data found",
}

// Config describes the explorer deployment an APIClient talks to.
type Config struct {
	BaseURL string
	APIKey  string
	ChainID int64 // sent as the chainid parameter when non-zero
}

// APIClient implements Client over HTTP. Every call occupies one scheduler
// slot for its whole retry sequence.
type APIClient struct {
	doer      ctshttp.Doer
	config    Config
	scheduler *queue.Scheduler
	retrier   *retry.Executor
	calls     atomic.Int64
}

var _ Client = (*APIClient)(nil)

// NewAPIClient builds a client that sends its requests through the given scheduler and retry executor.
func NewAPIClient(
	doer ctshttp.Doer,
	config Config,
	scheduler *queue.Scheduler,
	retrier *retry.Executor,
) *APIClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	return &APIClient{
		doer:      doer,
		config:    config,
		scheduler: scheduler,
		retrier:   retrier,
	}
}

// CallCount reports how many HTTP round-trips have completed, retried attempts included.
func (c *APIClient) CallCount() int64 {
	return c.calls.Load()
}

// ResetCallCount sets the call counter back to zero.
func (c *APIClient) ResetCallCount() {
	c.calls.Store(0)
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type rawTransaction struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	Nonce           string `json:"nonce"`
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	Value           string `json:"value"`
	Gas             string `json:"gas"`
	GasPrice        string `json:"gasPrice"`
	GasUsed         string `json:"gasUsed"`
	IsError         string `json:"isError"`
	FunctionName    string `json:"functionName"`
	Type            string `json:"type"`
	TraceID         string `json:"traceId"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
	TokenID         string `json:"tokenID"`
	TokenValue      string `json:"tokenValue"`
}

type rawTokenInfo struct {
	ContractAddress string `json:"contractAddress"`
	TokenName       string `json:"tokenName"`
	Symbol          string `json:"symbol"`
	Divisor         string `json:"divisor"`
}

// GetTransactions retrieves a page of normal transactions.
func (c *APIClient) GetTransactions(ctx context.Context, query Query) ([]Transaction, error) {
	raws, err := list[rawTransaction](ctx, c, "txlist", c.accountParams("txlist", query))
	if err != nil {
		return nil, err
	}

	txns := make([]Transaction, 0, len(raws))
	for _, raw := range raws {
		fields, err := parseCommon(raw)
		if err != nil {
			return nil, err
		}

		txns = append(txns, Transaction{
			Hash:            raw.Hash,
			BlockNumber:     fields.blockNumber,
			Timestamp:       fields.timestamp,
			Nonce:           parseUint(raw.Nonce),
			From:            raw.From,
			To:              raw.To,
			ContractAddress: raw.ContractAddress,
			Value:           fields.value,
			Gas:             parseUint(raw.Gas),
			GasPrice:        parseBigIntOrZero(raw.GasPrice),
			GasUsed:         parseUint(raw.GasUsed),
			IsError:         raw.IsError == "1",
			FunctionName:    raw.FunctionName,
		})
	}

	return txns, nil
}

// GetInternalTransactions retrieves a page of internal transactions.
func (c *APIClient) GetInternalTransactions(ctx context.Context, query Query) ([]InternalTransaction, error) {
	raws, err := list[rawTransaction](ctx, c, "txlistinternal", c.accountParams("txlistinternal", query))
	if err != nil {
		return nil, err
	}

	txns := make([]InternalTransaction, 0, len(raws))
	for _, raw := range raws {
		fields, err := parseCommon(raw)
		if err != nil {
			return nil, err
		}

		txns = append(txns, InternalTransaction{
			Hash:        raw.Hash,
			BlockNumber: fields.blockNumber,
			Timestamp:   fields.timestamp,
			From:        raw.From,
			To:          raw.To,
			Value:       fields.value,
			Type:        raw.Type,
			TraceID:     raw.TraceID,
			IsError:     raw.IsError == "1",
		})
	}

	return txns, nil
}

// GetTokenTransfers retrieves a page of token transfers of the given standard.
func (c *APIClient) GetTokenTransfers(
	ctx context.Context,
	standard TokenStandard,
	query Query,
) ([]TokenTransfer, error) {
	action := standard.action()
	raws, err := list[rawTransaction](ctx, c, action, c.accountParams(action, query))
	if err != nil {
		return nil, err
	}

	transfers := make([]TokenTransfer, 0, len(raws))
	for _, raw := range raws {
		if standard == ERC1155 {
			raw.Value = raw.TokenValue
		}

		fields, err := parseCommon(raw)
		if err != nil {
			return nil, err
		}

		transfer := TokenTransfer{
			Hash:            raw.Hash,
			BlockNumber:     fields.blockNumber,
			Timestamp:       fields.timestamp,
			From:            raw.From,
			To:              raw.To,
			ContractAddress: raw.ContractAddress,
			TokenID:         raw.TokenID,
			TokenName:       raw.TokenName,
			TokenSymbol:     raw.TokenSymbol,
			TokenDecimals:   int(parseUint(raw.TokenDecimal)),
		}
		if standard != ERC721 {
			transfer.Value = fields.value
		}

		transfers = append(transfers, transfer)
	}

	return transfers, nil
}

// GetTokenDetails looks up a token contract through the explorer's tokeninfo endpoint.
// It returns nil without an error if the explorer knows nothing about the contract.
func (c *APIClient) GetTokenDetails(ctx context.Context, contractAddress string) (*token.Details, error) {
	params := url.Values{}
	params.Set("module", "token")
	params.Set("action", "tokeninfo")
	params.Set("contractaddress", contractAddress)

	infos, err := list[rawTokenInfo](ctx, c, "tokeninfo", params)
	if err != nil {
		return nil, err
	}

	if len(infos) == 0 {
		return nil, nil
	}

	info := infos[0]
	details := &token.Details{
		Address: contractAddress,
		Name:    info.TokenName,
		Symbol:  info.Symbol,
	}

	if info.Divisor != "" {
		decimals, err := strconv.Atoi(info.Divisor)
		if err != nil {
			return nil, fmt.Errorf("invalid divisor '%s' for token '%s': %w", info.Divisor, contractAddress, err)
		}
		details.Decimals = decimals
	}

	return details, nil
}

func (c *APIClient) accountParams(action string, query Query) url.Values {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", action)
	params.Set("address", query.Address)
	if query.ContractAddress != "" {
		params.Set("contractaddress", query.ContractAddress)
	}
	params.Set("startblock", startBlock)
	params.Set("endblock", endBlock)
	params.Set("page", strconv.Itoa(query.Page))
	params.Set("offset", strconv.Itoa(query.Offset))
	params.Set("sort", "asc")

	return params
}

// list runs one logical explorer call and decodes its result as a list of T.
func list[T any](ctx context.Context, c *APIClient, action string, params url.Values) ([]T, error) {
	label := "explorer " + action
	if page := params.Get("page"); page != "" {
		label += " page " + page
	}

	result, err := queue.Enqueue(ctx, c.scheduler, label, func(ctx context.Context) (json.RawMessage, error) {
		return retry.Do(ctx, c.retrier, label, func(ctx context.Context, _ int) (json.RawMessage, error) {
			return c.roundTrip(ctx, action, params)
		})
	})
	if err != nil {
		return nil, err
	}

	return decodeList[T](result)
}

func (c *APIClient) roundTrip(ctx context.Context, action string, params url.Values) (json.RawMessage, error) {
	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}
	if c.config.ChainID != 0 {
		query.Set("chainid", strconv.FormatInt(c.config.ChainID, 10))
	}
	if c.config.APIKey != "" {
		query.Set("apikey", c.config.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", action, err)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	c.calls.Add(1)
	metrics.ExplorerCalls.WithLabelValues(action).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", action, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned status %d for %s", resp.StatusCode, action)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", action, err)
	}

	if env.Status == statusOK {
		return env.Result, nil
	}

	if isNoRecords(env) {
		return nil, nil
	}

	apiErr := &APIError{Message: env.Message}
	var detail string
	if err := json.Unmarshal(env.Result, &detail); err == nil {
		apiErr.Detail = detail
	}

	return nil, apiErr
}

func isNoRecords(env envelope) bool {
	trimmed := bytes.TrimSpace(env.Result)
	if bytes.Equal(trimmed, []byte("[]")) {
		return true
	}

	message := strings.ToLower(env.Message)
	for _, sentinel := range noRecordsMessages {
		if strings.Contains(message, sentinel) {
			return true
		}
	}

	return false
}

// decodeList accepts either a JSON array or a single JSON object.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '{' {
		var single T
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("failed to decode result object: %w", err)
		}

		return []T{single}, nil
	}

	var many []T
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return nil, fmt.Errorf("failed to decode result list: %w", err)
	}

	return many, nil
}

type commonFields struct {
	blockNumber uint64
	timestamp   time.Time
	value       *big.Int
}

func parseCommon(raw rawTransaction) (commonFields, error) {
	blockNumber, err := strconv.ParseUint(raw.BlockNumber, 10, 64)
	if err != nil {
		return commonFields{}, fmt.Errorf("invalid block number '%s' in transaction '%s': %w", raw.BlockNumber, raw.Hash, err)
	}

	unix, err := strconv.ParseInt(raw.TimeStamp, 10, 64)
	if err != nil {
		return commonFields{}, fmt.Errorf("invalid timestamp '%s' in transaction '%s': %w", raw.TimeStamp, raw.Hash, err)
	}

	value := new(big.Int)
	if raw.Value != "" {
		value, err = ctsbig.BigIntFromString(raw.Value)
		if err != nil {
			return commonFields{}, fmt.Errorf("invalid value in transaction '%s': %w", raw.Hash, err)
		}
	}

	return commonFields{
		blockNumber: blockNumber,
		timestamp:   time.Unix(unix, 0).UTC(),
		value:       value,
	}, nil
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)

	return v
}

func parseBigIntOrZero(s string) *big.Int {
	v, err := ctsbig.BigIntFromString(s)
	if err != nil {
		return new(big.Int)
	}

	return v
}
