package token

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	ctshttp "github.com/jrh3k5/walletops/internal/http"
)

const bytes32Length = 32

// RPCDetailsService implements DetailsService by calling an RPC node.
type RPCDetailsService struct {
	doer   ctshttp.Doer
	rpcURL string
}

// NewRPCDetailsService returns a DetailsService that uses the provided HTTP client
// and RPC node URL to perform JSON-RPC calls.
func NewRPCDetailsService(client ctshttp.Doer, rpcURL string) *RPCDetailsService {
	return &RPCDetailsService{doer: client, rpcURL: rpcURL}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Result  string    `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

// GetTokenDetails fetches the token decimals by calling the `decimals()` ERC20 method
// using `eth_call` on the RPC node. If no decimals are returned, it returns (nil, nil).
// The name and symbol are read the same way; contracts that do not implement them
// yield details with those fields left empty.
func (r *RPCDetailsService) GetTokenDetails(
	ctx context.Context,
	contractAddress string,
) (*Details, error) {
	if r.doer == nil {
		return nil, errors.New("http client is nil")
	}

	decimalsData, err := r.call(ctx, contractAddress, "decimals")
	if err != nil {
		return nil, err
	}

	if len(decimalsData) == 0 {
		slog.DebugContext(
			ctx,
			fmt.Sprintf("decimals() of '%s' returned no data; returning nil for the token details", contractAddress),
		)

		return nil, nil
	}

	bi := new(big.Int).SetBytes(decimalsData)
	if bi.BitLen() == 0 {
		slog.DebugContext(
			ctx,
			"Response is zero after decoding; returning nil for the token details",
		)

		return nil, nil
	}

	if bi.Cmp(big.NewInt(int64(^uint(0)>>1))) == 1 { // bigger than max int
		return nil, fmt.Errorf("decimals value too large: %s", bi.String())
	}

	details := &Details{
		Address:  contractAddress,
		Decimals: int(bi.Int64()),
	}

	details.Name = r.optionalString(ctx, contractAddress, "name")
	details.Symbol = r.optionalString(ctx, contractAddress, "symbol")

	return details, nil
}

func (r *RPCDetailsService) optionalString(ctx context.Context, contractAddress string, method string) string {
	data, err := r.call(ctx, contractAddress, method)
	if err != nil || len(data) == 0 {
		slog.DebugContext(ctx, fmt.Sprintf("Unable to read %s() of '%s'", method, contractAddress), "error", err)

		return ""
	}

	values, err := ERC20ABI.Unpack(method, data)
	if err != nil || len(values) == 0 {
		// some older tokens return bytes32 rather than string
		if len(data) == bytes32Length {
			return strings.TrimRight(string(data), "\x00")
		}

		return ""
	}

	value, _ := values[0].(string)

	return value
}

// call performs an eth_call of a zero-argument ERC20 method and returns the raw result bytes.
func (r *RPCDetailsService) call(ctx context.Context, contractAddress string, method string) ([]byte, error) {
	input, err := ERC20ABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s call: %w", method, err)
	}

	callObj := map[string]string{
		"to":   contractAddress,
		"data": "0x" + hex.EncodeToString(input),
	}

	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_call",
		Params:  []any{callObj, "latest"},
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.rpcURL, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.doer.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc node returned status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error: %d %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	hexStr := strings.TrimPrefix(rpcResp.Result, "0x")
	if hexStr == "" {
		return nil, nil
	}

	// ensure even length for hex decode
	if len(hexStr)%2 == 1 {
		hexStr = "0" + hexStr
	}

	decoded, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, fmt.Errorf("decode hex result: %w", err)
	}

	return decoded, nil
}
