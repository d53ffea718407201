package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/jrh3k5/walletops/internal/batch"
	"github.com/jrh3k5/walletops/internal/token"
)

// DefaultReceiptPollInterval is how often a pending transaction's receipt is requested.
const DefaultReceiptPollInterval = 2 * time.Second

// Config describes the network, the sending wallet and the token being sent.
type Config struct {
	RPCURL       string
	PrivateKey   string // hex, with or without 0x
	TokenAddress string
	// ChainID is read from the node when zero.
	ChainID             int64
	ReceiptPollInterval time.Duration
}

// Client sends ERC-20 transfers through a JSON-RPC node. It implements batch.Chain.
type Client struct {
	eth          *ethclient.Client
	key          *ecdsa.PrivateKey
	sender       common.Address
	token        common.Address
	chainID      *big.Int
	pollInterval time.Duration
}

var _ batch.Chain = (*Client)(nil)

// Dial connects to the configured node using the given HTTP client.
func Dial(ctx context.Context, httpClient *http.Client, config Config) (*Client, error) {
	if !common.IsHexAddress(config.TokenAddress) {
		return nil, fmt.Errorf("invalid token address: '%s'", config.TokenAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(config.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	rpcClient, err := rpc.DialHTTPWithClient(config.RPCURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC node: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID := big.NewInt(config.ChainID)
	if config.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()

			return nil, fmt.Errorf("failed to read chain ID: %w", err)
		}
	}

	pollInterval := config.ReceiptPollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultReceiptPollInterval
	}

	client := &Client{
		eth:          eth,
		key:          key,
		sender:       crypto.PubkeyToAddress(key.PublicKey),
		token:        common.HexToAddress(config.TokenAddress),
		chainID:      chainID,
		pollInterval: pollInterval,
	}

	slog.InfoContext(ctx, fmt.Sprintf("Connected to chain %s as %s", chainID, client.sender.Hex()), "token", client.token.Hex())

	return client, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID is the ID transactions are signed for.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) Sender() string {
	return c.sender.Hex()
}

func (c *Client) Token() string {
	return c.token.Hex()
}

func (c *Client) TokenDecimals(ctx context.Context) (int, error) {
	values, err := c.callToken(ctx, "decimals")
	if err != nil {
		return 0, err
	}

	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals() result type %T", values[0])
	}

	return int(decimals), nil
}

func (c *Client) TokenBalance(ctx context.Context, owner string) (*big.Int, error) {
	values, err := c.callToken(ctx, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}

	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf() result type %T", values[0])
	}

	return balance, nil
}

func (c *Client) NativeBalance(ctx context.Context, owner string) (*big.Int, error) {
	balance, err := c.eth.BalanceAt(ctx, common.HexToAddress(owner), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read native balance of '%s': %w", owner, err)
	}

	return balance, nil
}

func (c *Client) PendingNonce(ctx context.Context, owner string) (uint64, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, common.HexToAddress(owner))
	if err != nil {
		return 0, fmt.Errorf("failed to read pending nonce of '%s': %w", owner, err)
	}

	return nonce, nil
}

func (c *Client) EstimateTransferGas(ctx context.Context, to string, amount *big.Int) (uint64, error) {
	data, err := token.ERC20ABI.Pack("transfer", common.HexToAddress(to), amount)
	if err != nil {
		return 0, fmt.Errorf("pack transfer call: %w", err)
	}

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.sender,
		To:   &c.token,
		Data: data,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas of transfer to '%s': %w", to, err)
	}

	return gas, nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read gas price: %w", err)
	}

	return price, nil
}

// SendTransfer signs a legacy transaction calling transfer() on the token and broadcasts it.
// The hash is returned even when broadcasting fails.
func (c *Client) SendTransfer(ctx context.Context, request batch.TransferRequest) (string, error) {
	data, err := token.ERC20ABI.Pack("transfer", common.HexToAddress(request.To), request.Amount)
	if err != nil {
		return "", fmt.Errorf("pack transfer call: %w", err)
	}

	signed, err := types.SignNewTx(c.key, types.LatestSignerForChainID(c.chainID), &types.LegacyTx{
		Nonce:    request.Nonce,
		To:       &c.token,
		Value:    big.NewInt(0),
		Gas:      request.GasLimit,
		GasPrice: request.GasPrice,
		Data:     data,
	})
	if err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return signed.Hash().Hex(), fmt.Errorf("failed to broadcast transfer to '%s': %w", request.To, err)
	}

	slog.DebugContext(ctx, fmt.Sprintf("Broadcast %s", signed.Hash().Hex()), "nonce", request.Nonce)

	return signed.Hash().Hex(), nil
}

// WaitForReceipt polls for the transaction's receipt until it is mined or ctx ends.
// Errors other than the receipt not existing yet are returned immediately.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string) (*batch.Receipt, error) {
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return toReceipt(receipt), nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up waiting for %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func toReceipt(receipt *types.Receipt) *batch.Receipt {
	converted := &batch.Receipt{
		GasUsed:           receipt.GasUsed,
		EffectiveGasPrice: receipt.EffectiveGasPrice,
		Succeeded:         receipt.Status == types.ReceiptStatusSuccessful,
	}
	if receipt.BlockNumber != nil {
		converted.BlockNumber = receipt.BlockNumber.Uint64()
	}

	return converted
}

func (c *Client) callToken(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := token.ERC20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s call: %w", method, err)
	}

	output, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s() on '%s': %w", method, c.token.Hex(), err)
	}

	values, err := token.ERC20ABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s() result: %w", method, err)
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("%s() returned no values", method)
	}

	return values, nil
}
