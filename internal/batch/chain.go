package batch

import (
	"context"
	"math/big"
)

// Chain is what the engine needs from the network and the sending wallet.
// Amounts are in the token's smallest unit; native amounts are in wei.
type Chain interface {
	// Sender is the address transfers are sent from.
	Sender() string
	// Token is the address of the token contract being sent.
	Token() string

	TokenDecimals(ctx context.Context) (int, error)
	TokenBalance(ctx context.Context, owner string) (*big.Int, error)
	NativeBalance(ctx context.Context, owner string) (*big.Int, error)
	// PendingNonce is the next nonce for owner, counting transactions still in the mempool.
	PendingNonce(ctx context.Context, owner string) (uint64, error)

	EstimateTransferGas(ctx context.Context, to string, amount *big.Int) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)

	// SendTransfer signs and broadcasts a token transfer and returns its hash.
	// If the transfer was signed but broadcasting failed, the hash is returned
	// alongside the error, since the network may have accepted it anyway.
	SendTransfer(ctx context.Context, request TransferRequest) (string, error)
	// WaitForReceipt blocks until the transaction is mined or ctx ends.
	WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error)
}

// TransferRequest is one token transfer with every transaction field fixed by the engine.
type TransferRequest struct {
	To       string
	Amount   *big.Int
	Nonce    uint64
	GasLimit uint64
	GasPrice *big.Int
}

// Receipt is the mined result of a transaction.
type Receipt struct {
	BlockNumber       uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	Succeeded         bool
}
