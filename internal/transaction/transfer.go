package transaction

import (
	"math/big"
	"time"

	ctsbig "github.com/jrh3k5/walletops/internal/big"
	"github.com/jrh3k5/walletops/internal/etherscan"
	"github.com/jrh3k5/walletops/internal/token"
)

// TokenTransfer is a token movement of any supported standard.
type TokenTransfer struct {
	Standard        etherscan.TokenStandard `json:"standard"`
	ContractAddress string                  `json:"contractAddress"`
	FromAddress     string                  `json:"from"`
	ToAddress       string                  `json:"to"`
	Amount          *big.Int                `json:"value,omitempty"`   // in the token's base unit; absent for ERC-721
	TokenID         string                  `json:"tokenId,omitempty"` // absent for ERC-20
	TransactionHash string                  `json:"hash"`
	BlockNumber     uint64                  `json:"blockNumber"`
	ExecutionTime   time.Time               `json:"timestamp"`
	TokenName       string                  `json:"tokenName,omitempty"`
	TokenSymbol     string                  `json:"tokenSymbol,omitempty"`
	TokenDecimals   int                     `json:"tokenDecimals"`
	Metadata        *token.Details          `json:"metadata,omitempty"`
}

func newTokenTransfer(standard etherscan.TokenStandard, raw etherscan.TokenTransfer) TokenTransfer {
	return TokenTransfer{
		Standard:        standard,
		ContractAddress: raw.ContractAddress,
		FromAddress:     raw.From,
		ToAddress:       raw.To,
		Amount:          raw.Value,
		TokenID:         raw.TokenID,
		TransactionHash: raw.Hash,
		BlockNumber:     raw.BlockNumber,
		ExecutionTime:   raw.Timestamp,
		TokenName:       raw.TokenName,
		TokenSymbol:     raw.TokenSymbol,
		TokenDecimals:   raw.TokenDecimals,
	}
}

// FormatAmount renders the amount in whole tokens using the given number of decimals.
func (t *TokenTransfer) FormatAmount(decimals int) string {
	if t.Amount == nil {
		return "0"
	}

	return ctsbig.FromBaseUnits(t.Amount, decimals).String()
}

// Decimals prefers looked-up metadata over what the explorer attached to the transfer.
func (t *TokenTransfer) Decimals() int {
	if t.Metadata != nil {
		return t.Metadata.Decimals
	}

	return t.TokenDecimals
}
