package etherscan

import (
	"math/big"
	"time"
)

// TokenStandard identifies a token contract interface.
type TokenStandard string

const (
	ERC20   TokenStandard = "ERC-20"
	ERC721  TokenStandard = "ERC-721"
	ERC1155 TokenStandard = "ERC-1155"
)

func (s TokenStandard) action() string {
	switch s {
	case ERC721:
		return "tokennfttx"
	case ERC1155:
		return "token1155tx"
	default:
		return "tokentx"
	}
}

// Transaction is a normal (externally-owned account initiated) transaction.
type Transaction struct {
	Hash            string    `json:"hash"`
	BlockNumber     uint64    `json:"blockNumber"`
	Timestamp       time.Time `json:"timestamp"`
	Nonce           uint64    `json:"nonce"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	ContractAddress string    `json:"contractAddress,omitempty"` // set when the transaction deployed a contract
	Value           *big.Int  `json:"value"`                     // wei
	Gas             uint64    `json:"gas"`
	GasPrice        *big.Int  `json:"gasPrice"`
	GasUsed         uint64    `json:"gasUsed"`
	IsError         bool      `json:"isError"`
	FunctionName    string    `json:"functionName,omitempty"`
}

// InternalTransaction is a value transfer performed by a contract during another transaction.
type InternalTransaction struct {
	Hash        string    `json:"hash"`
	BlockNumber uint64    `json:"blockNumber"`
	Timestamp   time.Time `json:"timestamp"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       *big.Int  `json:"value"` // wei
	Type        string    `json:"type,omitempty"`
	TraceID     string    `json:"traceId,omitempty"`
	IsError     bool      `json:"isError"`
}

// TokenTransfer is a token movement reported by the explorer. ERC-20 transfers carry a
// Value, ERC-721 transfers carry a TokenID, and ERC-1155 transfers carry both.
type TokenTransfer struct {
	Hash            string
	BlockNumber     uint64
	Timestamp       time.Time
	From            string
	To              string
	ContractAddress string
	Value           *big.Int
	TokenID         string
	TokenName       string
	TokenSymbol     string
	TokenDecimals   int
}
