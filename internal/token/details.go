package token

import "context"

// Details describes a token contract.
type Details struct {
	Address  string `json:"address"`
	Name     string `json:"name,omitempty"`   // e.g. "USD Coin"
	Symbol   string `json:"symbol,omitempty"` // e.g. "USDC"
	Decimals int    `json:"decimals"`         // power of ten between the base unit and one whole token
}

// DetailsService looks up token details.
type DetailsService interface {
	// GetTokenDetails retrieves the details of the given contract.
	// If the contract has no details, it returns nil without an error.
	GetTokenDetails(ctx context.Context, contractAddress string) (*Details, error)
}
