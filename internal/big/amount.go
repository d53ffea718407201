package big

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const base10 = 10

// separators are the thousands separators accepted in numbers.
var separators = strings.NewReplacer(",", "", "_", "", " ", "")

// BigIntFromString parses an integer amount in base units, such as a raw explorer value.
func BigIntFromString(s string) (*big.Int, error) {
	sanitized := separators.Replace(strings.TrimSpace(s))
	if sanitized == "" {
		return nil, fmt.Errorf("invalid integer string: '%s'", s)
	}

	bigInt, isValid := new(big.Int).SetString(sanitized, base10)
	if !isValid {
		return nil, fmt.Errorf("invalid integer string: '%s'", s)
	}

	return bigInt, nil
}

// ParseAmount parses a human-readable token amount such as "12.5" or "1,000".
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(separators.Replace(strings.TrimSpace(s)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount '%s': %w", s, err)
	}

	return amount, nil
}

// ToBaseUnits converts a human-readable amount into the token's smallest unit.
// It fails if the amount has more fractional digits than the token supports.
func ToBaseUnits(amount decimal.Decimal, decimals int) (*big.Int, error) {
	shifted := amount.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount.String(), decimals)
	}

	return shifted.BigInt(), nil
}

// FromBaseUnits converts an amount in the token's smallest unit into whole tokens.
func FromBaseUnits(value *big.Int, decimals int) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}

	return decimal.NewFromBigInt(value, -int32(decimals))
}
