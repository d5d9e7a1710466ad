package lottery

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amounts are expressed in the base currency unit (ether). Textual amounts
// may carry a unit suffix.
var units = map[string]int32{
	"wei":   -18,
	"gwei":  -9,
	"ether": 0,
	"eth":   0,
}

// DefaultStake is the stake required to enter a round.
var DefaultStake = decimal.RequireFromString("0.01")

// ParseAmount parses amounts such as "0.01", "0.01 ether" or "20 wei" into
// base units.
func ParseAmount(s string) (decimal.Decimal, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", s)
	}
	d, err := decimal.NewFromString(fields[0])
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if len(fields) == 1 {
		return d, nil
	}
	exp, ok := units[strings.ToLower(fields[1])]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("unknown unit %q", fields[1])
	}
	return d.Shift(exp), nil
}

// FormatWei renders an amount in wei.
func FormatWei(d decimal.Decimal) string {
	return d.Shift(18).String() + " wei"
}
