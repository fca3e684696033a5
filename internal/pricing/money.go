package pricing

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value in major currency units.
type Money = decimal.Decimal

// Zero is the zero amount.
var Zero = decimal.Zero

// Round2 rounds an amount half away from zero to two decimal places.
func Round2(m Money) Money {
	return m.Round(2)
}

// MustParse converts a literal into Money and panics when it is malformed.
// Intended for package-level tables and tests.
func MustParse(value string) Money {
	return decimal.RequireFromString(value)
}

// ParseAmount converts an untrusted value into a non-negative amount. Values
// that are missing, non-numeric, NaN or negative resolve to zero.
func ParseAmount(v any) Money {
	switch x := v.(type) {
	case nil:
		return Zero
	case decimal.Decimal:
		return NonNegative(x)
	case *decimal.Decimal:
		if x == nil {
			return Zero
		}
		return NonNegative(*x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Zero
		}
		return NonNegative(decimal.NewFromFloat(x))
	case float32:
		return ParseAmount(float64(x))
	case int:
		return NonNegative(decimal.NewFromInt(int64(x)))
	case int64:
		return NonNegative(decimal.NewFromInt(x))
	case json.Number:
		return ParseAmount(x.String())
	case string:
		trimmed := strings.TrimPrefix(strings.TrimSpace(x), "$")
		if trimmed == "" {
			return Zero
		}
		d, err := decimal.NewFromString(trimmed)
		if err != nil {
			return Zero
		}
		return NonNegative(d)
	default:
		return Zero
	}
}

// NonNegative clamps negative amounts to zero.
func NonNegative(m Money) Money {
	if m.IsNegative() {
		return Zero
	}
	return m
}

// Min returns the smaller of two amounts.
func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ParseDecimal strictly parses a decimal literal, accepting an optional
// leading "$".
func ParseDecimal(value string) (Money, error) {
	return decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(value), "$"))
}
