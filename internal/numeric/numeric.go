// Package numeric provides arbitrary-precision amount helpers used across the client core.
//
// Monetary quantities are integers in the coin's base unit; the wire and UI
// representation is an exact decimal string at the coin's precision. Floating
// point never touches an amount.
package numeric

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts an exact decimal string into base units at the given scale.
// On failure it returns (nil, false). Negative values and excess fractional
// digits are rejected: amounts are structurally non-negative.
func ParseAmount(s string, scale int) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, false
	}
	whole, frac := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > scale {
		// More fractional digits than the coin precision allows.
		if strings.TrimRight(frac[scale:], "0") != "" {
			return nil, false
		}
		frac = frac[:scale]
	}
	frac += strings.Repeat("0", scale-len(frac))
	out, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || out.Sign() < 0 {
		return nil, false
	}
	return out, true
}

// FormatAmount converts base units into a fixed-scale decimal string.
// When a is nil the empty string is returned.
func FormatAmount(a *big.Int, scale int) string {
	if a == nil {
		return ""
	}
	s := a.String()
	if scale == 0 {
		return s
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= scale {
		s = strings.Repeat("0", scale-len(s)+1) + s
	}
	dot := len(s) - scale
	out := s[:dot] + "." + s[dot:]
	if neg {
		out = "-" + out
	}
	return out
}

// ParseRate converts a decimal rate string (e.g. a fee schedule entry) into a
// decimal value. On failure it returns (zero, false).
func ParseRate(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ApplyRate multiplies an integer amount by a decimal rate, truncating toward
// zero back to base units. A nil amount yields zero.
func ApplyRate(amount *big.Int, rate decimal.Decimal) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	d := decimal.NewFromBigInt(amount, 0).Mul(rate)
	return d.Truncate(0).BigInt()
}

// Discounted reduces a fee rate by the user discount fraction (0 <= discount <= 1).
// Out-of-range discounts are clamped.
func Discounted(rate decimal.Decimal, discount decimal.Decimal) decimal.Decimal {
	one := decimal.New(1, 0)
	if discount.IsNegative() {
		discount = decimal.Decimal{}
	}
	if discount.GreaterThan(one) {
		discount = one
	}
	return rate.Mul(one.Sub(discount))
}

// Clone returns a defensive copy of a. A nil input yields zero.
func Clone(a *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a)
}

// Sum adds the given amounts into a fresh value, skipping nil entries.
func Sum(amounts ...*big.Int) *big.Int {
	total := new(big.Int)
	for _, a := range amounts {
		if a != nil {
			total.Add(total, a)
		}
	}
	return total
}
