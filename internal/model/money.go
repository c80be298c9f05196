package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string from an upstream payload to a Decimal.
// Returns ok=false for empty or malformed input so callers can tell
// "missing" apart from "zero".
// Examples: "99.00" → 99.00, " 12.5 " → 12.5, "" → (0, false)
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// AmountOrZero is ParseAmount without the presence flag.
func AmountOrZero(s string) decimal.Decimal {
	d, _ := ParseAmount(s)
	return d
}

// FormatAmount renders a price the way the store persists it: two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
