package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// moneyPlaces is the number of fractional digits kept on every stored amount.
const moneyPlaces = 2

// ParseMoney converts a decimal string amount in major units to a Decimal.
// Remote payloads and the static catalog both use this format ("15.99").
// Empty or malformed input yields zero; callers validate prices separately.
// Examples: "15.99" → 15.99, "2" → 2.00, "" → 0
func ParseMoney(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RoundMoney rounds half away from zero to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// FormatMoney renders an amount with exactly two fractional digits.
// Examples: 35.98 → "35.98", 2 → "2.00"
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(moneyPlaces)
}

// Cents converts an amount to integer minor units, for APIs that want them.
func Cents(d decimal.Decimal) int64 {
	return RoundMoney(d).Shift(moneyPlaces).IntPart()
}
