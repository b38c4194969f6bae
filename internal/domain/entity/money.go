package entity

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of decimal places kept for rupee amounts
const AmountPlaces = 2

// ParseAmount parses a plain decimal amount such as "1250.50" and rounds it to paise.
// NaN, infinities and other non-numeric text are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d.Round(AmountPlaces), nil
}

// AmountFromCents converts a stored minor-unit amount back to a decimal
func AmountFromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -AmountPlaces)
}

// AmountCents converts an amount to minor units for storage, rounding half away from zero
func AmountCents(d decimal.Decimal) int64 {
	return d.Round(AmountPlaces).Shift(AmountPlaces).IntPart()
}

// FormatAmount renders an amount with exactly two decimals
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountPlaces)
}
