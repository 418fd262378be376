package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToCents converts a currency amount to integer cents, rounding half away
// from zero. This is the only place amounts are rounded.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FormatPrice renders an amount with two decimals and a comma separator (pt-BR)
func FormatPrice(amount decimal.Decimal) string {
	return strings.Replace(amount.StringFixed(2), ".", ",", 1)
}
