package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney renders an amount with two decimal places, thousands separators,
// and the currency code, e.g. "1,250.00 USD".
func FormatMoney(amount decimal.Decimal, currency string) string {
	fixed := amount.StringFixed(2)

	negative := strings.HasPrefix(fixed, "-")
	if negative {
		fixed = fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}

	out := b.String() + "." + frac
	if negative {
		out = "-" + out
	}
	if currency != "" {
		out += " " + currency
	}
	return out
}
