// Package money holds the exact-decimal helpers shared by both invoice flavours.
package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Scale is the number of fractional digits stored for currency values.
const Scale = 2

// Sum adds amounts exactly. An empty set sums to zero.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return total
}

// Remaining returns total minus paid, floored at zero.
func Remaining(total, paid decimal.Decimal) decimal.Decimal {
	remaining := total.Sub(paid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Round2 rounds half away from zero to two fractional digits.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// FormatUSD renders d the way notifications show dollar amounts, e.g. "$1,234.50".
func FormatUSD(d decimal.Decimal) string {
	scale, _ := currency.Standard.Rounding(currency.USD)
	rounded := d.Round(int32(scale))
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}
	p := message.NewPrinter(language.AmericanEnglish)
	whole := rounded.Truncate(0)
	cents := rounded.Sub(whole).Shift(int32(scale)).IntPart()
	return sign + "$" + p.Sprintf("%d", whole.IntPart()) + p.Sprintf(".%02d", cents)
}
