package ledger

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var maxGrouped = decimal.NewFromInt(math.MaxInt64)

// FormatAmount renders an amount with grouped digits and at most two
// fractional digits, prefixed by symbol: "৳ 1,500", "৳ 12.5".
func FormatAmount(symbol string, amount decimal.Decimal) string {
	rounded := amount.Round(2)
	whole := rounded.Abs().Truncate(0)

	var b strings.Builder
	if rounded.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString(groupDigits(whole))
	if frac := rounded.Abs().Sub(whole); !frac.IsZero() {
		b.WriteString(strings.TrimPrefix(frac.String(), "0"))
	}

	if symbol == "" {
		return b.String()
	}
	return symbol + " " + b.String()
}

// groupDigits inserts thousands separators into a non-negative integer.
func groupDigits(whole decimal.Decimal) string {
	if whole.LessThanOrEqual(maxGrouped) {
		return message.NewPrinter(language.English).Sprint(number.Decimal(whole.IntPart()))
	}
	digits := whole.String()
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
