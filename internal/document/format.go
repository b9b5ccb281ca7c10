package document

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/cohabit/internal/model"
)

// FormatMoney renders an amount as "$1,234.5 CAD": thousands separators,
// rounded to cents, trailing fractional zeros dropped.
func FormatMoney(d decimal.Decimal) string {
	d = d.Round(2)
	abs := d.Abs()
	whole := abs.Truncate(0)

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	b.WriteString(humanize.BigComma(whole.BigInt()))
	if frac := abs.Sub(whole); !frac.IsZero() {
		b.WriteString(strings.TrimPrefix(frac.String(), "0"))
	}
	b.WriteString(" CAD")
	return b.String()
}

func moneyOr(d *decimal.Decimal, placeholder string) string {
	if d == nil {
		return placeholder
	}
	return FormatMoney(*d)
}

func sum(values ...*decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		if v != nil {
			total = total.Add(*v)
		}
	}
	return total
}

// longDate formats a date for prose; absent dates are "".
func longDate(d model.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Long()
}

func textOr(s, placeholder string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}

func rawDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}

func rawDate(d model.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}
