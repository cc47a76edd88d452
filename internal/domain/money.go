package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a nullable decimal amount in dollars. Feed values and catalog
// columns are both converted to Money before any comparison.
type Money = decimal.NullDecimal

var moneyStripper = strings.NewReplacer("$", "", ",", "", " ", "")

// ParseMoney parses values such as "12.5", "$1,234.56" or "". Empty or
// unparsable input yields a null Money. Amounts are rounded to cents, the
// precision the catalog stores.
func ParseMoney(s string) Money {
	cleaned := moneyStripper.Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return Money{}
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Money{}
	}
	return NewMoney(d.Round(2))
}

// NewMoney wraps a decimal as a present Money value
func NewMoney(d decimal.Decimal) Money {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// MoneyOrZero returns the amount, or zero when absent
func MoneyOrZero(m Money) decimal.Decimal {
	if !m.Valid {
		return decimal.Zero
	}
	return m.Decimal
}

// MoneyEqual compares numerically; two absent values are equal.
func MoneyEqual(a, b Money) bool {
	if a.Valid != b.Valid {
		return false
	}
	if !a.Valid {
		return true
	}
	return a.Decimal.Equal(b.Decimal)
}

// FormatCurrency renders d as "$1,234.56", rounded to cents.
func FormatCurrency(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac := fixed[:len(fixed)-3], fixed[len(fixed)-2:]

	var b strings.Builder
	if d.Round(2).IsNegative() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// FormatMoney renders a present value with FormatCurrency and returns nil
// for an absent one, so JSON encodes it as null.
func FormatMoney(m Money) *string {
	if !m.Valid {
		return nil
	}
	s := FormatCurrency(m.Decimal)
	return &s
}
