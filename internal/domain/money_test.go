package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		want      string
	}{
		{name: "plain number", input: "12.5", wantValid: true, want: "12.5"},
		{name: "dollar sign", input: "$7.99", wantValid: true, want: "7.99"},
		{name: "thousands separator", input: "$1,234.56", wantValid: true, want: "1234.56"},
		{name: "surrounding whitespace", input: "  $3.00 ", wantValid: true, want: "3"},
		{name: "sub-cent rounds half up", input: "12.345", wantValid: true, want: "12.35"},
		{name: "sub-cent rounds down", input: "$0.994", wantValid: true, want: "0.99"},
		{name: "empty", input: "", wantValid: false},
		{name: "only symbol", input: "$", wantValid: false},
		{name: "garbage", input: "N/A", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMoney(tt.input)
			assert.Equal(t, tt.wantValid, got.Valid)
			if tt.wantValid {
				assert.True(t, got.Decimal.Equal(decimal.RequireFromString(tt.want)),
					"ParseMoney(%q) = %s, want %s", tt.input, got.Decimal, tt.want)
			}
		})
	}
}

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0", "$0.00"},
		{"5", "$5.00"},
		{"12.345", "$12.35"},
		{"999.99", "$999.99"},
		{"1000", "$1,000.00"},
		{"1234567.891", "$1,234,567.89"},
		{"-42.1", "-$42.10"},
		{"-0.001", "$0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCurrency(decimal.RequireFromString(tt.input)))
		})
	}
}

func TestFormatCurrency_RoundTrip(t *testing.T) {
	for _, raw := range []string{"0.10", "19.99", "1,250.00", "$75,000.01"} {
		parsed := ParseMoney(raw)
		require.True(t, parsed.Valid, raw)

		formatted := FormatCurrency(parsed.Decimal)
		reparsed := ParseMoney(formatted)
		require.True(t, reparsed.Valid, formatted)
		assert.Equal(t, formatted, FormatCurrency(reparsed.Decimal))
	}
}

func TestMoneyEqual(t *testing.T) {
	ten := ParseMoney("10")
	tenCents := ParseMoney("10.00")
	twelve := ParseMoney("12")
	absent := Money{}

	assert.True(t, MoneyEqual(ten, tenCents), "numeric comparison ignores scale")
	assert.False(t, MoneyEqual(ten, twelve))
	assert.True(t, MoneyEqual(absent, Money{}))
	assert.False(t, MoneyEqual(ten, absent))
	assert.False(t, MoneyEqual(absent, ten))
}

func TestFormatMoney(t *testing.T) {
	assert.Nil(t, FormatMoney(Money{}))

	got := FormatMoney(ParseMoney("49.5"))
	require.NotNil(t, got)
	assert.Equal(t, "$49.50", *got)
}

func TestMatchQuery(t *testing.T) {
	t.Run("normalizes case and whitespace", func(t *testing.T) {
		q := MatchQuery{ConsoleType: "  PlayStation 2 ", ProductName: "Final Fantasy X"}.Normalized()
		assert.Equal(t, "playstation 2", q.ConsoleType)
		assert.Equal(t, "final fantasy x", q.ProductName)
	})

	t.Run("rejects blank fields", func(t *testing.T) {
		assert.ErrorIs(t, MatchQuery{ConsoleType: "", ProductName: "zelda"}.Validate(), ErrInvalidQuery)
		assert.ErrorIs(t, MatchQuery{ConsoleType: "n64", ProductName: "   "}.Validate(), ErrInvalidQuery)
		assert.NoError(t, MatchQuery{ConsoleType: "n64", ProductName: "zelda"}.Validate())
	})
}

func TestReconciliationError(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("run failed: %w", &ReconciliationError{
		BatchIndex: 2,
		FirstKey:   RecordKey{Title: "A", Console: "X"},
		LastKey:    RecordKey{Title: "B", Console: "X"},
		Size:       1000,
		Err:        cause,
	})

	assert.ErrorIs(t, err, ErrReconciliation)
	assert.ErrorIs(t, err, cause)

	var recErr *ReconciliationError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, 2, recErr.BatchIndex)
	assert.Contains(t, err.Error(), "batch 2")
	assert.Contains(t, err.Error(), `"X"/"A"`)
}

func TestExternalPriceRecord_SamePrices(t *testing.T) {
	base := ExternalPriceRecord{Title: "A", Console: "X", LoosePrice: ParseMoney("10"), CIBPrice: ParseMoney("20")}

	same := base
	same.LoosePrice = ParseMoney("10.00")
	assert.True(t, base.SamePrices(same))

	changed := base
	changed.NewPrice = ParseMoney("30")
	assert.False(t, base.SamePrices(changed))
}
