package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCurrency(t *testing.T) {
	tests := []struct {
		amount    float64
		code      string
		wantValue string
		wantUnit  string
	}{
		{1500000, "GBP", "1.5", "million"},
		{2300000000, "USD", "2.3", "billion"},
		{4e12, "GBP", "4.0", "trillion"},
		{999999, "GBP", "999,999", ""},
		{0, "GBP", "0", ""},
	}
	for _, tt := range tests {
		got := Currency(tt.amount, tt.code)
		assert.Contains(t, got.Value, tt.wantValue)
		assert.Equal(t, tt.wantUnit, got.Unit)
	}
}

func TestCurrencySymbol(t *testing.T) {
	assert.Contains(t, Currency(10, "GBP").Value, "£")
	assert.Contains(t, Currency(10, "USD").Value, "$")
	assert.Contains(t, Currency(10, "EUR").Value, "€")
	// Unknown codes fall back to the code itself.
	assert.Equal(t, "XYZQ10", Currency(10, "xyzq").Value)
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "£1.5 million", Money{Value: "£1.5", Unit: "million"}.String())
	assert.Equal(t, "£12", Money{Value: "£12"}.String())
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "1,234,567", Number(1234567))
	assert.Equal(t, "12", Number(12))
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "1 file", Plural(1, "file"))
	assert.Equal(t, "3 publishers", Plural(3, "publisher"))
	assert.Equal(t, "currencies", PluralWord(2, "currency"))
	assert.Equal(t, "grant", PluralWord(1, "grant"))
}

func TestAgo(t *testing.T) {
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "3 days ago", Ago(now.AddDate(0, 0, -3), now))
}

func TestDate(t *testing.T) {
	assert.Equal(t, "1 Jul 2020", Date(time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.Empty(t, Date(time.Time{}))
}
