// Package format renders amounts, counts and dates for display.
package format

import (
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.BritishEnglish)

// Money is a display amount split into the figure and its scale word, for
// example "£1.5" and "million".
type Money struct {
	Value string
	Unit  string
}

func (m Money) String() string {
	if m.Unit == "" {
		return m.Value
	}
	return m.Value + " " + m.Unit
}

var scales = []struct {
	size float64
	word string
}{
	{1e12, "trillion"},
	{1e9, "billion"},
	{1e6, "million"},
}

// Symbol returns the narrow currency symbol, or the code itself when the
// code is not an ISO 4217 currency.
func Symbol(code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return strings.ToUpper(code)
	}
	return printer.Sprint(currency.NarrowSymbol(unit))
}

// Currency formats amount in code. Amounts of a million or more are
// shortened to one decimal and a scale word.
func Currency(amount float64, code string) Money {
	sym := Symbol(code)
	abs := math.Abs(amount)
	for _, s := range scales {
		if abs >= s.size {
			return Money{Value: sym + printer.Sprintf("%.1f", amount/s.size), Unit: s.word}
		}
	}
	return Money{Value: sym + printer.Sprintf("%.0f", amount)}
}

// CurrencyFull formats amount without scaling.
func CurrencyFull(amount float64, code string) string {
	return Symbol(code) + printer.Sprintf("%.0f", amount)
}

// Number formats n with thousands separators.
func Number(n int) string {
	return humanize.Comma(int64(n))
}

// Plural returns count followed by the singular or plural form of word,
// for example "1 file" or "3 publishers".
func Plural(count int, word string) string {
	return english.Plural(count, word, "")
}

// PluralWord returns only the inflected word.
func PluralWord(count int, word string) string {
	return english.PluralWord(count, word, "")
}

// Ago describes t relative to now, for example "3 days ago".
func Ago(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

// Date formats t as "2 Jan 2006".
func Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2 Jan 2006")
}

// Bytes formats a payload size, for example "1.2 MB".
func Bytes(n int) string {
	return humanize.Bytes(uint64(max(n, 0)))
}
