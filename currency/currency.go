// Package currency turns the loosely formatted price strings returned by the
// oracle into amounts, and amounts back into display strings.
package currency

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ParseAmount keeps only digits and '.' from s and parses the remainder.
// Anything that does not parse, including an empty remainder, is 0.
// "€1,234.56" is 1234.56 because the comma is dropped like any other symbol.
func ParseAmount(s string) float64 {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}

	cleaned := b.String()
	if cleaned == "" {
		return 0
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return amount
}

// Formatter renders amounts with a fixed symbol and two decimals.
type Formatter struct {
	symbol  string
	printer *message.Printer
}

// checkAmount has both a thousands group and a fractional part
const checkAmount = 1234.5

// ValidateLocale reports an error unless amounts printed for locale parse
// back through ParseAmount. Locales writing ',' as the decimal separator, or
// '.' as the group separator, are rejected.
func ValidateLocale(locale string) error {
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	if printed := message.NewPrinter(tag).Sprintf("%.2f", checkAmount); ParseAmount(printed) != checkAmount {
		return fmt.Errorf("locale %q prints %q, amounts must use '.' as the decimal separator", locale, printed)
	}
	return nil
}

// NewFormatter builds a formatter for the given symbol and BCP 47 tag.
// A tag that ValidateLocale rejects falls back to English.
func NewFormatter(symbol, locale string) *Formatter {
	tag := language.English
	if err := ValidateLocale(locale); err == nil {
		tag = language.MustParse(locale)
	}
	return &Formatter{
		symbol:  symbol,
		printer: message.NewPrinter(tag),
	}
}

// DefaultFormatter formats euros for English locales.
func DefaultFormatter() *Formatter {
	return NewFormatter("€", "en")
}

// Format returns the amount as symbol plus two decimals, e.g. "€12.50".
func (f *Formatter) Format(amount float64) string {
	return f.symbol + f.printer.Sprintf("%.2f", amount)
}

// Symbol returns the configured currency symbol.
func (f *Formatter) Symbol() string {
	return f.symbol
}
