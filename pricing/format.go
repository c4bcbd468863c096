package pricing

import (
	"fmt"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/liamcoop/pricerules/rules"
)

// Formatter renders money as a localized string
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
}

// NewFormatter creates a formatter for a BCP 47 locale such as "en-US" or "de"
func NewFormatter(locale string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	return &Formatter{tag: tag, printer: message.NewPrinter(tag)}, nil
}

// Locale returns the formatter's language tag
func (f *Formatter) Locale() language.Tag { return f.tag }

// Format rounds m to its currency's standard scale and renders it with the
// currency symbol directly before the amount, using the locale's separators.
func (f *Formatter) Format(m rules.Money) (string, error) {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return "", fmt.Errorf("invalid currency %q: %w", m.Currency, err)
	}

	scale, _ := currency.Standard.Rounding(unit)
	rounded := m.Amount.Round(int32(scale))
	value, _ := rounded.Float64()

	return f.printer.Sprintf("%v%v",
		currency.Symbol(unit),
		number.Decimal(value, number.Scale(scale)),
	), nil
}

// ValidateCurrency checks that code is a recognized ISO-4217 currency
func ValidateCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(rules.NormalizeCurrency(code))
	if err != nil {
		return "", fmt.Errorf("unknown currency %q: %w", code, err)
	}
	return unit.String(), nil
}
