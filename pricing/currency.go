package pricing

import (
	"fmt"
	"strings"

	"github.com/liamcoop/pricerules/internal/logger"
)

// CurrencyResolver picks the active currency for a request from an ordered
// list of candidates (header, cookie, ...), falling back to a default.
type CurrencyResolver struct {
	fallback  string
	supported map[string]struct{}
}

// NewCurrencyResolver validates the default and the optional supported list.
// An empty supported list accepts any ISO-4217 code.
func NewCurrencyResolver(fallback string, supported []string) (*CurrencyResolver, error) {
	def, err := ValidateCurrency(fallback)
	if err != nil {
		return nil, fmt.Errorf("default currency: %w", err)
	}

	r := &CurrencyResolver{fallback: def}
	if len(supported) > 0 {
		r.supported = make(map[string]struct{}, len(supported))
		for _, s := range supported {
			code, err := ValidateCurrency(s)
			if err != nil {
				return nil, fmt.Errorf("supported currencies: %w", err)
			}
			r.supported[code] = struct{}{}
		}
		if _, ok := r.supported[def]; !ok {
			return nil, fmt.Errorf("default currency %s is not in the supported list", def)
		}
	}
	return r, nil
}

// Default returns the fallback currency
func (r *CurrencyResolver) Default() string { return r.fallback }

// Resolve returns the first candidate that is a valid, supported currency.
// Unusable candidates are logged and skipped.
func (r *CurrencyResolver) Resolve(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		code, err := ValidateCurrency(c)
		if err != nil {
			logger.Debug("ignoring currency candidate", "candidate", c, "error", err.Error())
			continue
		}
		if r.supported != nil {
			if _, ok := r.supported[code]; !ok {
				logger.Debug("ignoring unsupported currency", "currency", code)
				continue
			}
		}
		return code
	}
	return r.fallback
}
