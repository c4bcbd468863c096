package rules

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// RangeRule grants a percentage chosen by the highest threshold the line
// reaches.
//
// Parameters:
//
//	basis:  "quantity" (default) or "total"
//	ranges: [{min: 10, percent: 5}, {min: 50, percent: 12}]
type RangeRule struct {
	baseRule
}

func (r *RangeRule) Apply(_ context.Context, item LineItem, _ RequestContext, params Parameters) (*Adjustment, error) {
	var value decimal.Decimal
	switch basis := params.String("basis", "quantity"); basis {
	case "quantity":
		value = decimal.NewFromInt(int64(item.Quantity))
	case "total":
		value = item.LineTotal().Amount
	default:
		return nil, fmt.Errorf("unknown range basis %q", basis)
	}

	var (
		best    decimal.Decimal
		percent decimal.Decimal
		found   bool
	)
	for i, raw := range params.List("ranges") {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("range %d is not a mapping", i)
		}
		row := Parameters(entry)
		threshold, _, err := row.Decimal("min")
		if err != nil {
			return nil, fmt.Errorf("range %d: %w", i, err)
		}
		pct, _, err := row.Decimal("percent")
		if err != nil {
			return nil, fmt.Errorf("range %d: %w", i, err)
		}
		if value.LessThan(threshold) {
			continue
		}
		if !found || threshold.GreaterThan(best) {
			best, percent, found = threshold, pct, true
		}
	}

	if !found || percent.IsZero() {
		return nil, nil
	}
	return Percentage(percent), nil
}

// UserPercentRule grants a percentage configured per user, falling back to
// the best percentage among the user's roles.
//
// Parameters:
//
//	users: {"42": 10}
//	roles: {"wholesale": 15}
type UserPercentRule struct {
	baseRule
}

func (r *UserPercentRule) Apply(_ context.Context, _ LineItem, rc RequestContext, params Parameters) (*Adjustment, error) {
	if rc.UserID != "" {
		if v, ok := params.Map("users")[rc.UserID]; ok {
			pct, err := toDecimal(v)
			if err != nil {
				return nil, fmt.Errorf("user %s: %w", rc.UserID, err)
			}
			if pct.IsZero() {
				return nil, nil
			}
			return Percentage(pct), nil
		}
	}

	roles := params.Map("roles")
	var (
		best  decimal.Decimal
		found bool
	)
	for _, role := range rc.Roles {
		v, ok := roles[role]
		if !ok {
			continue
		}
		pct, err := toDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", role, err)
		}
		if !found || pct.GreaterThan(best) {
			best, found = pct, true
		}
	}
	if !found || best.IsZero() {
		return nil, nil
	}
	return Percentage(best), nil
}

// FixedRule takes a fixed amount off the line in the line's currency.
// Lines priced in a currency with no configured amount are not adjusted.
//
// Parameters:
//
//	amounts:      {"USD": 5, "EUR": "4.50"}
//	per_unit:     false
//	min_quantity: 1
type FixedRule struct {
	baseRule
}

func (r *FixedRule) Apply(_ context.Context, item LineItem, _ RequestContext, params Parameters) (*Adjustment, error) {
	if raw, ok := params["min_quantity"]; ok {
		minQty, err := toInt(raw)
		if err != nil {
			return nil, fmt.Errorf("min_quantity: %w", err)
		}
		if item.Quantity < minQty {
			return nil, nil
		}
	}

	currency := item.UnitPrice.Currency
	v, ok := params.Map("amounts")[currency]
	if !ok {
		return nil, nil
	}
	amount, err := toDecimal(v)
	if err != nil {
		return nil, fmt.Errorf("amount for %s: %w", currency, err)
	}
	if params.Bool("per_unit", false) {
		amount = amount.Mul(decimal.NewFromInt(int64(item.Quantity)))
	}
	if amount.IsZero() {
		return nil, nil
	}
	return Absolute(amount, currency), nil
}
