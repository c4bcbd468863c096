package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/pricerules/internal/logger"
	"github.com/liamcoop/pricerules/rules"
)

var hundred = decimal.NewFromInt(100)

// DiagnosticCode classifies a non-fatal pricing anomaly
type DiagnosticCode string

const (
	DiagPercentClamped    DiagnosticCode = "percent_clamped"
	DiagPercentSumClamped DiagnosticCode = "percent_sum_clamped"
	DiagPriceFloored      DiagnosticCode = "price_floored"
)

// Diagnostic is a warning recorded while combining adjustments.
// Diagnostics never prevent a price from resolving.
type Diagnostic struct {
	Code    DiagnosticCode `json:"code"`
	RuleID  string         `json:"ruleId,omitempty"`
	Message string         `json:"message"`
}

// EffectivePrice is the result of applying all adjustments to a base price
type EffectivePrice struct {
	Base            rules.Money     `json:"base"`
	Price           rules.Money     `json:"price"`
	PercentApplied  decimal.Decimal `json:"percentApplied"`
	AbsoluteApplied decimal.Decimal `json:"absoluteApplied"`
	Clamped         bool            `json:"clamped"`
	Diagnostics     []Diagnostic    `json:"diagnostics,omitempty"`
}

// Discount is the total amount taken off the base price
func (p EffectivePrice) Discount() decimal.Decimal {
	return p.Base.Amount.Sub(p.Price.Amount)
}

// Combine applies adjustments to base.
//
// Percentages are summed, not compounded, and the sum is clamped to [0,100]
// before being applied once. Absolute amounts are then summed and subtracted.
// A price pushed below zero is floored at zero. Anomalies that can be
// normalized are reported as Diagnostics; absolute amounts with a missing or
// foreign currency, or a negative value, return *rules.InvalidAdjustmentError.
func Combine(adjustments map[string]*rules.Adjustment, base rules.Money) (EffectivePrice, error) {
	result := EffectivePrice{
		Base:            base,
		Price:           base,
		PercentApplied:  decimal.Zero,
		AbsoluteApplied: decimal.Zero,
	}
	if len(adjustments) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(adjustments))
	for id := range adjustments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	percent := decimal.Zero
	absolute := decimal.Zero
	for _, id := range ids {
		adj := adjustments[id]
		if adj == nil {
			continue
		}

		switch adj.Kind {
		case rules.KindPercentage:
			p := adj.Percent
			if clamped := rules.ClampPercent(p); !clamped.Equal(p) {
				result.warn(Diagnostic{
					Code:    DiagPercentClamped,
					RuleID:  id,
					Message: fmt.Sprintf("percentage %s%% clamped to %s%%", p, clamped),
				})
				p = clamped
			}
			percent = percent.Add(p)

		case rules.KindAbsolute:
			if adj.Amount.Currency == "" {
				return EffectivePrice{}, &rules.InvalidAdjustmentError{RuleID: id, Reason: "absolute amount has no currency"}
			}
			if adj.Amount.Currency != base.Currency {
				return EffectivePrice{}, &rules.InvalidAdjustmentError{
					RuleID: id,
					Reason: fmt.Sprintf("amount in %s cannot apply to a price in %s", adj.Amount.Currency, base.Currency),
				}
			}
			if adj.Amount.Amount.IsNegative() {
				return EffectivePrice{}, &rules.InvalidAdjustmentError{
					RuleID: id,
					Reason: fmt.Sprintf("negative absolute amount %s", adj.Amount.Amount),
				}
			}
			absolute = absolute.Add(adj.Amount.Amount)

		default:
			return EffectivePrice{}, &rules.InvalidAdjustmentError{
				RuleID: id,
				Reason: fmt.Sprintf("unknown adjustment kind %q", adj.Kind),
			}
		}
	}

	if percent.GreaterThan(hundred) {
		result.Clamped = true
		result.warn(Diagnostic{
			Code:    DiagPercentSumClamped,
			Message: fmt.Sprintf("percentage adjustments sum to %s%%; clamped to 100%%", percent),
		})
		percent = hundred
	}

	amount := base.Amount
	amount = amount.Sub(amount.Mul(percent).Div(hundred))
	amount = amount.Sub(absolute)
	if amount.IsNegative() {
		result.warn(Diagnostic{
			Code:    DiagPriceFloored,
			Message: fmt.Sprintf("adjustments exceed the price by %s %s; floored at zero", amount.Neg(), base.Currency),
		})
		amount = decimal.Zero
	}

	result.PercentApplied = percent
	result.AbsoluteApplied = absolute
	result.Price = rules.Money{Amount: amount, Currency: base.Currency}
	return result, nil
}

func (p *EffectivePrice) warn(d Diagnostic) {
	p.Diagnostics = append(p.Diagnostics, d)
	logger.Warn("price adjustment normalized",
		"code", string(d.Code),
		"rule_id", d.RuleID,
		"message", d.Message,
	)
}
