package rules

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AdjustmentKind tags which variant of Adjustment is populated
type AdjustmentKind string

const (
	KindPercentage AdjustmentKind = "percentage"
	KindAbsolute   AdjustmentKind = "absolute"
)

var (
	hundred = decimal.NewFromInt(100)
)

// Adjustment is a price reduction produced by a rule.
// Percentage adjustments use Percent; absolute ones use Amount.
type Adjustment struct {
	RuleID  string          `json:"ruleId"`
	Kind    AdjustmentKind  `json:"kind"`
	Percent decimal.Decimal `json:"percent"`
	Amount  Money           `json:"amount"`
}

// Percentage builds a percentage adjustment. Values outside [0,100] are
// kept as produced; the aggregator clamps them and records a diagnostic.
func Percentage(v decimal.Decimal) *Adjustment {
	return &Adjustment{Kind: KindPercentage, Percent: v}
}

// Absolute builds an absolute adjustment in the given currency
func Absolute(amount decimal.Decimal, currency string) *Adjustment {
	return &Adjustment{
		Kind:   KindAbsolute,
		Amount: Money{Amount: amount, Currency: NormalizeCurrency(currency)},
	}
}

// ClampPercent bounds v to [0,100]
func ClampPercent(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(hundred) {
		return hundred
	}
	return v
}

// IsZero reports whether the adjustment has no effect
func (a Adjustment) IsZero() bool {
	switch a.Kind {
	case KindPercentage:
		return a.Percent.IsZero()
	case KindAbsolute:
		return a.Amount.Amount.IsZero()
	}
	return true
}

func (a Adjustment) String() string {
	switch a.Kind {
	case KindPercentage:
		return fmt.Sprintf("%s: %s%%", a.RuleID, a.Percent)
	case KindAbsolute:
		return fmt.Sprintf("%s: -%s", a.RuleID, a.Amount)
	}
	return fmt.Sprintf("%s: unknown adjustment kind %q", a.RuleID, a.Kind)
}
