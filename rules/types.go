package rules

import (
	"context"
	"time"
)

// Rule is a named price-adjustment function.
// Implementations are stateless: they read the line item, the request context
// and the parameters from their Setting, and nothing else.
type Rule interface {
	ID() string
	Label() string

	// Apply returns the adjustment for the item, or nil when the rule does not apply.
	Apply(ctx context.Context, item LineItem, rc RequestContext, params Parameters) (*Adjustment, error)
}

// Parameters are the rule-specific values configured alongside a Setting
type Parameters map[string]any

// Definition describes how to build a Rule for a store
type Definition struct {
	ID         string
	Label      string
	Kind       Kind
	Mode       AdjustmentKind // only meaningful for expression kinds
	Expression string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Setting is the site configuration for a single rule id
type Setting struct {
	RuleID     string     `json:"ruleId" yaml:"-"`
	Enabled    bool       `json:"enabled" yaml:"enabled"`
	Weight     int        `json:"weight" yaml:"weight"`
	Parameters Parameters `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// EnabledRule pairs a registered rule with the setting that enabled it
type EnabledRule struct {
	Rule    Rule
	Setting Setting
}

// LineItem is a cart entry subject to adjustment.
// The rule system borrows it from the cart; it is never modified here.
type LineItem struct {
	SKU       string
	Quantity  int
	UnitPrice Money
	CartID    string
}

// LineTotal is the unit price multiplied by the quantity
func (li LineItem) LineTotal() Money {
	return li.UnitPrice.Mul(int64(li.Quantity))
}

// RequestContext carries the request-scoped inputs that affect evaluation
type RequestContext struct {
	Currency    string
	UserID      string
	Roles       []string
	Permissions []string
	Excluded    map[string]struct{}
}

// Exclude returns a copy of rc with the given rule ids added to the excluded set
func (rc RequestContext) Exclude(ruleIDs ...string) RequestContext {
	out := rc
	out.Excluded = make(map[string]struct{}, len(rc.Excluded)+len(ruleIDs))
	for id := range rc.Excluded {
		out.Excluded[id] = struct{}{}
	}
	for _, id := range ruleIDs {
		out.Excluded[id] = struct{}{}
	}
	return out
}

// IsExcluded reports whether ruleID was excluded for this request
func (rc RequestContext) IsExcluded(ruleID string) bool {
	_, ok := rc.Excluded[ruleID]
	return ok
}

// Evaluation holds the per-rule outcome of one evaluation pass
type Evaluation struct {
	// Order lists evaluated rule ids in registry order, excluding suppressed ones
	Order []string

	// Results maps rule id to its adjustment; a nil value means no adjustment
	Results map[string]*Adjustment

	// Suppressed lists rule ids skipped because the request excluded them
	Suppressed []string
}

// HasSuppressed reports whether at least one rule was skipped by exclusion
func (e *Evaluation) HasSuppressed() bool {
	return len(e.Suppressed) > 0
}

// Adjustments returns the non-nil adjustments in registry order
func (e *Evaluation) Adjustments() []Adjustment {
	out := make([]Adjustment, 0, len(e.Order))
	for _, id := range e.Order {
		if adj := e.Results[id]; adj != nil {
			out = append(out, *adj)
		}
	}
	return out
}
