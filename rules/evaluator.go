package rules

import (
	"context"
)

// Evaluator runs the enabled rules of a Registry against one line item
type Evaluator struct {
	registry *Registry
}

// NewEvaluator creates an evaluator over registry
func NewEvaluator(registry *Registry) *Evaluator {
	return &Evaluator{registry: registry}
}

// Evaluate invokes every enabled rule in registry order.
//
// Rules excluded by rc are recorded as suppressed and never invoked. A rule
// error aborts the pass: the caller gets a *RuleExecutionError and no partial
// result.
func (ev *Evaluator) Evaluate(ctx context.Context, item LineItem, rc RequestContext) (*Evaluation, error) {
	enabled, err := ev.registry.EnabledRules(ctx)
	if err != nil {
		return nil, err
	}

	result := &Evaluation{
		Order:   make([]string, 0, len(enabled)),
		Results: make(map[string]*Adjustment, len(enabled)),
	}

	for _, er := range enabled {
		id := er.Rule.ID()
		if rc.IsExcluded(id) {
			result.Suppressed = append(result.Suppressed, id)
			continue
		}

		adj, err := er.Rule.Apply(ctx, item, rc, er.Setting.Parameters)
		if err != nil {
			return nil, &RuleExecutionError{RuleID: id, Err: err}
		}
		if adj != nil {
			stamped := *adj
			stamped.RuleID = id
			adj = &stamped
		}

		result.Order = append(result.Order, id)
		result.Results[id] = adj
	}

	return result, nil
}
