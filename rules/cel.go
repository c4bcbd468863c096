package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/shopspring/decimal"
)

// costLimit bounds the work a single expression may do per evaluation
const costLimit = 1000000

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

// ExpressionEnv returns the CEL environment shared by expression rules.
// Expressions see three dynamic variables: item, request and params.
func ExpressionEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("request", cel.DynType),
			cel.Variable("params", cel.DynType),
		)
		if celEnvErr != nil {
			celEnvErr = fmt.Errorf("failed to create CEL environment: %w", celEnvErr)
		}
	})
	return celEnv, celEnvErr
}

// CELRule computes its adjustment from a CEL expression.
// A numeric result is the percentage or amount, depending on mode;
// null, false and zero mean no adjustment.
type CELRule struct {
	baseRule
	mode       AdjustmentKind
	expression string
	program    cel.Program
}

// NewCELRule compiles expression and returns the rule
func NewCELRule(base baseRule, mode AdjustmentKind, expression string) (*CELRule, error) {
	if err := validateMode(mode); err != nil {
		return nil, fmt.Errorf("rule %s: %w", base.id, err)
	}
	prog, err := CompileExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", base.id, err)
	}
	return &CELRule{baseRule: base, mode: mode, expression: expression, program: prog}, nil
}

// CompileExpression checks and compiles a CEL expression against ExpressionEnv
func CompileExpression(expression string) (cel.Program, error) {
	env, err := ExpressionEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

func (r *CELRule) Expression() string { return r.expression }

func (r *CELRule) Apply(ctx context.Context, item LineItem, rc RequestContext, params Parameters) (*Adjustment, error) {
	out, _, err := r.program.ContextEval(ctx, activation(item, rc, params))
	if err != nil {
		return nil, fmt.Errorf("evaluation error: %w", err)
	}

	n, ok, err := celNumber(out)
	if err != nil || !ok {
		return nil, err
	}
	return newAdjustment(r.mode, n, item.UnitPrice.Currency), nil
}

func celNumber(out ref.Val) (decimal.Decimal, bool, error) {
	switch v := out.(type) {
	case types.Double:
		return decimal.NewFromFloat(float64(v)), true, nil
	case types.Int:
		return decimal.NewFromInt(int64(v)), true, nil
	case types.Uint:
		return decimal.NewFromInt(int64(v)), true, nil
	case types.Null:
		return decimal.Zero, false, nil
	case types.Bool:
		if v {
			return decimal.Zero, false, fmt.Errorf("expression returned true; expected a number")
		}
		return decimal.Zero, false, nil
	default:
		return decimal.Zero, false, fmt.Errorf("expression returned %v; expected a number", out.Type())
	}
}

// activation exposes the rule inputs to expressions as plain values
func activation(item LineItem, rc RequestContext, params Parameters) map[string]any {
	unit, _ := item.UnitPrice.Amount.Float64()
	total, _ := item.LineTotal().Amount.Float64()

	p := make(map[string]any, len(params))
	for k, v := range params {
		p[k] = v
	}

	return map[string]any{
		"item": map[string]any{
			"sku":        item.SKU,
			"quantity":   int64(item.Quantity),
			"unit_price": unit,
			"line_total": total,
			"currency":   item.UnitPrice.Currency,
			"cart_id":    item.CartID,
		},
		"request": map[string]any{
			"currency":    rc.Currency,
			"user_id":     rc.UserID,
			"roles":       nonNil(rc.Roles),
			"permissions": nonNil(rc.Permissions),
		},
		"params": p,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func validateMode(mode AdjustmentKind) error {
	switch mode {
	case KindPercentage, KindAbsolute:
		return nil
	case "":
		return fmt.Errorf("expression rules need a mode (percentage or absolute)")
	default:
		return fmt.Errorf("unknown adjustment mode %q", mode)
	}
}

func newAdjustment(mode AdjustmentKind, n decimal.Decimal, currency string) *Adjustment {
	if n.IsZero() {
		return nil
	}
	if mode == KindAbsolute {
		return Absolute(n, currency)
	}
	return Percentage(n)
}
