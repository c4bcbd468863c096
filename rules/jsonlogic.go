package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/diegoholiveira/jsonlogic"
	"github.com/shopspring/decimal"
)

// JSONLogicRule computes its adjustment from a JsonLogic document.
// Data visible to the logic mirrors the CEL variables: item, request, params.
type JSONLogicRule struct {
	baseRule
	mode  AdjustmentKind
	logic string
}

// NewJSONLogicRule checks that logic is a JSON document and returns the rule
func NewJSONLogicRule(base baseRule, mode AdjustmentKind, logic string) (*JSONLogicRule, error) {
	if err := validateMode(mode); err != nil {
		return nil, fmt.Errorf("rule %s: %w", base.id, err)
	}
	var probe any
	if err := json.Unmarshal([]byte(logic), &probe); err != nil {
		return nil, fmt.Errorf("rule %s: logic is not valid JSON: %w", base.id, err)
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, fmt.Errorf("rule %s: logic must be a JSON object", base.id)
	}
	return &JSONLogicRule{baseRule: base, mode: mode, logic: logic}, nil
}

func (r *JSONLogicRule) Apply(_ context.Context, item LineItem, rc RequestContext, params Parameters) (*Adjustment, error) {
	data, err := json.Marshal(activation(item, rc, params))
	if err != nil {
		return nil, fmt.Errorf("failed to encode logic data: %w", err)
	}

	var out bytes.Buffer
	if err := jsonlogic.Apply(strings.NewReader(r.logic), bytes.NewReader(data), &out); err != nil {
		return nil, fmt.Errorf("evaluation error: %w", err)
	}

	raw := strings.TrimSpace(out.String())
	if raw == "" || raw == "null" || raw == "false" {
		return nil, nil
	}

	var result any
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to decode logic result: %w", err)
	}

	n, err := logicNumber(result)
	if err != nil {
		return nil, err
	}
	return newAdjustment(r.mode, n, item.UnitPrice.Currency), nil
}

func logicNumber(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), nil
	case string:
		// JsonLogic string arithmetic is allowed as long as it parses.
		return toDecimal(n)
	default:
		return decimal.Zero, fmt.Errorf("logic returned %v; expected a number", v)
	}
}
