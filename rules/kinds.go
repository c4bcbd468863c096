package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind names a rule implementation that can be built from a Definition
type Kind string

const (
	KindRange       Kind = "range"
	KindUserPercent Kind = "user_percent"
	KindFixed       Kind = "fixed"
	KindCEL         Kind = "cel"
	KindJSONLogic   Kind = "jsonlogic"
)

// Kinds lists every buildable kind
func Kinds() []Kind {
	return []Kind{KindRange, KindUserPercent, KindFixed, KindCEL, KindJSONLogic}
}

// IsValid reports whether k is a known kind
func (k Kind) IsValid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Build creates the Rule described by def.
// Expression kinds are compiled here so that a bad expression is rejected
// before it is stored.
func Build(def *Definition) (Rule, error) {
	if def == nil || def.ID == "" {
		return nil, fmt.Errorf("definition has no id")
	}
	base := baseRule{id: def.ID, label: def.Label}

	switch def.Kind {
	case KindRange:
		return &RangeRule{baseRule: base}, nil
	case KindUserPercent:
		return &UserPercentRule{baseRule: base}, nil
	case KindFixed:
		return &FixedRule{baseRule: base}, nil
	case KindCEL:
		return NewCELRule(base, def.Mode, def.Expression)
	case KindJSONLogic:
		return NewJSONLogicRule(base, def.Mode, def.Expression)
	default:
		return nil, fmt.Errorf("rule %s: unknown kind %q", def.ID, def.Kind)
	}
}

// RegisterDefinitions builds and registers every definition.
// It stops at the first definition that fails to build.
func RegisterDefinitions(r *Registry, defs []*Definition) error {
	for _, def := range defs {
		rule, err := Build(def)
		if err != nil {
			return err
		}
		if err := r.Register(rule); err != nil {
			return err
		}
	}
	return nil
}

type baseRule struct {
	id    string
	label string
}

func (b baseRule) ID() string { return b.id }

func (b baseRule) Label() string {
	if b.label == "" {
		return b.id
	}
	return b.label
}

// Decimal reads a numeric parameter. ok is false when the key is absent.
func (p Parameters) Decimal(key string) (d decimal.Decimal, ok bool, err error) {
	v, present := p[key]
	if !present || v == nil {
		return decimal.Zero, false, nil
	}
	d, err = toDecimal(v)
	if err != nil {
		return decimal.Zero, true, fmt.Errorf("parameter %s: %w", key, err)
	}
	return d, true, nil
}

// String reads a string parameter, falling back to def
func (p Parameters) String(key, def string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Bool reads a boolean parameter, falling back to def
func (p Parameters) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// Map reads a nested mapping parameter
func (p Parameters) Map(key string) map[string]any {
	switch m := p[key].(type) {
	case map[string]any:
		return m
	case Parameters:
		return m
	}
	return nil
}

// List reads a sequence parameter
func (p Parameters) List(key string) []any {
	if l, ok := p[key].([]any); ok {
		return l
	}
	return nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Zero, fmt.Errorf("not a number: %q", n)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("not a number: %v (%T)", v, v)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("not an integer: %v (%T)", v, v)
	}
}
