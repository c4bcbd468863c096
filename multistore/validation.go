package multistore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/liamcoop/pricerules/rules"
)

const (
	maxIdentifierLength = 100
	maxLabelLength      = 255
	maxParameters       = 50
	MinWeight           = -1000
	MaxWeight           = 1000
)

var (
	ruleIDPattern    = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]*$`)
	paramNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// ValidateDefinition checks a definition before it is compiled and stored
func ValidateDefinition(def *rules.Definition) error {
	if def == nil {
		return fmt.Errorf("definition is required")
	}
	if err := validateRuleID(def.ID); err != nil {
		return fmt.Errorf("invalid rule id %q: %w", def.ID, err)
	}
	if len(def.Label) > maxLabelLength {
		return fmt.Errorf("rule %s: label exceeds %d characters", def.ID, maxLabelLength)
	}
	if !def.Kind.IsValid() {
		return fmt.Errorf("rule %s: unknown kind %q (must be one of: %s)", def.ID, def.Kind, kindList())
	}

	switch def.Kind {
	case rules.KindCEL, rules.KindJSONLogic:
		if strings.TrimSpace(def.Expression) == "" {
			return fmt.Errorf("rule %s: %s rules need an expression", def.ID, def.Kind)
		}
		if def.Mode != rules.KindPercentage && def.Mode != rules.KindAbsolute {
			return fmt.Errorf("rule %s: mode must be percentage or absolute", def.ID)
		}
	default:
		if def.Expression != "" {
			return fmt.Errorf("rule %s: %s rules do not take an expression", def.ID, def.Kind)
		}
	}
	return nil
}

// ValidateSetting checks a setting before it is saved
func ValidateSetting(st rules.Setting) error {
	if err := validateRuleID(st.RuleID); err != nil {
		return fmt.Errorf("invalid rule id %q: %w", st.RuleID, err)
	}
	if st.Weight < MinWeight || st.Weight > MaxWeight {
		return fmt.Errorf("rule %s: weight %d outside [%d, %d]", st.RuleID, st.Weight, MinWeight, MaxWeight)
	}
	if len(st.Parameters) > maxParameters {
		return fmt.Errorf("rule %s: %d parameters, maximum allowed is %d", st.RuleID, len(st.Parameters), maxParameters)
	}
	for name := range st.Parameters {
		if !paramNamePattern.MatchString(name) {
			return fmt.Errorf("rule %s: invalid parameter name %q", st.RuleID, name)
		}
	}
	return nil
}

func validateRuleID(id string) error {
	if len(id) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(id) > maxIdentifierLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(id), maxIdentifierLength)
	}
	if !ruleIDPattern.MatchString(id) {
		return fmt.Errorf("must match pattern %s", ruleIDPattern.String())
	}
	return nil
}

func kindList() string {
	kinds := rules.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
