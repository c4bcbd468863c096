package rules

import (
	"errors"
	"fmt"
)

var (
	ErrDefinitionNotFound = errors.New("rule definition not found")
	ErrSettingNotFound    = errors.New("rule setting not found")
	ErrDuplicateRule      = errors.New("rule already exists")
	ErrReadOnlyStore      = errors.New("settings store is read-only")
)

// ConfigurationError reports a setting that references a rule with no implementation.
// It is recovered locally: the setting is skipped and evaluation continues.
type ConfigurationError struct {
	RuleID string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for rule %s: %s", e.RuleID, e.Reason)
}

// RuleExecutionError wraps an error returned by a rule's Apply.
// It aborts the whole evaluation.
type RuleExecutionError struct {
	RuleID string
	Err    error
}

func (e *RuleExecutionError) Error() string {
	return fmt.Sprintf("rule %s failed: %v", e.RuleID, e.Err)
}

func (e *RuleExecutionError) Unwrap() error {
	return e.Err
}

// InvalidAdjustmentError reports an adjustment outside the valid domain
// that cannot be normalized safely.
type InvalidAdjustmentError struct {
	RuleID string
	Reason string
}

func (e *InvalidAdjustmentError) Error() string {
	return fmt.Sprintf("invalid adjustment from rule %s: %s", e.RuleID, e.Reason)
}
