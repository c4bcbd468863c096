package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/liamcoop/pricerules/internal/logger"
)

// Registry holds the rules known to a store and resolves which of them are
// enabled, and in what order, from the site configuration.
type Registry struct {
	rules    map[string]Rule
	order    []string // registration order
	settings SettingsStore
	cache    SettingsCache
	onConfig func(*ConfigurationError)
	mu       sync.RWMutex
}

// RegistryOption customizes a Registry
type RegistryOption func(*Registry)

// WithSettingsCache replaces the default in-memory settings cache
func WithSettingsCache(c SettingsCache) RegistryOption {
	return func(r *Registry) { r.cache = c }
}

// WithConfigurationErrorHandler is called for every skipped setting
func WithConfigurationErrorHandler(fn func(*ConfigurationError)) RegistryOption {
	return func(r *Registry) { r.onConfig = fn }
}

// NewRegistry creates an empty registry reading settings from store
func NewRegistry(store SettingsStore, opts ...RegistryOption) *Registry {
	r := &Registry{
		rules:    make(map[string]Rule),
		settings: store,
		cache:    NewInMemorySettingsCache(DefaultCacheConfig()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a rule. Ids must be unique within the registry.
func (r *Registry) Register(rule Rule) error {
	if rule == nil || rule.ID() == "" {
		return fmt.Errorf("cannot register a rule without an id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.ID()]; exists {
		return fmt.Errorf("rule %s: %w", rule.ID(), ErrDuplicateRule)
	}
	r.rules[rule.ID()] = rule
	r.order = append(r.order, rule.ID())
	return nil
}

// Lookup returns the registered rule with the given id
func (r *Registry) Lookup(id string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	return rule, ok
}

// IDs returns registered rule ids in registration order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Settings returns the configuration, reading the store only on a cache miss
func (r *Registry) Settings(ctx context.Context) (map[string]Setting, error) {
	if settings := r.cache.Get(); settings != nil {
		return settings, nil
	}

	settings, err := r.settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule settings: %w", err)
	}
	if settings == nil {
		settings = map[string]Setting{}
	}
	r.cache.Set(settings)
	return settings, nil
}

// Invalidate drops cached configuration so the next call re-reads the store
func (r *Registry) Invalidate() {
	r.cache.Invalidate()
}

// EnabledRules returns enabled rules sorted by weight.
// Equal weights keep registration order. Settings naming an unregistered
// rule are logged and skipped.
func (r *Registry) EnabledRules(ctx context.Context) ([]EnabledRule, error) {
	settings, err := r.Settings(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, st := range settings {
		if _, ok := r.rules[id]; ok || !st.Enabled {
			continue
		}
		cerr := &ConfigurationError{RuleID: id, Reason: "no rule registered with this id"}
		logger.Warn("skipping rule setting", "rule_id", id, "error", cerr.Error())
		if r.onConfig != nil {
			r.onConfig(cerr)
		}
	}

	enabled := make([]EnabledRule, 0, len(settings))
	for _, id := range r.order {
		st, ok := settings[id]
		if !ok || !st.Enabled {
			continue
		}
		st.RuleID = id
		enabled = append(enabled, EnabledRule{Rule: r.rules[id], Setting: st})
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Setting.Weight < enabled[j].Setting.Weight
	})
	return enabled, nil
}
