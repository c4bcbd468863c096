package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefinitionStore manages rule definition persistence and retrieval
type DefinitionStore interface {
	// Add a new definition
	Add(ctx context.Context, def *Definition) error

	// Get a definition by rule ID
	Get(ctx context.Context, id string) (*Definition, error)

	// List all definitions ordered by creation time
	List(ctx context.Context) ([]*Definition, error)

	// Update an existing definition
	Update(ctx context.Context, def *Definition) error

	// Delete a definition
	Delete(ctx context.Context, id string) error
}

// SettingsStore is the site configuration source for rule settings
type SettingsStore interface {
	// Load returns every configured setting keyed by rule ID
	Load(ctx context.Context) (map[string]Setting, error)

	// Save creates or replaces the setting for s.RuleID
	Save(ctx context.Context, s Setting) error

	// Delete removes the setting for a rule
	Delete(ctx context.Context, ruleID string) error
}

// InMemoryDefinitionStore implements DefinitionStore using an in-memory map
type InMemoryDefinitionStore struct {
	defs map[string]*Definition
	seq  map[string]int // insertion order, for CreatedAt ties
	next int
	mu   sync.RWMutex
}

// NewInMemoryDefinitionStore creates a new in-memory definition store
func NewInMemoryDefinitionStore() *InMemoryDefinitionStore {
	return &InMemoryDefinitionStore{
		defs: make(map[string]*Definition),
		seq:  make(map[string]int),
	}
}

// Add adds a new definition and stamps its timestamps
func (s *InMemoryDefinitionStore) Add(_ context.Context, def *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[def.ID]; exists {
		return fmt.Errorf("rule %s: %w", def.ID, ErrDuplicateRule)
	}

	now := time.Now()
	def.CreatedAt = now
	def.UpdatedAt = now
	s.defs[def.ID] = def
	s.seq[def.ID] = s.next
	s.next++
	return nil
}

// Get retrieves a definition by ID
func (s *InMemoryDefinitionStore) Get(_ context.Context, id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, exists := s.defs[id]
	if !exists {
		return nil, fmt.Errorf("rule %s: %w", id, ErrDefinitionNotFound)
	}
	return def, nil
}

// List returns all definitions, oldest first. Definitions added within the
// same clock tick keep insertion order.
func (s *InMemoryDefinitionStore) List(_ context.Context) ([]*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Definition, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return s.seq[out[i].ID] < s.seq[out[j].ID]
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update replaces a definition, preserving CreatedAt
func (s *InMemoryDefinitionStore) Update(_ context.Context, def *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.defs[def.ID]
	if !exists {
		return fmt.Errorf("rule %s: %w", def.ID, ErrDefinitionNotFound)
	}

	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = time.Now()
	s.defs[def.ID] = def
	return nil
}

// Delete removes a definition from the store
func (s *InMemoryDefinitionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[id]; !exists {
		return fmt.Errorf("rule %s: %w", id, ErrDefinitionNotFound)
	}

	delete(s.defs, id)
	delete(s.seq, id)
	return nil
}

// InMemorySettingsStore implements SettingsStore with a map.
// Load returns a copy so callers cannot modify stored settings.
type InMemorySettingsStore struct {
	settings map[string]Setting
	mu       sync.RWMutex
}

// NewInMemorySettingsStore creates a store seeded with the given settings
func NewInMemorySettingsStore(seed ...Setting) *InMemorySettingsStore {
	s := &InMemorySettingsStore{settings: make(map[string]Setting, len(seed))}
	for _, st := range seed {
		s.settings[st.RuleID] = st
	}
	return s
}

func (s *InMemorySettingsStore) Load(_ context.Context) (map[string]Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Setting, len(s.settings))
	for id, st := range s.settings {
		out[id] = st
	}
	return out, nil
}

func (s *InMemorySettingsStore) Save(_ context.Context, st Setting) error {
	if st.RuleID == "" {
		return fmt.Errorf("setting has no rule id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[st.RuleID] = st
	return nil
}

func (s *InMemorySettingsStore) Delete(_ context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settings[ruleID]; !ok {
		return fmt.Errorf("rule %s: %w", ruleID, ErrSettingNotFound)
	}
	delete(s.settings, ruleID)
	return nil
}
