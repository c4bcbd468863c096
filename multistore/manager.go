package multistore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/liamcoop/pricerules/internal/logger"
	"github.com/liamcoop/pricerules/internal/metrics"
	"github.com/liamcoop/pricerules/pricing"
	"github.com/liamcoop/pricerules/rules"
)

// ErrStoreNotFound is returned for operations on an unknown store
var ErrStoreNotFound = errors.New("store not found")

// StoreEngine bundles a store's persistence with its current pipeline
type StoreEngine struct {
	StoreID     string
	Definitions rules.DefinitionStore
	Settings    rules.SettingsStore
	Pipeline    *pricing.Pipeline
}

// Manager owns one pricing pipeline per storefront
type Manager struct {
	engines  map[string]*StoreEngine
	db       *sql.DB
	cacheTTL rules.CacheConfig
	mu       sync.RWMutex
}

// NewManager creates a manager. db may be nil when every store is added
// with AddStore.
func NewManager(db *sql.DB, cache rules.CacheConfig) *Manager {
	return &Manager{
		engines:  make(map[string]*StoreEngine),
		db:       db,
		cacheTTL: cache,
	}
}

// LoadAllStores loads every store row from the database and builds its pipeline
func (m *Manager) LoadAllStores(ctx context.Context) error {
	if m.db == nil {
		return fmt.Errorf("no database configured")
	}

	rows, err := m.db.QueryContext(ctx, `SELECT id FROM stores ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to fetch stores: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan store row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating store rows: %w", err)
	}

	for _, id := range ids {
		if err := m.CreateStore(ctx, id); err != nil {
			return fmt.Errorf("failed to initialize store %s: %w", id, err)
		}
	}
	return nil
}

// CreateStore builds a Postgres-backed pipeline for storeID
func (m *Manager) CreateStore(ctx context.Context, storeID string) error {
	if m.db == nil {
		return fmt.Errorf("no database configured")
	}
	return m.AddStore(ctx, storeID,
		rules.NewPostgresDefinitionStore(m.db, storeID),
		rules.NewPostgresSettingsStore(m.db, storeID),
	)
}

// AddFileStore builds a store whose definitions and settings come from a
// YAML rules file. Settings stay read-only; definitions live in memory.
func (m *Manager) AddFileStore(ctx context.Context, storeID, path string) error {
	fc, err := rules.LoadFileConfig(path)
	if err != nil {
		return err
	}
	defs := rules.NewInMemoryDefinitionStore()
	for _, def := range fc.DefinitionList() {
		if err := ValidateDefinition(def); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := defs.Add(ctx, def); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return m.AddStore(ctx, storeID, defs, rules.NewYAMLSettingsStore(path))
}

// AddStore registers a store with explicit persistence
func (m *Manager) AddStore(ctx context.Context, storeID string, defs rules.DefinitionStore, settings rules.SettingsStore) error {
	pipeline, err := m.buildPipeline(ctx, storeID, defs, settings)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.engines[storeID] = &StoreEngine{
		StoreID:     storeID,
		Definitions: defs,
		Settings:    settings,
		Pipeline:    pipeline,
	}
	m.mu.Unlock()

	logger.Info("store loaded", "store_id", storeID, "rules", len(pipeline.Registry().IDs()))
	return nil
}

// buildPipeline registers every buildable definition. A stored definition
// that no longer builds is skipped; any setting naming it then surfaces as a
// configuration error instead of taking the store down.
func (m *Manager) buildPipeline(ctx context.Context, storeID string, defs rules.DefinitionStore, settings rules.SettingsStore) (*pricing.Pipeline, error) {
	list, err := defs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}

	registry := rules.NewRegistry(settings,
		rules.WithSettingsCache(rules.NewInMemorySettingsCache(m.cacheTTL)),
		rules.WithConfigurationErrorHandler(func(*rules.ConfigurationError) {
			metrics.ConfigurationErrors.WithLabelValues(storeID).Inc()
		}),
	)
	for _, def := range list {
		rule, err := rules.Build(def)
		if err != nil {
			logger.Error("skipping unbuildable rule definition",
				"store_id", storeID, "rule_id", def.ID, "error", err.Error())
			continue
		}
		if err := registry.Register(rule); err != nil {
			return nil, err
		}
	}

	return pricing.NewPipeline(storeID, registry), nil
}

// Get returns the engine for a store
func (m *Manager) Get(storeID string) (*StoreEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	se, exists := m.engines[storeID]
	if !exists {
		return nil, fmt.Errorf("store %s: %w", storeID, ErrStoreNotFound)
	}
	return se, nil
}

// GetPipeline returns the current pipeline for a store
func (m *Manager) GetPipeline(storeID string) (*pricing.Pipeline, error) {
	se, err := m.Get(storeID)
	if err != nil {
		return nil, err
	}
	return se.Pipeline, nil
}

// Reload rebuilds a store's registry from its definitions and swaps it in.
// In-flight requests keep the pipeline they started with.
func (m *Manager) Reload(ctx context.Context, storeID string) error {
	se, err := m.Get(storeID)
	if err != nil {
		return err
	}

	pipeline, err := m.buildPipeline(ctx, storeID, se.Definitions, se.Settings)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.engines[storeID] = &StoreEngine{
		StoreID:     storeID,
		Definitions: se.Definitions,
		Settings:    se.Settings,
		Pipeline:    pipeline,
	}
	m.mu.Unlock()
	return nil
}

// AddDefinition validates, compiles and stores a definition, then reloads the store
func (m *Manager) AddDefinition(ctx context.Context, storeID string, def *rules.Definition) error {
	se, err := m.Get(storeID)
	if err != nil {
		return err
	}
	if err := ValidateDefinition(def); err != nil {
		return err
	}
	if _, err := rules.Build(def); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}
	if err := se.Definitions.Add(ctx, def); err != nil {
		return err
	}
	return m.Reload(ctx, storeID)
}

// DeleteDefinition removes a definition and its setting, then reloads the store
func (m *Manager) DeleteDefinition(ctx context.Context, storeID, ruleID string) error {
	se, err := m.Get(storeID)
	if err != nil {
		return err
	}
	if err := se.Definitions.Delete(ctx, ruleID); err != nil {
		return err
	}
	if err := se.Settings.Delete(ctx, ruleID); err != nil &&
		!errors.Is(err, rules.ErrSettingNotFound) && !errors.Is(err, rules.ErrReadOnlyStore) {
		return err
	}
	return m.Reload(ctx, storeID)
}

// SaveSetting validates and saves a setting, then drops the cached configuration
func (m *Manager) SaveSetting(ctx context.Context, storeID string, st rules.Setting) error {
	se, err := m.Get(storeID)
	if err != nil {
		return err
	}
	if err := ValidateSetting(st); err != nil {
		return err
	}
	if _, err := se.Definitions.Get(ctx, st.RuleID); err != nil {
		return err
	}
	if err := se.Settings.Save(ctx, st); err != nil {
		return err
	}
	se.Pipeline.Registry().Invalidate()
	return nil
}

// RuleView is a definition merged with its setting, for listing
type RuleView struct {
	Definition *rules.Definition
	Setting    *rules.Setting
}

// ListRules returns every definition of a store with its setting, if any
func (m *Manager) ListRules(ctx context.Context, storeID string) ([]RuleView, error) {
	se, err := m.Get(storeID)
	if err != nil {
		return nil, err
	}
	defs, err := se.Definitions.List(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := se.Pipeline.Registry().Settings(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]RuleView, 0, len(defs))
	for _, def := range defs {
		v := RuleView{Definition: def}
		if st, ok := settings[def.ID]; ok {
			st := st
			v.Setting = &st
		}
		views = append(views, v)
	}
	return views, nil
}

// ListStores returns all loaded store IDs, sorted
func (m *Manager) ListStores() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stores := make([]string, 0, len(m.engines))
	for id := range m.engines {
		stores = append(stores, id)
	}
	sort.Strings(stores)
	return stores
}

// DeleteStore drops a store's pipeline from memory.
// It does not delete the store from the database.
func (m *Manager) DeleteStore(storeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[storeID]; !exists {
		return fmt.Errorf("store %s: %w", storeID, ErrStoreNotFound)
	}
	delete(m.engines, storeID)
	return nil
}
