package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresDefinitionStore implements DefinitionStore backed by PostgreSQL
type PostgresDefinitionStore struct {
	db      *sql.DB
	storeID string
}

// NewPostgresDefinitionStore creates a definition store scoped to one storefront
func NewPostgresDefinitionStore(db *sql.DB, storeID string) *PostgresDefinitionStore {
	return &PostgresDefinitionStore{
		db:      db,
		storeID: storeID,
	}
}

// Add inserts a new definition into the database
func (s *PostgresDefinitionStore) Add(ctx context.Context, def *Definition) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM rule_definitions WHERE id = $1 AND store_id = $2)
	`, def.ID, s.storeID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule %s: %w", def.ID, ErrDuplicateRule)
	}

	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_definitions (id, store_id, label, kind, mode, expression, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, def.ID, s.storeID, def.Label, string(def.Kind), string(def.Mode), def.Expression,
		def.CreatedAt, def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule definition: %w", err)
	}

	return nil
}

// Get retrieves a definition by ID
func (s *PostgresDefinitionStore) Get(ctx context.Context, id string) (*Definition, error) {
	var (
		def        Definition
		kind, mode string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, kind, mode, expression, created_at, updated_at
		FROM rule_definitions
		WHERE id = $1 AND store_id = $2
	`, id, s.storeID).Scan(&def.ID, &def.Label, &kind, &mode, &def.Expression, &def.CreatedAt, &def.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, ErrDefinitionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule definition: %w", err)
	}

	def.Kind = Kind(kind)
	def.Mode = AdjustmentKind(mode)
	return &def, nil
}

// List returns all definitions for the store, oldest first
func (s *PostgresDefinitionStore) List(ctx context.Context) ([]*Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, kind, mode, expression, created_at, updated_at
		FROM rule_definitions
		WHERE store_id = $1
		ORDER BY created_at ASC, id ASC
	`, s.storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule definitions: %w", err)
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		var (
			def        Definition
			kind, mode string
		)
		if err := rows.Scan(&def.ID, &def.Label, &kind, &mode, &def.Expression,
			&def.CreatedAt, &def.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule definition: %w", err)
		}
		def.Kind = Kind(kind)
		def.Mode = AdjustmentKind(mode)
		defs = append(defs, &def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule definitions: %w", err)
	}

	return defs, nil
}

// Update modifies an existing definition
func (s *PostgresDefinitionStore) Update(ctx context.Context, def *Definition) error {
	def.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE rule_definitions
		SET label = $1, kind = $2, mode = $3, expression = $4, updated_at = $5
		WHERE id = $6 AND store_id = $7
	`, def.Label, string(def.Kind), string(def.Mode), def.Expression, def.UpdatedAt, def.ID, s.storeID)
	if err != nil {
		return fmt.Errorf("failed to update rule definition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", def.ID, ErrDefinitionNotFound)
	}

	return nil
}

// Delete removes a definition and its setting
func (s *PostgresDefinitionStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM rule_definitions
		WHERE id = $1 AND store_id = $2
	`, id, s.storeID)
	if err != nil {
		return fmt.Errorf("failed to delete rule definition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrDefinitionNotFound)
	}

	return nil
}

// PostgresSettingsStore implements SettingsStore over the rule_settings table
type PostgresSettingsStore struct {
	db      *sql.DB
	storeID string
}

// NewPostgresSettingsStore creates a settings store scoped to one storefront
func NewPostgresSettingsStore(db *sql.DB, storeID string) *PostgresSettingsStore {
	return &PostgresSettingsStore{db: db, storeID: storeID}
}

func (s *PostgresSettingsStore) Load(ctx context.Context) (map[string]Setting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, enabled, weight, parameters
		FROM rule_settings
		WHERE store_id = $1
	`, s.storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]Setting)
	for rows.Next() {
		var (
			st  Setting
			raw []byte
		)
		if err := rows.Scan(&st.RuleID, &st.Enabled, &st.Weight, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan rule setting: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &st.Parameters); err != nil {
				return nil, fmt.Errorf("invalid parameters for rule %s: %w", st.RuleID, err)
			}
		}
		settings[st.RuleID] = st
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule settings: %w", err)
	}

	return settings, nil
}

func (s *PostgresSettingsStore) Save(ctx context.Context, st Setting) error {
	params := st.Parameters
	if params == nil {
		params = Parameters{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_settings (store_id, rule_id, enabled, weight, parameters, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (store_id, rule_id)
		DO UPDATE SET enabled = EXCLUDED.enabled, weight = EXCLUDED.weight,
			parameters = EXCLUDED.parameters, updated_at = NOW()
	`, s.storeID, st.RuleID, st.Enabled, st.Weight, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save rule setting: %w", err)
	}
	return nil
}

func (s *PostgresSettingsStore) Delete(ctx context.Context, ruleID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM rule_settings
		WHERE store_id = $1 AND rule_id = $2
	`, s.storeID, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete rule setting: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, ErrSettingNotFound)
	}
	return nil
}
