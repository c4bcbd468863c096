package rules

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML layout used when rules are configured from a file
// instead of a database.
type FileConfig struct {
	Definitions []FileDefinition   `yaml:"definitions"`
	Settings    map[string]Setting `yaml:"settings"`
}

// FileDefinition is the YAML form of a Definition
type FileDefinition struct {
	ID         string         `yaml:"id"`
	Label      string         `yaml:"label"`
	Kind       Kind           `yaml:"kind"`
	Mode       AdjustmentKind `yaml:"mode,omitempty"`
	Expression string         `yaml:"expression,omitempty"`
}

// ParseFileConfig decodes a YAML rules document
func ParseFileConfig(data []byte) (*FileConfig, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	for id, st := range fc.Settings {
		st.RuleID = id
		fc.Settings[id] = st
	}
	return &fc, nil
}

// LoadFileConfig reads and decodes a YAML rules file
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	return ParseFileConfig(data)
}

// DefinitionList converts the file definitions to Definitions
func (fc *FileConfig) DefinitionList() []*Definition {
	defs := make([]*Definition, 0, len(fc.Definitions))
	for _, fd := range fc.Definitions {
		defs = append(defs, &Definition{
			ID:         fd.ID,
			Label:      fd.Label,
			Kind:       fd.Kind,
			Mode:       fd.Mode,
			Expression: fd.Expression,
		})
	}
	return defs
}

// YAMLSettingsStore serves settings read from a rules file.
// The file is owned by deployment tooling, so writes are rejected.
type YAMLSettingsStore struct {
	path string
}

// NewYAMLSettingsStore creates a store that re-reads path on every Load
func NewYAMLSettingsStore(path string) *YAMLSettingsStore {
	return &YAMLSettingsStore{path: path}
}

func (s *YAMLSettingsStore) Load(_ context.Context) (map[string]Setting, error) {
	fc, err := LoadFileConfig(s.path)
	if err != nil {
		return nil, err
	}
	if fc.Settings == nil {
		return map[string]Setting{}, nil
	}
	return fc.Settings, nil
}

func (s *YAMLSettingsStore) Save(_ context.Context, st Setting) error {
	return fmt.Errorf("save %s to %s: %w", st.RuleID, s.path, ErrReadOnlyStore)
}

func (s *YAMLSettingsStore) Delete(_ context.Context, ruleID string) error {
	return fmt.Errorf("delete %s from %s: %w", ruleID, s.path, ErrReadOnlyStore)
}
