// Package config holds the transformation rule set driving a pipeline
// run: transform stage parameters, the catalogue level to directory
// label table, and batching controls.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvVar is the environment variable consulted by FromEnv. Its value
// may name a configuration file or hold an inline JSON document.
const EnvVar = "TRANS_CONFIG"

// NewlineParams carries the line-break match pattern and its
// replacement marker.
type NewlineParams struct {
	Match   string `json:"match,omitempty" yaml:"match,omitempty"`
	Replace string `json:"replace,omitempty" yaml:"replace,omitempty"`
}

// NewlineTask parameterizes the newline normalization stage. A nil
// task leaves the stage running with its defaults.
type NewlineTask struct {
	TargetColumns []string      `json:"target_columns,omitempty" yaml:"target_columns,omitempty"`
	Params        NewlineParams `json:"params,omitempty" yaml:"params,omitempty"`
}

// YNamingTask parameterizes the reference rewriting stage.
// ReferenceList optionally names a newline-delimited file of
// definitive references; when present, only listed references are
// rewritten.
type YNamingTask struct {
	TargetColumns []string `json:"target_columns,omitempty" yaml:"target_columns,omitempty"`
	ReferenceList string   `json:"reference_list,omitempty" yaml:"reference_list,omitempty"`
}

// Tasks holds the per-stage transform settings.
type Tasks struct {
	NewlineToP *NewlineTask `json:"newline_to_p,omitempty" yaml:"newline_to_p,omitempty"`
	YNaming    *YNamingTask `json:"y_naming,omitempty" yaml:"y_naming,omitempty"`
}

// Config is the full transformation rule set for one pipeline run.
type Config struct {
	Tasks              Tasks             `json:"tasks" yaml:"tasks"`
	RecordLevelMapping map[string]string `json:"record_level_mapping" yaml:"record_level_mapping"`
	RecordLevelDirs    bool              `json:"record_level_dirs" yaml:"record_level_dirs"`
	ChunkSize          int               `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
}

// Default returns the production rule set: newline normalization of
// bare \n sequences to the <p> marker across every string field,
// reference rewriting without an allow list, and level-grouped output
// covering the full catalogue hierarchy.
func Default() *Config {
	return &Config{
		Tasks: Tasks{
			NewlineToP: &NewlineTask{Params: NewlineParams{Match: `\n`, Replace: "<p>"}},
			YNaming:    &YNamingTask{},
		},
		RecordLevelMapping: DefaultLevelMapping(),
		RecordLevelDirs:    true,
	}
}

// DefaultLevelMapping maps catalogue level numbers to directory
// labels, one per level of the hierarchy.
func DefaultLevelMapping() map[string]string {
	return map[string]string{
		"1":  "Fonds",
		"2":  "Sub-fonds",
		"3":  "Sub-sub-fonds",
		"4":  "Sub-sub-sub-fonds",
		"5":  "Sub-sub-sub-sub-fonds",
		"6":  "Series",
		"7":  "Sub-series",
		"8":  "Sub-sub-series",
		"9":  "File",
		"10": "Item",
	}
}

// LoadFile reads a configuration file, selecting the parser by
// extension: .yaml/.yml via YAML, anything else as JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	config := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	}
	return config, nil
}

// FromEnv loads configuration from the TRANS_CONFIG environment
// variable: a file path when the value names an existing file,
// otherwise an inline JSON document. An unset or blank variable yields
// the production defaults.
func FromEnv() (*Config, error) {
	value := strings.TrimSpace(os.Getenv(EnvVar))
	if value == "" {
		return Default(), nil
	}
	if _, err := os.Stat(value); err == nil {
		return LoadFile(value)
	}
	config := &Config{}
	if err := json.Unmarshal([]byte(value), config); err != nil {
		return nil, fmt.Errorf("failed to parse %s as inline JSON: %w", EnvVar, err)
	}
	return config, nil
}

// Validate reports configuration states that must stop a run before
// any record is processed.
func (config *Config) Validate() error {
	if config == nil || len(config.RecordLevelMapping) == 0 {
		return errors.New("transformation config or record level mapping is missing or empty")
	}
	return nil
}
