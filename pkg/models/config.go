package models

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Recording modes for salvo.yaml.
const (
	RecordingModeFull         = "full"
	RecordingModeMetadataOnly = "metadata_only"
)

// ProjectConfigFile is the filename probed when locating a project root.
const ProjectConfigFile = "salvo.yaml"

// RecordingConfig controls trace recording behavior: full transcripts or
// metadata-only, plus custom redaction patterns layered on the built-ins.
type RecordingConfig struct {
	Mode                    string   `yaml:"mode" json:"mode"`
	CustomRedactionPatterns []string `yaml:"custom_redaction_patterns" json:"custom_redaction_patterns,omitempty"`
}

// JudgeConfig holds project-level defaults for judge assertions.
// Per-assertion fields take precedence over these.
type JudgeConfig struct {
	Adapter          string  `yaml:"adapter" json:"adapter"`
	Model            string  `yaml:"model" json:"model"`
	K                int     `yaml:"k" json:"k"`
	Temperature      float64 `yaml:"temperature" json:"temperature"`
	MaxTokens        int     `yaml:"max_tokens" json:"max_tokens"`
	DefaultThreshold float64 `yaml:"default_threshold" json:"default_threshold"`
}

// ProjectConfig is the project-level configuration loaded from salvo.yaml.
type ProjectConfig struct {
	DefaultAdapter string          `yaml:"default_adapter" json:"default_adapter"`
	DefaultModel   string          `yaml:"default_model" json:"default_model"`
	ScenariosDir   string          `yaml:"scenarios_dir" json:"scenarios_dir"`
	CIMode         bool            `yaml:"ci_mode" json:"ci_mode"`
	StorageDir     string          `yaml:"storage_dir" json:"storage_dir"`
	Judge          JudgeConfig     `yaml:"judge" json:"judge"`
	Recording      RecordingConfig `yaml:"recording" json:"recording"`
}

// DefaultProjectConfig returns the configuration used when salvo.yaml is
// absent or partially specified.
func DefaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		DefaultAdapter: "openai",
		DefaultModel:   "gpt-4o",
		ScenariosDir:   "scenarios",
		StorageDir:     ".salvo",
		Judge: JudgeConfig{
			Adapter:          "openai",
			Model:            "gpt-4o-mini",
			K:                3,
			Temperature:      0.0,
			MaxTokens:        1024,
			DefaultThreshold: 0.8,
		},
		Recording: RecordingConfig{
			Mode: RecordingModeFull,
		},
	}
}

// Validate checks ranges the YAML schema cannot express structurally.
func (c *ProjectConfig) Validate() error {
	if c.Judge.K < 1 || c.Judge.K > 21 {
		return fmt.Errorf("project config: judge.k %d out of range [1, 21]", c.Judge.K)
	}
	if c.Judge.DefaultThreshold < 0 || c.Judge.DefaultThreshold > 1 {
		return fmt.Errorf("project config: judge.default_threshold %v out of range [0, 1]", c.Judge.DefaultThreshold)
	}
	switch c.Recording.Mode {
	case RecordingModeFull, RecordingModeMetadataOnly:
	default:
		return fmt.Errorf("project config: recording.mode %q must be %q or %q",
			c.Recording.Mode, RecordingModeFull, RecordingModeMetadataOnly)
	}
	return nil
}

// FindProjectRoot walks up from start (a file or directory; empty means the
// working directory) looking for salvo.yaml or a .salvo/ directory. Falls
// back to the working directory when neither is found.
func FindProjectRoot(start string) string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	if start == "" {
		start = cwd
	}
	current, err := filepath.Abs(start)
	if err != nil {
		return cwd
	}
	if info, err := os.Stat(current); err == nil && !info.IsDir() {
		current = filepath.Dir(current)
	}
	for {
		if fileExists(filepath.Join(current, ProjectConfigFile)) || dirExists(filepath.Join(current, ".salvo")) {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return cwd
		}
		current = parent
	}
}

// LoadProjectConfig reads salvo.yaml from the project root. A missing file
// yields the defaults; unknown keys and malformed YAML are errors.
func LoadProjectConfig(root string) (ProjectConfig, error) {
	cfg := DefaultProjectConfig()

	path := filepath.Join(root, ProjectConfigFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read project config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: keep defaults.
			return DefaultProjectConfig(), nil
		}
		return cfg, fmt.Errorf("parse %s: %w", ProjectConfigFile, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
