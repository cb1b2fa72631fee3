// Package config provides configuration loading and management for cargo-cite.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete cargo-cite configuration
type Config struct {
	// Bibliography is the BibTeX/BibLaTeX file citations are resolved against
	Bibliography string `yaml:"bibliography"`
	// Style is the citation style name (default: mla)
	Style string `yaml:"style"`
	// Manifest is the Cargo.toml whose targets are processed
	Manifest string `yaml:"manifest"`
	// Files lists source files, folders or glob patterns; exclusive with Manifest
	Files []string `yaml:"files"`
	// Exclude holds doublestar patterns dropped from folder expansion
	Exclude []string `yaml:"exclude"`
	// Extensions selects the files a folder expands to
	Extensions []string `yaml:"extensions"`

	// KeepGoing is nil when unset so a later layer can turn it off again
	KeepGoing *bool `yaml:"keep_going,omitempty"`
	// Workers bounds concurrent file work (0 = GOMAXPROCS)
	Workers     int    `yaml:"workers"`
	LogLevel    string `yaml:"log_level"`
	MetricsFile string `yaml:"metrics_file"`

	Watch WatchConfig `yaml:"watch"`
}

// WatchConfig configures watch mode
type WatchConfig struct {
	// Debounce is how long to wait after the last change before re-running
	Debounce time.Duration `yaml:"debounce"`
}

var logLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Style:      "mla",
		Exclude:    []string{"**/target/**"},
		Extensions: []string{".rs"},
		LogLevel:   "warn",
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
	}
}

// ShouldKeepGoing reports whether failed files are skipped instead of
// aborting the run.
func (c *Config) ShouldKeepGoing() bool {
	return c.KeepGoing != nil && *c.KeepGoing
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Style == "" {
		return fmt.Errorf("style is required")
	}
	if c.Manifest != "" && len(c.Files) > 0 {
		return fmt.Errorf("manifest and files are mutually exclusive")
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("extensions must not be empty")
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.LogLevel != "" && !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		return fmt.Errorf("log_level must be one of %s", strings.Join(logLevels, ", "))
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file. Relative paths in the
// file are resolved against the file's directory.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	config.resolvePaths(filepath.Dir(path))

	return config, nil
}

func (c *Config) resolvePaths(dir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Bibliography = resolve(c.Bibliography)
	c.Manifest = resolve(c.Manifest)
	c.MetricsFile = resolve(c.MetricsFile)
	for i, f := range c.Files {
		c.Files[i] = resolve(f)
	}
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values).
// Setting Files clears an inherited Manifest and the other way round.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Bibliography != "" {
		c.Bibliography = other.Bibliography
	}
	if other.Style != "" {
		c.Style = other.Style
	}
	if other.Manifest != "" {
		c.Manifest = other.Manifest
		c.Files = nil
	}
	if len(other.Files) > 0 {
		c.Files = slices.Clone(other.Files)
		c.Manifest = ""
	}
	if len(other.Exclude) > 0 {
		c.Exclude = slices.Clone(other.Exclude)
	}
	if len(other.Extensions) > 0 {
		c.Extensions = slices.Clone(other.Extensions)
	}
	if other.KeepGoing != nil {
		keepGoing := *other.KeepGoing
		c.KeepGoing = &keepGoing
	}
	if other.Workers != 0 {
		c.Workers = other.Workers
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MetricsFile != "" {
		c.MetricsFile = other.MetricsFile
	}
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
}
