// ABOUTME: Configuration loading and parsing for msgvault
// ABOUTME: Supports YAML files with environment variable expansion and storage tunables

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config represents the complete msgvault configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds the backing file location
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig holds the capacity tunables for the message store.
// Zero values fall back to the store defaults (500 MiB ceiling, 90%
// low-water mark, 100-row eviction batches, 50-row pages).
type StorageConfig struct {
	MaxSizeMB        int64   `yaml:"max_size_mb"`
	LowWaterFraction float64 `yaml:"low_water_fraction"`
	EvictBatch       int     `yaml:"evict_batch"`
	PageSize         int     `yaml:"page_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no config file exists:
// a messages.db in the working directory with stock capacity settings.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "messages.db"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are usable.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Storage.MaxSizeMB < 0 {
		return fmt.Errorf("storage.max_size_mb must not be negative")
	}
	if c.Storage.LowWaterFraction < 0 || c.Storage.LowWaterFraction > 1 {
		return fmt.Errorf("storage.low_water_fraction must be between 0 and 1")
	}
	if c.Storage.EvictBatch < 0 {
		return fmt.Errorf("storage.evict_batch must not be negative")
	}
	if c.Storage.PageSize < 0 {
		return fmt.Errorf("storage.page_size must not be negative")
	}

	return nil
}
