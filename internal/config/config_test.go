// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers YAML parsing, env var expansion, defaults and bad values

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/var/lib/msgvault/messages.db"

storage:
  max_size_mb: 500
  low_water_fraction: 0.9
  evict_batch: 100
  page_size: 50

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/msgvault/messages.db", cfg.Database.Path)
	assert.Equal(t, int64(500), cfg.Storage.MaxSizeMB)
	assert.Equal(t, 0.9, cfg.Storage.LowWaterFraction)
	assert.Equal(t, 100, cfg.Storage.EvictBatch)
	assert.Equal(t, 50, cfg.Storage.PageSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_StorageDefaultsToZero(t *testing.T) {
	// Zero storage values are valid: the store replaces them with its
	// built-in defaults.
	path := writeConfig(t, `
database:
  path: "messages.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Zero(t, cfg.Storage.MaxSizeMB)
	assert.Zero(t, cfg.Storage.LowWaterFraction)
	assert.Zero(t, cfg.Storage.EvictBatch)
	assert.Zero(t, cfg.Storage.PageSize)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("MSGVAULT_TEST_DIR", "/tmp/vault-test")

	path := writeConfig(t, `
database:
  path: "${MSGVAULT_TEST_DIR}/messages.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vault-test/messages.db", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "info"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.path")
}

func TestLoad_BadLowWaterFraction(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "messages.db"
storage:
  low_water_fraction: 1.5
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "low_water_fraction")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "database: [unclosed")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "messages.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}
