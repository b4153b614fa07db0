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
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_FromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
  env: production
database:
  url: postgres://localhost/meerkat
services:
  nli_url: http://nli:8000
  embedder_url: http://embedder:8000
billing:
  webhook_secret: whsec_abc
shield:
  aggregate_low_signals: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, "postgres://localhost/meerkat", cfg.Database.URL)
	assert.Equal(t, "http://nli:8000", cfg.Services.NLI)
	assert.Equal(t, "http://embedder:8000", cfg.Services.Embedder)
	assert.Equal(t, "whsec_abc", cfg.Billing.WebhookSecret)
	assert.True(t, cfg.Shield.AggregateLowSignals)
	assert.Empty(t, cfg.Services.Claims, "unset services stay on the heuristic")
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
`)
	t.Setenv("PORT", "7070")
	t.Setenv("NLI_SERVICE_URL", "http://nli-override:8000")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "http://nli-override:8000", cfg.Services.NLI)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOnlyWithPortDefault(t *testing.T) {
	t.Setenv("PORT", "")
	cfg := Load()
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/meerkat")
	t.Setenv("SHIELD_AGGREGATE_LOW_SIGNALS", "1")

	cfg := Load()
	assert.Equal(t, "postgres://db/meerkat", cfg.Database.URL)
	assert.True(t, cfg.Shield.AggregateLowSignals)
}
