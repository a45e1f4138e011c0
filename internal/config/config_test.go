package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/campaigns
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/campaigns", cfg.Database.URL)
	assert.Equal(t, "sparkpost", cfg.Providers.Active)
	assert.Equal(t, "https://api.sparkpost.com/api/v1", cfg.SparkPost.BaseURL)

	assert.Equal(t, 9, cfg.Scheduling.WorkingHourStart)
	assert.Equal(t, 17, cfg.Scheduling.WorkingHourEnd)
	assert.Equal(t, 3.5, cfg.Scheduling.IntervalMinutes)
	assert.False(t, cfg.Scheduling.DisableWorkingHours)

	assert.Equal(t, 20, cfg.Worker.BatchSize)
	assert.Equal(t, 60*time.Second, cfg.Worker.PollInterval())
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9090
scheduling:
  timezone: America/New_York
  interval_minutes: 5
  disable_working_hours: true
worker:
  batch_size: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "America/New_York", cfg.Scheduling.Timezone)
	assert.Equal(t, 5*time.Minute, cfg.Scheduling.MinSpacing())
	assert.True(t, cfg.Scheduling.DisableWorkingHours)
	assert.Equal(t, 10, cfg.Worker.BatchSize)
}

func TestMinSpacingFractionalMinutes(t *testing.T) {
	c := SchedulingConfig{IntervalMinutes: 3.5}
	assert.Equal(t, 210*time.Second, c.MinSpacing())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	c := SchedulingConfig{Timezone: "Not/AZone"}
	assert.Equal(t, time.UTC, c.Location())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://file-value/campaigns
sparkpost:
  api_key: file-key
`)

	t.Setenv("DATABASE_URL", "postgres://env-value/campaigns")
	t.Setenv("SPARKPOST_API_KEY", "env-key")
	t.Setenv("INTERVAL_MINUTES", "7")
	t.Setenv("DISABLE_WORKING_HOURS", "true")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-value/campaigns", cfg.Database.URL)
	assert.Equal(t, "env-key", cfg.SparkPost.APIKey)
	assert.Equal(t, 7.0, cfg.Scheduling.IntervalMinutes)
	assert.True(t, cfg.Scheduling.DisableWorkingHours)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnvWithoutFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-only/campaigns")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-only/campaigns", cfg.Database.URL)
	assert.Equal(t, 8080, cfg.Server.Port)
}
