package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8084, cfg.Server.Port)
	assert.Equal(t, "co", cfg.Scraper.Country)
	assert.Equal(t, []string{"mercadolibre", "falabella"}, cfg.Scraper.Marketplaces)
	assert.Equal(t, time.Second, cfg.Scraper.PageDelayMin)
	assert.Equal(t, 3*time.Second, cfg.Scraper.PageDelayMax)
	assert.Equal(t, "es-CO", cfg.Browser.Locale)
	assert.Equal(t, "America/Bogota", cfg.Browser.TimezoneID)
	assert.Equal(t, "output", cfg.Export.OutputDir)
	assert.Equal(t, ",", cfg.Export.CSVDelimiter)
	assert.Equal(t, 2, cfg.Export.JSONIndent)
	assert.False(t, cfg.Database.Enabled)
	assert.NotEmpty(t, cfg.Scraper.UserAgents)
	assert.NotEmpty(t, cfg.Scraper.MobileUserAgents)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("SCRAPER_MARKETPLACES", "megatienda, falabella ,")
	t.Setenv("SCRAPER_PAGE_DELAY_MAX", "10s")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("SCRAPER_WORKERS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"megatienda", "falabella"}, cfg.Scraper.Marketplaces)
	assert.Equal(t, 10*time.Second, cfg.Scraper.PageDelayMax)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 2, cfg.Scraper.Workers, "invalid values fall back to the default")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SCRAPER_COUNTRY=cl\nLOG_LEVEL=debug\n"), 0o644))

	// Variables already set take precedence over the file.
	t.Setenv("LOG_LEVEL", "warn")
	// Registered for cleanup so the value loaded from the file does not leak.
	t.Setenv("SCRAPER_COUNTRY", "")
	require.NoError(t, os.Unsetenv("SCRAPER_COUNTRY"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cl", cfg.Scraper.Country)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"Invalid port", func(c *Config) { c.Server.Port = 0 }},
		{"No workers", func(c *Config) { c.Scraper.Workers = 0 }},
		{"No pages", func(c *Config) { c.Scraper.MaxPages = 0 }},
		{"Inverted delays", func(c *Config) { c.Scraper.PageDelayMin = 5 * time.Second }},
		{"No user agents", func(c *Config) { c.Scraper.UserAgents = nil }},
		{"Long delimiter", func(c *Config) { c.Export.CSVDelimiter = ";;" }},
		{"Redis without database", func(c *Config) { c.Redis.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5433, Name: "listings"}
	assert.Equal(t, "postgres://u:p@db:5433/listings?sslmode=disable", d.DSN())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
