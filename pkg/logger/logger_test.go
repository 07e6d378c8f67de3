package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}

	for input, expected := range tests {
		assert.Equal(t, expected, ParseLevel(input), "ParseLevel(%q)", input)
	}
}

func TestJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, "info", "json"))

	log.Debug("hidden")
	log.Info("scraped page", "marketplace", "Falabella", "products", 40)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scraped page", entry["msg"])
	assert.Equal(t, "Falabella", entry["marketplace"])
	assert.Equal(t, float64(40), entry["products"])
}

func TestTextHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, "debug", "text"))

	log.Debug("page fetched", "page", 2)
	assert.Contains(t, buf.String(), "page fetched")
	assert.Contains(t, buf.String(), "page=2")
}

func TestOutputTeesToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "scraper.log")
	var buf bytes.Buffer

	w := Output(&buf, file)
	_, err := w.Write([]byte("hello\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
	assert.Equal(t, "hello\n", buf.String())

	assert.Equal(t, &buf, Output(&buf, ""))
}
