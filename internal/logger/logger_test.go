package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, Config{Level: "info", Format: "JSON"}))

	log.Debug("hidden")
	log.Info("fix acquired", "accuracy", 12.5)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "fix acquired", entry["msg"])
	assert.Equal(t, 12.5, entry["accuracy"])
}

func TestTextHandlerDefault(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, Config{Level: "debug"}))
	log.Debug("settings check", "component", "settings")

	assert.Contains(t, buf.String(), "msg=\"settings check\"")
	assert.Contains(t, buf.String(), "component=settings")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.input), tt.input)
	}
}

func TestOpenOutputStd(t *testing.T) {
	w, closer, err := openOutput("stdout")
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, w)
	assert.NoError(t, closer())

	w, closer, err = openOutput("")
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, w)
	assert.NoError(t, closer())
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locationhelper.log")

	log, closer, err := New(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	log.Info("to file")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"to file"`))
}

func TestNewBadOutput(t *testing.T) {
	_, _, err := New(Config{Output: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
