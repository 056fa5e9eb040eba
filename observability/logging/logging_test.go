package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithOptionsRenamesKeysAndFiltersLevel(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	logger, closer := SetupWithOptions(Options{Service: "lendingd", Env: "test", Level: "warn", Output: &buf})
	defer closer.Close()

	logger.Info("dropped")
	logger.Warn("kept", "market", "cQOD")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	require.Equal(t, "kept", entry["message"])
	require.Equal(t, "WARN", entry["severity"])
	require.Equal(t, "lendingd", entry["service"])
	require.Equal(t, "test", entry["env"])
	require.Equal(t, "cQOD", entry["market"])
	require.Contains(t, entry, "timestamp")
}

func TestSetupWithOptionsWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lendingd.log")
	var buf bytes.Buffer
	logger, closer := SetupWithOptions(Options{Service: "lendingd", Output: &buf, File: &FileOptions{Path: path, MaxSizeMB: 1}})
	logger.Info("hello file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello file")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestSafeHeadersMasksCredentials(t *testing.T) {
	attr := SafeHeaders(map[string]string{"authorization": "Bearer secret", "endpoint": "collector", "x-api-key": ""})
	require.Equal(t, "headers", attr.Key)
	group := attr.Value.Group()
	require.Len(t, group, 3)
	require.Equal(t, slog.String("authorization", Redacted), group[0])
	require.Equal(t, slog.String("endpoint", "collector"), group[1])
	require.Equal(t, slog.String("x-api-key", ""), group[2])
}

func TestSafeAttr(t *testing.T) {
	require.Equal(t, slog.String("Market", "0xc1"), SafeAttr("Market", "0xc1"))
	require.Equal(t, slog.String("token", Redacted), SafeAttr("token", "change-me"))
}
