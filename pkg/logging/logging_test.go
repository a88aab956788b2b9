package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONFormatProducesParsableLines(t *testing.T) {
	var buf bytes.Buffer
	logger := Init("info", FormatJSON, &buf)
	logger.Info("hello", "key", "value")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

func TestInit_DebugLevelIsUnmaskedInJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Init("debug", FormatJSON, &buf)
	logger.Debug("debug message")

	assert.Contains(t, buf.String(), "debug message")
}

func TestInit_WarnLevelSuppressesInfoAndDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := Init("warn", FormatJSON, &buf)
	logger.Info("should not appear")
	logger.Warn("should appear")

	assert.NotContains(t, buf.String(), "should not appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestInit_UnknownLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestInit_SetsSlogDefault(t *testing.T) {
	var buf bytes.Buffer
	Init("info", FormatJSON, &buf)
	slog.Info("via default")
	assert.Contains(t, buf.String(), "via default")
}
