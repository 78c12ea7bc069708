package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithWriter_ProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("production", &buf)

	logger.Debug("hidden")
	logger.Info("frame analyzed", "exam_id", "e-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "frame analyzed", entry["msg"])
	assert.Equal(t, "e-1", entry["exam_id"])
	assert.NotContains(t, entry, "source")
}

func TestNewLoggerWithWriter_DevelopmentIsTextWithDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("development", &buf)

	logger.Debug("face skipped", "reason", "no landmarks")

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, `msg="face skipped"`)
	assert.Contains(t, out, "source=")
}
