package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"info":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatText, ParseFormat("yaml"))
}

func TestNew_JSONComponent(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New(Config{Level: LevelDebug, Format: FormatJSON, Output: &buf}), "monitor")
	l.Debug("session started", "testFile", "t1")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "monitor", entry["component"])
	assert.Equal(t, "t1", entry["testFile"])
	assert.Equal(t, "session started", entry["msg"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})
	l.Info("dropped")
	assert.Zero(t, buf.Len())
	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestComponent_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		Component(nil, "x").Info("nothing happens")
	})
}
