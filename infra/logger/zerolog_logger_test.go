package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	assert.NoError(t, os.Setenv("APP_ENV", "dev"))
	defer func() { assert.NoError(t, os.Unsetenv("APP_ENV")) }()
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestNewWithConfigJSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig("dispatch", Config{Level: "warn", Format: "json"}, &buf)
	l.Infof("hidden")
	l.Warnf("ticket %s", "t1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "dispatch", entry["component"])
	assert.Equal(t, "ticket t1", entry["message"])
	assert.Equal(t, "warn", entry["level"])
}

func TestWithAddsField(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig("mqtt", Config{Format: "json"}, &buf).(*ZerologLogger)
	l.With("ticket_id", "t9").Infof("sent")
	assert.Contains(t, buf.String(), `"ticket_id":"t9"`)
}
