package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"chatty":  zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWritesJSONWithContextFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("info", WithOutput(&buf), WithFields(zap.String("service", "canvas-api")))
	require.NoError(t, err)

	log.Debug("hidden")
	log.Named("messages").WithRequest("corr-1", "alice").WithNode("c1", "n1").Info("appended")
	require.NoError(t, log.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "appended", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "messages", entry["logger"])
	assert.Equal(t, "canvas-api", entry["service"])
	assert.Equal(t, "corr-1", entry["correlation_id"])
	assert.Equal(t, "alice", entry["user_id"])
	assert.Equal(t, "c1", entry["canvas_id"])
	assert.Equal(t, "n1", entry["node_id"])
	assert.Contains(t, entry, "ts")
}

func TestSetGlobalIgnoresNil(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { SetGlobal(prev) })

	nop := NewNop()
	SetGlobal(nop)
	assert.Same(t, nop, Global())

	SetGlobal(nil)
	assert.Same(t, nop, Global())
}
