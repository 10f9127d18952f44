package clog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func newBufferLogger(t *testing.T, level string, opts ...Option) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger, err := New(&Config{Level: level, Format: "json"}, append(opts, withWriter(buf))...)
	require.NoError(t, err)
	return logger, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"nil config", nil, false},
		{"console", &Config{Level: "info", Format: "console", Output: "stderr"}, false},
		{"defaults filled", &Config{}, false},
		{"invalid level", &Config{Level: "verbose"}, true},
		{"invalid format", &Config{Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestParseLevel(t *testing.T) {
	lv, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, lv)
	assert.Equal(t, "warn", lv.String())

	lv, err = ParseLevel("nope")
	assert.Error(t, err)
	assert.Equal(t, InfoLevel, lv)
	assert.True(t, FatalLevel > ErrorLevel)
}

func TestLogger_JSONOutput(t *testing.T) {
	logger, buf := newBufferLogger(t, "debug", WithNamespace("capsule"))
	logger.WithNamespace("netclient").
		With(String("method", "GET")).
		Info("request done", Int("status", 200), Error(errors.New("boom")))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "request done", entry["msg"])
	assert.Equal(t, "capsule.netclient", entry[NamespaceKey])
	assert.Equal(t, "GET", entry["method"])
	assert.EqualValues(t, 200, entry["status"])
	assert.Equal(t, "boom", entry["err_msg"])
}

func TestLogger_SetLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, "warn")
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	require.NoError(t, logger.SetLevel(DebugLevel))
	logger.Debug("visible")
	assert.Len(t, decodeLines(t, buf), 1)
}

type requestIDKey struct{}

func TestLogger_ContextFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "info", WithContextField(requestIDKey{}, "request_id"), WithTraceContext())

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = context.WithValue(ctx, requestIDKey{}, "req-1")

	logger.InfoContext(ctx, "with context")
	entry := decodeLines(t, buf)[0]
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, traceID.String(), entry["trace_id"])
	assert.Equal(t, spanID.String(), entry["span_id"])
}

func TestErrorWithCode(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")
	logger.Error("failed", ErrorWithCode(errors.New("bad"), "E1"))

	group, ok := decodeLines(t, buf)[0]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bad", group["msg"])
	assert.Equal(t, "E1", group["code"])
}

func TestTrimSource(t *testing.T) {
	assert.Equal(t, "capsule/cache/cache.go", trimSource("/home/u/src/capsule/cache/cache.go", ""))
	assert.Equal(t, "cache/cache.go", trimSource("/home/u/src/capsule/cache/cache.go", "/home/u/src/capsule"))
	assert.Equal(t, "x.go", trimSource("/tmp/x.go", ""))
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Info("nothing")
	assert.NoError(t, l.SetLevel(DebugLevel))
	assert.NotNil(t, l.WithNamespace("x").With(String("k", "v")))
}
