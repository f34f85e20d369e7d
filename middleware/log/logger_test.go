package logger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Gopher0727/MiniChat/config"
)

func newFileLogger(t *testing.T, level string) (*Logger, string) {
	t.Helper()
	logFile := filepath.Join(t.TempDir(), "logs", "test.log")
	l, err := NewFileLogger(level, logFile)
	require.NoError(t, err)
	return l, logFile
}

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() {
		var e map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	t.Run("stdout text logger", func(t *testing.T) {
		l, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "text", Output: "stdout"})
		require.NoError(t, err)
		l.Debug("test debug message")
		assert.NoError(t, l.Close())
	})

	t.Run("file output creates missing directories", func(t *testing.T) {
		l, path := newFileLogger(t, "info")
		l.Info("test file message")
		require.NoError(t, l.Close())

		entries := readEntries(t, path)
		require.Len(t, entries, 1)
		assert.Equal(t, "test file message", entries[0]["message"])
	})

	t.Run("file output without a path", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{Output: "file"})
		assert.Error(t, err)
	})
}

func TestLogLevels(t *testing.T) {
	l, path := newFileLogger(t, "warn")
	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")
	require.NoError(t, l.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn message", entries[0]["message"])
	assert.Equal(t, "error message", entries[1]["message"])
}

func TestTraceIDInLogs(t *testing.T) {
	l, path := newFileLogger(t, "info")

	ctx := WithTraceID(context.Background(), "trace-abc-123")
	l.InfoContext(ctx, "message with trace ID", zap.Int("count", 42))
	l.WithFields(zap.String("user", "alice")).Info("message with fields")
	require.NoError(t, l.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "trace-abc-123", entries[0]["trace_id"])
	assert.Equal(t, float64(42), entries[0]["count"])
	assert.Equal(t, "alice", entries[1]["user"])
	assert.NotContains(t, entries[1], "trace_id")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"invalid": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for input, want := range tests {
		assert.Equal(t, want, parseLogLevel(input), "level %q", input)
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, path := newFileLogger(t, "info")

	r := gin.New()
	r.Use(GinMiddleware(l))
	r.GET("/ping", func(c *gin.Context) {
		assert.Equal(t, "given-trace", GetTraceID(c.Request.Context()))
		c.String(http.StatusOK, "pong")
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, "given-trace")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "given-trace", w.Header().Get(TraceIDHeader))
	require.NoError(t, l.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "/ping", entries[0]["path"])
	assert.Equal(t, float64(200), entries[0]["status"])
	assert.Equal(t, "given-trace", entries[0]["trace_id"])
}
