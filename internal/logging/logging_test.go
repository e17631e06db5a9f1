package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/gradecast/internal/logging"
)

func TestJSONWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Options{Level: "debug", Format: "json", Output: &buf})
	ctx := logging.WithRequestID(context.Background(), "req-1")
	log.With(slog.String("component", "test")).DebugContext(ctx, "hello", slog.Int("n", 3))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "test", rec["component"])
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Options{Level: "warn", Output: &buf})
	log.Info("quiet")
	assert.Zero(t, buf.Len())
	log.Warn("loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("bogus"))
}
