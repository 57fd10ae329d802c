package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/tg-assistant/internal/observability"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := observability.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := observability.ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoggerFromContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, observability.Setup(&buf, "debug", "json"))

	ctx := observability.WithRequestID(context.Background(), "req-1")
	ctx = observability.WithUser(ctx, 42, 7)
	observability.LoggerFromContext(ctx).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-1", line["request_id"])
	assert.EqualValues(t, 42, line["user_id"])
	assert.EqualValues(t, 7, line["chat_id"])
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, observability.Setup(&bytes.Buffer{}, "info", "xml"))
}
