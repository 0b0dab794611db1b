package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("order-service", &buf, slog.LevelDebug)

	log.Error("db_query_failed", "query failed", "req-1", errors.New("boom"), map[string]interface{}{
		"order_id": 42,
	})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "query failed", line["msg"])
	assert.Equal(t, "order-service", line["service"])
	assert.Equal(t, "db_query_failed", line["action"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.EqualValues(t, 42, line["order_id"])

	errGroup, ok := line["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "boom", errGroup["msg"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("order-service", &buf, slog.LevelInfo)

	log.Debug("ignored", "debug line", "", nil)
	assert.Zero(t, buf.Len())

	log.Info("kept", "info line", "", nil)
	assert.NotZero(t, buf.Len())
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	id := GenerateRequestID()
	assert.Len(t, id, 36)
	assert.Equal(t, id, RequestIDFromContext(WithRequestID(ctx, id)))
}
