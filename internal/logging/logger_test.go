package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/l0p7/eventdesk/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewAcceptsKnownLevelsAndFormats(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json", CorrelationHeader: "X-Request-ID"})
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger, err = New(config.LoggingConfig{Level: "debug", Format: "text"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "verbose"})
	require.Error(t, err)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(config.LoggingConfig{Format: "binary"})
	require.Error(t, err)
}

func TestNewWithWriterTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "eventdesk", line["component"])
	require.Equal(t, "hello", line["msg"])
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, CorrelationID(ctx))
	require.Equal(t, ctx, WithCorrelationID(ctx, " "))

	ctx = WithCorrelationID(ctx, "req-1")
	require.Equal(t, "req-1", CorrelationID(ctx))
}
