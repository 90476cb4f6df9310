package logging

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

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "WARN", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "json", Writer: &buf})
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("compiled query", "query", "ListPosts")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "compiled query", rec["msg"])
	assert.Equal(t, "ListPosts", rec["query"])

	buf.Reset()
	logger, err = New(Options{Level: "error", Verbose: true, Writer: &buf})
	require.NoError(t, err)
	logger.Debug("shown", "n", 1)
	assert.Contains(t, buf.String(), "level=DEBUG msg=shown n=1")

	_, err = New(Options{Format: "xml"})
	assert.ErrorContains(t, err, `invalid log format "xml"`)
	_, err = New(Options{Level: "loud"})
	assert.ErrorContains(t, err, `invalid log level "loud"`)
}

func TestPrettyHandler(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "pretty", Writer: &buf})
	require.NoError(t, err)

	logger.With("component", "oracle").Warn("describe failed", "error", errors.New("boom"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "describe failed", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "oracle", rec["component"])
	assert.Equal(t, "boom", rec["error"])
	assert.Contains(t, buf.String(), "\n  \"")
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
