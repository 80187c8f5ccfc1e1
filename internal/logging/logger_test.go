package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"trace", LevelTrace},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNewLogger_JSONWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", &buf)

	logger.Debug("hidden")
	logger.Info("poi catalog loaded", "pois", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"poi catalog loaded"`)
	assert.Contains(t, out, `"pois":3`)
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)

	logger.Log(context.Background(), LevelTrace, "admitted", "person", 1)
	require.NotEmpty(t, buf.String())
	assert.Contains(t, buf.String(), `"level":"TRACE"`)
}
