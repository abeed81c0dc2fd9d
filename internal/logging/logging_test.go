package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parimoosavi/snaps-monorepo/internal/config"
)

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "debug", LogFormat: "text"}

	logger := SetupWithWriter(cfg, &buf)
	require.NotNil(t, logger)

	logger.Info("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "info", LogFormat: "json"}

	logger := SetupWithWriter(cfg, &buf)
	require.NotNil(t, logger)

	logger.Info("test-msg")
	assert.Contains(t, buf.String(), `"msg":"test-msg"`)
}

func TestSetup_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "warn", LogFormat: "text"}

	logger := SetupWithWriter(cfg, &buf)

	logger.Info("should-not-appear")
	logger.Warn("should-appear")

	out := buf.String()
	assert.NotContains(t, out, "should-not-appear")
	assert.Contains(t, out, "should-appear")
}

func TestSetup_QuietOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "debug", LogFormat: "text", Quiet: true}

	logger := SetupWithWriter(cfg, &buf)

	logger.Warn("suppressed")
	logger.Error("kept")

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "kept")
}

func TestSetup_NoColorDisablesColor(t *testing.T) {
	prev := color.NoColor
	t.Cleanup(func() { color.NoColor = prev })

	color.NoColor = false
	cfg := &config.Config{LogLevel: "info", LogFormat: "text", NoColor: true}

	SetupWithWriter(cfg, &bytes.Buffer{})
	assert.True(t, color.NoColor)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.level))
		})
	}
}

func TestContext(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	ctx := NewContext(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	// Fallback when no logger stored.
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}
