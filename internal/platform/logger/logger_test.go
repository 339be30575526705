package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irshadali21/localBrowser-playwright-sub001/internal/config"
)

func TestSetup(t *testing.T) {
	testCases := []struct {
		name      string
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug enables everything", "debug", true, true},
		{"info suppresses debug", "info", false, true},
		{"error suppresses info", "error", false, false},
		{"unknown level falls back to info", "loud", false, true},
		{"level is case-insensitive", "WARN", false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			log, err := Setup(config.ServerConfig{LogLevel: tc.level})
			require.NoError(t, err)
			require.NotNil(t, log)

			ctx := context.Background()
			assert.Equal(t, tc.wantDebug, log.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tc.wantInfo, log.Enabled(ctx, slog.LevelInfo))
			assert.True(t, log.Enabled(ctx, slog.LevelError))
		})
	}
}

func TestSetupSetsDefault(t *testing.T) {
	log, err := Setup(config.ServerConfig{LogLevel: "warn"})
	require.NoError(t, err)
	assert.Equal(t, log, slog.Default())
}

func TestContextLogger(t *testing.T) {
	scoped := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx := WithLogger(context.Background(), scoped)
	assert.Equal(t, scoped, FromContext(ctx))

	t.Run("missing logger falls back to default", func(t *testing.T) {
		assert.Equal(t, slog.Default(), FromContext(context.Background()))
	})

	t.Run("nil context falls back to default", func(t *testing.T) {
		assert.Equal(t, slog.Default(), FromContext(nil)) //nolint:staticcheck
	})
}
