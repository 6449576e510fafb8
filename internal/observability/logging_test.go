package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{"json stdout", LogConfig{Level: "info", Format: "json", Output: "stdout"}, false},
		{"console stderr", LogConfig{Level: "debug", Format: "console", Output: "stderr"}, false},
		{"warn level", LogConfig{Level: "warn", Format: "json"}, false},
		{"invalid level", LogConfig{Level: "verbose", Format: "json"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)

			// Exercise the full surface; none of these may panic.
			logger.Debug("debug message", String("key", "value"))
			logger.Info("info message", Int("count", 1))
			logger.Warn("warn message", Bool("flag", true))
			logger.Error("error message")
			child := logger.With(String("component", "test"))
			child.Info("child message")
		})
	}
}

func TestDefaultLogConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NopLogger()
	logger.Info("discarded")
	logger.With(String("k", "v")).Error("also discarded")
	assert.NoError(t, logger.Sync())
}
