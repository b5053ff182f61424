package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dgnsrekt/gamma-exposure/internal/config"
)

func TestNew_Level(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "warn"}, false)
	require.NoError(t, err)

	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	verbose, err := New(config.LoggingConfig{Level: "warn"}, true)
	require.NoError(t, err)
	require.True(t, verbose.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "chatty"}, false)
	require.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gex.log")

	logger, err := New(config.LoggingConfig{
		Level: "info",
		File:  config.FileLogConfig{Enabled: true, Path: path, MaxSizeMB: 1},
	}, false)
	require.NoError(t, err)

	logger.Info("refresh complete", zap.String("ticker", "AAPL"))
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(raw), `"ticker":"AAPL"`), "log file: %s", raw)
}
