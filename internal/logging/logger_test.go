package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/hanamilabs/admin-promoter-bot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}

func TestNewWritesRotatingFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "promoter.log")
	logger, err := New(config.Config{LogFilePath: logPath, LogLevel: "info", LogMaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("promotion complete", "chat_id", int64(-100))

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"promotion complete"`)
	assert.Contains(t, string(content), `"service":"admin-promoter"`)
}
