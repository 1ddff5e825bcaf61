package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hanamilabs/admin-promoter-bot/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New logs JSON to stdout and, when a log path is configured, to a rotating file.
func New(cfg config.Config) (*slog.Logger, error) {
	var writer io.Writer = os.Stdout
	if strings.TrimSpace(cfg.LogFilePath) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0o755); err != nil {
			return nil, err
		}
		writer = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFilePath,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		})
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)})
	return slog.New(handler).With("service", "admin-promoter"), nil
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
