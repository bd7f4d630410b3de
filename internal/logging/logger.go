// Package logging builds the zap loggers used by every binary.  Application
// logs go to stderr and, when a file is configured, to a rotating file.  The
// security audit log is always a separate rotating file.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shopease/shop-ease-backend/internal/config"
)

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// New returns the application logger described by cfg.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Level, err)
	}

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "console":
		enc = zapcore.NewConsoleEncoder(encoderConfig())
	case "json", "":
		enc = zapcore.NewJSONEncoder(encoderConfig())
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", cfg.Format)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)}
	if cfg.File != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig()),
			zapcore.AddSync(rotator(cfg, cfg.File)),
			level,
		))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// NewAudit returns an append-only INFO logger writing JSON lines to
// cfg.AuditFile.
func NewAudit(cfg config.LogConfig) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(rotator(cfg, cfg.AuditFile)),
		zapcore.InfoLevel,
	)
	return zap.New(core)
}

func rotator(cfg config.LogConfig, path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}
