package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/blackwell-systems/edgeredirect/internal/config"
)

// NewLogger builds the operational logger from the logging section. A log
// file that cannot be prepared falls back to stderr and is reported through
// the returned logger.
func NewLogger(cfg config.LoggingConfig, resolve func(string) string) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	path := cfg.File
	if path != "" && resolve != nil {
		path = resolve(path)
	}
	output, outErr := buildOutput(cfg, path)

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(output)
	switch cfg.Format {
	case config.FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	if outErr != nil {
		logger.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   path,
		}).Warn(outErr.Error())
	}

	return logger, nil
}

func buildOutput(cfg config.LoggingConfig, path string) (io.Writer, error) {
	if path == "" {
		return os.Stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return os.Stderr, fmt.Errorf("create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}

// Discard returns a logger that drops everything; used by tests and by
// commands that run without a config.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
