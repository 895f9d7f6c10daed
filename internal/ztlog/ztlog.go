// Package ztlog builds the structured operator logger used throughout
// the admission core for startup, shutdown, and operational events. It
// is distinct from internal/auditlog: ztlog is for operators reading
// stderr/a log aggregator, auditlog is the tamper-evident security
// record. Grounded directly on 0gfoundation's cmd/billing/main.go, which
// builds a *zap.Logger once at startup and threads it through every
// component constructor.
package ztlog

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style JSON logger at the given level ("debug",
// "info", "warn", "error"; empty defaults to "info").
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	zapLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// NewDevelopment builds a human-readable console logger, for local runs
// and tests that want readable output instead of JSON.
func NewDevelopment() (*zap.Logger, error) {
	return zap.NewDevelopment()
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}
