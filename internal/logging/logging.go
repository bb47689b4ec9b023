// Package logging builds the service's zap loggers. Each component gets a
// named sugared logger so log lines carry their origin.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var root *zap.Logger

func init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	root = logger
}

// NewLogger returns a named sugared logger for a component.
func NewLogger(component string) *zap.SugaredLogger {
	return root.Sugar().Named(component)
}

// Sync flushes buffered log entries. Called from main on shutdown.
func Sync() {
	_ = root.Sync()
}
