package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig holds options for constructing the process logger
type LoggerConfig struct {
	Debug bool
}

// NewLogger creates a zap logger. Debug enables the development config with
// human-readable output and DebugLevel; otherwise a production JSON logger
// is returned.
func NewLogger(cfg *LoggerConfig) (*zap.Logger, error) {
	if cfg == nil {
		cfg = &LoggerConfig{}
	}

	if cfg.Debug {
		zapCfg := zap.NewDevelopmentConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return zapCfg.Build()
	}

	return zap.NewProduction()
}
