package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerConfig struct {
	Debug bool
}

// NewLogger builds the process-wide zap logger. Debug switches to the development
// encoder and lowers the level to debug.
func NewLogger(cfg *LoggerConfig) (*zap.Logger, error) {
	if cfg == nil {
		cfg = &LoggerConfig{}
	}

	var zc zap.Config
	if cfg.Debug {
		zc = zap.NewDevelopmentConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zc = zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = !cfg.Debug

	return zc.Build()
}
