package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"kitchenops/internal/config"
)

const serviceName = "kitchenops"

// New builds the process logger. An unknown level falls back to info.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.InitialFields = map[string]interface{}{"service": serviceName}

	return zcfg.Build()
}
