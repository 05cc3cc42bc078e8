package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New construye el logger segun el entorno: JSON en production, consola legible en el resto.
func New(appEnv string) (*zap.Logger, error) {
	switch strings.ToLower(strings.TrimSpace(appEnv)) {
	case "production":
		return zap.NewProduction()
	case "test":
		return zap.NewNop(), nil
	default:
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
}
