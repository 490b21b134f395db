// Package logging builds the process-wide zap logger from Settings.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger honoring the given level and format ("json" or "text").
func New(level string, format string) (*zap.Logger, error) {
	var cfg zap.Config

	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}

// ChainFields returns the structured fields every log line about a chain should carry.
func ChainFields(blockchain, rpcURL, chainIDLabel string) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if blockchain != "" {
		fields = append(fields, zap.String("blockchain", blockchain))
	}
	if rpcURL != "" {
		fields = append(fields, zap.String("rpc_url", rpcURL))
	}
	if chainIDLabel != "" {
		fields = append(fields, zap.String("chain_id", chainIDLabel))
	}
	return fields
}
