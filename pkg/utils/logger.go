package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewSugaredLogger creates the logger of one CLI command. Verbose selects the
// development logger at debug level; otherwise logs are JSON with ISO8601
// timestamps. Every entry carries the command name as the logger name.
func NewSugaredLogger(command string, verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s logger: %w", command, err)
	}
	return l.Named(command).Sugar(), nil
}
