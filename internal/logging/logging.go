// Package logging builds the zap logger shared by the collector and the agent.
package logging

import (
	"fmt"
	"strings"

	"github.com/aman-churiwal/loadmon/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Returns a JSON logger, or a console logger when cfg.Format is "console"
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	switch cfg.Format {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zc.Build()
}
