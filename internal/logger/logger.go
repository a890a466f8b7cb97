// Package logger builds the zap logger used across chatsync.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger at level writing to sink.
//
// level is one of debug, info, warn, error ("" means info). sink is "stderr"
// (the default), "stdout", "file:/path/to/log" or "off".
func New(level, sink string) (*zap.Logger, error) {
	sink = strings.TrimSpace(sink)
	if sink == "off" {
		return zap.NewNop(), nil
	}

	lvl := zapcore.InfoLevel
	if s := strings.ToLower(strings.TrimSpace(level)); s != "" {
		if s == "warning" {
			s = "warn"
		}
		if err := lvl.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("logger.New: level %q: %w", level, err)
		}
	}

	out, err := outputPath(sink)
	if err != nil {
		return nil, fmt.Errorf("logger.New: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{out}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger.New: build: %w", err)
	}
	return l, nil
}

func outputPath(sink string) (string, error) {
	switch {
	case sink == "" || sink == "stderr":
		return "stderr", nil
	case sink == "stdout":
		return "stdout", nil
	case strings.HasPrefix(sink, "file:"):
		path := strings.TrimPrefix(sink, "file:")
		if path == "" {
			return "", fmt.Errorf("sink %q: empty file path", sink)
		}
		return path, nil
	}
	return "", fmt.Errorf("unknown sink %q", sink)
}
