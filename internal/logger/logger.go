// Package logger builds the root zerolog logger from configuration.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the root logger
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	Output string // stdout, stderr or a file path

	// File rotation, used when Output is a path
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Default rotation values
const (
	DefaultMaxSizeMB  = 100
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 28
)

// ParseLevel maps a config level name to a zerolog level
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New configures the zerolog logger.
// The returned closer releases the log file, if any.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	out, closer, err := openOutput(opts)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	if opts.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    isFile(opts.Output),
		}
	}

	logger := zerolog.New(out).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Logger()
	return logger, closer, nil
}

func isFile(output string) bool {
	return output != "" && output != "stderr" && output != "stdout"
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openOutput(opts Options) (io.Writer, io.Closer, error) {
	switch opts.Output {
	case "", "stderr":
		return os.Stderr, nopCloser{}, nil
	case "stdout":
		return os.Stdout, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.Output), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	lj := &lumberjack.Logger{
		Filename:   opts.Output,
		MaxSize:    orDefault(opts.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: orDefault(opts.MaxBackups, DefaultMaxBackups),
		MaxAge:     orDefault(opts.MaxAgeDays, DefaultMaxAgeDays),
	}
	return lj, lj, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
