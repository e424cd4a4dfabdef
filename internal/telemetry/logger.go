// Package telemetry builds the process logger and tracer provider.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"replyd/internal/common/fsutil"
	"replyd/internal/config"
)

// NewLogger builds a zerolog.Logger writing to out in the configured format,
// teeing JSON lines into a rotated file when cfg.File is set. The returned
// closer releases the file.
func NewLogger(cfg config.LogConfig, out io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}
	if out == nil {
		out = os.Stderr
	}
	var w io.Writer = out
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file, err := fsutil.PrepareFile(cfg.File)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("log file: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		w = zerolog.MultiLevelWriter(w, lj)
		closer = lj
	}
	l := zerolog.New(w).Level(level).With().Timestamp().Str("service", "replyd").Logger()
	return l, closer, nil
}

// ParseLevel maps a level name to a zerolog.Level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "off", "disabled":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
