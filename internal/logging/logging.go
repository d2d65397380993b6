// ABOUTME: zerolog setup for FruityPi binaries
// ABOUTME: Console plus rotating file output, file only while the TUI owns the terminal
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where logs go
type Options struct {
	Level string
	// File is the log path; empty disables file output
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Console enables human-readable output on ConsoleOut (stderr by default)
	Console    bool
	ConsoleOut io.Writer
}

// Logger is a configured logger plus the file it writes to
type Logger struct {
	zerolog.Logger
	file *lumberjack.Logger
}

// ParseLevel accepts zerolog level names, plus "warning"
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// New builds the logger. The standard library logger is redirected into it
// so third-party packages that use log.Printf do not write over the TUI.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var writers []io.Writer
	l := &Logger{}

	if opts.Console {
		out := opts.ConsoleOut
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize, // megabytes
			MaxBackups: opts.MaxBackups,
			MaxAge:     7, // days
		}
		writers = append(writers, l.file)
	}

	if len(writers) == 0 {
		l.Logger = zerolog.Nop()
		return l, nil
	}

	l.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()

	log.SetFlags(0)
	log.SetOutput(l.Logger.With().Str("source", "stdlog").Logger())

	return l, nil
}

// Close flushes and closes the log file, if any
func (l *Logger) Close() error {
	log.SetOutput(os.Stderr)
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
