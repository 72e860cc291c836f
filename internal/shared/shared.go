// Package shared defines configuration, storage, logging and error helpers used across libsync.
package shared

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a timestamped logger that reports callers. A nil w means [os.Stderr].
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{ReportTimestamp: true, ReportCaller: true})
}

// NewFileLogger writes logfmt lines to a size-rotated file for when the live progress view owns the terminal.
// Close the returned closer to release the file.
func NewFileLogger(cfg LogConfig) (*log.Logger, io.Closer) {
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    max(cfg.MaxSizeMB, 1),
		MaxBackups: cfg.MaxBackups,
	}
	logger := log.NewWithOptions(rotator, log.Options{ReportTimestamp: true, Formatter: log.LogfmtFormatter})
	ApplyLogLevel(logger, cfg.Level, false)
	return logger, rotator
}

// ParseLogLevel maps a config string onto a [log.Level], defaulting to info.
func ParseLogLevel(s string) log.Level {
	lvl, err := log.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// ApplyLogLevel sets l to the configured level, or debug when verbose.
func ApplyLogLevel(l *log.Logger, level string, verbose bool) {
	if verbose {
		l.SetLevel(log.DebugLevel)
		return
	}
	l.SetLevel(ParseLogLevel(level))
}

func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// GenerateID returns a random v4 UUID, used for run ids and OAuth state.
func GenerateID() string {
	return uuid.New().String()
}
