// ABOUTME: Process-wide logrus setup shared by the player and relay binaries
// ABOUTME: Chooses level, formatter and destination (file, stdout or both)
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options controls Setup
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	File   string // optional log file
	// Console also writes to stdout. Disabled while the TUI owns the terminal.
	Console bool
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel maps a level name to a logrus level, defaulting to info
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Formatter returns the logrus formatter for a format name
func Formatter(format string) logrus.Formatter {
	if strings.ToLower(format) == "json" {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{FullTimestamp: true}
}

// Setup configures the standard logrus logger. The returned closer
// releases the log file, if any.
func Setup(opts Options) (io.Closer, error) {
	return configure(logrus.StandardLogger(), opts)
}

func configure(logger *logrus.Logger, opts Options) (io.Closer, error) {
	logger.SetLevel(ParseLevel(opts.Level))
	logger.SetFormatter(Formatter(opts.Format))

	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return nil, fmt.Errorf("error opening log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}
	if opts.Console || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	logger.SetOutput(io.MultiWriter(writers...))
	return closer, nil
}

// Component returns a logger tagged with a component field
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
