// Package logging builds the process slog logger.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

// FileName is the log file written inside a configured log directory.
const FileName = "vidbot.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string // auto, console or json
	// LogDir additionally receives FileName when set.
	LogDir string
	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// Logger wraps the constructed logger with the files it holds open.
type Logger struct {
	*slog.Logger
	files []*os.File
}

// Close releases the log files.
func (l *Logger) Close() error {
	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// New constructs a logger from opts.
func New(opts Options) (*Logger, error) {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	switch format {
	case "", "auto":
		format = "json"
		if isTerminal(stdout) {
			format = "console"
		}
	case "console", "json":
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	out := stdout
	l := &Logger{}
	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		path := filepath.Join(opts.LogDir, FileName)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		l.files = append(l.files, file)
		out = io.MultiWriter(stdout, file)
	}

	level := ParseLevel(opts.Level)
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level, ReplaceAttr: jsonAttrs})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level, ReplaceAttr: consoleAttrs})
	}
	l.Logger = slog.New(handler)
	return l, nil
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func jsonAttrs(groups []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "ts"
		if attr.Value.Kind() == slog.KindTime {
			attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
		}
	case slog.LevelKey:
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
	}
	return attr
}

func consoleAttrs(groups []string, attr slog.Attr) slog.Attr {
	if attr.Key == slog.TimeKey && attr.Value.Kind() == slog.KindTime {
		attr.Value = slog.StringValue(attr.Value.Time().Format("2006-01-02 15:04:05"))
	}
	return attr
}
