// Package log builds the process logger. It is created once at startup,
// handed to every component that emits events, and closed on shutdown.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ingressd/internal/errors"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05"

// Logger is a logrus logger that owns its file sink.
type Logger struct {
	*logrus.Logger
	file *os.File
}

type options struct {
	out     io.Writer
	file    string
	json    bool
	debug   bool
	console bool
}

// Option configures New.
type Option func(*options)

// WithOutput replaces the console stream.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithFile adds an append-mode log file sink. Parent directories are created.
func WithFile(path string) Option {
	return func(o *options) { o.file = path }
}

// WithJSON switches to one JSON object per line.
func WithJSON() Option {
	return func(o *options) { o.json = true }
}

// WithDebug enables debug level entries.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// WithoutConsole drops the console stream, leaving only the file sink.
func WithoutConsole() Option {
	return func(o *options) { o.console = false }
}

// New creates a logger writing to the console and, optionally, a log file.
func New(opts ...Option) (*Logger, error) {
	o := options{out: os.Stderr, console: true}
	for _, opt := range opts {
		opt(&o)
	}

	l := &Logger{Logger: logrus.New()}

	var writers []io.Writer
	if o.console && o.out != nil {
		writers = append(writers, o.out)
	}
	if o.file != "" {
		f, err := openLogFile(o.file)
		if err != nil {
			return nil, err
		}
		l.file = f
		writers = append(writers, f)
	}
	switch len(writers) {
	case 0:
		l.SetOutput(io.Discard)
	case 1:
		l.SetOutput(writers[0])
	default:
		l.SetOutput(io.MultiWriter(writers...))
	}

	if o.json {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	if o.debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Close flushes and closes the file sink, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	l.SetOutput(io.Discard)
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WithError attaches err and its classification to l.
func WithError(l logrus.FieldLogger, err error) *logrus.Entry {
	entry := l.WithError(err)
	if err == nil {
		return entry
	}
	fields := logrus.Fields{"error_kind": errors.KindOf(err).String()}

	var fileErr *errors.FileError
	if errors.As(err, &fileErr) && fileErr.Path() != "" {
		fields["path"] = fileErr.Path()
	}
	var configErr *errors.ConfigError
	if errors.As(err, &configErr) && configErr.Param() != "" {
		fields["param"] = configErr.Param()
	}
	var patternErr *errors.PatternError
	if errors.As(err, &patternErr) && patternErr.Pattern() != "" {
		fields["pattern"] = patternErr.Pattern()
	}
	return entry.WithFields(fields)
}

// Component returns l scoped to a named component.
func Component(l logrus.FieldLogger, name string) logrus.FieldLogger {
	return l.WithField("component", name)
}
