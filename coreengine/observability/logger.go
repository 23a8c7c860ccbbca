package observability

import (
	"github.com/sirupsen/logrus"

	"github.com/sedeve-kit/dtm/coreengine/typeutil"
)

// Logger is the canonical structured-logging interface for the DTM harness.
// Every component (reorder buffer, driver, server, transport) takes one by
// dependency injection rather than calling a package-level logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Bind returns a Logger that prepends the given key/value pairs to every
	// subsequent call, e.g. a per-node or per-run logger.
	Bind(keysAndValues ...any) Logger
}

// logrusLogger wraps a *logrus.Entry to implement Logger.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogger creates a Logger backed by logrus, configured for structured
// (JSON) output at the requested level. level accepts any logrus level name
// ("debug", "info", "warn", "error"); an unrecognized level falls back to Info.
func NewLogger(level string) Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func fieldsFrom(keysAndValues []any) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := typeutil.SafeString(keysAndValues[i])
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

func (l *logrusLogger) Debug(msg string, keysAndValues ...any) {
	l.entry.WithFields(fieldsFrom(keysAndValues)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, keysAndValues ...any) {
	l.entry.WithFields(fieldsFrom(keysAndValues)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, keysAndValues ...any) {
	l.entry.WithFields(fieldsFrom(keysAndValues)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, keysAndValues ...any) {
	l.entry.WithFields(fieldsFrom(keysAndValues)).Error(msg)
}

func (l *logrusLogger) Bind(keysAndValues ...any) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fieldsFrom(keysAndValues))}
}

// noopLogger discards all output.
type noopLogger struct{}

func (noopLogger) Debug(msg string, keysAndValues ...any) {}
func (noopLogger) Info(msg string, keysAndValues ...any)  {}
func (noopLogger) Warn(msg string, keysAndValues ...any)  {}
func (noopLogger) Error(msg string, keysAndValues ...any) {}
func (n noopLogger) Bind(keysAndValues ...any) Logger      { return n }

// NoopLogger returns a Logger that discards all output, for use in tests.
func NoopLogger() Logger {
	return noopLogger{}
}
