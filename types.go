package access

import (
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger used across the package. Arguments
// after the message are key/value pairs.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// LoggerProvider hands out named loggers.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// LoggerProviderFunc adapts a function to the LoggerProvider interface.
type LoggerProviderFunc func(name string) Logger

// GetLogger implements LoggerProvider.
func (f LoggerProviderFunc) GetLogger(name string) Logger {
	if f == nil {
		return nil
	}
	return f(name)
}

// ResolveLogger picks the logger for a component. An explicit logger wins,
// then the provider, then the package default.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider == nil {
		provider = defaultProvider
	}

	if logger != nil {
		return provider, logger
	}

	if l := provider.GetLogger(name); l != nil {
		return provider, l
	}

	return provider, defaultLogger().named(name)
}

var defaultProvider LoggerProvider = LoggerProviderFunc(func(name string) Logger {
	return defaultLogger().named(name)
})

var baseLogrus = newLogrus(os.Getenv("ACCESS_LOG_LEVEL"), os.Getenv("ACCESS_LOG_FORMAT"))

func newLogrus(level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	if lvl, err := logrus.ParseLevel(strings.TrimSpace(level)); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// NewLogrusLogger wraps a logrus logger so it satisfies Logger.
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = baseLogrus
	}
	return logrusLogger{entry: logrus.NewEntry(l)}
}

// NewLogrusProvider returns a provider that tags every logger with its name.
func NewLogrusProvider(l *logrus.Logger) LoggerProvider {
	base := NewLogrusLogger(l).(logrusLogger)
	return LoggerProviderFunc(func(name string) Logger {
		return base.named(name)
	})
}

// ConfigureDefaultLogger replaces the level and format of the package logger.
func ConfigureDefaultLogger(level, format string) {
	l := newLogrus(level, format)
	baseLogrus.SetLevel(l.GetLevel())
	baseLogrus.SetFormatter(l.Formatter)
}

func defaultLogger() logrusLogger {
	return logrusLogger{entry: logrus.NewEntry(baseLogrus)}
}

type logrusLogger struct {
	entry *logrus.Entry
}

func (l logrusLogger) named(name string) logrusLogger {
	if name == "" {
		return l
	}
	return logrusLogger{entry: l.entry.WithField("logger", name)}
}

func (l logrusLogger) with(args []any) *logrus.Entry {
	if len(args) == 0 {
		return l.entry
	}
	return l.entry.WithFields(toFields(args))
}

func (l logrusLogger) Trace(msg string, args ...any) { l.with(args).Trace(msg) }
func (l logrusLogger) Debug(msg string, args ...any) { l.with(args).Debug(msg) }
func (l logrusLogger) Info(msg string, args ...any)  { l.with(args).Info(msg) }
func (l logrusLogger) Warn(msg string, args ...any)  { l.with(args).Warn(msg) }
func (l logrusLogger) Error(msg string, args ...any) { l.with(args).Error(msg) }

func (l logrusLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	return logrusLogger{entry: l.entry.WithContext(ctx)}
}

// toFields turns key/value pairs into logrus fields. A trailing key with no
// value is kept under "!BADKEY" like slog does.
func toFields(args []any) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			fields["!BADKEY"] = args[i]
			i--
			continue
		}
		if i+1 >= len(args) {
			fields["!BADKEY"] = key
			break
		}
		fields[key] = args[i+1]
	}
	return fields
}
