package log

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Fields is the set of structured fields attached to a log entry.
type Fields = logrus.Fields

// Logger is the minimal leveled, structured logging interface used across the
// library. GetLogger implements it with a thin wrapper around *logrus.Entry.
type Logger interface {
	WithFields(fields Fields) Logger
	WithError(err error) Logger

	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type entryLogger struct {
	*logrus.Entry
}

func (l entryLogger) WithFields(fields Fields) Logger {
	return entryLogger{l.Entry.WithFields(fields)}
}

func (l entryLogger) WithError(err error) Logger {
	return entryLogger{l.Entry.WithError(err)}
}

type contextKey struct{}

var defaultLogger = logrus.StandardLogger()

// SetDefaultLogger replaces the logger returned by GetLogger when no
// context-bound logger is available.
func SetDefaultLogger(l *logrus.Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Option configures logger retrieval.
type Option func(*options)

type options struct {
	ctx context.Context
}

// WithContext makes GetLogger return the logger previously bound to ctx with
// ToContext, falling back to the default logger.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// ToContext binds a logger to the returned context.
func ToContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// GetLogger returns the logger for the given options. Without options, or when
// the context carries no logger, the process default logger is returned.
func GetLogger(opts ...Option) Logger {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.ctx != nil {
		if l, ok := o.ctx.Value(contextKey{}).(Logger); ok {
			return l
		}
	}

	return entryLogger{logrus.NewEntry(defaultLogger)}
}
