package sequence

import (
	"context"
	"os"

	"github.com/goliatone/go-logger/glog"
)

// DefaultLogLevel is the level of DefaultLogger.
const DefaultLogLevel = "info"

// DefaultLogger is used wherever no logger is configured. It writes console
// lines at DefaultLogLevel and above to stderr.
func DefaultLogger() Logger {
	return NewGlogLogger(defaultGlog())
}

func defaultGlog() glog.Logger {
	return glog.NewLogger(
		glog.WithWriter(os.Stderr),
		glog.WithLevel(DefaultLogLevel),
	)
}

// GlogLogger adapts a go-logger logger to Logger.
type GlogLogger struct {
	logger glog.Logger
}

func NewGlogLogger(logger glog.Logger) GlogLogger {
	return GlogLogger{logger: logger}
}

func (l GlogLogger) Trace(msg string, args ...any) { l.base().Trace(msg, args...) }
func (l GlogLogger) Debug(msg string, args ...any) { l.base().Debug(msg, args...) }
func (l GlogLogger) Info(msg string, args ...any)  { l.base().Info(msg, args...) }
func (l GlogLogger) Warn(msg string, args ...any)  { l.base().Warn(msg, args...) }
func (l GlogLogger) Error(msg string, args ...any) { l.base().Error(msg, args...) }

func (l GlogLogger) WithContext(ctx context.Context) Logger {
	return GlogLogger{logger: l.base().WithContext(ctx)}
}

func (l GlogLogger) WithFields(fields map[string]any) Logger {
	base := l.base()
	if fl, ok := base.(glog.FieldsLogger); ok {
		return GlogLogger{logger: fl.WithFields(fields)}
	}
	return GlogLogger{logger: base}
}

func (l GlogLogger) base() glog.Logger {
	if l.logger == nil {
		return defaultGlog()
	}
	return l.logger
}
