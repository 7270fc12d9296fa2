package sequence

import "context"

// Logger is the engine logging contract. Messages are printf formats.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// FieldsLogger is implemented by loggers that attach structured fields.
type FieldsLogger interface {
	WithFields(map[string]any) Logger
}

// NopLogger drops every message.
type NopLogger struct{}

func (NopLogger) Trace(string, ...any)                 {}
func (NopLogger) Debug(string, ...any)                 {}
func (NopLogger) Info(string, ...any)                  {}
func (NopLogger) Warn(string, ...any)                  {}
func (NopLogger) Error(string, ...any)                 {}
func (n NopLogger) WithContext(context.Context) Logger { return n }

// normalizeLogger substitutes DefaultLogger for a nil logger.
func normalizeLogger(logger Logger) Logger {
	if logger == nil {
		return DefaultLogger()
	}
	return logger
}

func withLoggerFields(logger Logger, fields map[string]any) Logger {
	logger = normalizeLogger(logger)
	if fl, ok := logger.(FieldsLogger); ok && len(fields) > 0 {
		return fl.WithFields(fields)
	}
	return logger
}
