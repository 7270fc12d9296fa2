package cron

import (
	"fmt"
	"io"
	"time"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelDebug
)

// Parser represents a cron expression parser type
type Parser int

const (
	DefaultParser Parser = iota
	StandardParser
	SecondsParser
)

// Option defines the functional option type for Scheduler
type Option func(*Scheduler)

// WithLocation sets the timezone location for the scheduler
func WithLocation(loc *time.Location) Option {
	return func(cs *Scheduler) {
		cs.location = loc
	}
}

// WithLogger sets a custom logger for the scheduler
func WithLogger(logger Logger) Option {
	return func(cs *Scheduler) {
		cs.logger = logger
	}
}

// WithLogWriter sets a custom writer for logging
func WithLogWriter(writer io.Writer) Option {
	return func(cs *Scheduler) {
		cs.logWriter = writer
	}
}

// WithLogLevel sets the logging level
func WithLogLevel(level LogLevel) Option {
	return func(cs *Scheduler) {
		cs.logLevel = level
	}
}

// WithErrorHandler sets a custom error handler for the scheduler
func WithErrorHandler(handler func(error)) Option {
	return func(cs *Scheduler) {
		cs.errorHandler = handler
	}
}

// WithParser sets the type of cron expression parser to use
func WithParser(p Parser) Option {
	return func(cs *Scheduler) {
		cs.parser = p
	}
}

// loggerAdapter adapts our Logger interface to robfig/cron's logger
type loggerAdapter struct {
	logger Logger
	level  LogLevel
}

// robfig/cron passes key/value pairs, not format arguments.
func (l *loggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	if l.level >= LogLevelInfo {
		l.logger.Info("cron %s %v", msg, keysAndValues)
	}
}

func (l *loggerAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	if l.level >= LogLevelError {
		l.logger.Error("cron %s %v: %v", msg, keysAndValues, err)
	}
}

// errorHandlerAdapter adapts a simple error handler function to implement cron.Logger
type errorHandlerAdapter struct {
	handler func(error)
}

func (e *errorHandlerAdapter) Info(msg string, args ...interface{}) {
	// Info messages are ignored for error handler
}

func (e *errorHandlerAdapter) Error(err error, msg string, args ...interface{}) {
	if e.handler != nil {
		if err != nil {
			e.handler(err)
		} else {
			e.handler(fmt.Errorf(msg, args...))
		}
	}
}
