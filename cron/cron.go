package cron

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/goliatone/go-sequence"
	"github.com/goliatone/go-sequence/runner"

	rcron "github.com/robfig/cron/v3"
)

// Logger is the logging surface of the scheduler and its runs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// HandlerConfig tunes one scheduled job.
type HandlerConfig struct {
	Expression string
	MaxRetries int
	MaxRuns    int
	Timeout    time.Duration
	Deadline   time.Time
	RunOnce    bool
}

// Scheduler wraps cron functionality.
type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	errorHandler func(error)

	logger    Logger
	parser    Parser
	logWriter io.Writer
	logLevel  LogLevel

	nextHandleID int64
	handles      map[int64]*scheduleHandle
}

// NewScheduler creates a new scheduler instance with the provided options.
func NewScheduler(opts ...Option) *Scheduler {
	cs := &Scheduler{
		location: time.Local,
		parser:   DefaultParser,
		logLevel: LogLevelError,
		errorHandler: func(err error) {
			log.Printf("error: %v\n", err)
		},
		handles: make(map[int64]*scheduleHandle),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(cs)
		}
	}

	cs.cron = rcron.New(cs.build()...)
	return cs
}

func (cs *Scheduler) SetLogger(logger Logger) {
	cs.logger = logger
}

// ScheduleCron schedules a recurring handler by cron expression.
func (s *Scheduler) ScheduleCron(opts HandlerConfig, handler any) (Handle, error) {
	if opts.Expression == "" {
		return nil, sequence.RegistrationError("cron expression cannot be empty", nil)
	}
	run, err := s.buildRunnable(opts, handler)
	if err != nil {
		return nil, err
	}

	sub := s.newHandle()
	job := rcron.FuncJob(func() {
		if !sub.begin() {
			return
		}
		// A failed tick keeps the job scheduled; Err holds the failure.
		err := run()
		sub.end(ScheduleStatusIdle, err)
		if err != nil {
			s.errorHandler(err)
		}
	})

	entryID, err := s.cron.AddJob(opts.Expression, job)
	if err != nil {
		return nil, sequence.RegistrationError(fmt.Sprintf("failed to add job: %v", err), map[string]any{"expression": opts.Expression})
	}
	sub.entryID = int(entryID)
	s.storeHandle(sub)
	return sub, nil
}

// ScheduleAfter schedules one execution after delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, opts HandlerConfig, handler any) (Handle, error) {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleAt(time.Now().Add(delay), opts, handler)
}

// ScheduleAt schedules one execution at a specific time.
func (s *Scheduler) ScheduleAt(at time.Time, opts HandlerConfig, handler any) (Handle, error) {
	run, err := s.buildRunnable(opts, handler)
	if err != nil {
		return nil, err
	}

	sub := s.newHandle()
	s.storeHandle(sub)

	go func() {
		wait := time.Until(at)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-sub.Done():
			return
		}

		if !sub.begin() {
			return
		}
		err := run()
		s.removeStoredHandle(sub.id)
		if err != nil {
			sub.end(ScheduleStatusFailed, err)
			s.errorHandler(err)
			return
		}
		sub.end(ScheduleStatusCompleted, nil)
	}()

	return sub, nil
}

// AddHandler registers a recurring handler for scheduled execution.
// Deprecated: prefer ScheduleCron/ScheduleAfter/ScheduleAt.
func (s *Scheduler) AddHandler(opts HandlerConfig, handler any) (Subscription, error) {
	return s.ScheduleCron(opts, handler)
}

// RemoveHandler removes a scheduled job by entry ID.
func (s *Scheduler) RemoveHandler(entryID int) {
	if s == nil {
		return
	}

	var affected []*scheduleHandle
	s.mu.Lock()
	for id, handle := range s.handles {
		if handle != nil && handle.entryID == entryID {
			affected = append(affected, handle)
			delete(s.handles, id)
		}
	}
	s.mu.Unlock()

	s.cron.Remove(rcron.EntryID(entryID))
	for _, handle := range affected {
		handle.finish(ScheduleStatusCanceled, nil)
	}
}

// Start begins executing scheduled cron jobs.
func (s *Scheduler) Start(_ context.Context) error {
	s.cron.Start()
	return nil
}

// Stop stops executing scheduled jobs and marks active handles as stopped.
func (s *Scheduler) Stop(_ context.Context) error {
	s.cron.Stop()

	var handles []*scheduleHandle
	s.mu.Lock()
	for _, handle := range s.handles {
		handles = append(handles, handle)
	}
	s.handles = make(map[int64]*scheduleHandle)
	s.mu.Unlock()

	for _, handle := range handles {
		if handle == nil {
			continue
		}
		if handle.entryID > 0 {
			s.cron.Remove(rcron.EntryID(handle.entryID))
		}
		if isTerminalStatus(handle.Status()) {
			continue
		}
		handle.finish(ScheduleStatusStopped, nil)
	}
	return nil
}

func (s *Scheduler) removeHandle(id int64) {
	handle := s.removeStoredHandle(id)
	if handle == nil {
		return
	}
	if handle.entryID > 0 {
		s.cron.Remove(rcron.EntryID(handle.entryID))
	}
}

func (s *Scheduler) removeStoredHandle(id int64) *scheduleHandle {
	if s == nil || id == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := s.handles[id]
	delete(s.handles, id)
	return handle
}

func (s *Scheduler) storeHandle(handle *scheduleHandle) {
	if s == nil || handle == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles == nil {
		s.handles = make(map[int64]*scheduleHandle)
	}
	s.handles[handle.id] = handle
}

func (s *Scheduler) newHandle() *scheduleHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandleID++
	return &scheduleHandle{
		scheduler: s,
		id:        s.nextHandleID,
		status:    ScheduleStatusScheduled,
		done:      make(chan struct{}),
	}
}

func isTerminalStatus(status ScheduleStatus) bool {
	switch status {
	case ScheduleStatusCompleted, ScheduleStatusCanceled, ScheduleStatusFailed, ScheduleStatusStopped:
		return true
	default:
		return false
	}
}

func (s *Scheduler) buildRunnable(opts HandlerConfig, handler any) (func() error, error) {
	h := runner.NewHandler(makeRunnerOptions(s, opts)...)

	var fn func(context.Context) error
	switch r := handler.(type) {
	case func():
		fn = func(context.Context) error {
			r()
			return nil
		}
	case func() error:
		fn = func(context.Context) error { return r() }
	case func(context.Context) error:
		fn = r
	default:
		return nil, sequence.RegistrationError(fmt.Sprintf("unsupported handler type: %T", handler), nil)
	}

	return func() error {
		return h.Run(context.Background(), fn)
	}, nil
}

func makeRunnerOptions(s *Scheduler, opts HandlerConfig) []runner.Option {
	runnerOpts := []runner.Option{
		runner.WithMaxRetries(opts.MaxRetries),
		runner.WithDeadline(opts.Deadline),
		runner.WithRunOnce(opts.RunOnce),
		runner.WithErrorHandler(s.errorHandler),
	}
	if s.logger != nil {
		runnerOpts = append(runnerOpts, runner.WithLogger(s.logger))
	}
	if opts.Timeout > 0 {
		runnerOpts = append(runnerOpts, runner.WithTimeout(opts.Timeout))
	}
	if opts.MaxRuns > 0 {
		runnerOpts = append(runnerOpts, runner.WithMaxRuns(opts.MaxRuns))
	}
	return runnerOpts
}

func makeLogger(out io.Writer, level LogLevel) rcron.Logger {
	stdLogger := log.New(out, "cron: ", log.LstdFlags)
	cronLogger := rcron.PrintfLogger(stdLogger)
	if level >= LogLevelDebug {
		cronLogger = rcron.VerbosePrintfLogger(stdLogger)
	}
	return cronLogger
}

// build converts implementation-agnostic options to rcron options.
func (s *Scheduler) build() []rcron.Option {
	opts := make([]rcron.Option, 0)

	if s.location != nil {
		opts = append(opts, rcron.WithLocation(s.location))
	}

	switch s.parser {
	case StandardParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	case SecondsParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Second|rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	}

	if s.errorHandler != nil {
		opts = append(opts, rcron.WithChain(
			rcron.Recover(&errorHandlerAdapter{handler: s.errorHandler}),
		))
	}

	var cronLogger rcron.Logger
	switch {
	case s.logger != nil:
		cronLogger = &loggerAdapter{logger: s.logger, level: s.logLevel}
	case s.logWriter != nil:
		cronLogger = makeLogger(s.logWriter, s.logLevel)
	default:
		if s.logLevel > LogLevelSilent {
			cronLogger = makeLogger(os.Stdout, s.logLevel)
		}
	}

	if cronLogger != nil {
		opts = append(opts, rcron.WithLogger(cronLogger))
	}

	return opts
}
