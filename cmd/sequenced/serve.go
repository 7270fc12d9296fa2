package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-sequence"
	"github.com/goliatone/go-sequence/bridge"
	"github.com/goliatone/go-sequence/config"
	"github.com/goliatone/go-sequence/cron"
	"github.com/goliatone/go-sequence/metrics"
	"github.com/goliatone/go-sequence/router"
	"github.com/goliatone/go-sequence/runner"
	"github.com/goliatone/go-sequence/worksteal"
)

// QueueProduction is the life queue name of the main production queue.
const QueueProduction = "production"

type ServeCmd struct {
	Listen  string `help:"Address to listen on, overrides the config."`
	Workers int    `help:"Number of work stealing loops, overrides the config."`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}

	logger := newLogger(cfg)
	e, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	return e.run(ctx)
}

// engine wires the production queue, the routing sequence, the work
// stealing pool, the bridge and the scheduler.
type engine struct {
	cfg        config.Config
	logger     sequence.Logger
	plan       *sequence.Plan
	life       *sequence.Life
	production *sequence.Production
	steal      *worksteal.Queue
	router     *sequence.Sequence
	pool       *worksteal.Pool
	bridge     *bridge.Bridge[FilePayload]
	recorder   *metrics.Recorder
	scheduler  *cron.Scheduler
}

func newEngine(cfg config.Config, logger sequence.Logger) (*engine, error) {
	plan, err := buildPlan()
	if err != nil {
		return nil, err
	}

	e := &engine{
		cfg:        cfg,
		logger:     logger,
		plan:       plan,
		production: sequence.NewProduction(),
		steal:      worksteal.NewQueue(cfg.Workers),
		recorder:   metrics.NewRecorder("sequence"),
	}

	e.life = sequence.NewLife(
		sequence.WithSettings(cfg),
		sequence.WithLifeLogger(logger),
		sequence.WithQueue(QueueProduction, e.production),
	)
	for _, s := range cfg.Schedules {
		if s.Queue == "" || s.Queue == QueueProduction {
			continue
		}
		if _, ok := e.life.Queue(s.Queue); !ok {
			e.life.AddQueue(s.Queue, sequence.NewProduction())
		}
	}

	if err := e.recorder.WatchQueue(QueueProduction, e.production.Len); err != nil {
		return nil, err
	}
	if err := e.recorder.WatchQueue("worksteal", e.steal.Len); err != nil {
		return nil, err
	}

	e.bridge = bridge.New[FilePayload](plan, e.production,
		bridge.WithLogger(logger),
		bridge.WithLife(e.life),
		bridge.WithResultBuffer(cfg.ResultBuffer),
		bridge.WithChainDepth(cfg.ChainDepth),
	)

	strategy := runner.JitteredExponentialStrategy{
		Base:   cfg.Backoff.Base,
		Max:    cfg.Backoff.Max,
		Jitter: cfg.Backoff.Jitter,
	}
	if cfg.Backoff.Jitter == 0 {
		strategy.Jitter = -1
	}

	// The executor is never run; the pool calls ExecuteWithRetry on it.
	executor := sequence.NewSequence(
		sequence.NewRecovering(sequence.PassThrough{}, sequence.LoggerPanicLogger(logger)),
		nil,
		e.life,
		sequence.WithLogger(logger),
		sequence.WithRetryStrategy(strategy),
		sequence.WithRetryLicenseFailures(cfg.RetryLicense),
		sequence.WithRecorder(e.recorder),
	)

	// Drains run inline on the routing loop so two drains never interleave.
	lanes := router.NewSwitch(router.WithFallback(worksteal.NewRoundRobin(e.steal)))
	lanes.Handle(sequence.OperationDrainQueue, sequence.WorkerFunc(func(ctx context.Context, action sequence.Executable, _ *sequence.Life) error {
		e.bridge.Report(ctx, action, executor.ExecuteWithRetry(ctx, action))
		return nil
	}))

	e.router = sequence.NewSequence(
		lanes,
		e.production,
		e.life,
		sequence.WithLogger(logger),
		sequence.WithIdleBackoff(cfg.IdleBackoff),
		sequence.WithRetryStrategy(runner.NoDelayStrategy{}),
		sequence.WithOutcomeHandler(func(ctx context.Context, action sequence.Executable, err error) {
			if err != nil {
				e.bridge.Report(ctx, action, err)
			}
		}),
	)

	e.pool = worksteal.NewPool(e.steal, e.life,
		worksteal.WithExecutor(sequence.WorkerFunc(func(ctx context.Context, action sequence.Executable, _ *sequence.Life) error {
			return executor.ExecuteWithRetry(ctx, action)
		})),
		worksteal.WithOutcomeHandler(e.bridge.Report),
		worksteal.WithLogger(logger),
	)

	e.scheduler = cron.NewScheduler(
		cron.WithLogger(logger),
		cron.WithLogLevel(cron.LogLevelInfo),
		cron.WithErrorHandler(func(err error) {
			logger.Error("scheduled action failed: %v", err)
		}),
	)
	for _, s := range cfg.Schedules {
		if err := e.schedule(s); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *engine) schedule(s config.Schedule) error {
	target := sequence.Queue(e.production)
	if s.Queue != "" {
		q, ok := e.life.Queue(s.Queue)
		if !ok {
			return sequence.RoutingError("unknown schedule queue", nil, map[string]any{"queue": s.Queue})
		}
		target = q
	}

	_, err := e.scheduler.ScheduleAction(s.Expression, target, func() (sequence.Executable, error) {
		return e.scheduledAction(s)
	})
	return err
}

func (e *engine) scheduledAction(s config.Schedule) (sequence.Executable, error) {
	var payload FilePayload
	if len(s.Payload) > 0 {
		data, err := json.Marshal(s.Payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
	}
	action := sequence.New(s.ActionType, payload, e.plan).WithChainDepth(e.cfg.ChainDepth)
	for key, value := range s.Metadata {
		action = action.WithMetadata(key, value)
	}
	return action, nil
}

func (e *engine) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/ws", bridge.Handler(e.bridge))
	r.Handle("/metrics", e.recorder.Handler())
	r.Get("/healthz", e.health)
	return r
}

type healthResponse struct {
	State      string `json:"state"`
	Production int    `json:"production"`
	Worksteal  int    `json:"worksteal"`
}

func (e *engine) health(w http.ResponseWriter, _ *http.Request) {
	state := e.router.State()
	status := http.StatusOK
	if state == sequence.StateShuttingDown || state == sequence.StateStopped {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(healthResponse{
		State:      state.String(),
		Production: e.production.Len(),
		Worksteal:  e.steal.Len(),
	})
}

// run serves until ctx is done. The loops run on a context the signal does
// not cancel: on shutdown they stop taking work, actions already taken run
// to completion, and only then is the HTTP server closed.
func (e *engine) run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              e.cfg.Listen,
		Handler:           e.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, loopCtx := errgroup.WithContext(context.WithoutCancel(ctx))
	poolDone := make(chan struct{})
	g.Go(func() error {
		return e.router.Run(loopCtx)
	})
	g.Go(func() error {
		defer close(poolDone)
		return e.pool.Run(loopCtx)
	})
	g.Go(func() error {
		e.logger.Info("sequenced listening on %s", e.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := e.scheduler.Start(loopCtx); err != nil {
			_ = e.shutdown(srv, poolDone)
			return err
		}
		select {
		case <-ctx.Done():
		case <-loopCtx.Done():
		}
		return e.shutdown(srv, poolDone)
	})

	if err := g.Wait(); err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// shutdown stops scheduling and both loops, waits for in-flight actions,
// then closes the server.
func (e *engine) shutdown(srv *http.Server, poolDone <-chan struct{}) error {
	e.logger.Info("sequenced shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = e.scheduler.Stop(stopCtx)

	// The router goes first so nothing new reaches the deques; the pool then
	// finishes what the router already handed over.
	e.router.Shutdown()
	<-e.router.Done()
	e.pool.Drain()
	<-poolDone
	e.logger.Info("sequenced drained")

	closeCtx, cancelClose := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelClose()
	return srv.Shutdown(closeCtx)
}
