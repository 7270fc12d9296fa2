package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-sequence"
	"github.com/goliatone/go-sequence/bridge"
	"github.com/goliatone/go-sequence/config"
)

// ExecCmd runs file actions in this process through the bridge job loop,
// without a running engine.
type ExecCmd struct {
	Type    string        `arg:"" enum:"Read,Write" help:"Operation to run."`
	Paths   []string      `arg:"" name:"path" help:"Files to act on, one action each."`
	Content string        `help:"Content for Write."`
	Delay   int           `help:"Seconds to wait before each action runs."`
	Timeout time.Duration `help:"How long to wait for every result." default:"30s"`
}

func (c *ExecCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	return c.execute(ctx, cfg, newLogger(cfg), os.Stdout)
}

// execute prints "<path>\t<result>" per successful action in completion
// order and fails with every error message once all results are in.
func (c *ExecCmd) execute(ctx context.Context, cfg config.Config, logger sequence.Logger, out io.Writer) error {
	plan, err := buildPlan()
	if err != nil {
		return err
	}
	life := sequence.NewLife(
		sequence.WithSettings(cfg),
		sequence.WithLifeLogger(logger),
	)

	work := bridge.NewWork()
	pending := make(map[string]string, len(c.Paths))
	for _, path := range c.Paths {
		action := fileAction(plan, c.Type, FilePayload{Path: path, Content: c.Content}, "", c.Delay).
			WithChainDepth(cfg.ChainDepth)
		pending[action.ID()] = path
		work.Assign(action)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	results := make(chan bridge.Result, len(c.Paths))
	jobDone := make(chan error, 1)
	go func() {
		jobDone <- bridge.RunJob(ctx, bridge.Executor{Life: life}, work, results)
	}()

	var failures []string
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return sequence.CancellationError("exec ended before every result arrived", ctx.Err(), map[string]any{
				"pending": len(pending),
			})
		case res := <-results:
			id := resultActionID(res)
			path, ok := pending[id]
			if !ok {
				logger.Warn("exec received a result for unknown action %q", id)
				continue
			}
			delete(pending, id)
			if res.Result.Err != nil {
				failures = append(failures, fmt.Sprintf("%s: %s", path, *res.Result.Err))
				continue
			}
			if res.Result.Ok != nil {
				fmt.Fprintf(out, "%s\t%s\n", path, *res.Result.Ok)
			}
		}
	}
	cancel()
	<-jobDone

	if len(failures) > 0 {
		return sequence.ExecutionError(strings.Join(failures, "; "), nil, map[string]any{
			"failed": len(failures),
		})
	}
	return nil
}
