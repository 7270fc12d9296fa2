package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goliatone/go-sequence"
	"github.com/goliatone/go-sequence/bridge"
)

type SubmitCmd struct {
	URL     string        `help:"Websocket address of the engine." default:"ws://localhost:8080/ws"`
	Origin  string        `help:"Origin header sent on dial." default:"http://localhost/"`
	Type    string        `arg:"" enum:"Read,Write,DrainQueue" help:"Operation to run."`
	Path    string        `help:"File path for Read and Write."`
	Content string        `help:"Content for Write."`
	Queue   string        `help:"Queue name for DrainQueue."`
	Delay   int           `help:"Seconds to wait before the action runs."`
	Timeout time.Duration `help:"How long to wait for the result." default:"30s"`
}

func (c *SubmitCmd) Run(ctx context.Context, _ *Globals) error {
	return c.execute(ctx, os.Stdout)
}

func (c *SubmitCmd) execute(ctx context.Context, out io.Writer) error {
	plan, err := buildPlan()
	if err != nil {
		return err
	}

	action := c.action(plan)

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	t, err := bridge.Dial(ctx, c.URL, c.Origin)
	if err != nil {
		return err
	}
	defer t.Close()

	res, err := submit(ctx, t, action)
	if err != nil {
		return err
	}

	if res.Result.Err != nil {
		return sequence.ExecutionError(*res.Result.Err, nil, map[string]any{"action_id": action.ID()})
	}
	if res.Result.Ok != nil {
		fmt.Fprintln(out, *res.Result.Ok)
	}
	return nil
}

func (c *SubmitCmd) action(plan *sequence.Plan) *sequence.Action[FilePayload] {
	return fileAction(plan, c.Type, FilePayload{Path: c.Path, Content: c.Content}, c.Queue, c.Delay)
}

func fileAction(plan *sequence.Plan, actionType string, payload FilePayload, queue string, delay int) *sequence.Action[FilePayload] {
	action := sequence.New(actionType, payload, plan)
	if queue != "" {
		action = action.WithMetadata(sequence.KeyQueue, queue)
	}
	if delay > 0 {
		action = action.WithMetadata(sequence.KeyDelay, delay)
	}
	return action
}

// submit sends action over t and waits for the result carrying its id.
// Results of other actions on the same connection are skipped.
func submit(ctx context.Context, t bridge.Transport, action sequence.Executable) (bridge.Result, error) {
	frame, err := json.Marshal(action)
	if err != nil {
		return bridge.Result{}, err
	}
	if err := t.Send(ctx, frame); err != nil {
		return bridge.Result{}, err
	}

	type received struct {
		res bridge.Result
		err error
	}
	ch := make(chan received, 1)
	go func() {
		for {
			data, err := t.Receive(ctx)
			if err != nil {
				ch <- received{err: err}
				return
			}
			var res bridge.Result
			if err := json.Unmarshal(data, &res); err != nil {
				continue
			}
			if resultActionID(res) == action.ID() {
				ch <- received{res: res}
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return bridge.Result{}, sequence.CancellationError("no result before deadline", ctx.Err(), map[string]any{
			"action_id": action.ID(),
		})
	case r := <-ch:
		return r.res, r.err
	}
}

func resultActionID(res bridge.Result) string {
	var wire struct {
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(res.Action, &wire); err != nil {
		return ""
	}
	id, _ := wire.Metadata[sequence.KeyActionID].(string)
	return id
}
