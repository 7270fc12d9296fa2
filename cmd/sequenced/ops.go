package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-sequence"
)

const (
	OperationRead  = "Read"
	OperationWrite = "Write"
)

// FilePayload is the content of every action handled by sequenced.
type FilePayload struct {
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
}

func buildPlan() (*sequence.Plan, error) {
	b := sequence.NewPlanBuilder().
		WithSignature(OperationRead, []string{"string"}, "string").
		WithSignature(OperationWrite, []string{"string", "string"}, "string").
		WithFunction(OperationRead, readFile).
		WithFunction(OperationWrite, writeFile).
		WithArguments(OperationRead, func(payload any, _ *sequence.Metadata) ([]any, error) {
			p, err := filePayload(payload)
			if err != nil {
				return nil, err
			}
			return []any{p.Path}, nil
		}).
		WithArguments(OperationWrite, func(payload any, _ *sequence.Metadata) ([]any, error) {
			p, err := filePayload(payload)
			if err != nil {
				return nil, err
			}
			return []any{p.Path, p.Content}, nil
		}).
		WithResult(OperationRead, sequence.RememberResult).
		WithResult(OperationWrite, sequence.RememberResult)
	return sequence.RegisterDrain(b).Build()
}

func filePayload(payload any) (FilePayload, error) {
	p, ok := payload.(FilePayload)
	if !ok {
		return FilePayload{}, errors.New(fmt.Sprintf("unexpected payload %T", payload), errors.CategoryBadInput)
	}
	if p.Path == "" {
		return FilePayload{}, errors.New("file path is empty", errors.CategoryBadInput)
	}
	return p, nil
}

func readFile(_ context.Context, args []any) (any, error) {
	path, ok := args[0].(string)
	if !ok {
		return nil, sequence.ExecutionError("Invalid file path", nil, nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func writeFile(_ context.Context, args []any) (any, error) {
	path, ok := args[0].(string)
	if !ok {
		return nil, sequence.ExecutionError("Invalid file path", nil, nil)
	}
	content, ok := args[1].(string)
	if !ok {
		return nil, sequence.ExecutionError("Invalid content", nil, nil)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return "File written successfully", nil
}
