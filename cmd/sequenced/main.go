package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-sequence"
	"github.com/goliatone/go-sequence/config"
)

type Globals struct {
	Config string `help:"Path to a YAML config file." type:"path" env:"SEQUENCE_CONFIG"`
}

type CLI struct {
	Globals

	Serve  ServeCmd  `cmd:"" help:"Run the engine and serve the websocket bridge."`
	Submit SubmitCmd `cmd:"" help:"Send one file action to a running engine and print its result."`
	Exec   ExecCmd   `cmd:"" help:"Run file actions in this process and print their results."`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("sequenced"),
		kong.Description("Queue-driven action engine with retry, work stealing and a websocket bridge."),
		kong.UsageOnError(),
		kong.Bind(&cli.Globals),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	kctx.FatalIfErrorf(kctx.Run())
}

func (g *Globals) load() (config.Config, error) {
	return config.Load(g.Config)
}

func newLogger(cfg config.Config) sequence.Logger {
	if cfg.LogFormat == "json" {
		return sequence.NewGlogLogger(glog.NewLogger(
			glog.WithWriter(os.Stderr),
			glog.WithLoggerTypeJSON(),
			glog.WithLevel(cfg.LogLevel),
		))
	}
	return sequence.NewGlogLogger(glog.NewLogger(
		glog.WithWriter(os.Stderr),
		glog.WithLevel(cfg.LogLevel),
	))
}
