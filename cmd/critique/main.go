package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"resume-critique/internal/bootstrap"
	"resume-critique/internal/cli"
	"resume-critique/internal/shared/config"
	"resume-critique/internal/shared/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer telemetry.Sync()

	var app *bootstrap.App
	root := cli.NewRootCommand(cli.Options{
		Connect: func(ctx context.Context) (cli.Backend, error) {
			cfg := config.Load()
			built, err := bootstrap.BuildWith(ctx, cfg, bootstrap.Options{})
			if err != nil {
				return nil, err
			}
			app = built
			return built.Intake, nil
		},
	})

	err := root.ExecuteContext(ctx)
	if app != nil {
		app.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
