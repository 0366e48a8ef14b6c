package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"stokpintar/backend/internal/app"
	"stokpintar/backend/internal/cli"
	"stokpintar/backend/internal/config"
)

func main() {
	open := func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		// Commands print to stdout; keep engine logs on stderr.
		return app.New(ctx, cfg, config.NewLoggerTo(os.Stderr, cfg), prometheus.NewRegistry())
	}

	if err := cli.NewRootCommand(open).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
