package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Vodeneev/oddsapi/internal/deviation"
	"github.com/Vodeneev/oddsapi/internal/pkg/health"
	"github.com/Vodeneev/oddsapi/internal/pkg/storage"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API with health and metrics endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

func runServe(ctx context.Context, root *rootOptions) error {
	cfg, logger, err := root.load("api")
	if err != nil {
		return err
	}
	defaults := deviation.ParamsFromConfig(cfg.Deviation)
	if err := defaults.Validate(); err != nil {
		return err
	}

	pg, err := storage.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewDBStatsCollector(pg.DB().DB, "oddsapi"))

	return health.Run(ctx, cfg.HTTP, "api", health.Deps{
		DB:         pg,
		Finder:     deviation.NewAnalyzer(pg.Fixtures(), pg.Bets(), logger),
		Bookmakers: pg.Bets(),
		Gatherer:   reg,
		Defaults:   defaults,
	})
}
