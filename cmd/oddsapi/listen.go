package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Vodeneev/oddsapi/internal/deviation"
	"github.com/Vodeneev/oddsapi/internal/listener"
	"github.com/Vodeneev/oddsapi/internal/matcher"
	"github.com/Vodeneev/oddsapi/internal/odds"
	"github.com/Vodeneev/oddsapi/internal/pkg/health"
	"github.com/Vodeneev/oddsapi/internal/pkg/retry"
	"github.com/Vodeneev/oddsapi/internal/pkg/storage"
)

func newListenCmd(root *rootOptions) *cobra.Command {
	var (
		debug    bool
		withHTTP bool
	)
	cmd := &cobra.Command{
		Use:   "listen [source...]",
		Short: "Consume bookmaker queues and store odds snapshots",
		Long: "Consume bookmaker queues and store odds snapshots.\n" +
			"Available sources: " + strings.Join(listener.AvailableNames(), ", ") + ".\n" +
			"With no arguments every registered source is consumed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd.Context(), root, args, debug, withHTTP)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "replay queue items without consuming them")
	cmd.Flags().BoolVar(&withHTTP, "http", true, "serve health and metrics endpoints")
	return cmd
}

func runListen(ctx context.Context, root *rootOptions, names []string, debug, withHTTP bool) error {
	cfg, logger, err := root.load("listener")
	if err != nil {
		return err
	}

	sources, err := listener.Resolve(names)
	if err != nil {
		return err
	}

	pg, err := storage.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	rdb, err := storage.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	stats := listener.NewStats(reg)
	queue := storage.NewQueue(rdb)
	match := matcher.New(pg.Fixtures(), logger)
	parseDate := listener.NaturalDateParser(cfg.Listener.Location(), nil)

	consumers := make([]*listener.Consumer, 0, len(sources))
	for _, source := range sources {
		writer := odds.NewTxWriter(pg, odds.NewUpserter(source.Name, cfg.Listener.AnomalyWindow, logger))
		consumers = append(consumers, listener.NewConsumer(source, listener.Deps{
			Queue:     queue,
			Matcher:   match,
			Writer:    writer,
			ParseDate: parseDate,
			Stats:     stats,
			Logger:    logger,
		}, listener.Options{
			PollTimeout: cfg.Listener.PollTimeout,
			Debug:       debug,
			DebugLimit:  cfg.Listener.DebugLimit,
			Retry:       retry.NewPolicy(cfg.Listener.StoreRetries, cfg.Listener.RetryDelay),
		}))
	}
	logger.Info("Starting listener", "sources", names, "consumers", len(consumers), "debug", debug)

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	if withHTTP {
		g.Go(func() error {
			return health.Run(gctx, cfg.HTTP, "listener", health.Deps{
				DB:         pg,
				Finder:     deviation.NewAnalyzer(pg.Fixtures(), pg.Bets(), logger),
				Bookmakers: pg.Bets(),
				Gatherer:   reg,
				Defaults:   deviation.ParamsFromConfig(cfg.Deviation),
			})
		})
	}
	g.Go(func() error {
		defer stop()
		err := listener.Run(gctx, consumers, stats, cfg.Listener.StatsInterval, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("listener: %w", err)
		}
		return nil
	})
	return g.Wait()
}
