package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Vodeneev/oddsapi/internal/deviation"
	"github.com/Vodeneev/oddsapi/internal/notify"
	"github.com/Vodeneev/oddsapi/internal/pkg/health"
	"github.com/Vodeneev/oddsapi/internal/pkg/storage"
)

func newNotifyCmd(root *rootOptions) *cobra.Command {
	var (
		every   time.Duration
		dryRun  bool
		bookies []string
	)
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send flagged fixtures that were never reported to Telegram",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotify(cmd.Context(), root, every, dryRun, bookies)
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "repeat with this interval instead of running once; also serves health and metrics on http.addr")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print flagged fixtures without sending or recording")
	cmd.Flags().StringSliceVar(&bookies, "bookmaker", nil, "compare only these bookmakers (overrides tracked_bookmakers)")
	return cmd
}

func runNotify(ctx context.Context, root *rootOptions, every time.Duration, dryRun bool, bookies []string) error {
	cfg, logger, err := root.load("notify")
	if err != nil {
		return err
	}
	params := deviation.ParamsFromConfig(cfg.Deviation)
	if len(bookies) > 0 {
		params.TrackedBookmakers = bookies
	}
	if err := params.Validate(); err != nil {
		return err
	}

	pg, err := storage.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	analyzer := deviation.NewAnalyzer(pg.Fixtures(), pg.Bets(), logger)

	if dryRun {
		flagged, err := analyzer.FindUnnotified(ctx, params)
		if err != nil {
			return err
		}
		for _, f := range flagged {
			fmt.Println(f.Summary())
		}
		logger.Info("Dry run finished", "fixtures", len(flagged))
		return nil
	}

	sender, err := notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	notifier := notify.NewNotifier(analyzer, sender, notify.NewStoreRecorder(pg), cfg.Telegram.MessageLimit, reg, logger)

	run := func() error {
		n, err := notifier.Run(ctx, params)
		if err != nil {
			return err
		}
		logger.Info("Notification run finished", "fixtures", n)
		return nil
	}
	if every <= 0 {
		return run()
	}

	// periodic mode also serves health and metrics
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return health.Run(gctx, cfg.HTTP, "notify", health.Deps{
			DB:       pg,
			Finder:   analyzer,
			Gatherer: reg,
			Defaults: params,
		})
	})
	g.Go(func() error {
		defer stop()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			if err := run(); err != nil {
				logger.Error("Notification run failed", "error", err)
			}
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	return g.Wait()
}
