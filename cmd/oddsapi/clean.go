package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Vodeneev/oddsapi/internal/pkg/storage"
)

func newCleanCmd(root *rootOptions) *cobra.Command {
	var notifications, startedBets bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete notification records and snapshots of started fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !notifications && !startedBets {
				notifications, startedBets = true, true
			}
			return runClean(cmd.Context(), root, notifications, startedBets)
		},
	}
	cmd.Flags().BoolVar(&notifications, "notifications", false, "delete all notification records")
	cmd.Flags().BoolVar(&startedBets, "started-bets", false, "delete odds snapshots of fixtures that already kicked off")
	return cmd
}

func runClean(ctx context.Context, root *rootOptions, notifications, startedBets bool) error {
	cfg, logger, err := root.load("clean")
	if err != nil {
		return err
	}
	pg, err := storage.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	if notifications {
		n, err := pg.Notifications().DeleteAll(ctx)
		if err != nil {
			return err
		}
		logger.Info("Deleted notifications", "rows", n)
	}
	if startedBets {
		n, err := pg.Bets().DeleteForStartedFixtures(ctx, time.Now())
		if err != nil {
			return err
		}
		logger.Info("Deleted bets of started fixtures", "rows", n)
	}
	return nil
}
