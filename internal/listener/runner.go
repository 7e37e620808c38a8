package listener

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Vodeneev/oddsapi/internal/pkg/logging"
)

// Run starts every consumer plus the stats reporter and blocks until all
// consumers have returned. A consumer that halts is logged and leaves the
// others running; the reporter stops with the last consumer.
func Run(ctx context.Context, consumers []*Consumer, stats *Stats, interval time.Duration, logger *slog.Logger) error {
	logger = logging.OrDefault(logger)
	if len(consumers) == 0 {
		return nil
	}

	reporterCtx, stopReporter := context.WithCancel(ctx)
	defer stopReporter()

	var reporter errgroup.Group
	reporter.Go(func() error {
		return RunReporter(reporterCtx, stats, interval, logger)
	})

	// plain Group: a failing consumer must not cancel its siblings
	var group errgroup.Group
	halted := make(chan error, len(consumers))
	for _, c := range consumers {
		c := c
		group.Go(func() error {
			if err := c.Run(ctx); err != nil {
				logger.Error("Consumer halted", "source", c.Name(), "error", err)
				halted <- err
				return err
			}
			return nil
		})
	}

	err := group.Wait()
	close(halted)
	stopReporter()
	_ = reporter.Wait()
	report(stats, logger)

	if err != nil {
		logger.Error("Listener finished with halted consumers", "halted", len(halted))
	}
	return err
}
