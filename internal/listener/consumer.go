package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vodeneev/oddsapi/internal/matcher"
	"github.com/Vodeneev/oddsapi/internal/odds"
	"github.com/Vodeneev/oddsapi/internal/pkg/logging"
	"github.com/Vodeneev/oddsapi/internal/pkg/models"
	"github.com/Vodeneev/oddsapi/internal/pkg/retry"
	"github.com/Vodeneev/oddsapi/internal/pkg/storage"
)

// Queue is implemented by storage.Queue.
type Queue interface {
	Pop(ctx context.Context, name string, timeout time.Duration) ([]byte, error)
	Cycle(ctx context.Context, name string, timeout time.Duration) ([]byte, error)
}

// FixtureMatcher is implemented by matcher.Matcher.
type FixtureMatcher interface {
	Match(ctx context.Context, home, away string, date time.Time) (*models.Fixture, matcher.Stage, error)
}

// OddsWriter is implemented by odds.TxWriter.
type OddsWriter interface {
	Write(ctx context.Context, fixture *models.Fixture, bookmaker string, update models.OddsUpdate) (odds.Result, error)
}

type Options struct {
	PollTimeout time.Duration
	Debug       bool // replay the queue without consuming it
	DebugLimit  int
	Retry       *retry.Policy
}

type Deps struct {
	Queue     Queue
	Matcher   FixtureMatcher
	Writer    OddsWriter
	ParseDate DateParser
	Stats     *Stats
	Logger    *slog.Logger
}

// Consumer drains one source queue, strictly in arrival order.
type Consumer struct {
	source Source
	deps   Deps
	opts   Options
	logger *slog.Logger
}

func NewConsumer(source Source, deps Deps, opts Options) *Consumer {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	if opts.DebugLimit <= 0 {
		opts.DebugLimit = 50
	}
	if opts.Retry == nil {
		opts.Retry = retry.NewPolicy(1, 0)
	}
	if deps.Stats == nil {
		deps.Stats = NewStats(nil)
	}
	return &Consumer{
		source: source,
		deps:   deps,
		opts:   opts,
		logger: logging.OrDefault(deps.Logger).With("source", source.Name),
	}
}

func (c *Consumer) Name() string { return c.source.Name }

// Run processes items until ctx is cancelled, the debug limit is reached or a
// store error survives every retry. Per-item failures never stop the loop.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Starting consumer", "debug", c.opts.Debug)
	processed := 0
	for {
		if ctx.Err() != nil {
			c.logger.Info("Consumer stopped")
			return nil
		}
		if c.opts.Debug && processed >= c.opts.DebugLimit {
			c.logger.Info("Debug limit reached", "processed", processed)
			return nil
		}

		data, err := c.next(ctx)
		if errors.Is(err, storage.ErrQueueEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			return fmt.Errorf("consumer %s: %w", c.source.Name, err)
		}
		processed++

		status, err := c.Process(ctx, data)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			return fmt.Errorf("consumer %s: %w", c.source.Name, err)
		}
		c.deps.Stats.Record(c.source.Name, status)
	}
}

func (c *Consumer) next(ctx context.Context) ([]byte, error) {
	if c.opts.Debug {
		return c.deps.Queue.Cycle(ctx, c.source.Name, c.opts.PollTimeout)
	}
	return c.deps.Queue.Pop(ctx, c.source.Name, c.opts.PollTimeout)
}

// Process handles one queue item. Only store failures are returned as
// errors; everything else is reported through the status.
func (c *Consumer) Process(ctx context.Context, data []byte) (Status, error) {
	ev, err := c.source.Decode(data)
	if err != nil {
		c.logger.Error("Failed to decode event", "error", err, "payload", string(data))
		return StatusDecodeError, nil
	}

	date, err := c.deps.ParseDate(ev.Datetime)
	if err != nil {
		c.logger.Warn("Couldn't parse event date, skipping", "error", err, "url", ev.URL)
		return StatusDateParseError, nil
	}

	home := matcher.SanitizeTeamName(ev.Home)
	away := matcher.SanitizeTeamName(ev.Away)

	var status Status
	err = c.opts.Retry.Execute(ctx, func() error {
		fixture, stage, err := c.deps.Matcher.Match(ctx, home, away, date)
		if errors.Is(err, matcher.ErrNoFixture) {
			status = StatusNotFound
			return nil
		}
		if err != nil {
			c.logger.Warn("Fixture lookup failed", "error", err)
			return err
		}

		res, err := c.deps.Writer.Write(ctx, fixture, c.source.Name, ev.Update)
		if err != nil {
			c.logger.Warn("Odds write failed", "fixture_id", fixture.ID, "error", err)
			return err
		}

		status = StatusAdded
		if res.Status == odds.Updated {
			status = StatusUpdated
		}
		c.logger.Debug("Event processed",
			"result", odds.Describe(res),
			"stage", stage.String(),
			"home", home,
			"away", away,
		)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if status == StatusNotFound {
		c.logger.Warn("Couldn't find fixture for event, skipping",
			"home", home, "away", away, "date", date, "payload", string(data))
	}
	return status, nil
}
