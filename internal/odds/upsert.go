package odds

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vodeneev/oddsapi/internal/pkg/logging"
	"github.com/Vodeneev/oddsapi/internal/pkg/models"
)

// Status is the outcome of writing one odds update.
type Status int

const (
	Added Status = iota + 1
	Updated
)

func (s Status) String() string {
	switch s {
	case Added:
		return "added"
	case Updated:
		return "updated"
	}
	return "unknown"
}

// DefaultAnomalyWindow is how recent a previous write must be for a changed
// home_win price to be reported.
const DefaultAnomalyWindow = 5 * time.Minute

type Result struct {
	Status  Status
	Anomaly bool
	Bet     *models.Bet
}

// BetStore is implemented by storage.BetRepository.
type BetStore interface {
	GetByFixtureAndBookmaker(ctx context.Context, fixtureID int64, bookmaker string) (*models.Bet, error)
	Insert(ctx context.Context, b *models.Bet) error
	Update(ctx context.Context, b *models.Bet) error
}

// Upserter writes a bookmaker's odds for a fixture, one snapshot per
// (fixture, bookmaker). It never commits.
type Upserter struct {
	Source        string // provenance tag written to the snapshot
	AnomalyWindow time.Duration

	logger *slog.Logger
	now    func() time.Time
}

func NewUpserter(source string, anomalyWindow time.Duration, logger *slog.Logger) *Upserter {
	if anomalyWindow <= 0 {
		anomalyWindow = DefaultAnomalyWindow
	}
	return &Upserter{
		Source:        source,
		AnomalyWindow: anomalyWindow,
		logger:        logging.OrDefault(logger),
		now:           time.Now,
	}
}

func (u *Upserter) Upsert(ctx context.Context, store BetStore, fixture *models.Fixture, bookmaker string, update models.OddsUpdate) (Result, error) {
	now := u.now()

	prev, err := store.GetByFixtureAndBookmaker(ctx, fixture.ID, bookmaker)
	if err != nil {
		return Result{}, err
	}

	if prev == nil {
		bet := &models.Bet{
			FixtureID: fixture.ID,
			Bookmaker: bookmaker,
			Source:    u.Source,
			CreatedAt: now,
			UpdatedAt: now,
		}
		Apply(bet, update)
		if err := store.Insert(ctx, bet); err != nil {
			return Result{}, err
		}
		return Result{Status: Added, Bet: bet}, nil
	}

	anomaly := u.isAnomaly(prev, update, now)
	if anomaly {
		u.logger.Warn("Possible odds anomaly: home_win changed shortly after previous update",
			"fixture_id", fixture.ID,
			"fixture", fixture.Name(),
			"bookmaker", bookmaker,
			"previous_home_win", prev.Outcomes.HomeWin,
			"home_win", update.Outcomes.HomeWin,
			"previous_updated_at", prev.UpdatedAt,
		)
	}

	Apply(prev, update)
	prev.Source = u.Source
	if now.After(prev.UpdatedAt) {
		prev.UpdatedAt = now
	}
	if err := store.Update(ctx, prev); err != nil {
		return Result{}, err
	}
	return Result{Status: Updated, Anomaly: anomaly, Bet: prev}, nil
}

func (u *Upserter) isAnomaly(prev *models.Bet, update models.OddsUpdate, now time.Time) bool {
	if prev.Outcomes == nil || update.Outcomes == nil {
		return false
	}
	if prev.Outcomes.HomeWin == update.Outcomes.HomeWin {
		return false
	}
	return now.Sub(prev.UpdatedAt) < u.AnomalyWindow
}

// Apply copies every block present in update onto bet. Absent blocks keep
// their stored value. Totals missing either side are dropped.
func Apply(bet *models.Bet, update models.OddsUpdate) {
	if update.EventURL != "" {
		bet.EventURL = update.EventURL
	}
	if update.Outcomes != nil {
		o := *update.Outcomes
		bet.Outcomes = &o
	}
	if update.FirstHalfOutcomes != nil {
		o := *update.FirstHalfOutcomes
		bet.FirstHalfOutcomes = &o
	}
	if update.SecondHalfOutcomes != nil {
		o := *update.SecondHalfOutcomes
		bet.SecondHalfOutcomes = &o
	}
	if update.Totals != nil {
		bet.Totals = completeTotals(update.Totals)
	}
	if update.FirstHalfTotals != nil {
		bet.FirstHalfTotals = completeTotals(update.FirstHalfTotals)
	}
	if update.Handicaps != nil {
		bet.Handicaps = append(models.Handicaps{}, update.Handicaps...)
	}
	if update.FirstHalfHandicaps != nil {
		bet.FirstHalfHandicaps = append(models.Handicaps{}, update.FirstHalfHandicaps...)
	}
}

func completeTotals(in models.Totals) models.Totals {
	out := make(models.Totals, 0, len(in))
	for _, t := range in {
		if t.Over > 0 && t.Under > 0 {
			out = append(out, t)
		}
	}
	return out
}

// Describe is used in log lines.
func Describe(r Result) string {
	if r.Bet == nil {
		return r.Status.String()
	}
	return fmt.Sprintf("%s bet %d (fixture %d, %s)", r.Status, r.Bet.ID, r.Bet.FixtureID, r.Bet.Bookmaker)
}
