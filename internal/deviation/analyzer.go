package deviation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Vodeneev/oddsapi/internal/pkg/logging"
	"github.com/Vodeneev/oddsapi/internal/pkg/models"
	"github.com/Vodeneev/oddsapi/internal/pkg/storage"
)

// Conditions tells which full-time outcome legs triggered.
type Conditions struct {
	HomeWin bool `json:"condition_home_win"`
	Draw    bool `json:"condition_draw"`
	AwayWin bool `json:"condition_away_win"`
}

// Flagged is a fixture with at least one deviating quote.
type Flagged struct {
	Fixture    models.Fixture `json:"fixture"`
	Trigger    string         `json:"trigger"`
	Triggers   []string       `json:"triggers"`
	Conditions Conditions     `json:"conditions"`
	Bets       []models.Bet   `json:"bets"`
}

// FixtureLister is implemented by storage.FixtureRepository.
type FixtureLister interface {
	ListCandidates(ctx context.Context, filter storage.CandidateFilter) ([]models.Fixture, error)
}

// BetLister is implemented by storage.BetRepository.
type BetLister interface {
	ListByFixtures(ctx context.Context, fixtureIDs []int64) ([]models.Bet, error)
}

// Analyzer compares every bookmaker's quotes with the reference bookmaker's.
// It only reads.
type Analyzer struct {
	fixtures FixtureLister
	bets     BetLister
	logger   *slog.Logger
	now      func() time.Time
}

func NewAnalyzer(fixtures FixtureLister, bets BetLister, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		fixtures: fixtures,
		bets:     bets,
		logger:   logging.OrDefault(logger),
		now:      time.Now,
	}
}

// Find returns upcoming fixtures with deviating quotes ordered by kickoff.
// An empty result is not an error.
func (a *Analyzer) Find(ctx context.Context, params Params) ([]Flagged, error) {
	return a.find(ctx, params, false)
}

// FindUnnotified is Find restricted to fixtures without any notification.
func (a *Analyzer) FindUnnotified(ctx context.Context, params Params) ([]Flagged, error) {
	return a.find(ctx, params, true)
}

func (a *Analyzer) find(ctx context.Context, params Params, unnotified bool) ([]Flagged, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	start := a.now()
	fixtures, err := a.fixtures.ListCandidates(ctx, storage.CandidateFilter{
		Reference:       params.ReferenceBookmaker,
		After:           start,
		LeagueIDs:       params.LeagueIDs,
		ExcludeNotified: unnotified,
	})
	if err != nil {
		return nil, err
	}
	if len(fixtures) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(fixtures))
	for i, f := range fixtures {
		ids[i] = f.ID
	}
	bets, err := a.bets.ListByFixtures(ctx, ids)
	if err != nil {
		return nil, err
	}
	byFixture := make(map[int64][]models.Bet, len(fixtures))
	for _, b := range bets {
		byFixture[b.FixtureID] = append(byFixture[b.FixtureID], b)
	}

	var out []Flagged
	for _, f := range fixtures {
		if flagged, ok := Evaluate(f, byFixture[f.ID], params); ok {
			out = append(out, flagged)
		}
	}
	sortFlagged(out)

	a.logger.Debug("Deviation analysis finished",
		"reference", params.ReferenceBookmaker,
		"candidates", len(fixtures),
		"flagged", len(out),
		"unnotified_only", unnotified,
		"duration", time.Since(start),
	)
	return out, nil
}

// Evaluate compares the bets of one fixture. It reports false when nothing
// deviates or no reference bet is present.
func Evaluate(fixture models.Fixture, bets []models.Bet, params Params) (Flagged, bool) {
	var ref *models.Bet
	for i := range bets {
		if strings.EqualFold(bets[i].Bookmaker, params.ReferenceBookmaker) {
			ref = &bets[i]
			break
		}
	}
	if ref == nil {
		return Flagged{}, false
	}

	var (
		triggers   []string
		seen       = map[string]bool{}
		conditions Conditions
	)
	for _, m := range Markets {
		refLegs := legs(ref, m)
		if len(refLegs) == 0 {
			continue
		}
		refByLabel := make(map[string]float64, len(refLegs))
		for _, l := range refLegs {
			refByLabel[l.label] = l.value
		}

		var fired []string
		for i := range bets {
			b := &bets[i]
			if b == ref || !params.tracks(b.Bookmaker) {
				continue
			}
			fired = append(fired, compare(m, refByLabel, legs(b, m), params)...)
		}

		for _, label := range fired {
			trigger := string(m) + " " + label
			if seen[trigger] || !params.wantsTrigger(trigger) {
				continue
			}
			seen[trigger] = true
			triggers = append(triggers, trigger)
			if m == MarketOutcomes {
				switch label {
				case legHome:
					conditions.HomeWin = true
				case legDraw:
					conditions.Draw = true
				case legAway:
					conditions.AwayWin = true
				}
			}
		}
	}

	if len(triggers) == 0 {
		return Flagged{}, false
	}
	return Flagged{
		Fixture:    fixture,
		Trigger:    strings.Join(triggers, ", "),
		Triggers:   triggers,
		Conditions: conditions,
		Bets:       bets,
	}, true
}

// compare returns the labels of compared legs that deviate from the
// reference. Legs without a reference counterpart on the same line never
// fire.
func compare(m Market, ref map[string]float64, compared []leg, params Params) []string {
	type result struct {
		label string
		ok    bool
	}
	var (
		order  []string
		groups = map[string][]result{}
	)
	for _, l := range compared {
		refValue, found := ref[l.label]
		ok := found && params.underCeiling(refValue) && params.Deviates(refValue, l.value)
		if ok && !m.lineBased() {
			ok = params.underCeiling(l.value)
		}
		if _, exists := groups[l.group]; !exists {
			order = append(order, l.group)
		}
		groups[l.group] = append(groups[l.group], result{label: l.label, ok: ok})
	}

	var fired []string
	for _, g := range order {
		results := groups[g]
		if params.AllBetsMustMatch {
			all := true
			for _, r := range results {
				all = all && r.ok
			}
			if !all {
				continue
			}
		}
		for _, r := range results {
			if r.ok {
				fired = append(fired, r.label)
			}
		}
	}
	return fired
}

func sortFlagged(out []Flagged) {
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Fixture, out[j].Fixture
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})
}

// Summary renders a flagged fixture as one line.
func (f Flagged) Summary() string {
	return fmt.Sprintf("%s (%s): %s", f.Fixture.Name(), f.Fixture.Date.Format(time.RFC3339), f.Trigger)
}
