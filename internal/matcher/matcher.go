package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/Vodeneev/oddsapi/internal/pkg/logging"
	"github.com/Vodeneev/oddsapi/internal/pkg/models"
)

// ErrNoFixture is returned when neither matching stage resolves a fixture.
var ErrNoFixture = errors.New("no fixture found")

// Stage tells which matching stage resolved the fixture.
type Stage int

const (
	StageNone Stage = iota
	StageExact
	StageSoft
)

func (s Stage) String() string {
	switch s {
	case StageExact:
		return "exact"
	case StageSoft:
		return "soft"
	}
	return "none"
}

// FixtureFinder is implemented by storage.FixtureRepository.
type FixtureFinder interface {
	FindByTeams(ctx context.Context, home, away string, from, to, now time.Time) (*models.Fixture, error)
	FindByTeamsRegex(ctx context.Context, homePattern, awayPattern string, from, to, now time.Time) (*models.Fixture, error)
}

// Matcher resolves free-text team names and an event date to a stored fixture.
type Matcher struct {
	finder FixtureFinder
	logger *slog.Logger
	now    func() time.Time
}

func New(finder FixtureFinder, logger *slog.Logger) *Matcher {
	return &Matcher{
		finder: finder,
		logger: logging.OrDefault(logger),
		now:    time.Now,
	}
}

// Match tries an exact substring match first and falls back to the soft
// word-set match. Only fixtures kicking off on the same calendar day as date,
// and not yet started, are considered.
func (m *Matcher) Match(ctx context.Context, home, away string, date time.Time) (*models.Fixture, Stage, error) {
	from, to := DayWindow(date)
	now := m.now()

	fixture, err := m.finder.FindByTeams(ctx, home, away, from, to, now)
	if err != nil {
		return nil, StageNone, fmt.Errorf("exact match: %w", err)
	}
	if fixture != nil {
		return fixture, StageExact, nil
	}

	homePattern, awayPattern := SoftPattern(home), SoftPattern(away)
	m.logger.Debug("Falling back to soft match",
		"home", home, "away", away,
		"home_pattern", homePattern, "away_pattern", awayPattern)

	fixture, err = m.finder.FindByTeamsRegex(ctx, homePattern, awayPattern, from, to, now)
	if err != nil {
		return nil, StageNone, fmt.Errorf("soft match: %w", err)
	}
	if fixture != nil {
		return fixture, StageSoft, nil
	}
	return nil, StageNone, ErrNoFixture
}

// DayWindow returns [midnight, next midnight) of date's calendar day in
// date's own location.
func DayWindow(date time.Time) (time.Time, time.Time) {
	y, mo, d := date.Date()
	from := time.Date(y, mo, d, 0, 0, 0, 0, date.Location())
	return from, from.AddDate(0, 0, 1)
}

var parens = strings.NewReplacer("(", "", ")", "")

// SanitizeTeamName folds compatibility characters, drops parentheses
// ("Arsenal (W)" becomes "Arsenal W") and collapses whitespace.
func SanitizeTeamName(s string) string {
	s = norm.NFKC.String(s)
	s = parens.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// minShortWord is the longest word length treated as noise by SoftPattern.
const minShortWord = 3

// SoftPattern builds a case-insensitive regular expression matching any of
// the significant words of name. Dashes count as spaces and words of three
// characters or fewer are dropped. A single-word name becomes a plain
// substring pattern.
func SoftPattern(name string) string {
	name = strings.ReplaceAll(name, "-", " ")
	words := strings.Fields(name)
	if len(words) == 0 {
		return ".*"
	}
	if len(words) < 2 {
		return ".*" + regexp.QuoteMeta(words[0]) + ".*"
	}

	var kept []string
	longest := words[0]
	for _, w := range words {
		if utf8.RuneCountInString(w) > utf8.RuneCountInString(longest) {
			longest = w
		}
		if utf8.RuneCountInString(w) > minShortWord {
			kept = append(kept, regexp.QuoteMeta(w))
		}
	}
	// never degrade into a match-all pattern
	if len(kept) == 0 {
		kept = []string{regexp.QuoteMeta(longest)}
	}
	return ".*(" + strings.Join(kept, "|") + ").*"
}
