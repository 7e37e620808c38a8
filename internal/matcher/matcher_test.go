package matcher

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/Vodeneev/oddsapi/internal/pkg/models"
)

// memFinder mimics the SQL of storage.FixtureRepository over a slice.
type memFinder struct {
	fixtures []models.Fixture
	exact    int
	soft     int
}

func (f *memFinder) candidates(from, to, now time.Time) []models.Fixture {
	var out []models.Fixture
	for _, fx := range f.fixtures {
		if !fx.Date.Before(from) && fx.Date.Before(to) && fx.Date.After(now) {
			out = append(out, fx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func containsEither(stored, event string) bool {
	stored, event = strings.ToLower(stored), strings.ToLower(event)
	return strings.Contains(stored, event) || strings.Contains(event, stored)
}

func (f *memFinder) FindByTeams(_ context.Context, home, away string, from, to, now time.Time) (*models.Fixture, error) {
	f.exact++
	for _, fx := range f.candidates(from, to, now) {
		if containsEither(fx.HomeTeamName, home) && containsEither(fx.AwayTeamName, away) {
			return &fx, nil
		}
	}
	return nil, nil
}

func (f *memFinder) FindByTeamsRegex(_ context.Context, homePattern, awayPattern string, from, to, now time.Time) (*models.Fixture, error) {
	f.soft++
	hre := regexp.MustCompile("(?i)" + homePattern)
	are := regexp.MustCompile("(?i)" + awayPattern)
	for _, fx := range f.candidates(from, to, now) {
		if hre.MatchString(fx.HomeTeamName) && are.MatchString(fx.AwayTeamName) {
			return &fx, nil
		}
	}
	return nil, nil
}

func newTestMatcher(finder FixtureFinder, now time.Time) *Matcher {
	m := New(finder, nil)
	m.now = func() time.Time { return now }
	return m
}

func TestMatchStagedFallback(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	kickoff := time.Date(2024, 5, 10, 19, 0, 0, 0, time.UTC)
	finder := &memFinder{fixtures: []models.Fixture{
		{ID: 1, SourceID: 100, Date: kickoff, HomeTeamName: "Real Madrid", AwayTeamName: "Barcelona"},
		{ID: 2, SourceID: 101, Date: kickoff.AddDate(0, 0, 1), HomeTeamName: "Sevilla", AwayTeamName: "Valencia"},
	}}
	m := newTestMatcher(finder, now)

	tests := []struct {
		name      string
		home      string
		away      string
		date      time.Time
		wantID    int64
		wantStage Stage
	}{
		{"exact substring", "Real Madrid", "FC Barcelona", kickoff, 1, StageExact},
		{"scrambled words", "Madrid Real", "Barcelona FC", kickoff.Add(-3 * time.Hour), 1, StageSoft},
		{"different day", "Real Madrid", "Barcelona", kickoff.AddDate(0, 0, 1), 0, StageNone},
		{"unknown teams", "Lyon", "Nice", kickoff, 0, StageNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx, stage, err := m.Match(context.Background(), tt.home, tt.away, tt.date)
			if tt.wantID == 0 {
				if !errors.Is(err, ErrNoFixture) {
					t.Fatalf("Match() error = %v, want ErrNoFixture", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if fx.ID != tt.wantID || stage != tt.wantStage {
				t.Errorf("Match() = (%d, %s), want (%d, %s)", fx.ID, stage, tt.wantID, tt.wantStage)
			}
		})
	}
}

func TestMatchSkipsStartedFixtures(t *testing.T) {
	kickoff := time.Date(2024, 5, 10, 19, 0, 0, 0, time.UTC)
	finder := &memFinder{fixtures: []models.Fixture{
		{ID: 1, Date: kickoff, HomeTeamName: "Metz", AwayTeamName: "Lens"},
	}}
	m := newTestMatcher(finder, kickoff.Add(time.Minute))

	if _, _, err := m.Match(context.Background(), "Metz", "Lens", kickoff); !errors.Is(err, ErrNoFixture) {
		t.Fatalf("Match() error = %v, want ErrNoFixture", err)
	}
	if finder.soft != 1 {
		t.Errorf("soft stage calls = %d, want 1", finder.soft)
	}
}

func TestMatchSkipsSoftStageOnExactHit(t *testing.T) {
	kickoff := time.Date(2024, 5, 10, 19, 0, 0, 0, time.UTC)
	finder := &memFinder{fixtures: []models.Fixture{
		{ID: 3, Date: kickoff, HomeTeamName: "Metz", AwayTeamName: "Lens"},
		{ID: 2, Date: kickoff, HomeTeamName: "Metz", AwayTeamName: "Lens"},
	}}
	m := newTestMatcher(finder, kickoff.Add(-time.Hour))

	fx, stage, err := m.Match(context.Background(), "Metz", "Lens", kickoff)
	if err != nil {
		t.Fatal(err)
	}
	if fx.ID != 2 || stage != StageExact {
		t.Errorf("Match() = (%d, %s), want lowest id via exact", fx.ID, stage)
	}
	if finder.soft != 0 {
		t.Errorf("soft stage should not run, got %d calls", finder.soft)
	}
}

func TestSoftPattern(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Club de Foot Metz", ".*(Club|Foot|Metz).*"},
		{"Paris Saint-Germain", ".*(Paris|Saint|Germain).*"},
		{"  Real   Madrid ", ".*(Real|Madrid).*"},
		{"Barcelona", ".*Barcelona.*"},
		{"FC PSV", ".*(PSV).*"},
		{"St. Gallen", ".*(Gallen).*"},
	}
	for _, tt := range tests {
		if got := SoftPattern(tt.in); got != tt.want {
			t.Errorf("SoftPattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSoftPatternDoesNotRequireShortWords(t *testing.T) {
	re := regexp.MustCompile("(?i)" + SoftPattern("Club de Foot Metz"))
	if !re.MatchString("FC Metz") {
		t.Errorf("pattern should match a name without %q", "de")
	}
	if strings.Contains(SoftPattern("Club de Foot Metz"), "de") {
		t.Errorf("pattern should not contain the short word %q", "de")
	}
}

func TestSanitizeTeamName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Arsenal (W)", "Arsenal W"},
		{"  Bayern   München ", "Bayern München"},
		{"Ｊｕｖｅｎｔｕｓ", "Juventus"},
		{"Inter", "Inter"},
	}
	for _, tt := range tests {
		if got := SanitizeTeamName(tt.in); got != tt.want {
			t.Errorf("SanitizeTeamName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDayWindow(t *testing.T) {
	msk := time.FixedZone("MSK", 3*3600)
	from, to := DayWindow(time.Date(2024, 5, 10, 23, 30, 0, 0, msk))
	if !from.Equal(time.Date(2024, 5, 10, 0, 0, 0, 0, msk)) {
		t.Errorf("from = %v", from)
	}
	if to.Sub(from) != 24*time.Hour {
		t.Errorf("window = %v, want 24h", to.Sub(from))
	}
}
