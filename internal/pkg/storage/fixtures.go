package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Vodeneev/oddsapi/internal/pkg/models"
)

const fixtureColumns = `id, source_id, date, timezone, league_id, league_season,
	home_team_name, home_team_source_id, away_team_name, away_team_source_id,
	created_at, updated_at`

// FixtureRepository reads and writes the canonical fixture table.
type FixtureRepository struct {
	db sqlx.ExtContext
}

// NewFixtureRepository binds the repository to a pool or a transaction.
func NewFixtureRepository(db sqlx.ExtContext) *FixtureRepository {
	return &FixtureRepository{db: db}
}

// GetBySourceID returns nil, nil when the fixture is unknown.
func (r *FixtureRepository) GetBySourceID(ctx context.Context, sourceID int64) (*models.Fixture, error) {
	query := `SELECT ` + fixtureColumns + ` FROM fixture WHERE source_id = $1`
	return r.getOne(ctx, query, sourceID)
}

// FindByTeams is the exact stage of fixture matching: case and accent
// insensitive substring match of both team names, in either direction,
// with stored names compared literally (no LIKE wildcards), restricted to kickoffs in [from, to) that are after now. The lowest id wins.
func (r *FixtureRepository) FindByTeams(ctx context.Context, home, away string, from, to, now time.Time) (*models.Fixture, error) {
	query := `SELECT ` + fixtureColumns + ` FROM fixture
	WHERE (unaccent(home_team_name) ILIKE unaccent($1) OR strpos(lower(unaccent($2)), lower(unaccent(home_team_name))) > 0)
	  AND (unaccent(away_team_name) ILIKE unaccent($3) OR strpos(lower(unaccent($4)), lower(unaccent(away_team_name))) > 0)
	  AND date >= $5 AND date < $6 AND date > $7
	ORDER BY id
	LIMIT 1`
	return r.getOne(ctx, query,
		containsPattern(home), home,
		containsPattern(away), away,
		from, to, now,
	)
}

// FindByTeamsRegex is the soft stage of fixture matching: both team names
// must match the given case-insensitive POSIX patterns.
func (r *FixtureRepository) FindByTeamsRegex(ctx context.Context, homePattern, awayPattern string, from, to, now time.Time) (*models.Fixture, error) {
	query := `SELECT ` + fixtureColumns + ` FROM fixture
	WHERE unaccent(home_team_name) ~* unaccent($1)
	  AND unaccent(away_team_name) ~* unaccent($2)
	  AND date >= $3 AND date < $4 AND date > $5
	ORDER BY id
	LIMIT 1`
	return r.getOne(ctx, query, homePattern, awayPattern, from, to, now)
}

// Upsert inserts or refreshes a fixture keyed by its source id and fills in
// ID, CreatedAt and UpdatedAt.
func (r *FixtureRepository) Upsert(ctx context.Context, f *models.Fixture) error {
	query := `
	INSERT INTO fixture (
		source_id, date, timezone, league_id, league_season,
		home_team_name, home_team_source_id, away_team_name, away_team_source_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (source_id) DO UPDATE SET
		date = EXCLUDED.date,
		timezone = EXCLUDED.timezone,
		league_id = EXCLUDED.league_id,
		league_season = EXCLUDED.league_season,
		home_team_name = EXCLUDED.home_team_name,
		home_team_source_id = EXCLUDED.home_team_source_id,
		away_team_name = EXCLUDED.away_team_name,
		away_team_source_id = EXCLUDED.away_team_source_id,
		updated_at = NOW()
	RETURNING id, created_at, updated_at`

	tz := f.Timezone
	if tz == "" {
		tz = "UTC"
	}
	err := r.db.QueryRowxContext(ctx, query,
		f.SourceID, f.Date, tz, f.LeagueID, f.LeagueSeason,
		f.HomeTeamName, f.HomeTeamSourceID, f.AwayTeamName, f.AwayTeamSourceID,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert fixture %d: %w", f.SourceID, err)
	}
	f.Timezone = tz
	return nil
}

// CandidateFilter selects fixtures eligible for deviation analysis.
type CandidateFilter struct {
	Reference       string    // fixtures must carry a bet from this bookmaker
	After           time.Time // kickoff strictly after
	LeagueIDs       []int64   // empty means all leagues
	ExcludeNotified bool      // skip fixtures that already have a notification
}

// ListCandidates returns upcoming fixtures quoted by the reference bookmaker,
// ordered by kickoff then id.
func (r *FixtureRepository) ListCandidates(ctx context.Context, filter CandidateFilter) ([]models.Fixture, error) {
	var (
		where = []string{
			"f.date > $1",
			"EXISTS (SELECT 1 FROM bet b WHERE b.fixture_id = f.id AND b.bookmaker = $2)",
		}
		args = []any{filter.After, filter.Reference}
	)
	if len(filter.LeagueIDs) > 0 {
		args = append(args, pq.Array(filter.LeagueIDs))
		where = append(where, fmt.Sprintf("f.league_id = ANY($%d)", len(args)))
	}
	if filter.ExcludeNotified {
		where = append(where, "NOT EXISTS (SELECT 1 FROM notification n WHERE n.fixture_id = f.id)")
	}

	query := `SELECT ` + prefixed("f", fixtureColumns) + ` FROM fixture f
	WHERE ` + strings.Join(where, " AND ") + `
	ORDER BY f.date, f.id`

	var fixtures []models.Fixture
	if err := sqlx.SelectContext(ctx, r.db, &fixtures, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list candidate fixtures: %w", err)
	}
	return fixtures, nil
}

func (r *FixtureRepository) getOne(ctx context.Context, query string, args ...any) (*models.Fixture, error) {
	var f models.Fixture
	err := sqlx.GetContext(ctx, r.db, &f, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fixture: %w", err)
	}
	return &f, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s anywhere.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// prefixed qualifies a comma separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
