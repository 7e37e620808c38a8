package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Vodeneev/oddsapi/internal/pkg/models"
)

const betColumns = `id, fixture_id, bookmaker, source, event_url,
	outcomes, first_half_outcomes, second_half_outcomes,
	totals, first_half_totals, handicaps, first_half_handicaps,
	created_at, updated_at`

// BetRepository reads and writes odds snapshots, one row per (fixture, bookmaker).
type BetRepository struct {
	db sqlx.ExtContext
}

func NewBetRepository(db sqlx.ExtContext) *BetRepository {
	return &BetRepository{db: db}
}

// GetByFixtureAndBookmaker returns nil, nil when no snapshot exists yet.
func (r *BetRepository) GetByFixtureAndBookmaker(ctx context.Context, fixtureID int64, bookmaker string) (*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bet WHERE fixture_id = $1 AND bookmaker = $2`
	var b models.Bet
	err := sqlx.GetContext(ctx, r.db, &b, query, fixtureID, bookmaker)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	return &b, nil
}

// Insert stores a new snapshot and fills in its ID.
func (r *BetRepository) Insert(ctx context.Context, b *models.Bet) error {
	query := `
	INSERT INTO bet (
		fixture_id, bookmaker, source, event_url,
		outcomes, first_half_outcomes, second_half_outcomes,
		totals, first_half_totals, handicaps, first_half_handicaps,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		b.FixtureID, b.Bookmaker, b.Source, b.EventURL,
		b.Outcomes, b.FirstHalfOutcomes, b.SecondHalfOutcomes,
		b.Totals, b.FirstHalfTotals, b.Handicaps, b.FirstHalfHandicaps,
		b.CreatedAt, b.UpdatedAt,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("failed to insert bet: %w", err)
	}
	return nil
}

// Update overwrites every block of an existing snapshot.
func (r *BetRepository) Update(ctx context.Context, b *models.Bet) error {
	query := `
	UPDATE bet SET
		source = $2,
		event_url = $3,
		outcomes = $4,
		first_half_outcomes = $5,
		second_half_outcomes = $6,
		totals = $7,
		first_half_totals = $8,
		handicaps = $9,
		first_half_handicaps = $10,
		updated_at = $11
	WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		b.ID, b.Source, b.EventURL,
		b.Outcomes, b.FirstHalfOutcomes, b.SecondHalfOutcomes,
		b.Totals, b.FirstHalfTotals, b.Handicaps, b.FirstHalfHandicaps,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update bet %d: %w", b.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update bet %d: no such row", b.ID)
	}
	return nil
}

// ListByFixtures returns every snapshot of the given fixtures.
func (r *BetRepository) ListByFixtures(ctx context.Context, fixtureIDs []int64) ([]models.Bet, error) {
	if len(fixtureIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + betColumns + ` FROM bet WHERE fixture_id = ANY($1) ORDER BY fixture_id, bookmaker`
	var bets []models.Bet
	if err := sqlx.SelectContext(ctx, r.db, &bets, query, pq.Array(fixtureIDs)); err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}
	return bets, nil
}

type BookmakerCount struct {
	Bookmaker string `db:"bookmaker" json:"bookmaker"`
	Bets      int64  `db:"bets" json:"bets"`
}

// BookmakerCounts returns the number of stored snapshots per bookmaker.
func (r *BetRepository) BookmakerCounts(ctx context.Context) ([]BookmakerCount, error) {
	query := `SELECT bookmaker, COUNT(*) AS bets FROM bet GROUP BY bookmaker ORDER BY bookmaker`
	var counts []BookmakerCount
	if err := sqlx.SelectContext(ctx, r.db, &counts, query); err != nil {
		return nil, fmt.Errorf("failed to count bets: %w", err)
	}
	return counts, nil
}

// DeleteForStartedFixtures removes snapshots of fixtures whose kickoff is not
// after now.
func (r *BetRepository) DeleteForStartedFixtures(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM bet b USING fixture f WHERE b.fixture_id = f.id AND f.date <= $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to clean bets: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}
