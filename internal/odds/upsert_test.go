package odds

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vodeneev/oddsapi/internal/pkg/models"
	"github.com/Vodeneev/oddsapi/internal/pkg/storage"
)

type memBets struct {
	rows   map[string]*models.Bet
	nextID int64
	failOn string
}

func newMemBets() *memBets {
	return &memBets{rows: map[string]*models.Bet{}}
}

func key(fixtureID int64, bookmaker string) string {
	return fmt.Sprintf("%d/%s", fixtureID, bookmaker)
}

func (m *memBets) GetByFixtureAndBookmaker(_ context.Context, fixtureID int64, bookmaker string) (*models.Bet, error) {
	b, ok := m.rows[key(fixtureID, bookmaker)]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *memBets) Insert(_ context.Context, b *models.Bet) error {
	if m.failOn == "insert" {
		return errors.New("connection reset")
	}
	m.nextID++
	b.ID = m.nextID
	cp := *b
	m.rows[key(b.FixtureID, b.Bookmaker)] = &cp
	return nil
}

func (m *memBets) Update(_ context.Context, b *models.Bet) error {
	cp := *b
	m.rows[key(b.FixtureID, b.Bookmaker)] = &cp
	return nil
}

func newTestUpserter(buf *bytes.Buffer, now *time.Time) *Upserter {
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	u := NewUpserter("betcity", 0, logger)
	u.now = func() time.Time { return *now }
	return u
}

func update(homeWin float64) models.OddsUpdate {
	return models.OddsUpdate{
		EventURL: "https://example.com/event/1",
		Outcomes: &models.Outcome{HomeWin: homeWin, Draw: 3.4, AwayWin: 4.1},
	}
}

func TestUpsertIsIdempotentPerFixtureAndBookmaker(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	u := newTestUpserter(&buf, &now)
	store := newMemBets()
	fixture := &models.Fixture{ID: 7, HomeTeamName: "Metz", AwayTeamName: "Lens"}

	first, err := u.Upsert(context.Background(), store, fixture, "betcity", update(2.1))
	require.NoError(t, err)
	assert.Equal(t, Added, first.Status)

	now = now.Add(10 * time.Minute)
	second, err := u.Upsert(context.Background(), store, fixture, "betcity", update(2.2))
	require.NoError(t, err)
	assert.Equal(t, Updated, second.Status)
	assert.False(t, second.Anomaly)

	require.Len(t, store.rows, 1)
	stored, _ := store.GetByFixtureAndBookmaker(context.Background(), 7, "betcity")
	assert.Equal(t, 2.2, stored.Outcomes.HomeWin)
	assert.Equal(t, first.Bet.ID, stored.ID)
	assert.Equal(t, now, stored.UpdatedAt)
}

func TestUpsertAnomalyWarnsButWrites(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	u := newTestUpserter(&buf, &now)
	store := newMemBets()
	fixture := &models.Fixture{ID: 7, HomeTeamName: "Metz", AwayTeamName: "Lens"}

	_, err := u.Upsert(context.Background(), store, fixture, "betcity", update(2.1))
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	res, err := u.Upsert(context.Background(), store, fixture, "betcity", update(3.5))
	require.NoError(t, err)
	assert.Equal(t, Updated, res.Status)
	assert.True(t, res.Anomaly)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "Possible odds anomaly")

	stored, _ := store.GetByFixtureAndBookmaker(context.Background(), 7, "betcity")
	assert.Equal(t, 3.5, stored.Outcomes.HomeWin)
}

func TestUpsertSamePriceIsNotAnomaly(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	u := newTestUpserter(&buf, &now)
	store := newMemBets()
	fixture := &models.Fixture{ID: 1}

	_, err := u.Upsert(context.Background(), store, fixture, "fonbet", update(2.1))
	require.NoError(t, err)
	now = now.Add(time.Minute)
	res, err := u.Upsert(context.Background(), store, fixture, "fonbet", update(2.1))
	require.NoError(t, err)
	assert.False(t, res.Anomaly)
	assert.NotContains(t, buf.String(), "anomaly")
}

func TestUpsertKeepsUpdatedAtMonotonic(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	u := newTestUpserter(&buf, &now)
	store := newMemBets()
	fixture := &models.Fixture{ID: 1}

	_, err := u.Upsert(context.Background(), store, fixture, "fonbet", update(2.1))
	require.NoError(t, err)

	// clock skew backwards
	now = now.Add(-time.Hour)
	res, err := u.Upsert(context.Background(), store, fixture, "fonbet", update(2.1))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC), res.Bet.UpdatedAt)
}

func TestUpsertPropagatesStoreErrors(t *testing.T) {
	var buf bytes.Buffer
	now := time.Now()
	u := newTestUpserter(&buf, &now)
	store := newMemBets()
	store.failOn = "insert"

	_, err := u.Upsert(context.Background(), store, &models.Fixture{ID: 1}, "fonbet", update(2.1))
	require.Error(t, err)
}

func TestApplyPartialUpdate(t *testing.T) {
	line := decimal.RequireFromString("2.5")
	bet := &models.Bet{
		Outcomes:  &models.Outcome{HomeWin: 2, Draw: 3, AwayWin: 4},
		Handicaps: models.Handicaps{{Line: decimal.RequireFromString("-1.5"), Coefficient: 2.4, Side: "home"}},
	}

	Apply(bet, models.OddsUpdate{
		Totals: models.Totals{
			{Line: line, Over: 1.9, Under: 1.95},
			{Line: decimal.RequireFromString("3.5"), Over: 2.8},
		},
	})

	require.NotNil(t, bet.Outcomes)
	assert.Equal(t, 2.0, bet.Outcomes.HomeWin)
	assert.Len(t, bet.Handicaps, 1)
	require.Len(t, bet.Totals, 1)
	assert.True(t, bet.Totals[0].Line.Equal(line))
	assert.Nil(t, bet.FirstHalfTotals)
}

func TestTxWriterCommitsInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	pg := storage.NewPostgres(sqlx.NewDb(db, "postgres"))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM bet WHERE fixture_id = $1 AND bookmaker = $2")).
		WithArgs(int64(7), "pinnacle").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO bet")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	var buf bytes.Buffer
	now := time.Now()
	w := NewTxWriter(pg, newTestUpserter(&buf, &now))

	res, err := w.Write(context.Background(), &models.Fixture{ID: 7}, "pinnacle", update(1.8))
	require.NoError(t, err)
	assert.Equal(t, Added, res.Status)
	assert.Equal(t, int64(11), res.Bet.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxWriterRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	pg := storage.NewPostgres(sqlx.NewDb(db, "postgres"))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM bet WHERE fixture_id = $1 AND bookmaker = $2")).
		WillReturnError(errors.New("bad connection"))
	mock.ExpectRollback()

	var buf bytes.Buffer
	now := time.Now()
	w := NewTxWriter(pg, newTestUpserter(&buf, &now))

	_, err = w.Write(context.Background(), &models.Fixture{ID: 7}, "pinnacle", update(1.8))
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
