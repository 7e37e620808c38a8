package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Vodeneev/oddsapi/internal/pkg/config"
)

// Postgres owns the connection pool and hands out repositories bound to it
// or to a transaction.
type Postgres struct {
	db *sqlx.DB
}

// Open connects to PostgreSQL, checks the connection and ensures the schema.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	p := NewPostgres(db)
	if err := p.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("PostgreSQL storage initialized successfully")
	return p, nil
}

// NewPostgres wraps an already opened pool.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) DB() *sqlx.DB { return p.db }

func (p *Postgres) Fixtures() *FixtureRepository { return NewFixtureRepository(p.db) }

func (p *Postgres) Bets() *BetRepository { return NewBetRepository(p.db) }

func (p *Postgres) Notifications() *NotificationRepository { return NewNotificationRepository(p.db) }

// EnsureSchema creates the tables and indexes if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("Failed to rollback transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping is used by the health endpoint.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

const schema = `
CREATE EXTENSION IF NOT EXISTS unaccent;

CREATE TABLE IF NOT EXISTS fixture (
	id BIGSERIAL PRIMARY KEY,
	source_id BIGINT NOT NULL UNIQUE,
	date TIMESTAMPTZ NOT NULL,
	timezone VARCHAR(64) NOT NULL DEFAULT 'UTC',
	league_id BIGINT,
	league_season INTEGER NOT NULL DEFAULT 0,
	home_team_name VARCHAR(255) NOT NULL,
	home_team_source_id BIGINT NOT NULL DEFAULT 0,
	away_team_name VARCHAR(255) NOT NULL,
	away_team_source_id BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_fixture_date ON fixture(date);
CREATE INDEX IF NOT EXISTS idx_fixture_league ON fixture(league_id);

CREATE TABLE IF NOT EXISTS bet (
	id BIGSERIAL PRIMARY KEY,
	fixture_id BIGINT NOT NULL REFERENCES fixture(id) ON DELETE CASCADE,
	bookmaker VARCHAR(64) NOT NULL,
	source VARCHAR(64) NOT NULL DEFAULT 'api',
	event_url TEXT NOT NULL DEFAULT '',
	outcomes JSONB,
	first_half_outcomes JSONB,
	second_half_outcomes JSONB,
	totals JSONB,
	first_half_totals JSONB,
	handicaps JSONB,
	first_half_handicaps JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (fixture_id, bookmaker)
);

CREATE INDEX IF NOT EXISTS idx_bet_bookmaker ON bet(bookmaker);
CREATE INDEX IF NOT EXISTS idx_bet_totals ON bet USING GIN (totals jsonb_path_ops);
CREATE INDEX IF NOT EXISTS idx_bet_first_half_totals ON bet USING GIN (first_half_totals jsonb_path_ops);
CREATE INDEX IF NOT EXISTS idx_bet_handicaps ON bet USING GIN (handicaps jsonb_path_ops);
CREATE INDEX IF NOT EXISTS idx_bet_first_half_handicaps ON bet USING GIN (first_half_handicaps jsonb_path_ops);

CREATE TABLE IF NOT EXISTS notification (
	id BIGSERIAL PRIMARY KEY,
	fixture_id BIGINT NOT NULL REFERENCES fixture(id) ON DELETE CASCADE,
	platform VARCHAR(32) NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notification_fixture ON notification(fixture_id);
`
