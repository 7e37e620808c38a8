package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Vodeneev/oddsapi/internal/pkg/models"
)

type NotificationRepository struct {
	db sqlx.ExtContext
}

func NewNotificationRepository(db sqlx.ExtContext) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create records a delivered notification and fills in ID and CreatedAt.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
	INSERT INTO notification (fixture_id, platform, message, sent_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id, created_at`
	err := r.db.QueryRowxContext(ctx, query, n.FixtureID, n.Platform, n.Message, n.SentAt).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification for fixture %d: %w", n.FixtureID, err)
	}
	return nil
}

func (r *NotificationRepository) ExistsForFixture(ctx context.Context, fixtureID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM notification WHERE fixture_id = $1)`
	if err := sqlx.GetContext(ctx, r.db, &exists, query, fixtureID); err != nil {
		return false, fmt.Errorf("failed to check notification: %w", err)
	}
	return exists, nil
}

// DeleteAll makes every fixture eligible for notification again.
func (r *NotificationRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notification`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean notifications: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}
