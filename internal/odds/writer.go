package odds

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/Vodeneev/oddsapi/internal/pkg/models"
	"github.com/Vodeneev/oddsapi/internal/pkg/storage"
)

// Transactor is implemented by storage.Postgres.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// TxWriter applies one odds update inside its own transaction, so a failed
// write can be retried as a whole.
type TxWriter struct {
	db       Transactor
	upserter *Upserter
}

func NewTxWriter(db Transactor, upserter *Upserter) *TxWriter {
	return &TxWriter{db: db, upserter: upserter}
}

func (w *TxWriter) Write(ctx context.Context, fixture *models.Fixture, bookmaker string, update models.OddsUpdate) (Result, error) {
	var res Result
	err := w.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		res, err = w.upserter.Upsert(ctx, storage.NewBetRepository(tx), fixture, bookmaker, update)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}
