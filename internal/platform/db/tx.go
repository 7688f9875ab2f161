package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lastmile/cashdesk/internal/shared"
)

// Beginner is satisfied by *pgxpool.Pool.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
// Serialization and lock failures are reported as shared.ErrConflict.
func WithTx(ctx context.Context, pool Beginner, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return shared.MapTxError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return shared.MapTxError(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}
