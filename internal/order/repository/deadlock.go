package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	apperrors "kitchenops/internal/errors"
)

// Backoff before attempt n+1: 0ms, 100ms, 200ms, then 200ms onwards.
var deadlockBackoffs = []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}

func isDeadlockError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	return false
}

func backoffFor(attempt int) time.Duration {
	if attempt-1 < len(deadlockBackoffs) {
		return deadlockBackoffs[attempt-1]
	}
	return deadlockBackoffs[len(deadlockBackoffs)-1]
}

// inTx runs fn in a REPEATABLE READ transaction and retries the whole
// transaction when MySQL reports a deadlock or lock wait timeout.
func (r *MySQLOrderRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isDeadlockError(err) {
			return err
		}
		if attempt == r.maxAttempts {
			break
		}

		base := backoffFor(attempt)
		// ±20% jitter
		wait := base + time.Duration(float64(base)*(rand.Float64()*0.4-0.2))
		r.logger.Warn("deadlock detected, retrying",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", r.maxAttempts),
			zap.Duration("wait", wait),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return apperrors.NewConflictError("order store deadlock, retries exhausted")
}

func (r *MySQLOrderRepository) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	// MySQL ignores rollback after commit.
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
