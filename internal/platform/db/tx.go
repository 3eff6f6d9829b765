package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxTxRetries bounds how many times InTxRetry re-runs a transaction that
// lost its snapshot race before giving up.
const maxTxRetries = 5

// ErrTxConflict reports that every attempt of a retried transaction lost a
// write race. Callers map it to their own conflict error.
var ErrTxConflict = errors.New("platform/db: transaction conflict persisted after retries")

// WithTx executes a function within a transaction using the RepeatableRead
// isolation level. Reads inside the function observe one snapshot; a commit
// that clashes with a concurrent writer fails with a serialization error.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// InTxRetry runs fn through WithTx and retries the whole function when the
// attempt fails with a snapshot conflict. Each retry re-reads current state,
// so validations run against fresh data. Backoff grows exponentially with
// jitter; when the budget is exhausted the last conflict is reported as
// ErrTxConflict. Non-conflict errors abort immediately.
func InTxRetry(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
		backoff.WithMaxInterval(250*time.Millisecond),
	), maxTxRetries), ctx)

	err := backoff.Retry(func() error {
		attemptErr := WithTx(ctx, pool, fn)
		if attemptErr == nil {
			return nil
		}
		if IsSerializationFailure(attemptErr) {
			return attemptErr
		}
		return backoff.Permanent(attemptErr)
	}, policy)
	if err == nil {
		return nil
	}
	if IsSerializationFailure(err) {
		return fmt.Errorf("%w: %w", ErrTxConflict, err)
	}
	return err
}

// IsSerializationFailure reports whether err is a PostgreSQL snapshot
// conflict (serialization_failure 40001 or deadlock_detected 40P01), the
// signal that a RepeatableRead commit observed a concurrent write.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
