package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool abstracts the pgx connection pool to make testing easier.
type Pool interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

// Connect initialises a PostgreSQL connection pool using the provided database URL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

const (
	txMaxRetries  = 5
	txBaseBackoff = 25 * time.Millisecond
	txMaxBackoff  = time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// IsRetryable reports whether err is a transient conflict worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryablePgErrorCodes[pgErr.Code]; ok {
			return true
		}
	}

	return errors.Is(err, pgx.ErrTxClosed)
}

// Backoff returns the delay before the given retry attempt (1-based).
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * base
	if backoff > max {
		backoff = max
	}
	return backoff
}

// InSerializableTx runs fn inside a SERIALIZABLE transaction on an acquired
// connection, retrying the whole unit when the database reports a
// serialization conflict. Errors returned by fn that are not retryable are
// returned unchanged.
func InSerializableTx(ctx context.Context, pool Pool, fn func(tx pgx.Tx) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var lastErr error
	for attempt := 0; attempt < txMaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(Backoff(attempt, txBaseBackoff, txMaxBackoff))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if err := fn(tx); err != nil {
			_ = tx.Rollback(ctx)
			if IsRetryable(err) && ctx.Err() == nil {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			_ = tx.Rollback(ctx)
			if IsRetryable(err) && ctx.Err() == nil {
				lastErr = err
				continue
			}
			return fmt.Errorf("commit transaction: %w", err)
		}

		return nil
	}

	return fmt.Errorf("transaction exceeded max retries (%d): %w", txMaxRetries, lastErr)
}
