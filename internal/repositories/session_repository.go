package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/couplemovie/backend/internal/auth"
	"github.com/couplemovie/backend/internal/db"
)

const (
	upsertSessionSQL = `
        INSERT INTO sessions (token_hash, account_id, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (token_hash)
        DO UPDATE SET account_id = EXCLUDED.account_id, expires_at = EXCLUDED.expires_at`
	selectSessionSQL        = `SELECT account_id, expires_at FROM sessions WHERE token_hash = $1`
	deleteSessionSQL        = `DELETE FROM sessions WHERE token_hash = $1`
	deleteExpiredSessionSQL = `DELETE FROM sessions WHERE expires_at < $1`
)

// PostgresSessionStore keeps refresh-token sessions in the sessions table.
type PostgresSessionStore struct {
	pool db.Pool
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// exec runs a single statement on a pooled connection.
func (s *PostgresSessionStore) exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()
	return conn.Exec(ctx, query, args...)
}

// Save upserts the session keyed by its token hash.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.Session) error {
	_, err := s.exec(ctx, upsertSessionSQL, session.TokenHash, session.AccountID, session.ExpiresAt.UTC())
	switch {
	case err == nil:
		return nil
	case pgCode(err) == pgForeignKeyViolation:
		return errAccountNotFound
	default:
		return fmt.Errorf("upsert session: %w", err)
	}
}

// Find loads a session by the hash of its refresh token.
func (s *PostgresSessionStore) Find(ctx context.Context, tokenHash string) (auth.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return auth.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	session := auth.Session{TokenHash: tokenHash}
	err = conn.QueryRow(ctx, selectSessionSQL, tokenHash).Scan(&session.AccountID, &session.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Session{}, auth.ErrSessionNotFound
	}
	if err != nil {
		return auth.Session{}, fmt.Errorf("select session: %w", err)
	}
	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, nil
}

// Delete revokes a session. Unknown hashes report auth.ErrSessionNotFound.
func (s *PostgresSessionStore) Delete(ctx context.Context, tokenHash string) error {
	tag, err := s.exec(ctx, deleteSessionSQL, tokenHash)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

// DeleteExpired drops sessions that expired before cutoff and returns the count.
func (s *PostgresSessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.exec(ctx, deleteExpiredSessionSQL, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
