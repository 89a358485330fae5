package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/couplemovie/backend/internal/couples"
	"github.com/couplemovie/backend/internal/db"
	"github.com/couplemovie/backend/internal/models"
)

// PostgresEntryRepository persists the shared collection of a pairing.
// Each statement writes only the columns owned by the caller.
type PostgresEntryRepository struct {
	pool db.Pool
}

// NewPostgresEntryRepository constructs an entry repository backed by PostgreSQL.
func NewPostgresEntryRepository(pool db.Pool) *PostgresEntryRepository {
	return &PostgresEntryRepository{pool: pool}
}

var _ couples.EntryStore = (*PostgresEntryRepository)(nil)

const entryColumns = `pairing_id, movie_ref, added_by_initiator, added_by_recipient, watch_status, initiator_rating, recipient_rating, watched_at, created_at`

func scanEntry(row rowScanner) (models.SharedEntry, error) {
	var (
		entry           models.SharedEntry
		status          string
		initiatorRating sql.NullFloat64
		recipientRating sql.NullFloat64
		watchedAt       sql.NullTime
	)
	if err := row.Scan(
		&entry.PairingID,
		&entry.MovieRef,
		&entry.AddedByInitiator,
		&entry.AddedByRecipient,
		&status,
		&initiatorRating,
		&recipientRating,
		&watchedAt,
		&entry.CreatedAt,
	); err != nil {
		return models.SharedEntry{}, err
	}

	entry.WatchStatus = models.WatchStatus(status)
	entry.CreatedAt = entry.CreatedAt.UTC()
	if initiatorRating.Valid {
		v := initiatorRating.Float64
		entry.InitiatorRating = &v
	}
	if recipientRating.Valid {
		v := recipientRating.Float64
		entry.RecipientRating = &v
	}
	if watchedAt.Valid {
		v := watchedAt.Time.UTC()
		entry.WatchedAt = &v
	}
	return entry, nil
}

func collectEntries(rows pgx.Rows) ([]models.SharedEntry, error) {
	defer rows.Close()

	entries := []models.SharedEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shared entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared entries: %w", err)
	}
	return entries, nil
}

func sortEntries(entries []models.SharedEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].MovieRef < entries[j].MovieRef
	})
}

func flagColumn(role models.Role) (string, error) {
	switch role {
	case models.RoleInitiator:
		return "added_by_initiator", nil
	case models.RoleRecipient:
		return "added_by_recipient", nil
	}
	return "", couples.ErrNotMember
}

func ratingColumn(role models.Role) (string, error) {
	switch role {
	case models.RoleInitiator:
		return "initiator_rating", nil
	case models.RoleRecipient:
		return "recipient_rating", nil
	}
	return "", couples.ErrNotMember
}

func entryNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgInvalidTextRepr
}

// GetEntry loads one shared entry.
func (r *PostgresEntryRepository) GetEntry(ctx context.Context, pairingID, movieRef string) (models.SharedEntry, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.SharedEntry{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	entry, err := scanEntry(conn.QueryRow(ctx, `
        SELECT `+entryColumns+`
        FROM shared_entries
        WHERE pairing_id = $1 AND movie_ref = $2
    `, pairingID, movieRef))
	if err != nil {
		if entryNotFound(err) {
			return models.SharedEntry{}, couples.ErrEntryNotFound
		}
		return models.SharedEntry{}, fmt.Errorf("select shared entry: %w", err)
	}
	return entry, nil
}

// ListEntries returns every entry of the pairing ordered by insertion time.
func (r *PostgresEntryRepository) ListEntries(ctx context.Context, pairingID string) ([]models.SharedEntry, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+entryColumns+`
        FROM shared_entries
        WHERE pairing_id = $1
        ORDER BY created_at ASC, movie_ref ASC
    `, pairingID)
	if err != nil {
		if pgCode(err) == pgInvalidTextRepr {
			return []models.SharedEntry{}, nil
		}
		return nil, fmt.Errorf("list shared entries: %w", err)
	}
	return collectEntries(rows)
}

// MarkAdded sets the caller's flag, inserting a WATCHLIST entry when none
// exists. Nothing is written unless the pairing is ACCEPTED in the same
// transaction; otherwise couples.ErrNotPaired is returned.
func (r *PostgresEntryRepository) MarkAdded(ctx context.Context, pairingID, movieRef string, role models.Role, at time.Time) (models.SharedEntry, error) {
	column, err := flagColumn(role)
	if err != nil {
		return models.SharedEntry{}, err
	}

	entry, err := r.writeEntry(ctx, `
        INSERT INTO shared_entries (pairing_id, movie_ref, `+column+`, watch_status, created_at)
        SELECT $1::UUID, $2::STRING, true, 'WATCHLIST', $3::TIMESTAMPTZ
        WHERE EXISTS (SELECT 1 FROM pairings WHERE id = $1::UUID AND status = 'ACCEPTED')
        ON CONFLICT (pairing_id, movie_ref)
        DO UPDATE SET `+column+` = true
        RETURNING `+entryColumns, pairingID, movieRef, at.UTC())
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return models.SharedEntry{}, couples.ErrNotPaired
		case pgCode(err) == pgForeignKeyViolation || pgCode(err) == pgInvalidTextRepr:
			return models.SharedEntry{}, couples.ErrPairingNotFound
		}
		return models.SharedEntry{}, fmt.Errorf("upsert shared entry: %w", err)
	}
	return entry, nil
}

// ClearAdded clears the caller's flag and deletes the row when the other
// member never added it.
func (r *PostgresEntryRepository) ClearAdded(ctx context.Context, pairingID, movieRef string, role models.Role) (models.SharedEntry, bool, error) {
	column, err := flagColumn(role)
	if err != nil {
		return models.SharedEntry{}, false, err
	}
	other := "added_by_recipient"
	if role == models.RoleRecipient {
		other = "added_by_initiator"
	}

	var (
		entry   models.SharedEntry
		deleted bool
	)
	err = db.InSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		entry, err = scanEntry(tx.QueryRow(ctx, `
            DELETE FROM shared_entries
            WHERE pairing_id = $1 AND movie_ref = $2 AND NOT `+other+`
            RETURNING `+entryColumns, pairingID, movieRef))
		if err == nil {
			deleted = true
			entry.AddedByInitiator = false
			entry.AddedByRecipient = false
			return nil
		}
		if !entryNotFound(err) {
			return fmt.Errorf("delete shared entry: %w", err)
		}

		deleted = false
		entry, err = scanEntry(tx.QueryRow(ctx, `
            UPDATE shared_entries
            SET `+column+` = false
            WHERE pairing_id = $1 AND movie_ref = $2
            RETURNING `+entryColumns, pairingID, movieRef))
		if err != nil {
			if entryNotFound(err) {
				return couples.ErrEntryNotFound
			}
			return fmt.Errorf("clear shared entry flag: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.SharedEntry{}, false, err
	}
	return entry, deleted, nil
}

// SetWatchStatus stamps watched_at on the first move to WATCHED. Moving back
// to WATCHLIST clears watched_at and both ratings.
func (r *PostgresEntryRepository) SetWatchStatus(ctx context.Context, pairingID, movieRef string, status models.WatchStatus, at time.Time) (models.SharedEntry, error) {
	if !status.Valid() {
		return models.SharedEntry{}, couples.ErrInvalidWatchStatus
	}

	entry, err := r.writeEntry(ctx, `
        UPDATE shared_entries
        SET watch_status = $3::STRING,
            watched_at = CASE WHEN $3::STRING = 'WATCHED' THEN COALESCE(watched_at, $4::TIMESTAMPTZ) ELSE NULL END,
            initiator_rating = CASE WHEN $3::STRING = 'WATCHED' THEN initiator_rating ELSE NULL END,
            recipient_rating = CASE WHEN $3::STRING = 'WATCHED' THEN recipient_rating ELSE NULL END
        WHERE pairing_id = $1 AND movie_ref = $2
        RETURNING `+entryColumns, pairingID, movieRef, string(status), at.UTC())
	if err != nil {
		if entryNotFound(err) {
			return models.SharedEntry{}, couples.ErrEntryNotFound
		}
		return models.SharedEntry{}, fmt.Errorf("update watch status: %w", err)
	}
	return entry, nil
}

// SetRating writes the caller's rating column and marks the entry watched.
func (r *PostgresEntryRepository) SetRating(ctx context.Context, pairingID, movieRef string, role models.Role, rating float64, at time.Time) (models.SharedEntry, error) {
	column, err := ratingColumn(role)
	if err != nil {
		return models.SharedEntry{}, err
	}

	entry, err := r.writeEntry(ctx, `
        UPDATE shared_entries
        SET `+column+` = $3,
            watch_status = 'WATCHED',
            watched_at = COALESCE(watched_at, $4::TIMESTAMPTZ)
        WHERE pairing_id = $1 AND movie_ref = $2
        RETURNING `+entryColumns, pairingID, movieRef, rating, at.UTC())
	if err != nil {
		if entryNotFound(err) {
			return models.SharedEntry{}, couples.ErrEntryNotFound
		}
		return models.SharedEntry{}, fmt.Errorf("update rating: %w", err)
	}
	return entry, nil
}

// writeEntry runs a single RETURNING statement in a retried serializable transaction.
func (r *PostgresEntryRepository) writeEntry(ctx context.Context, query string, args ...any) (models.SharedEntry, error) {
	var entry models.SharedEntry
	err := db.InSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		entry, err = scanEntry(tx.QueryRow(ctx, query, args...))
		return err
	})
	return entry, err
}
