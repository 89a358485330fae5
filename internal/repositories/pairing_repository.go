package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/couplemovie/backend/internal/couples"
	"github.com/couplemovie/backend/internal/db"
	"github.com/couplemovie/backend/internal/models"
)

// PostgresPairingRepository persists pairings and enforces the one-active-pairing rule.
type PostgresPairingRepository struct {
	pool db.Pool
}

// NewPostgresPairingRepository constructs a pairing repository backed by PostgreSQL.
func NewPostgresPairingRepository(pool db.Pool) *PostgresPairingRepository {
	return &PostgresPairingRepository{pool: pool}
}

var _ couples.PairingStore = (*PostgresPairingRepository)(nil)

const pairingColumns = `id, initiator_id, recipient_id, status, created_at, responded_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPairing(row rowScanner) (models.Pairing, error) {
	var (
		pairing     models.Pairing
		status      string
		respondedAt sql.NullTime
	)
	if err := row.Scan(&pairing.ID, &pairing.InitiatorID, &pairing.RecipientID, &status, &pairing.CreatedAt, &respondedAt); err != nil {
		return models.Pairing{}, err
	}
	pairing.Status = models.PairingStatus(status)
	pairing.CreatedAt = pairing.CreatedAt.UTC()
	if respondedAt.Valid {
		at := respondedAt.Time.UTC()
		pairing.RespondedAt = &at
	}
	return pairing, nil
}

// CreatePairing inserts a PENDING pairing. The existence check and the insert
// share a serializable transaction and the partial unique indexes on
// initiator_id and recipient_id back it up.
func (r *PostgresPairingRepository) CreatePairing(ctx context.Context, pairing models.Pairing) error {
	err := db.InSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `
            SELECT EXISTS (
                SELECT 1 FROM pairings
                WHERE status <> 'BROKEN'
                  AND (initiator_id IN ($1, $2) OR recipient_id IN ($1, $2))
            )
        `, pairing.InitiatorID, pairing.RecipientID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return couples.ErrActivePairingExists
		}

		_, err := tx.Exec(ctx, `
            INSERT INTO pairings (id, initiator_id, recipient_id, status, created_at)
            VALUES ($1, $2, $3, $4, $5)
        `, pairing.ID, pairing.InitiatorID, pairing.RecipientID, string(pairing.Status), pairing.CreatedAt.UTC())
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, couples.ErrActivePairingExists):
			return err
		case pgCode(err) == pgUniqueViolation:
			return couples.ErrActivePairingExists
		case pgCode(err) == pgForeignKeyViolation:
			return errAccountNotFound
		}
		return fmt.Errorf("insert pairing: %w", err)
	}
	return nil
}

// GetPairing loads a pairing by id.
func (r *PostgresPairingRepository) GetPairing(ctx context.Context, id string) (models.Pairing, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Pairing{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	pairing, err := scanPairing(conn.QueryRow(ctx, `SELECT `+pairingColumns+` FROM pairings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgInvalidTextRepr {
			return models.Pairing{}, couples.ErrPairingNotFound
		}
		return models.Pairing{}, fmt.Errorf("select pairing: %w", err)
	}
	return pairing, nil
}

// ActivePairingFor returns the PENDING or ACCEPTED pairing accountID belongs to.
func (r *PostgresPairingRepository) ActivePairingFor(ctx context.Context, accountID string) (models.Pairing, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Pairing{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	pairing, err := scanPairing(conn.QueryRow(ctx, `
        SELECT `+pairingColumns+`
        FROM pairings
        WHERE status <> 'BROKEN' AND (initiator_id = $1 OR recipient_id = $1)
        ORDER BY created_at DESC
        LIMIT 1
    `, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgInvalidTextRepr {
			return models.Pairing{}, couples.ErrPairingNotFound
		}
		return models.Pairing{}, fmt.Errorf("select active pairing: %w", err)
	}
	return pairing, nil
}

// ListIncoming returns the PENDING pairings addressed to accountID, oldest first.
func (r *PostgresPairingRepository) ListIncoming(ctx context.Context, accountID string) ([]models.Pairing, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+pairingColumns+`
        FROM pairings
        WHERE recipient_id = $1 AND status = 'PENDING'
        ORDER BY created_at ASC
    `, accountID)
	if err != nil {
		if pgCode(err) == pgInvalidTextRepr {
			return nil, nil
		}
		return nil, fmt.Errorf("list incoming pairings: %w", err)
	}
	defer rows.Close()

	var pairings []models.Pairing
	for rows.Next() {
		pairing, err := scanPairing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pairing: %w", err)
		}
		pairings = append(pairings, pairing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pairings: %w", err)
	}
	return pairings, nil
}

// TransitionPairing moves a pairing from one status to another only when it
// is still in from.
func (r *PostgresPairingRepository) TransitionPairing(ctx context.Context, id string, from, to models.PairingStatus, at time.Time) (models.Pairing, error) {
	var updated models.Pairing
	err := db.InSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		updated, err = transition(ctx, tx, id, from, to, at)
		return err
	})
	if err != nil {
		return models.Pairing{}, err
	}
	return updated, nil
}

func transition(ctx context.Context, tx pgx.Tx, id string, from, to models.PairingStatus, at time.Time) (models.Pairing, error) {
	pairing, err := scanPairing(tx.QueryRow(ctx, `
        UPDATE pairings
        SET status = $3, responded_at = $4
        WHERE id = $1 AND status = $2
        RETURNING `+pairingColumns, id, string(from), string(to), at.UTC()))
	if err == nil {
		return pairing, nil
	}
	if pgCode(err) == pgInvalidTextRepr {
		return models.Pairing{}, couples.ErrPairingNotFound
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Pairing{}, fmt.Errorf("update pairing status: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pairings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return models.Pairing{}, fmt.Errorf("check pairing: %w", err)
	}
	if !exists {
		return models.Pairing{}, couples.ErrPairingNotFound
	}
	return models.Pairing{}, couples.ErrStaleTransition
}

// BreakPairing marks an ACCEPTED pairing BROKEN and deletes its shared entries
// in the same transaction.
func (r *PostgresPairingRepository) BreakPairing(ctx context.Context, id string, at time.Time) (models.Pairing, []models.SharedEntry, error) {
	var (
		broken  models.Pairing
		removed []models.SharedEntry
	)
	err := db.InSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		broken, err = transition(ctx, tx, id, models.PairingAccepted, models.PairingBroken, at)
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `DELETE FROM shared_entries WHERE pairing_id = $1 RETURNING `+entryColumns, id)
		if err != nil {
			return fmt.Errorf("delete shared entries: %w", err)
		}
		removed, err = collectEntries(rows)
		return err
	})
	if err != nil {
		return models.Pairing{}, nil, err
	}
	sortEntries(removed)
	return broken, removed, nil
}
