package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/couplemovie/backend/internal/db"
	"github.com/couplemovie/backend/internal/models"
)

// PostgresAccountRepository provides PostgreSQL-backed persistence for accounts.
type PostgresAccountRepository struct {
	pool db.Pool
}

// NewPostgresAccountRepository constructs an account repository backed by PostgreSQL.
func NewPostgresAccountRepository(pool db.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

const accountColumns = `id, email, username, password_hash, created_at, updated_at`

// Create persists a new account record.
func (r *PostgresAccountRepository) Create(ctx context.Context, account models.Account) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO accounts (id, email, username, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, account.ID, strings.ToLower(account.Email), account.Username, account.Password, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// FindByEmail fetches an account by its email address.
func (r *PostgresAccountRepository) FindByEmail(ctx context.Context, email string) (models.Account, error) {
	return r.findOne(ctx, `WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

// FindByID fetches an account by its identifier.
func (r *PostgresAccountRepository) FindByID(ctx context.Context, id string) (models.Account, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// FindByIdentifier resolves an email address (case-insensitive) or a username.
func (r *PostgresAccountRepository) FindByIdentifier(ctx context.Context, identifier string) (models.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return r.FindByEmail(ctx, identifier)
	}
	return r.findOne(ctx, `WHERE username = $1`, identifier)
}

func (r *PostgresAccountRepository) findOne(ctx context.Context, where string, arg any) (models.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts `+where, arg)

	var account models.Account
	if err := row.Scan(&account.ID, &account.Email, &account.Username, &account.Password, &account.CreatedAt, &account.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgInvalidTextRepr {
			return models.Account{}, errAccountNotFound
		}
		return models.Account{}, fmt.Errorf("select account: %w", err)
	}

	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return account, nil
}

// Update modifies an existing account record.
func (r *PostgresAccountRepository) Update(ctx context.Context, account models.Account) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE accounts
        SET email = $2, username = $3, password_hash = $4, updated_at = $5
        WHERE id = $1
    `, account.ID, strings.ToLower(account.Email), account.Username, account.Password, account.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("update account: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
