package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadtrail/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateAccount inserts a new account inside the caller's transaction and
// returns its id. A duplicate username maps to ErrUsernameTaken.
func (r *Repository) CreateAccount(ctx context.Context, tx pgx.Tx, username, passwordHash, role string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO accounts (username, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id
	`, username, passwordHash, role).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrUsernameTaken
		}
		return 0, err
	}
	return id, nil
}

// GetAccountByUsername returns the account for login, or nil if absent.
func (r *Repository) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM accounts WHERE username = $1
	`, username).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Role, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// CreateSession inserts a session row inside the caller's transaction.
func (r *Repository) CreateSession(ctx context.Context, tx pgx.Tx, s models.Session) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO sessions (token, account_id, expires_at)
		VALUES ($1, $2, $3)
	`, s.Token, s.AccountID, s.ExpiresAt)
	return err
}

// GetSession returns the session for a token, or nil if absent. Expiry is
// not checked here; the auth gate owns that decision.
func (r *Repository) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var s models.Session
	err := r.pool.QueryRow(ctx, `
		SELECT token, account_id, expires_at FROM sessions WHERE token = $1
	`, token).Scan(&s.Token, &s.AccountID, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// DeleteSession removes a session row. Deleting an absent row is not an error.
func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

// DeleteSessionReturningAccount removes the session inside the caller's
// transaction and reports which account owned it. found is false when no
// row matched, which logout treats as a no-op success.
func (r *Repository) DeleteSessionReturningAccount(ctx context.Context, tx pgx.Tx, token string) (accountID int64, found bool, err error) {
	err = tx.QueryRow(ctx, `
		DELETE FROM sessions WHERE token = $1 RETURNING account_id
	`, token).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return accountID, true, nil
}
