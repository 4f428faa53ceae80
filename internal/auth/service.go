package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/leadtrail/backend/internal/models"
)

// ErrUsernameTaken is returned when registering with a username that
// already exists.
var ErrUsernameTaken = errors.New("username already exists")

// ErrInvalidCredentials covers both unknown usernames and wrong passwords:
// callers must not be able to tell the two apart.
var ErrInvalidCredentials = errors.New("invalid username or password")

// tokenBytes gives 256 bits of entropy per session token.
const tokenBytes = 32

type Service interface {
	Register(ctx context.Context, username, password string) (*models.Session, error)
	Login(ctx context.Context, username, password string) (*models.Session, error)
	Logout(ctx context.Context, token string) error
}

// Store is the repository surface the service needs.
type Store interface {
	CreateAccount(ctx context.Context, tx pgx.Tx, username, passwordHash, role string) (int64, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
	CreateSession(ctx context.Context, tx pgx.Tx, s models.Session) error
	DeleteSessionReturningAccount(ctx context.Context, tx pgx.Tx, token string) (int64, bool, error)
}

// Recorder enqueues one audit record inside the caller's transaction.
type Recorder interface {
	Append(ctx context.Context, tx pgx.Tx, rec models.ActivityRecord) error
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type service struct {
	pool     TxBeginner
	repo     Store
	recorder Recorder
}

func NewService(pool TxBeginner, repo Store, recorder Recorder) *service {
	return &service{pool: pool, repo: repo, recorder: recorder}
}

var _ Service = (*service)(nil)

// Register creates the account, issues a session, and enqueues the
// "registered" audit record, all in one transaction.
func (s *service) Register(ctx context.Context, username, password string) (*models.Session, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	accountID, err := s.repo.CreateAccount(ctx, tx, username, hash, models.DefaultRole)
	if err != nil {
		return nil, err
	}

	session, err := s.issueSession(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.recorder.Append(ctx, tx, models.NewActivityRecord(accountID,
		fmt.Sprintf("User %d registered", accountID))); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// Login verifies credentials and issues a fresh session. Existing sessions
// for the account are left untouched.
func (s *service) Login(ctx context.Context, username, password string) (*models.Session, error) {
	acc, err := s.repo.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrInvalidCredentials
	}
	ok, err := VerifyPassword(acc.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	session, err := s.issueSession(ctx, tx, acc.ID)
	if err != nil {
		return nil, err
	}
	if err := s.recorder.Append(ctx, tx, models.NewActivityRecord(acc.ID,
		fmt.Sprintf("User %d logged in", acc.ID))); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// Logout deletes the session and records it. A token with no matching
// session is a no-op success: idempotent logout is the desired behavior.
func (s *service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	accountID, found, err := s.repo.DeleteSessionReturningAccount(ctx, tx, token)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := s.recorder.Append(ctx, tx, models.NewActivityRecord(accountID,
		fmt.Sprintf("User %d logged out", accountID))); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *service) issueSession(ctx context.Context, tx pgx.Tx, accountID int64) (*models.Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	session := models.Session{
		Token:     token,
		AccountID: accountID,
		ExpiresAt: time.Now().Add(models.SessionTTL),
	}
	if err := s.repo.CreateSession(ctx, tx, session); err != nil {
		return nil, err
	}
	return &session, nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
