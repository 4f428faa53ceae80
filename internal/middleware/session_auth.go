package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/leadtrail/backend/internal/models"
)

type contextKey string

const ctxAccountIDKey contextKey = "account_id"

// SessionCookie is the name of the session cookie.
const SessionCookie = "id"

// SessionStore is the subset of the session repository the gate needs.
type SessionStore interface {
	// GetSession returns nil, nil when no row matches the token.
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// SessionAuth resolves the session cookie to an account id and injects it
// into the request context. An expired session row is deleted on the spot:
// there is no background sweeper, so this lazy purge inside the read path
// is the only thing that removes stale rows.
func SessionAuth(sessions SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, reason, err := resolve(r, sessions)
			if err != nil {
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}
			if reason != "" {
				http.Error(w, `{"error":"`+reason+`"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxAccountIDKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionAuthRedirect is the page variant: unauthenticated requests are
// sent to location instead of getting a JSON 401.
func SessionAuthRedirect(sessions SessionStore, location string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, reason, err := resolve(r, sessions)
			if err != nil || reason != "" {
				http.Redirect(w, r, location, http.StatusSeeOther)
				return
			}
			ctx := context.WithValue(r.Context(), ctxAccountIDKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolve returns the account id, or a non-empty 401 reason, or an error
// for store failures. Ordering matters: lookup, then expiry check, then
// delete-on-expiry, exactly in that sequence.
func resolve(r *http.Request, sessions SessionStore) (int64, string, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return 0, "Not logged in", nil
	}

	session, err := sessions.GetSession(r.Context(), cookie.Value)
	if err != nil {
		return 0, "", err
	}
	if session == nil {
		return 0, "Invalid session", nil
	}
	if session.Expired(time.Now()) {
		if err := sessions.DeleteSession(r.Context(), cookie.Value); err != nil {
			return 0, "", err
		}
		return 0, "Session expired", nil
	}
	return session.AccountID, "", nil
}

// AccountIDFromCtx returns the authenticated account id, or 0 if the
// request did not pass through SessionAuth.
func AccountIDFromCtx(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxAccountIDKey).(int64)
	return id
}

// WithAccountID returns a context carrying the given account id.
func WithAccountID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxAccountIDKey, id)
}
