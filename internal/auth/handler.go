package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/leadtrail/backend/internal/middleware"
	"github.com/leadtrail/backend/internal/models"
)

// Handler serves the form-post auth endpoints. Success responses are 303
// redirects with the session cookie, matching what the HTML pages expect.
type Handler struct {
	svc           Service
	log           *slog.Logger
	secureCookies bool
}

func NewHandler(svc Service, log *slog.Logger, secureCookies bool) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log, secureCookies: secureCookies}
}

// Register handles POST /register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	username, password, ok := formCredentials(w, r)
	if !ok {
		return
	}
	session, err := h.svc.Register(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			http.Error(w, `{"error":"Username already exists"}`, http.StatusBadRequest)
			return
		}
		h.log.Error("register failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	h.setSessionCookie(w, session)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	username, password, ok := formCredentials(w, r)
	if !ok {
		return
	}
	session, err := h.svc.Login(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			// One body for unknown user and wrong password.
			http.Error(w, `{"error":"Invalid username or password"}`, http.StatusBadRequest)
			return
		}
		h.log.Error("login failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	h.setSessionCookie(w, session)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Logout handles POST /logout. A missing or stale cookie still logs the
// caller out cleanly.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(middleware.SessionCookie); err == nil {
		token = c.Value
	}
	if err := h.svc.Logout(r.Context(), token); err != nil {
		h.log.Error("logout failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func formCredentials(w http.ResponseWriter, r *http.Request) (username, password string, ok bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, `{"error":"invalid form"}`, http.StatusBadRequest)
		return "", "", false
	}
	username = r.PostFormValue("user_name")
	password = r.PostFormValue("password")
	if username == "" || password == "" {
		http.Error(w, `{"error":"missing username or password"}`, http.StatusBadRequest)
		return "", "", false
	}
	return username, password, true
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, s *models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
}
