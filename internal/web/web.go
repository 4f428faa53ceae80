// Package web serves the three HTML pages. Templates are compiled into the
// binary so the deploy artifact stays a single file.
package web

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

type Handler struct {
	tmpl *template.Template
	log  *slog.Logger
}

func NewHandler(log *slog.Logger) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{tmpl: tmpl, log: log}, nil
}

// Root handles GET /: everything starts at the login page.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html")
}

func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "register.html")
}

// DashboardPage is mounted behind the redirecting session gate, so by the
// time it runs the caller is authenticated.
func (h *Handler) DashboardPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "dashboard.html")
}

func (h *Handler) render(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.ExecuteTemplate(w, name, nil); err != nil {
		h.log.Error("render template", "template", name, "error", err)
	}
}
