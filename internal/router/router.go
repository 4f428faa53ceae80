package router

import (
	"net/http"

	"github.com/leadtrail/backend/internal/activity"
	"github.com/leadtrail/backend/internal/auth"
	"github.com/leadtrail/backend/internal/handlers"
	"github.com/leadtrail/backend/internal/middleware"
	"github.com/leadtrail/backend/internal/web"
)

// New wires every route. The /api/ surface sits behind the JSON session
// gate; /dashboard sits behind the redirecting variant. The chatbot proxy
// skips the store-deadline middleware because its upstream call is allowed
// to run longer than any store operation.
func New(
	pages *web.Handler,
	authHandler *auth.Handler,
	leads *handlers.LeadHandler,
	activities *activity.Handler,
	llm *handlers.LLMHandler,
	sessions middleware.SessionStore,
) http.Handler {
	mux := http.NewServeMux()

	gate := middleware.SessionAuth(sessions)
	pageGate := middleware.SessionAuthRedirect(sessions, "/login")
	timed := middleware.RequestTimeout(middleware.DefaultRequestTimeout)

	api := func(h http.HandlerFunc) http.Handler {
		return timed(gate(h))
	}

	// Pages and auth form posts.
	mux.HandleFunc("GET /{$}", pages.Root)
	mux.HandleFunc("GET /login", pages.LoginPage)
	mux.HandleFunc("GET /register", pages.RegisterPage)
	mux.Handle("GET /dashboard", pageGate(http.HandlerFunc(pages.DashboardPage)))
	mux.Handle("POST /login", timed(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /register", timed(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /logout", timed(http.HandlerFunc(authHandler.Logout)))

	// Lead API.
	mux.Handle("POST /api/leads", api(leads.CreateLead))
	mux.Handle("GET /api/getleads", api(leads.GetLeads))
	mux.Handle("GET /api/leads/metrics", api(leads.GetMetrics))
	mux.Handle("PATCH /api/leads/{id}/task", api(leads.UpdateTask))
	mux.Handle("PATCH /api/leads/{id}/stage", api(leads.UpdateStage))
	mux.Handle("POST /api/leads/{id}/complete", api(leads.CompleteLead))
	mux.Handle("PATCH /api/leads/{id}/reschedule", api(leads.RescheduleLead))
	mux.Handle("DELETE /api/leads/{id}/delete", api(leads.DeleteLead))

	// Activity log and chatbot.
	mux.Handle("GET /api/activity", api(activities.GetActivity))
	mux.Handle("POST /api/llm", gate(http.HandlerFunc(llm.SendPrompt)))

	return middleware.RequestID(mux)
}
