package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"

	"github.com/leadtrail/backend/config"
	"github.com/leadtrail/backend/internal/activity"
	"github.com/leadtrail/backend/internal/auth"
	"github.com/leadtrail/backend/internal/handlers"
	"github.com/leadtrail/backend/internal/repository"
	"github.com/leadtrail/backend/internal/router"
	"github.com/leadtrail/backend/internal/services"
	"github.com/leadtrail/backend/internal/web"
)

// buildRouter constructs every repository, service, and handler and wires
// them into the route table. The audit recorder is shared: auth and lead
// mutations both enqueue through the same river client.
func buildRouter(
	cfg *config.Config,
	pool *pgxpool.Pool,
	activityRepo *activity.Repository,
	riverClient *river.Client[pgx.Tx],
	logger *slog.Logger,
) (http.Handler, error) {
	recorder := activity.NewRecorder(riverClient)

	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(pool, authRepo, recorder)
	authHandler := auth.NewHandler(authSvc, logger, cfg.Server.SecureCookies)

	validator, err := services.NewValidator()
	if err != nil {
		return nil, err
	}
	emailChecker := services.NewEmailChecker(
		cfg.EmailValidator.URL,
		time.Duration(cfg.EmailValidator.TimeoutSeconds)*time.Second,
		logger,
	)
	llmClient := services.NewLLMClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)

	leadHandler := &handlers.LeadHandler{
		Pool:      pool,
		Leads:     repository.NewLeadRepo(pool),
		Recorder:  recorder,
		Email:     emailChecker,
		Validator: validator,
		Logger:    logger,
	}

	activityHandler := &activity.Handler{
		Activities: activityRepo,
		Logger:     logger,
	}

	llmHandler := &handlers.LLMHandler{
		Client:    llmClient,
		Validator: validator,
		Logger:    logger,
	}

	pages, err := web.NewHandler(logger)
	if err != nil {
		return nil, err
	}

	return router.New(pages, authHandler, leadHandler, activityHandler, llmHandler, authRepo), nil
}
