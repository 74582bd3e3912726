package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"server/internal/domain"
	"server/internal/generation"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/storage"
	"server/internal/usage"
)

// App holds the request handlers' shared dependencies.
type App struct {
	Config       *infra.Config
	Logger       infra.Logger
	Orchestrator *generation.Orchestrator
	Renders      domain.RenderRepository
	Ledger       *usage.Ledger
	Plans        usage.PlanResolver
	Store        *storage.FileStore
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errorBody{Code: errCode, Message: message}})
}

// domainError maps a core error onto the HTTP surface. Internal details never
// leak into 5xx bodies.
func (a *App) domainError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		msg := de.Message
		if de.HTTPState >= http.StatusInternalServerError {
			a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("request failed")
			msg = "internal error"
		}
		a.error(w, de.HTTPState, string(de.Kind), msg)
		return
	}
	a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("request failed")
	a.error(w, http.StatusInternalServerError, "internal", "internal error")
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) currentPlanID(r *http.Request) string {
	return middleware.PlanIDFromContext(r.Context())
}
