package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"server/internal/domain"
	"server/internal/generation"

	"github.com/go-chi/chi/v5"
)

type generationCreateRequest struct {
	Mode        string `json:"mode"`
	RoomType    string `json:"room_type"`
	Style       string `json:"style"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Quality     string `json:"quality"`
	Variants    int    `json:"variants"`
	Input1Path  string `json:"input1_path"`
	Input2Path  string `json:"input2_path"`
	// IdempotencyKey in the body is a fallback for clients that cannot set
	// the Idempotency-Key header.
	IdempotencyKey string `json:"idempotency_key"`
}

type generationResponse struct {
	ID           string     `json:"id"`
	Mode         string     `json:"mode"`
	RoomType     string     `json:"room_type,omitempty"`
	Style        string     `json:"style,omitempty"`
	Prompt       string     `json:"prompt"`
	AspectRatio  string     `json:"aspect_ratio"`
	Quality      string     `json:"quality"`
	Variants     int        `json:"variants"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RenderID     string     `json:"render_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func (a *App) generationDTO(r *http.Request, job *domain.GenerationJob) generationResponse {
	resp := generationResponse{
		ID:           job.ID,
		Mode:         string(job.Mode),
		RoomType:     job.RoomType,
		Style:        job.Style,
		Prompt:       job.Prompt,
		AspectRatio:  job.AspectRatio,
		Quality:      job.Quality,
		Variants:     job.VariantsRequested,
		Status:       string(job.Status),
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	}
	if job.Status == domain.JobStatusSucceeded {
		if render, err := a.Renders.GetByJobID(r.Context(), job.ID); err == nil && render != nil {
			resp.RenderID = render.ID
		}
	}
	return resp
}

// GenerationsCreate accepts a generation request and submits it to the
// provider. Clients retry safely by sending the same Idempotency-Key.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	var req generationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey == "" {
		idemKey = req.IdempotencyKey
	}

	job, err := a.Orchestrator.Submit(r.Context(), generation.SubmitRequest{
		OwnerID:        userID,
		PlanID:         a.currentPlanID(r),
		Mode:           domain.Mode(req.Mode),
		RoomType:       req.RoomType,
		Style:          req.Style,
		UserPrompt:     req.Prompt,
		AspectRatio:    req.AspectRatio,
		Quality:        req.Quality,
		Variants:       req.Variants,
		Input1Path:     req.Input1Path,
		Input2Path:     req.Input2Path,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	code := http.StatusAccepted
	if job.Status.Terminal() {
		// Idempotent replay of an already finished job.
		code = http.StatusOK
	}
	a.json(w, code, a.generationDTO(r, job))
}

func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	job, err := a.Orchestrator.Get(r.Context(), a.currentUserID(r), jobID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.generationDTO(r, job))
}

func (a *App) GenerationCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	job, err := a.Orchestrator.Cancel(r.Context(), a.currentUserID(r), jobID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.generationDTO(r, job))
}
