package generation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"server/internal/domain"
	"server/internal/providers/replicate"
)

func submitProcessingJob(t *testing.T, env *testEnv) *domain.GenerationJob {
	t.Helper()
	ctx := context.Background()
	job, err := env.orch.Submit(ctx, imagineRequest("owner-1"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	ok, err := env.jobs.TransitionStatus(ctx, job.ID, domain.JobStatusStarting, domain.JobStatusProcessing, "", nil)
	if err != nil || !ok {
		t.Fatalf("seed transition failed: ok=%v err=%v", ok, err)
	}
	job.Status = domain.JobStatusProcessing
	return job
}

func newOutputServer(t *testing.T, statusByPath map[string]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code, ok := statusByPath[r.URL.Path]; ok && code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		_, _ = w.Write([]byte("image-bytes-" + strings.TrimPrefix(r.URL.Path, "/")))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReconcileSucceededIngestsVariants(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 10)
	ctx := context.Background()
	job := submitProcessingJob(t, env)
	srv := newOutputServer(t, nil)

	pred := &replicate.Prediction{
		ID:     job.PredictionID,
		Status: "succeeded",
		Output: replicate.OutputList{srv.URL + "/out-0.jpg", srv.URL + "/out-1.jpg"},
	}
	got, err := env.orch.Reconcile(ctx, job, pred)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %q, want succeeded", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}

	render, err := env.renders.GetByJobID(ctx, job.ID)
	if err != nil {
		t.Fatalf("render lookup: %v", err)
	}
	variants, err := env.renders.ListVariants(ctx, render.ID)
	if err != nil {
		t.Fatalf("variant lookup: %v", err)
	}
	if len(variants) != 2 {
		t.Fatalf("variant count = %d, want 2", len(variants))
	}
	for _, v := range variants {
		data, err := env.store.Read(ctx, v.ImagePath)
		if err != nil {
			t.Fatalf("stored variant unreadable: %v", err)
		}
		if len(data) == 0 {
			t.Fatalf("variant %d stored empty", v.Idx)
		}
	}
}

func TestReconcilePartialDownloadFailureStillSucceeds(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 10)
	ctx := context.Background()
	job := submitProcessingJob(t, env)
	srv := newOutputServer(t, map[string]int{"/broken.jpg": http.StatusNotFound})

	pred := &replicate.Prediction{
		ID:     job.PredictionID,
		Status: "succeeded",
		Output: replicate.OutputList{srv.URL + "/ok.jpg", srv.URL + "/broken.jpg"},
	}
	got, err := env.orch.Reconcile(ctx, job, pred)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %q, want succeeded (one variant is enough)", got.Status)
	}

	render, err := env.renders.GetByJobID(ctx, job.ID)
	if err != nil {
		t.Fatalf("render lookup: %v", err)
	}
	variants, err := env.renders.ListVariants(ctx, render.ID)
	if err != nil {
		t.Fatalf("variant lookup: %v", err)
	}
	if len(variants) != 1 {
		t.Fatalf("variant count = %d, want 1", len(variants))
	}
}

func TestReconcileAllOutputsFailedMarksJobFailed(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 10)
	ctx := context.Background()
	job := submitProcessingJob(t, env)
	srv := newOutputServer(t, map[string]int{"/a.jpg": http.StatusNotFound, "/b.jpg": http.StatusNotFound})

	pred := &replicate.Prediction{
		ID:     job.PredictionID,
		Status: "succeeded",
		Output: replicate.OutputList{srv.URL + "/a.jpg", srv.URL + "/b.jpg"},
	}
	got, err := env.orch.Reconcile(ctx, job, pred)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Fatal("error message missing")
	}
}

func TestReconcileEmptyOutputMarksJobFailed(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 10)
	job := submitProcessingJob(t, env)

	pred := &replicate.Prediction{ID: job.PredictionID, Status: "succeeded"}
	got, err := env.orch.Reconcile(context.Background(), job, pred)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
}

func TestReconcileFailedCarriesProviderError(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 10)
	job := submitProcessingJob(t, env)

	pred := &replicate.Prediction{ID: job.PredictionID, Status: "failed", Error: "NSFW content detected"}
	got, err := env.orch.Reconcile(context.Background(), job, pred)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage != "NSFW content detected" {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}
}

func TestReconcileFailedWithoutMessageGetsDefault(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 10)
	job := submitProcessingJob(t, env)

	pred := &replicate.Prediction{ID: job.PredictionID, Status: "failed"}
	got, err := env.orch.Reconcile(context.Background(), job, pred)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.ErrorMessage != "generation failed" {
		t.Fatalf("error message = %q, want default", got.ErrorMessage)
	}
}

func TestReconcileIgnoresBackwardTransition(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 10)
	job := submitProcessingJob(t, env)

	// A late "starting" webhook after polling already saw "processing".
	pred := &replicate.Prediction{ID: job.PredictionID, Status: "starting"}
	got, err := env.orch.Reconcile(context.Background(), job, pred)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %q, want processing", got.Status)
	}
}

func TestReconcileUnknownStatusStaysInFlight(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 10)
	job := submitProcessingJob(t, env)

	pred := &replicate.Prediction{ID: job.PredictionID, Status: "queued"}
	got, err := env.orch.Reconcile(context.Background(), job, pred)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %q, want processing", got.Status)
	}
}

func TestReconcileTerminalJobIsNoOp(t *testing.T) {
	provider := &fakeProvider{}
	env := newTestEnv(t, provider, 10)
	ctx := context.Background()
	job := submitProcessingJob(t, env)
	srv := newOutputServer(t, nil)

	pred := &replicate.Prediction{
		ID:     job.PredictionID,
		Status: "succeeded",
		Output: replicate.OutputList{srv.URL + "/out-0.jpg"},
	}
	first, err := env.orch.Reconcile(ctx, job, pred)
	if err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}

	// Duplicate webhook delivery for a finished job.
	second, err := env.orch.Reconcile(ctx, first, pred)
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if second.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %q, want succeeded", second.Status)
	}

	render, err := env.renders.GetByJobID(ctx, job.ID)
	if err != nil {
		t.Fatalf("render lookup: %v", err)
	}
	variants, err := env.renders.ListVariants(ctx, render.ID)
	if err != nil {
		t.Fatalf("variant lookup: %v", err)
	}
	if len(variants) != 1 {
		t.Fatalf("variant count = %d, want 1 (no duplicate ingest)", len(variants))
	}
}

func TestReconcileWebhookResolvesJobByPrediction(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 10)
	ctx := context.Background()
	job := submitProcessingJob(t, env)

	pred := &replicate.Prediction{ID: job.PredictionID, Status: "failed", Error: "boom"}
	got, err := env.orch.ReconcileWebhook(ctx, pred)
	if err != nil {
		t.Fatalf("ReconcileWebhook() error = %v", err)
	}
	if got.ID != job.ID || got.Status != domain.JobStatusFailed {
		t.Fatalf("job = %q status = %q", got.ID, got.Status)
	}

	_, err = env.orch.ReconcileWebhook(ctx, &replicate.Prediction{ID: "pred-unknown", Status: "succeeded"})
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("unknown prediction kind = %v, want not_found", domain.KindOf(err))
	}
}

func TestReconcileStaleSweep(t *testing.T) {
	provider := &fakeProvider{
		getFn: func(id string) (*replicate.Prediction, error) {
			return &replicate.Prediction{ID: id, Status: "canceled"}, nil
		},
	}
	env := newTestEnv(t, provider, 10)
	ctx := context.Background()
	job := submitProcessingJob(t, env)

	// Age the job so the sweep picks it up.
	env.jobs.mu.Lock()
	env.jobs.jobs[job.ID].CreatedAt = time.Now().Add(-time.Hour)
	env.jobs.mu.Unlock()

	if err := env.orch.ReconcileStale(ctx, 10); err != nil {
		t.Fatalf("ReconcileStale() error = %v", err)
	}
	got, err := env.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.JobStatusCanceled {
		t.Fatalf("status = %q, want canceled", got.Status)
	}
	if provider.getCalls != 1 {
		t.Fatalf("provider polls = %d, want 1", provider.getCalls)
	}
}
