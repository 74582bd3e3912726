// Package generation coordinates the full lifecycle of an image generation
// request: validation, moderation, quota, provider submission, usage debits,
// asynchronous reconciliation and asset ingestion.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/moderation"
	"server/internal/promptengine"
	"server/internal/providers/replicate"
	"server/internal/storage"
	"server/internal/usage"
)

// ProviderClient is the provider surface the orchestrator depends on.
type ProviderClient interface {
	CreatePrediction(ctx context.Context, inputs map[string]any, webhookURL, idempotencyKey string) (*replicate.Prediction, error)
	GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
	CancelPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
}

// Locker is an optional advisory lock suppressing concurrent reconciles of
// the same job. Correctness never depends on it; the status compare-and-set
// in the job repository is the authoritative guard.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

const (
	// signedInputTTL bounds how long the provider can read input images.
	signedInputTTL = 5 * time.Minute
	// defaultPollGrace is how old a job must be before a status read
	// triggers an inline provider poll.
	defaultPollGrace = 5 * time.Second
	// reconcileLockTTL caps how long a crashed reconciler can hold the
	// advisory lock.
	reconcileLockTTL = 30 * time.Second
	// providerCancelTimeout bounds the best-effort upstream cancel.
	providerCancelTimeout = 3 * time.Second
)

// Options wires an Orchestrator.
type Options struct {
	Jobs     domain.JobRepository
	Renders  domain.RenderRepository
	Ledger   *usage.Ledger
	Plans    usage.PlanResolver
	Provider ProviderClient
	Store    storage.ObjectStore
	Locker   Locker

	PromptConfig promptengine.Config
	// PublicBaseURL is the externally reachable base used to build the
	// provider webhook callback URL.
	PublicBaseURL string
	MaxVariants   int
	PollGrace     time.Duration
	// AssetClient downloads provider outputs; it must carry its own timeout.
	AssetClient *http.Client
	Logger      infra.Logger
}

// Orchestrator drives the generation job state machine.
type Orchestrator struct {
	jobs     domain.JobRepository
	renders  domain.RenderRepository
	ledger   *usage.Ledger
	plans    usage.PlanResolver
	provider ProviderClient
	store    storage.ObjectStore
	locker   Locker

	promptCfg   promptengine.Config
	webhookURL  string
	maxVariants int
	pollGrace   time.Duration
	assetClient *http.Client
	logger      infra.Logger
	now         func() time.Time
}

// NewOrchestrator constructs the service with explicit dependencies; nothing
// is lazily created at first use.
func NewOrchestrator(opts Options) *Orchestrator {
	maxVariants := opts.MaxVariants
	if maxVariants <= 0 || maxVariants > domain.MaxVariantsPerJob {
		maxVariants = domain.MaxVariantsPerJob
	}
	pollGrace := opts.PollGrace
	if pollGrace <= 0 {
		pollGrace = defaultPollGrace
	}
	assetClient := opts.AssetClient
	if assetClient == nil {
		assetClient = &http.Client{Timeout: assetDownloadTimeout}
	}
	promptCfg := opts.PromptConfig
	if promptCfg.MaxChars <= 0 {
		promptCfg = promptengine.DefaultConfig()
	}
	return &Orchestrator{
		jobs:        opts.Jobs,
		renders:     opts.Renders,
		ledger:      opts.Ledger,
		plans:       opts.Plans,
		provider:    opts.Provider,
		store:       opts.Store,
		locker:      opts.Locker,
		promptCfg:   promptCfg,
		webhookURL:  replicate.BuildWebhookURL(opts.PublicBaseURL),
		maxVariants: maxVariants,
		pollGrace:   pollGrace,
		assetClient: assetClient,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// SubmitRequest is one generation submission at the API boundary.
type SubmitRequest struct {
	OwnerID        string
	PlanID         string
	Mode           domain.Mode
	RoomType       string
	Style          string
	UserPrompt     string
	AspectRatio    string
	Quality        string
	Variants       int
	Input1Path     string
	Input2Path     string
	IdempotencyKey string
}

// Submit validates, moderates and quota-checks the request, submits exactly
// one provider prediction, persists the job and debits usage once.
//
// Ordering is deliberate: moderation and quota run before any provider call
// so rejected requests cost nothing, and the debit runs after the provider
// accepted so a provider-side rejection never charges the user.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*domain.GenerationJob, error) {
	if req.OwnerID == "" {
		return nil, domain.NewValidationError("owner is required")
	}

	// Idempotency-key replay short-circuits completely: no provider call,
	// no debit.
	if req.IdempotencyKey != "" {
		if existing, err := o.jobs.GetByIdempotencyKey(ctx, req.OwnerID, req.IdempotencyKey); err == nil && existing != nil {
			return existing, nil
		} else if err != nil && !domain.IsKind(err, domain.KindNotFound) {
			return nil, err
		}
	}

	if inflight, err := o.jobs.FindInFlight(ctx, req.OwnerID); err != nil && !domain.IsKind(err, domain.KindNotFound) {
		return nil, err
	} else if inflight != nil {
		return nil, domain.NewTooManyInflight()
	}

	if err := o.validate(&req); err != nil {
		return nil, err
	}
	if err := moderation.ModerateImageInputs(req.Mode, req.Input1Path != "", req.Input2Path != ""); err != nil {
		return nil, err
	}
	if decision := moderation.ModerateText(req.UserPrompt); !decision.Allowed {
		return nil, domain.NewValidationError(decision.Reason)
	}

	composed, err := promptengine.Compose(promptengine.Input{
		Mode:       req.Mode,
		RoomType:   req.RoomType,
		Style:      req.Style,
		UserPrompt: req.UserPrompt,
	}, o.promptCfg)
	if err != nil {
		return nil, err
	}

	limit := o.plans.MonthlyGenerations(req.PlanID)
	remaining, err := o.ledger.Remaining(ctx, req.OwnerID, limit)
	if err != nil {
		return nil, err
	}
	if remaining <= 0 {
		return nil, domain.NewLimitExceeded()
	}

	job := &domain.GenerationJob{
		ID:                uuid.NewString(),
		OwnerID:           req.OwnerID,
		Mode:              req.Mode,
		RoomType:          req.RoomType,
		Style:             req.Style,
		Prompt:            composed.Prompt,
		AspectRatio:       req.AspectRatio,
		Quality:           req.Quality,
		VariantsRequested: req.Variants,
		Input1Path:        req.Input1Path,
		Input2Path:        req.Input2Path,
		Status:            domain.JobStatusStarting,
		IdempotencyKey:    req.IdempotencyKey,
		CreatedAt:         o.now(),
	}

	signed, err := o.signInputs(job)
	if err != nil {
		return nil, err
	}

	inputs := replicate.ToProviderInputs(job, signed, o.maxVariants)
	pred, err := o.provider.CreatePrediction(ctx, inputs, o.webhookURL, req.IdempotencyKey)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, domain.NewProviderError("provider rejected the generation request", false, err)
	}
	job.PredictionID = pred.ID

	if err := o.jobs.Create(ctx, job); err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateOperation):
			// A concurrent retry with the same idempotency key won the
			// insert. The provider deduplicated the prediction via the
			// Idempotency-Key header, so nothing upstream needs canceling.
			return o.jobs.GetByIdempotencyKey(ctx, req.OwnerID, req.IdempotencyKey)
		case domain.IsKind(err, domain.KindTooManyInflight):
			// A concurrent submission slipped past the pre-check; ours lost
			// the uniqueness race. Cancel the orphaned prediction.
			o.cancelUpstream(pred.ID)
			return nil, err
		default:
			return nil, err
		}
	}

	if err := o.ledger.DebitGeneration(ctx, job.OwnerID, job.ID, req.IdempotencyKey); err != nil {
		// The job exists and the provider is running; a missed debit is an
		// accounting gap, not a reason to fail the submission.
		o.logger.Error().Err(err).Str("job_id", job.ID).Str("owner_id", job.OwnerID).Msg("generation: usage debit failed")
	}

	o.logger.Info().
		Str("job_id", job.ID).
		Str("owner_id", job.OwnerID).
		Str("prediction_id", job.PredictionID).
		Str("mode", string(job.Mode)).
		Msg("generation: job submitted")
	return job, nil
}

// Get returns the job for its owner, opportunistically reconciling in-flight
// jobs older than the poll grace period.
func (o *Orchestrator) Get(ctx context.Context, ownerID, jobID string) (*domain.GenerationJob, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, domain.NewNotFound("job not found")
	}
	if job.InFlight() && o.now().Sub(job.CreatedAt) > o.pollGrace {
		reconciled, err := o.Reconcile(ctx, job, nil)
		if err != nil {
			// The read path never fails on a flaky provider or a transient
			// reconcile error; the stored job is the answer and the worker
			// sweep will retry.
			o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("generation: opportunistic reconcile failed")
			return job, nil
		}
		return reconciled, nil
	}
	return job, nil
}

// Cancel transitions an in-flight job to canceled and asks the provider to
// stop the upstream prediction without blocking on the result. The local
// transition is authoritative.
func (o *Orchestrator) Cancel(ctx context.Context, ownerID, jobID string) (*domain.GenerationJob, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, domain.NewNotFound("job not found")
	}
	if !job.InFlight() {
		return nil, domain.NewInvalidState("job is not cancelable in status " + string(job.Status))
	}
	completed := o.now()
	ok, err := o.jobs.TransitionStatus(ctx, job.ID, job.Status, domain.JobStatusCanceled, "", &completed)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race against a reconcile; report the state it landed in.
		current, err := o.jobs.GetByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if current.Status == domain.JobStatusCanceled {
			return current, nil
		}
		return nil, domain.NewInvalidState("job is not cancelable in status " + string(current.Status))
	}
	job.Status = domain.JobStatusCanceled
	job.CompletedAt = &completed
	o.cancelUpstream(job.PredictionID)
	o.logger.Info().Str("job_id", job.ID).Msg("generation: job canceled")
	return job, nil
}

// ReconcileWebhook applies a provider-pushed status to the job owning the
// prediction.
func (o *Orchestrator) ReconcileWebhook(ctx context.Context, pred *replicate.Prediction) (*domain.GenerationJob, error) {
	job, err := o.jobs.GetByPredictionID(ctx, pred.ID)
	if err != nil {
		return nil, err
	}
	return o.Reconcile(ctx, job, pred)
}

// Reconcile drives the job toward the provider's view of the prediction.
// pushed carries webhook-delivered state; when nil the provider is polled.
// Concurrent reconciles are safe: the loser of the status compare-and-set
// observes the already-updated row and becomes a no-op. Asset ingestion runs
// before the job is marked succeeded, so a crash in between leaves the job
// in a retryable non-terminal state.
func (o *Orchestrator) Reconcile(ctx context.Context, job *domain.GenerationJob, pushed *replicate.Prediction) (*domain.GenerationJob, error) {
	if job.Status.Terminal() {
		return job, nil
	}
	if o.locker != nil {
		acquired, err := o.locker.TryLock(ctx, "reconcile:"+job.ID, reconcileLockTTL)
		if err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("generation: advisory lock unavailable")
		} else if !acquired {
			return job, nil
		} else {
			defer func() {
				if err := o.locker.Unlock(context.WithoutCancel(ctx), "reconcile:"+job.ID); err != nil {
					o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("generation: advisory unlock failed")
				}
			}()
		}
	}

	pred := pushed
	if pred == nil {
		var err error
		pred, err = o.provider.GetPrediction(ctx, job.PredictionID)
		if err != nil {
			return nil, domain.NewProviderError("provider status fetch failed", true, err)
		}
	}

	next := replicate.MapStatus(pred.Status)
	if !job.Status.CanTransitionTo(next) {
		// Identity updates and backward transitions (e.g. a late "starting"
		// webhook after polling already saw "processing") are dropped.
		return job, nil
	}

	errMsg := ""
	if next == domain.JobStatusFailed {
		errMsg = pred.Error
		if errMsg == "" {
			errMsg = "generation failed"
		}
	}

	if next == domain.JobStatusSucceeded {
		if _, err := o.ingest(ctx, job, pred.Output); err != nil {
			if domain.IsKind(err, domain.KindNoAssetsProcessed) {
				return o.transition(ctx, job, domain.JobStatusFailed, err.Error())
			}
			// Transient ingestion failure: stay non-terminal so a later
			// reconcile can retry.
			return nil, err
		}
	}

	return o.transition(ctx, job, next, errMsg)
}

// ReconcileStale scans in-flight jobs older than the grace period and
// reconciles each; it backs the worker binary's periodic sweep.
func (o *Orchestrator) ReconcileStale(ctx context.Context, limit int) error {
	jobs, err := o.jobs.ListStaleInFlight(ctx, o.now().Add(-o.pollGrace), limit)
	if err != nil {
		return err
	}
	for i := range jobs {
		job := jobs[i]
		if _, err := o.Reconcile(ctx, &job, nil); err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("generation: stale reconcile failed")
		}
	}
	return nil
}

func (o *Orchestrator) transition(ctx context.Context, job *domain.GenerationJob, next domain.JobStatus, errMsg string) (*domain.GenerationJob, error) {
	var completedAt *time.Time
	if next.Terminal() {
		t := o.now()
		completedAt = &t
	}
	ok, err := o.jobs.TransitionStatus(ctx, job.ID, job.Status, next, errMsg, completedAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent reconcile advanced the job first; surface its result.
		return o.jobs.GetByID(ctx, job.ID)
	}
	job.Status = next
	job.ErrorMessage = errMsg
	job.CompletedAt = completedAt
	o.logger.Info().Str("job_id", job.ID).Str("status", string(next)).Msg("generation: job status updated")
	return job, nil
}

func (o *Orchestrator) validate(req *SubmitRequest) error {
	if !req.Mode.Valid() {
		return domain.NewValidationError("unsupported mode " + string(req.Mode))
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "1:1"
	}
	if _, ok := domain.AllowedAspectRatios[req.AspectRatio]; !ok {
		return domain.NewValidationError("aspect_ratio must be one of 1:1, 4:3, 3:4, 16:9, 9:16")
	}
	switch req.Quality {
	case "":
		req.Quality = domain.QualityAuto
	case domain.QualityAuto, domain.QualityLow, domain.QualityMedium, domain.QualityHigh:
	default:
		return domain.NewValidationError("quality must be one of auto, low, medium, high")
	}
	if req.Variants <= 0 {
		req.Variants = 1
	}
	if req.Variants > domain.MaxVariantsPerJob {
		return domain.NewValidationError(fmt.Sprintf("variants must be between 1 and %d", domain.MaxVariantsPerJob))
	}
	return nil
}

func (o *Orchestrator) signInputs(job *domain.GenerationJob) (replicate.SignedInputs, error) {
	var signed replicate.SignedInputs
	if job.Input1Path != "" {
		url, err := o.store.SignedURL(job.Input1Path, signedInputTTL)
		if err != nil {
			return signed, fmt.Errorf("sign input1: %w", err)
		}
		signed.Input1URL = url
	}
	if job.Input2Path != "" {
		url, err := o.store.SignedURL(job.Input2Path, signedInputTTL)
		if err != nil {
			return signed, fmt.Errorf("sign input2: %w", err)
		}
		signed.Input2URL = url
	}
	return signed, nil
}

// cancelUpstream is best-effort: the local job state is authoritative and a
// hung provider must not block the caller.
func (o *Orchestrator) cancelUpstream(predictionID string) {
	if predictionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), providerCancelTimeout)
	defer cancel()
	if _, err := o.provider.CancelPrediction(ctx, predictionID); err != nil {
		o.logger.Warn().Err(err).Str("prediction_id", predictionID).Msg("generation: upstream cancel failed")
	}
}
