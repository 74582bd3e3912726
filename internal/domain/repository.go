package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for generation jobs.
type JobRepository interface {
	// Create inserts the job. It returns a KindTooManyInflight error when the
	// owner already has an in-flight job, and ErrDuplicateOperation when the
	// (owner, idempotency key) pair already exists; both are enforced by
	// storage-level uniqueness, not read-then-write.
	Create(ctx context.Context, job *GenerationJob) error
	GetByID(ctx context.Context, jobID string) (*GenerationJob, error)
	GetByIdempotencyKey(ctx context.Context, ownerID, key string) (*GenerationJob, error)
	GetByPredictionID(ctx context.Context, predictionID string) (*GenerationJob, error)
	FindInFlight(ctx context.Context, ownerID string) (*GenerationJob, error)
	// TransitionStatus performs a compare-and-set from the expected current
	// status. It reports false when another caller advanced the job first.
	TransitionStatus(ctx context.Context, jobID string, from, to JobStatus, errMsg string, completedAt *time.Time) (bool, error)
	// ListStaleInFlight returns in-flight jobs created before the cutoff, for
	// the background reconciliation loop.
	ListStaleInFlight(ctx context.Context, cutoff time.Time, limit int) ([]GenerationJob, error)
}

// RenderRepository defines persistence for renders and their variants.
type RenderRepository interface {
	// GetOrCreate resolves the render for render.JobID, inserting it when
	// absent. A second call for the same job returns the existing row.
	GetOrCreate(ctx context.Context, render *Render) (*Render, error)
	GetByID(ctx context.Context, renderID string) (*Render, error)
	GetByJobID(ctx context.Context, jobID string) (*Render, error)
	// CreateVariant reports created=false when (renderID, idx) already exists.
	CreateVariant(ctx context.Context, variant *RenderVariant) (bool, error)
	VariantExists(ctx context.Context, renderID string, idx int) (bool, error)
	ListVariants(ctx context.Context, renderID string) ([]RenderVariant, error)
}

// UsageRepository defines persistence for the usage ledger.
type UsageRepository interface {
	// InsertDebit reports inserted=false when a generation_debit already
	// exists for (entry.OwnerID, entry.JobID).
	InsertDebit(ctx context.Context, entry *UsageLedgerEntry) (bool, error)
	InsertCredit(ctx context.Context, entry *UsageLedgerEntry) error
	// SumPeriod totals debits and credits for the owner in [from, to).
	SumPeriod(ctx context.Context, ownerID string, from, to time.Time) (debits int, credits int, err error)
}
