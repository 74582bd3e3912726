package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

const (
	inflightConstraint = "generation_jobs_owner_inflight_idx"
	idemKeyConstraint  = "generation_jobs_owner_idem_key"
)

// JobRepositoryPG implements domain.JobRepository over PostgreSQL. The
// single-in-flight and idempotency-key invariants are enforced by unique
// indexes, so concurrent submissions cannot both pass a pre-check.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const jobColumns = `id, owner_id, mode, room_type, style, prompt, aspect_ratio, quality,
variants_requested, input1_path, input2_path, prediction_id, status, error_message,
idempotency_key, created_at, completed_at`

// Create inserts a new job record, translating uniqueness violations into
// the domain errors the orchestrator branches on.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	query := `
INSERT INTO generation_jobs (id, owner_id, mode, room_type, style, prompt, aspect_ratio, quality,
variants_requested, input1_path, input2_path, prediction_id, status, error_message, idempotency_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15, ''), $16);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.OwnerID,
		job.Mode,
		job.RoomType,
		job.Style,
		job.Prompt,
		job.AspectRatio,
		job.Quality,
		job.VariantsRequested,
		job.Input1Path,
		job.Input2Path,
		job.PredictionID,
		job.Status,
		job.ErrorMessage,
		job.IdempotencyKey,
		job.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case inflightConstraint:
			return domain.NewTooManyInflight()
		case idemKeyConstraint:
			return domain.ErrDuplicateOperation
		}
	}
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1;`, jobID)
	return scanJob(row)
}

// GetByIdempotencyKey fetches the job previously created with the key.
func (r *JobRepositoryPG) GetByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.GenerationJob, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE owner_id = $1 AND idempotency_key = $2;`,
		ownerID, key)
	return scanJob(row)
}

// GetByPredictionID fetches the job linked to an external prediction.
func (r *JobRepositoryPG) GetByPredictionID(ctx context.Context, predictionID string) (*domain.GenerationJob, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE prediction_id = $1;`,
		predictionID)
	return scanJob(row)
}

// FindInFlight returns the owner's active job, if any.
func (r *JobRepositoryPG) FindInFlight(ctx context.Context, ownerID string) (*domain.GenerationJob, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs
WHERE owner_id = $1 AND status IN ('starting', 'processing')
LIMIT 1;`,
		ownerID)
	job, err := scanJob(row)
	if domain.IsKind(err, domain.KindNotFound) {
		return nil, nil
	}
	return job, err
}

// TransitionStatus performs the compare-and-set on (job, status).
func (r *JobRepositoryPG) TransitionStatus(ctx context.Context, jobID string, from, to domain.JobStatus, errMsg string, completedAt *time.Time) (bool, error) {
	query := `
UPDATE generation_jobs
SET status = $3,
    error_message = CASE WHEN $4 = '' THEN error_message ELSE $4 END,
    completed_at = COALESCE($5, completed_at)
WHERE id = $1 AND status = $2;
`
	tag, err := r.pool.Exec(ctx, query, jobID, from, to, errMsg, completedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListStaleInFlight returns in-flight jobs created before the cutoff.
func (r *JobRepositoryPG) ListStaleInFlight(ctx context.Context, cutoff time.Time, limit int) ([]domain.GenerationJob, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs
WHERE status IN ('starting', 'processing') AND created_at < $1
ORDER BY created_at
LIMIT $2;`,
		cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	var idemKey *string
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Mode,
		&job.RoomType,
		&job.Style,
		&job.Prompt,
		&job.AspectRatio,
		&job.Quality,
		&job.VariantsRequested,
		&job.Input1Path,
		&job.Input2Path,
		&job.PredictionID,
		&job.Status,
		&job.ErrorMessage,
		&idemKey,
		&job.CreatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFound("job not found")
		}
		return nil, err
	}
	if idemKey != nil {
		job.IdempotencyKey = *idemKey
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
