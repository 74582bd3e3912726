package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// UsageRepositoryPG implements domain.UsageRepository over PostgreSQL. The
// debit-once-per-job invariant is a partial unique index on
// (owner_id, job_id) WHERE kind = 'generation_debit'.
type UsageRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUsageRepository creates a usage repository backed by PostgreSQL.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepositoryPG {
	return &UsageRepositoryPG{pool: pool}
}

// InsertDebit appends a generation debit unless one exists for the job.
func (r *UsageRepositoryPG) InsertDebit(ctx context.Context, entry *domain.UsageLedgerEntry) (bool, error) {
	query := `
INSERT INTO usage_ledger (id, owner_id, kind, amount, job_id, reason, idempotency_key, created_at)
VALUES ($1, $2, 'generation_debit', $3, $4, '', NULLIF($5, ''), now())
ON CONFLICT (owner_id, job_id) WHERE kind = 'generation_debit' DO NOTHING;
`
	tag, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.OwnerID,
		entry.Amount,
		entry.JobID,
		entry.IdempotencyKey,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InsertCredit appends a credit adjustment.
func (r *UsageRepositoryPG) InsertCredit(ctx context.Context, entry *domain.UsageLedgerEntry) error {
	query := `
INSERT INTO usage_ledger (id, owner_id, kind, amount, job_id, reason, created_at)
VALUES ($1, $2, 'credit_adjustment', $3, NULLIF($4, ''), $5, now());
`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.OwnerID,
		entry.Amount,
		entry.JobID,
		entry.Reason,
	)
	return err
}

// SumPeriod totals debits and credits for the owner in [from, to).
func (r *UsageRepositoryPG) SumPeriod(ctx context.Context, ownerID string, from, to time.Time) (int, int, error) {
	query := `
SELECT
    COALESCE(SUM(amount) FILTER (WHERE kind = 'generation_debit'), 0),
    COALESCE(SUM(amount) FILTER (WHERE kind = 'credit_adjustment'), 0)
FROM usage_ledger
WHERE owner_id = $1 AND created_at >= $2 AND created_at < $3;
`
	var debits, credits int
	if err := r.pool.QueryRow(ctx, query, ownerID, from, to).Scan(&debits, &credits); err != nil {
		return 0, 0, err
	}
	return debits, credits, nil
}

var _ domain.UsageRepository = (*UsageRepositoryPG)(nil)
