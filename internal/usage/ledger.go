// Package usage meters generation consumption against monthly plan quotas.
// The ledger is append-only; debits are idempotent per (owner, job).
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
)

// Ledger records debits and credits and answers quota questions. The billing
// period is the calendar month in the configured location.
type Ledger struct {
	repo domain.UsageRepository
	loc  *time.Location
	now  func() time.Time
}

// NewLedger creates a ledger over the given repository. loc defaults to UTC.
func NewLedger(repo domain.UsageRepository, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{repo: repo, loc: loc, now: time.Now}
}

// DebitGeneration appends one generation debit for the job. If a debit for
// (ownerID, jobID) already exists the call is a no-op, which is what makes
// orchestrator-level retries safe.
func (l *Ledger) DebitGeneration(ctx context.Context, ownerID, jobID, idempotencyKey string) error {
	entry := &domain.UsageLedgerEntry{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Kind:           domain.LedgerKindGenerationDebit,
		Amount:         1,
		JobID:          jobID,
		IdempotencyKey: idempotencyKey,
	}
	if _, err := l.repo.InsertDebit(ctx, entry); err != nil {
		return fmt.Errorf("usage: insert debit: %w", err)
	}
	return nil
}

// Credit appends a credit adjustment, e.g. a goodwill refund for a failed job.
func (l *Ledger) Credit(ctx context.Context, ownerID string, amount int, reason, relatedJobID string) error {
	if amount <= 0 {
		return domain.NewValidationError("credit amount must be positive")
	}
	entry := &domain.UsageLedgerEntry{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Kind:    domain.LedgerKindCreditAdjustment,
		Amount:  amount,
		JobID:   relatedJobID,
		Reason:  reason,
	}
	if err := l.repo.InsertCredit(ctx, entry); err != nil {
		return fmt.Errorf("usage: insert credit: %w", err)
	}
	return nil
}

// Remaining computes monthlyLimit minus this period's debits plus credits,
// clamped at zero.
func (l *Ledger) Remaining(ctx context.Context, ownerID string, monthlyLimit int) (int, error) {
	from, to := l.currentPeriod()
	debits, credits, err := l.repo.SumPeriod(ctx, ownerID, from, to)
	if err != nil {
		return 0, fmt.Errorf("usage: sum period: %w", err)
	}
	remaining := monthlyLimit - debits + credits
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *Ledger) currentPeriod() (time.Time, time.Time) {
	now := l.now().In(l.loc)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, l.loc)
	return from, from.AddDate(0, 1, 0)
}
