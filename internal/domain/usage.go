package domain

import "time"

// LedgerKind enumerates usage ledger entry kinds.
type LedgerKind string

const (
	LedgerKindGenerationDebit  LedgerKind = "generation_debit"
	LedgerKindCreditAdjustment LedgerKind = "credit_adjustment"
)

// UsageLedgerEntry is one append-only accounting row against an owner's
// monthly generation quota. At most one generation_debit may exist per
// (OwnerID, JobID), no matter how often a submission is retried.
type UsageLedgerEntry struct {
	ID             string
	OwnerID        string
	Kind           LedgerKind
	Amount         int
	JobID          string
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}
