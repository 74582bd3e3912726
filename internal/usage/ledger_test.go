package usage

import (
	"context"
	"testing"
	"time"

	"server/internal/domain"
)

type fakeUsageRepo struct {
	debits  map[string]*domain.UsageLedgerEntry
	credits []*domain.UsageLedgerEntry
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{debits: make(map[string]*domain.UsageLedgerEntry)}
}

func (f *fakeUsageRepo) InsertDebit(_ context.Context, entry *domain.UsageLedgerEntry) (bool, error) {
	key := entry.OwnerID + "/" + entry.JobID
	if _, ok := f.debits[key]; ok {
		return false, nil
	}
	f.debits[key] = entry
	return true, nil
}

func (f *fakeUsageRepo) InsertCredit(_ context.Context, entry *domain.UsageLedgerEntry) error {
	f.credits = append(f.credits, entry)
	return nil
}

func (f *fakeUsageRepo) SumPeriod(_ context.Context, ownerID string, _, _ time.Time) (int, int, error) {
	debits := 0
	for _, e := range f.debits {
		if e.OwnerID == ownerID {
			debits += e.Amount
		}
	}
	credits := 0
	for _, e := range f.credits {
		if e.OwnerID == ownerID {
			credits += e.Amount
		}
	}
	return debits, credits, nil
}

func TestDebitGenerationIdempotent(t *testing.T) {
	repo := newFakeUsageRepo()
	ledger := NewLedger(repo, time.UTC)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := ledger.DebitGeneration(ctx, "owner-1", "job-1", "idem-1"); err != nil {
			t.Fatalf("DebitGeneration() attempt %d error = %v", i, err)
		}
	}
	if len(repo.debits) != 1 {
		t.Fatalf("debit count = %d, want 1", len(repo.debits))
	}
}

func TestRemaining(t *testing.T) {
	repo := newFakeUsageRepo()
	ledger := NewLedger(repo, time.UTC)
	ctx := context.Background()

	for _, job := range []string{"job-1", "job-2", "job-3"} {
		if err := ledger.DebitGeneration(ctx, "owner-1", job, ""); err != nil {
			t.Fatalf("DebitGeneration() error = %v", err)
		}
	}
	if err := ledger.Credit(ctx, "owner-1", 1, "goodwill refund", "job-2"); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}

	got, err := ledger.Remaining(ctx, "owner-1", 10)
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if got != 8 {
		t.Fatalf("Remaining() = %d, want 8 (10 - 3 debits + 1 credit)", got)
	}
}

func TestRemainingClampsAtZero(t *testing.T) {
	repo := newFakeUsageRepo()
	ledger := NewLedger(repo, time.UTC)
	ctx := context.Background()

	for _, job := range []string{"job-1", "job-2"} {
		if err := ledger.DebitGeneration(ctx, "owner-1", job, ""); err != nil {
			t.Fatalf("DebitGeneration() error = %v", err)
		}
	}
	got, err := ledger.Remaining(ctx, "owner-1", 1)
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if got != 0 {
		t.Fatalf("Remaining() = %d, want 0", got)
	}
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	ledger := NewLedger(newFakeUsageRepo(), time.UTC)
	for _, amount := range []int{0, -2} {
		err := ledger.Credit(context.Background(), "owner-1", amount, "reason", "")
		if !domain.IsKind(err, domain.KindValidation) {
			t.Fatalf("Credit(amount=%d) error kind = %v, want validation", amount, domain.KindOf(err))
		}
	}
}

func TestCurrentPeriodBoundaries(t *testing.T) {
	ledger := NewLedger(newFakeUsageRepo(), time.UTC)
	ledger.now = func() time.Time {
		return time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	}
	from, to := ledger.currentPeriod()
	if !from.Equal(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("from = %v", from)
	}
	if !to.Equal(time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("to = %v", to)
	}
}

func TestStaticPlans(t *testing.T) {
	plans := StaticPlans{Limits: map[string]int{"pro": 200}, DefaultLimit: 10}
	if got := plans.MonthlyGenerations("pro"); got != 200 {
		t.Fatalf("pro limit = %d, want 200", got)
	}
	if got := plans.MonthlyGenerations("unknown"); got != 10 {
		t.Fatalf("unknown plan limit = %d, want default 10", got)
	}
}
