package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"condo-ledger/internal/eventing"
	ledger "condo-ledger/internal/ledger/domain"
	"condo-ledger/internal/ledger/infrastructure/memory"
	"condo-ledger/internal/locking"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubGuard struct {
	closedBefore time.Time
	err          error
}

func (g stubGuard) IsClosedAt(_ context.Context, _ string, at time.Time) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	return at.Before(g.closedBefore), nil
}

func newTestService(t *testing.T, guard PeriodGuard, clock Clock) (*Service, *memory.LedgerRepository) {
	t.Helper()
	repo := memory.NewLedgerRepository()
	svc, err := NewService(repo, guard, locking.NewRegistry(time.Second), eventing.NewInMemoryBus(), clock)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo
}

func TestRecordPaymentStampsBalances(t *testing.T) {
	now := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, nil, fixedClock{now: now})
	ctx := context.Background()

	first, err := svc.RecordPayment(ctx, Payment{
		ID: "pay-1", BuildingID: "b1", ApartmentID: "a1", AmountCents: 5000, Date: now,
	})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if first.BalanceBefore != 0 || first.BalanceAfter != 5000 {
		t.Fatalf("balances = %d/%d, want 0/5000", first.BalanceBefore, first.BalanceAfter)
	}

	second, err := svc.RecordPayment(ctx, Payment{
		ID: "pay-2", BuildingID: "b1", ApartmentID: "a1", AmountCents: 2500, Date: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if second.BalanceBefore != 5000 || second.BalanceAfter != 7500 {
		t.Fatalf("balances = %d/%d, want 5000/7500", second.BalanceBefore, second.BalanceAfter)
	}
}

func TestRecordPaymentIdempotentPerID(t *testing.T) {
	now := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)
	svc, repo := newTestService(t, nil, fixedClock{now: now})
	ctx := context.Background()

	payment := Payment{ID: "pay-1", BuildingID: "b1", ApartmentID: "a1", AmountCents: 5000, Date: now}
	if _, err := svc.RecordPayment(ctx, payment); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	again, err := svc.RecordPayment(ctx, payment)
	if err != nil {
		t.Fatalf("RecordPayment replay: %v", err)
	}
	if again.AmountCents != 5000 {
		t.Fatalf("replayed amount = %d, want 5000", again.AmountCents)
	}

	entries, err := repo.EntriesFor(ctx, "a1", nil)
	if err != nil {
		t.Fatalf("EntriesFor: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
}

func TestRecordPaymentRejectsNonPositive(t *testing.T) {
	svc, _ := newTestService(t, nil, fixedClock{now: time.Now()})
	_, err := svc.RecordPayment(context.Background(), Payment{
		BuildingID: "b1", ApartmentID: "a1", AmountCents: 0,
	})
	if !errors.Is(err, ErrNonPositiveAmount) {
		t.Fatalf("err = %v, want ErrNonPositiveAmount", err)
	}
}

func TestDistributeChargesAtMostOnce(t *testing.T) {
	now := time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, nil, fixedClock{now: now})
	ctx := context.Background()

	shares := map[string]int64{"a1": 6000, "a2": 4000, "a3": 0}
	entries, already, err := svc.DistributeCharges(ctx, "b1", ledger.SourceExpense, "exp-1", now, shares)
	if err != nil {
		t.Fatalf("DistributeCharges: %v", err)
	}
	if already {
		t.Fatal("first distribution reported as already distributed")
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (zero share skipped)", len(entries))
	}
	for _, entry := range entries {
		if entry.AmountCents >= 0 {
			t.Fatalf("charge amount %d for %s, want negative", entry.AmountCents, entry.ApartmentID)
		}
	}

	replay, already, err := svc.DistributeCharges(ctx, "b1", ledger.SourceExpense, "exp-1", now, shares)
	if err != nil {
		t.Fatalf("DistributeCharges replay: %v", err)
	}
	if !already {
		t.Fatal("replay did not report already distributed")
	}
	if len(replay) != 2 {
		t.Fatalf("replay entries = %d, want 2", len(replay))
	}
}

func TestDistributeChargesRejectsClosedMonth(t *testing.T) {
	closedBefore := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, stubGuard{closedBefore: closedBefore}, fixedClock{now: closedBefore})

	_, _, err := svc.DistributeCharges(context.Background(), "b1", ledger.SourceExpense, "exp-1",
		time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC), map[string]int64{"a1": 1000})
	if !errors.Is(err, ledger.ErrMonthClosed) {
		t.Fatalf("err = %v, want ErrMonthClosed", err)
	}
}

func TestAppendAcceptsEarlierDatedEntry(t *testing.T) {
	now := time.Date(2025, 7, 20, 12, 0, 0, 0, time.UTC)
	svc, repo := newTestService(t, nil, fixedClock{now: now})
	ctx := context.Background()

	if _, err := svc.RecordPayment(ctx, Payment{
		ID: "pay-1", BuildingID: "b1", ApartmentID: "a1", AmountCents: 1000, Date: now,
	}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	// An expense keeps its document date even when later entries exist.
	// The balance chain runs in append order, so the earlier date is fine.
	docDate := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	if _, _, err := svc.DistributeCharges(ctx, "b1", ledger.SourceExpense, "exp-1",
		docDate, map[string]int64{"a1": 4000}); err != nil {
		t.Fatalf("DistributeCharges: %v", err)
	}

	last, err := repo.LastFor(ctx, "a1")
	if err != nil {
		t.Fatalf("LastFor: %v", err)
	}
	if last.BalanceBefore != 1000 || last.BalanceAfter != -3000 {
		t.Fatalf("balance stamps = %d/%d, want 1000/-3000", last.BalanceBefore, last.BalanceAfter)
	}

	calc, err := NewCalculator(repo)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	if err := calc.VerifyApartment(ctx, "a1"); err != nil {
		t.Fatalf("VerifyApartment: %v", err)
	}
}

func TestReverseNetsSourceToZero(t *testing.T) {
	now := time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)
	clock := fixedClock{now: now.Add(48 * time.Hour)}
	svc, repo := newTestService(t, nil, clock)
	ctx := context.Background()

	shares := map[string]int64{"a1": 6000, "a2": 4000}
	if _, _, err := svc.DistributeCharges(ctx, "b1", ledger.SourceExpense, "exp-1", now, shares); err != nil {
		t.Fatalf("DistributeCharges: %v", err)
	}

	reversed, err := svc.Reverse(ctx, "b1", ledger.SourceExpense, "exp-1")
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if len(reversed) != 2 {
		t.Fatalf("reversal entries = %d, want 2", len(reversed))
	}

	entries, err := repo.EntriesBySource(ctx, "b1", ledger.SourceExpense, "exp-1")
	if err != nil {
		t.Fatalf("EntriesBySource: %v", err)
	}
	var net int64
	for _, entry := range entries {
		net += entry.AmountCents
	}
	if net != 0 {
		t.Fatalf("net after reversal = %d, want 0", net)
	}

	// Reversal is idempotent: a second call appends nothing.
	if _, err := svc.Reverse(ctx, "b1", ledger.SourceExpense, "exp-1"); err != nil {
		t.Fatalf("Reverse replay: %v", err)
	}
	after, _ := repo.EntriesBySource(ctx, "b1", ledger.SourceExpense, "exp-1")
	if len(after) != len(entries) {
		t.Fatalf("entries after replay = %d, want %d", len(after), len(entries))
	}
}

func TestReverseUnknownSourceIsNoop(t *testing.T) {
	svc, _ := newTestService(t, nil, fixedClock{now: time.Now()})
	entries, err := svc.Reverse(context.Background(), "b1", ledger.SourceExpense, "missing")
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(entries))
	}
}
