package application

import (
	"context"
	"errors"
	"testing"
	"time"

	ledger "condo-ledger/internal/ledger/domain"
	"condo-ledger/internal/ledger/infrastructure/memory"
)

func seedEntries(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	if _, _, err := svc.DistributeCharges(ctx, "b1", ledger.SourceExpense, "exp-1",
		base.AddDate(0, 0, 4), map[string]int64{"a1": 6000, "a2": 4000}); err != nil {
		t.Fatalf("DistributeCharges: %v", err)
	}
	if _, err := svc.RecordPayment(ctx, Payment{
		ID: "pay-1", BuildingID: "b1", ApartmentID: "a1", AmountCents: 5000,
		Date: base.AddDate(0, 0, 9),
	}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
}

func TestBalanceAsOfReplaysStrictlyBefore(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	svc, repo := newTestService(t, nil, fixedClock{now: now})
	seedEntries(t, svc)

	calc, err := NewCalculator(repo)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	ctx := context.Background()

	cases := []struct {
		asOf time.Time
		want int64
	}{
		{time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2025, 7, 6, 0, 0, 0, 0, time.UTC), -6000},
		{time.Date(2025, 7, 11, 0, 0, 0, 0, time.UTC), -1000},
	}
	for _, tc := range cases {
		got, err := calc.BalanceAsOf(ctx, "a1", tc.asOf)
		if err != nil {
			t.Fatalf("BalanceAsOf(%s): %v", tc.asOf.Format("2006-01-02"), err)
		}
		if got != tc.want {
			t.Fatalf("BalanceAsOf(%s) = %d, want %d", tc.asOf.Format("2006-01-02"), got, tc.want)
		}
	}

	current, err := calc.CurrentBalance(ctx, "a1")
	if err != nil {
		t.Fatalf("CurrentBalance: %v", err)
	}
	if current != -1000 {
		t.Fatalf("CurrentBalance = %d, want -1000", current)
	}
}

func TestVerifyApartmentDetectsBrokenChain(t *testing.T) {
	repo := memory.NewLedgerRepository()
	calc, err := NewCalculator(repo)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	ctx := context.Background()
	date := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	if err := repo.Append(ctx, &ledger.Entry{
		ID: "e1", BuildingID: "b1", ApartmentID: "a1", Kind: ledger.KindPayment,
		AmountCents: 1000, Date: date, BalanceBefore: 0, BalanceAfter: 1000,
		SourceType: ledger.SourcePayment, SourceID: "pay-1",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Stamp disagrees with the replayed running balance.
	if err := repo.Append(ctx, &ledger.Entry{
		ID: "e2", BuildingID: "b1", ApartmentID: "a1", Kind: ledger.KindPayment,
		AmountCents: 500, Date: date.AddDate(0, 0, 1), BalanceBefore: 900, BalanceAfter: 1400,
		SourceType: ledger.SourcePayment, SourceID: "pay-2",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	err = calc.VerifyApartment(ctx, "a1")
	if !errors.Is(err, ledger.ErrDataIntegrity) {
		t.Fatalf("err = %v, want ErrDataIntegrity", err)
	}
}

func TestVerifyApartmentAcceptsConsistentChain(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	svc, repo := newTestService(t, nil, fixedClock{now: now})
	seedEntries(t, svc)

	calc, err := NewCalculator(repo)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	for _, apartmentID := range []string{"a1", "a2"} {
		if err := calc.VerifyApartment(context.Background(), apartmentID); err != nil {
			t.Fatalf("VerifyApartment(%s): %v", apartmentID, err)
		}
	}
}

func TestCachedBalancesInvalidate(t *testing.T) {
	repo := memory.NewLedgerRepository()
	calc, err := NewCalculator(repo)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	cached, err := NewCachedBalances(calc, time.Minute)
	if err != nil {
		t.Fatalf("NewCachedBalances: %v", err)
	}
	ctx := context.Background()
	date := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	if err := repo.Append(ctx, &ledger.Entry{
		ID: "e1", BuildingID: "b1", ApartmentID: "a1", Kind: ledger.KindPayment,
		AmountCents: 1000, Date: date, BalanceAfter: 1000,
		SourceType: ledger.SourcePayment, SourceID: "pay-1",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := cached.CurrentBalance(ctx, "a1")
	if err != nil {
		t.Fatalf("CurrentBalance: %v", err)
	}
	if got != 1000 {
		t.Fatalf("balance = %d, want 1000", got)
	}

	if err := repo.Append(ctx, &ledger.Entry{
		ID: "e2", BuildingID: "b1", ApartmentID: "a1", Kind: ledger.KindPayment,
		AmountCents: 500, Date: date.AddDate(0, 0, 1), BalanceBefore: 1000, BalanceAfter: 1500,
		SourceType: ledger.SourcePayment, SourceID: "pay-2",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Stale until invalidated.
	got, _ = cached.CurrentBalance(ctx, "a1")
	if got != 1000 {
		t.Fatalf("cached balance = %d, want stale 1000", got)
	}
	cached.Invalidate("a1")
	got, _ = cached.CurrentBalance(ctx, "a1")
	if got != 1500 {
		t.Fatalf("balance after invalidate = %d, want 1500", got)
	}
}
