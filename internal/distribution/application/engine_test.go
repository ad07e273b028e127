package application

import (
	"context"
	"errors"
	"testing"
	"time"

	buildings "condo-ledger/internal/buildings/domain"
	buildingsmem "condo-ledger/internal/buildings/infrastructure/memory"
	distribution "condo-ledger/internal/distribution/domain"
	distmem "condo-ledger/internal/distribution/infrastructure/memory"
	"condo-ledger/internal/eventing"
	ledgerapp "condo-ledger/internal/ledger/application"
	ledger "condo-ledger/internal/ledger/domain"
	ledgermem "condo-ledger/internal/ledger/infrastructure/memory"
	"condo-ledger/internal/locking"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type engineFixture struct {
	engine     *Engine
	expenses   *distmem.ExpenseRepository
	ledgerRepo *ledgermem.LedgerRepository
	calc       *ledgerapp.Calculator
}

func newEngineFixture(t *testing.T, now time.Time) *engineFixture {
	t.Helper()
	ctx := context.Background()

	apartments := buildingsmem.NewApartmentRepository()
	for _, apartment := range []buildings.Apartment{
		{ID: "a1", BuildingID: "b1", ParticipationMills: 600},
		{ID: "a2", BuildingID: "b1", ParticipationMills: 400},
	} {
		if err := apartments.Save(ctx, &apartment); err != nil {
			t.Fatalf("save apartment: %v", err)
		}
	}

	ledgerRepo := ledgermem.NewLedgerRepository()
	clock := fixedClock{now: now}
	ledgerService, err := ledgerapp.NewService(ledgerRepo, nil, locking.NewRegistry(time.Second), eventing.NewInMemoryBus(), clock)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	expenses := distmem.NewExpenseRepository()
	engine, err := NewEngine(expenses, apartments, ledgerService, eventing.NewInMemoryBus(), clock)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	calc, err := ledgerapp.NewCalculator(ledgerRepo)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	return &engineFixture{engine: engine, expenses: expenses, ledgerRepo: ledgerRepo, calc: calc}
}

func TestDistributeAppendsCharges(t *testing.T) {
	now := time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)
	fx := newEngineFixture(t, now)
	ctx := context.Background()

	shares, err := fx.engine.Distribute(ctx, distribution.Expense{
		ID: "exp-1", BuildingID: "b1", AmountCents: 10000,
		Date: now, Category: "cleaning", Type: distribution.TypeByParticipationMills,
	}, false)
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if shares["a1"] != 6000 || shares["a2"] != 4000 {
		t.Fatalf("shares = %v", shares)
	}

	balance, err := fx.calc.CurrentBalance(ctx, "a1")
	if err != nil {
		t.Fatalf("CurrentBalance: %v", err)
	}
	if balance != -6000 {
		t.Fatalf("a1 balance = %d, want -6000", balance)
	}

	stored, err := fx.expenses.Get(ctx, "exp-1")
	if err != nil || stored == nil {
		t.Fatalf("expense not persisted: %v", err)
	}
}

func TestDistributeIdempotent(t *testing.T) {
	now := time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)
	fx := newEngineFixture(t, now)
	ctx := context.Background()

	expense := distribution.Expense{
		ID: "exp-1", BuildingID: "b1", AmountCents: 10000,
		Date: now, Type: distribution.TypeByParticipationMills,
	}
	if _, err := fx.engine.Distribute(ctx, expense, false); err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	shares, err := fx.engine.Distribute(ctx, expense, false)
	if err != nil {
		t.Fatalf("Distribute replay: %v", err)
	}
	if shares["a1"] != 6000 || shares["a2"] != 4000 {
		t.Fatalf("replayed shares = %v", shares)
	}

	entries, err := fx.ledgerRepo.EntriesBySource(ctx, "b1", ledger.SourceExpense, "exp-1")
	if err != nil {
		t.Fatalf("EntriesBySource: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
}

func TestDistributeReplayKeepsStoredExpense(t *testing.T) {
	now := time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)
	fx := newEngineFixture(t, now)
	ctx := context.Background()

	expense := distribution.Expense{
		ID: "exp-1", BuildingID: "b1", AmountCents: 10000,
		Date: now, Type: distribution.TypeByParticipationMills,
	}
	if _, err := fx.engine.Distribute(ctx, expense, false); err != nil {
		t.Fatalf("Distribute: %v", err)
	}

	// A replayed call carrying a different amount must not rewrite the
	// stored expense while the ledger keeps the original allocation.
	changed := expense
	changed.AmountCents = 99999
	shares, err := fx.engine.Distribute(ctx, changed, false)
	if err != nil {
		t.Fatalf("Distribute replay: %v", err)
	}
	if shares["a1"] != 6000 || shares["a2"] != 4000 {
		t.Fatalf("replayed shares = %v, want original allocation", shares)
	}

	stored, err := fx.expenses.Get(ctx, "exp-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored == nil || stored.AmountCents != 10000 {
		t.Fatalf("stored expense = %+v, want AmountCents 10000", stored)
	}
}

func TestDistributeFreshFailsWhenAllocated(t *testing.T) {
	now := time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)
	fx := newEngineFixture(t, now)
	ctx := context.Background()

	expense := distribution.Expense{
		ID: "exp-1", BuildingID: "b1", AmountCents: 10000,
		Date: now, Type: distribution.TypeByParticipationMills,
	}
	if _, err := fx.engine.Distribute(ctx, expense, false); err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	_, err := fx.engine.Distribute(ctx, expense, true)
	if !errors.Is(err, distribution.ErrAlreadyDistributed) {
		t.Fatalf("err = %v, want ErrAlreadyDistributed", err)
	}
}

func TestRemoveRestoresBalances(t *testing.T) {
	now := time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)
	fx := newEngineFixture(t, now)
	ctx := context.Background()

	before, err := fx.calc.CurrentBalance(ctx, "a1")
	if err != nil {
		t.Fatalf("CurrentBalance: %v", err)
	}

	if _, err := fx.engine.Distribute(ctx, distribution.Expense{
		ID: "exp-1", BuildingID: "b1", AmountCents: 5000,
		Date: now, Type: distribution.TypeByParticipationMills,
	}, false); err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if err := fx.engine.Remove(ctx, "exp-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	after, err := fx.calc.CurrentBalance(ctx, "a1")
	if err != nil {
		t.Fatalf("CurrentBalance: %v", err)
	}
	if after != before {
		t.Fatalf("balance after removal = %d, want %d", after, before)
	}

	stored, err := fx.expenses.Get(ctx, "exp-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored != nil {
		t.Fatal("expense row still present after removal")
	}
}

func TestRemoveUnknownExpense(t *testing.T) {
	fx := newEngineFixture(t, time.Now().UTC())
	err := fx.engine.Remove(context.Background(), "missing")
	if !errors.Is(err, distribution.ErrExpenseNotFound) {
		t.Fatalf("err = %v, want ErrExpenseNotFound", err)
	}
}
