package application

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	buildings "condo-ledger/internal/buildings/domain"
	buildingsmem "condo-ledger/internal/buildings/infrastructure/memory"
	closing "condo-ledger/internal/closing/domain"
	closingmem "condo-ledger/internal/closing/infrastructure/memory"
	distapp "condo-ledger/internal/distribution/application"
	distribution "condo-ledger/internal/distribution/domain"
	distmem "condo-ledger/internal/distribution/infrastructure/memory"
	"condo-ledger/internal/eventing"
	ledgerapp "condo-ledger/internal/ledger/application"
	ledger "condo-ledger/internal/ledger/domain"
	ledgermem "condo-ledger/internal/ledger/infrastructure/memory"
	"condo-ledger/internal/locking"
	"condo-ledger/internal/period"
	"condo-ledger/internal/reservefund"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type closingFixture struct {
	service   *Service
	engine    *distapp.Engine
	ledgerSvc *ledgerapp.Service
	calc      *ledgerapp.Calculator
	repo      *closingmem.ClosingRepository
	buildings *buildingsmem.BuildingRepository
}

func month(t *testing.T, raw string) period.YearMonth {
	t.Helper()
	ym, err := period.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return ym
}

func newClosingFixture(t *testing.T, building buildings.Building, apartments []buildings.Apartment, now time.Time) *closingFixture {
	t.Helper()
	ctx := context.Background()

	buildingRepo := buildingsmem.NewBuildingRepository()
	if err := buildingRepo.Save(ctx, &building); err != nil {
		t.Fatalf("save building: %v", err)
	}
	apartmentRepo := buildingsmem.NewApartmentRepository()
	for _, apartment := range apartments {
		if err := apartmentRepo.Save(ctx, &apartment); err != nil {
			t.Fatalf("save apartment: %v", err)
		}
	}

	closingRepo := closingmem.NewClosingRepository()
	ledgerRepo := ledgermem.NewLedgerRepository()
	locks := locking.NewRegistry(time.Second)
	bus := eventing.NewInMemoryBus()
	clock := fixedClock{now: now}

	ledgerSvc, err := ledgerapp.NewService(ledgerRepo, closingRepo, locks, bus, clock)
	if err != nil {
		t.Fatalf("ledger NewService: %v", err)
	}
	calc, err := ledgerapp.NewCalculator(ledgerRepo)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	engine, err := distapp.NewEngine(distmem.NewExpenseRepository(), apartmentRepo, ledgerSvc, bus, clock)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	scheduler, err := reservefund.NewScheduler(calc)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	service, err := NewService(closingRepo, buildingRepo, apartmentRepo, engine, scheduler,
		ledgerSvc, locks, nil, bus, clock, logger)
	if err != nil {
		t.Fatalf("closing NewService: %v", err)
	}
	return &closingFixture{
		service:   service,
		engine:    engine,
		ledgerSvc: ledgerSvc,
		calc:      calc,
		repo:      closingRepo,
		buildings: buildingRepo,
	}
}

func threeApartmentBuilding() (buildings.Building, []buildings.Apartment) {
	building := buildings.Building{
		ID:                  "b1",
		TenantID:            "t1",
		Name:                "Main St 12",
		ManagementFeeCents:  500,
		ReserveFundPriority: buildings.ReserveAlways,
	}
	apartments := []buildings.Apartment{
		{ID: "a1", BuildingID: "b1", ParticipationMills: 500},
		{ID: "a2", BuildingID: "b1", ParticipationMills: 300},
		{ID: "a3", BuildingID: "b1", ParticipationMills: 200},
	}
	return building, apartments
}

func TestCloseComputesManagementFees(t *testing.T) {
	building, apartments := threeApartmentBuilding()
	now := time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC)
	fx := newClosingFixture(t, building, apartments, now)
	ctx := context.Background()

	row, err := fx.service.Close(ctx, "b1", month(t, "2025-07"))
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	// €5 per apartment, 3 apartments, regardless of mills.
	if row.ManagementFeesCents != 1500 {
		t.Fatalf("managementFees = %d, want 1500", row.ManagementFeesCents)
	}
	if !row.IsClosed || row.ClosedAt == nil {
		t.Fatal("row not marked closed")
	}

	entries, err := fx.ledgerSvc.Repo().EntriesBySource(ctx, "b1", ledger.SourceManagementFee, "mf-b1-2025-07")
	if err != nil {
		t.Fatalf("EntriesBySource: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("fee entries = %d, want 3", len(entries))
	}
	for _, entry := range entries {
		if entry.AmountCents != -500 {
			t.Fatalf("fee charge = %d, want -500", entry.AmountCents)
		}
	}
}

func TestCloseCarriesDebtForward(t *testing.T) {
	building, apartments := threeApartmentBuilding()
	building.ManagementFeeCents = 0
	now := time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC)
	fx := newClosingFixture(t, building, apartments, now)
	ctx := context.Background()

	// Expenses 200.00, payments 80.00: net -120.00.
	if _, err := fx.engine.Distribute(ctx, distribution.Expense{
		ID: "exp-1", BuildingID: "b1", AmountCents: 20000,
		Date: time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC),
		Type: distribution.TypeByParticipationMills,
	}, false); err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if _, err := fx.ledgerSvc.RecordPayment(ctx, ledgerapp.Payment{
		ID: "pay-1", BuildingID: "b1", ApartmentID: "a1", AmountCents: 8000,
		Date: time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	row, err := fx.service.Close(ctx, "b1", month(t, "2025-07"))
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if row.TotalExpensesCents != 20000 {
		t.Fatalf("totalExpenses = %d, want 20000", row.TotalExpensesCents)
	}
	if row.TotalPaymentsCents != 8000 {
		t.Fatalf("totalPayments = %d, want 8000", row.TotalPaymentsCents)
	}
	if row.CarryForwardCents != 12000 {
		t.Fatalf("carryForward = %d, want 12000", row.CarryForwardCents)
	}

	next, err := fx.repo.FindByPeriod(ctx, "b1", month(t, "2025-08"))
	if err != nil {
		t.Fatalf("FindByPeriod: %v", err)
	}
	if next == nil {
		t.Fatal("next month row not seeded")
	}
	if next.IsClosed {
		t.Fatal("seeded row must be open")
	}
	if next.PreviousObligations != 12000 {
		t.Fatalf("previousObligations = %d, want 12000", next.PreviousObligations)
	}
}

func TestCloseSurplusDoesNotCarryForward(t *testing.T) {
	building, apartments := threeApartmentBuilding()
	building.ManagementFeeCents = 0
	now := time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC)
	fx := newClosingFixture(t, building, apartments, now)
	ctx := context.Background()

	if _, err := fx.ledgerSvc.RecordPayment(ctx, ledgerapp.Payment{
		ID: "pay-1", BuildingID: "b1", ApartmentID: "a1", AmountCents: 5000,
		Date: time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	row, err := fx.service.Close(ctx, "b1", month(t, "2025-07"))
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if row.NetResult() != 5000 {
		t.Fatalf("netResult = %d, want 5000", row.NetResult())
	}
	if row.CarryForwardCents != 0 {
		t.Fatalf("carryForward = %d, want 0", row.CarryForwardCents)
	}
}

func TestCloseTwiceFails(t *testing.T) {
	building, apartments := threeApartmentBuilding()
	now := time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC)
	fx := newClosingFixture(t, building, apartments, now)
	ctx := context.Background()

	if _, err := fx.service.Close(ctx, "b1", month(t, "2025-07")); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err := fx.service.Close(ctx, "b1", month(t, "2025-07"))
	if !errors.Is(err, closing.ErrAlreadyClosed) {
		t.Fatalf("err = %v, want ErrAlreadyClosed", err)
	}
}

func TestCloseOutOfOrderFails(t *testing.T) {
	building, apartments := threeApartmentBuilding()
	now := time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC)
	fx := newClosingFixture(t, building, apartments, now)
	ctx := context.Background()

	if _, err := fx.service.Preview(ctx, "b1", month(t, "2025-07")); err != nil {
		t.Fatalf("Preview: %v", err)
	}
	_, err := fx.service.Close(ctx, "b1", month(t, "2025-08"))
	if !errors.Is(err, closing.ErrSequentialClose) {
		t.Fatalf("err = %v, want ErrSequentialClose", err)
	}
}

func TestClosedMonthRejectsLedgerWrites(t *testing.T) {
	building, apartments := threeApartmentBuilding()
	now := time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC)
	fx := newClosingFixture(t, building, apartments, now)
	ctx := context.Background()

	if _, err := fx.service.Close(ctx, "b1", month(t, "2025-07")); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err := fx.ledgerSvc.RecordPayment(ctx, ledgerapp.Payment{
		ID: "pay-late", BuildingID: "b1", ApartmentID: "a1", AmountCents: 1000,
		Date: time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ledger.ErrMonthClosed) {
		t.Fatalf("err = %v, want ErrMonthClosed", err)
	}
}

func TestReopenRules(t *testing.T) {
	building, apartments := threeApartmentBuilding()
	building.ManagementFeeCents = 0
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	fx := newClosingFixture(t, building, apartments, now)
	ctx := context.Background()

	if _, err := fx.service.Close(ctx, "b1", month(t, "2025-07")); err != nil {
		t.Fatalf("Close july: %v", err)
	}
	if _, err := fx.service.Close(ctx, "b1", month(t, "2025-08")); err != nil {
		t.Fatalf("Close august: %v", err)
	}

	// July cannot reopen while August is closed.
	_, err := fx.service.Reopen(ctx, "b1", month(t, "2025-07"), "admin")
	if !errors.Is(err, closing.ErrSequentialClose) {
		t.Fatalf("err = %v, want ErrSequentialClose", err)
	}

	row, err := fx.service.Reopen(ctx, "b1", month(t, "2025-08"), "admin")
	if err != nil {
		t.Fatalf("Reopen august: %v", err)
	}
	if row.IsClosed || row.ClosedAt != nil {
		t.Fatal("row still closed after reopen")
	}

	// Now July can reopen too.
	if _, err := fx.service.Reopen(ctx, "b1", month(t, "2025-07"), "admin"); err != nil {
		t.Fatalf("Reopen july: %v", err)
	}

	_, err = fx.service.Reopen(ctx, "b1", month(t, "2025-07"), "admin")
	if !errors.Is(err, closing.ErrNotClosed) {
		t.Fatalf("err = %v, want ErrNotClosed", err)
	}
}

func TestPreviewRefreshesWithoutFreezing(t *testing.T) {
	building, apartments := threeApartmentBuilding()
	now := time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC)
	fx := newClosingFixture(t, building, apartments, now)
	ctx := context.Background()

	if _, err := fx.engine.Distribute(ctx, distribution.Expense{
		ID: "exp-1", BuildingID: "b1", AmountCents: 10000,
		Date: time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC),
		Type: distribution.TypeByParticipationMills,
	}, false); err != nil {
		t.Fatalf("Distribute: %v", err)
	}

	first, err := fx.service.Preview(ctx, "b1", month(t, "2025-07"))
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	second, err := fx.service.Preview(ctx, "b1", month(t, "2025-07"))
	if err != nil {
		t.Fatalf("Preview replay: %v", err)
	}
	if first.TotalExpensesCents != second.TotalExpensesCents ||
		first.TotalPaymentsCents != second.TotalPaymentsCents ||
		first.CarryForwardCents != second.CarryForwardCents {
		t.Fatalf("preview not idempotent: %+v vs %+v", first, second)
	}

	// Preview appends no synthetic charges.
	entries, err := fx.ledgerSvc.Repo().EntriesBySource(ctx, "b1", ledger.SourceManagementFee, "mf-b1-2025-07")
	if err != nil {
		t.Fatalf("EntriesBySource: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("preview appended %d fee entries", len(entries))
	}

	// The refreshed row stays open.
	row, err := fx.repo.FindByPeriod(ctx, "b1", month(t, "2025-07"))
	if err != nil {
		t.Fatalf("FindByPeriod: %v", err)
	}
	if row == nil {
		t.Fatal("preview did not refresh the open row")
	}
	if row.IsClosed || row.ClosedAt != nil {
		t.Fatal("preview froze the month")
	}
}

func TestReserveFundFoldedIntoClose(t *testing.T) {
	building, apartments := threeApartmentBuilding()
	building.ManagementFeeCents = 0
	building.ReserveFundGoalCents = 300000
	building.ReserveFundDuration = 6
	building.ReserveFundStart = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC)
	fx := newClosingFixture(t, building, apartments, now)
	ctx := context.Background()

	row, err := fx.service.Close(ctx, "b1", month(t, "2025-07"))
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if row.ReserveFundCents != 50000 {
		t.Fatalf("reserveFund = %d, want 50000", row.ReserveFundCents)
	}

	entries, err := fx.ledgerSvc.Repo().EntriesBySource(ctx, "b1", ledger.SourceReserveFund, "rf-b1-2025-07")
	if err != nil {
		t.Fatalf("EntriesBySource: %v", err)
	}
	var total int64
	for _, entry := range entries {
		total += -entry.AmountCents
	}
	if total != 50000 {
		t.Fatalf("reserve charges sum = %d, want 50000", total)
	}
}

func TestCloseAfterNextMonthPayment(t *testing.T) {
	building, apartments := threeApartmentBuilding()
	now := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	fx := newClosingFixture(t, building, apartments, now)
	ctx := context.Background()

	// A payment for the new month arrives before the old month is closed,
	// the normal sequence when closes are triggered after month end.
	if _, err := fx.ledgerSvc.RecordPayment(ctx, ledgerapp.Payment{
		ID: "pay-aug", BuildingID: "b1", ApartmentID: "a1", AmountCents: 2000,
		Date: time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	row, err := fx.service.Close(ctx, "b1", month(t, "2025-07"))
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !row.IsClosed {
		t.Fatal("row not marked closed")
	}

	// The synthetic July charges sit after the August payment in the
	// ledger, and the balance chain stays intact.
	for _, apartment := range apartments {
		if err := fx.calc.VerifyApartment(ctx, apartment.ID); err != nil {
			t.Fatalf("VerifyApartment(%s): %v", apartment.ID, err)
		}
	}
}

func TestRecloseReconcilesChangedFee(t *testing.T) {
	building, apartments := threeApartmentBuilding()
	now := time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC)
	fx := newClosingFixture(t, building, apartments, now)
	ctx := context.Background()

	if _, err := fx.service.Close(ctx, "b1", month(t, "2025-07")); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := fx.service.Reopen(ctx, "b1", month(t, "2025-07"), "admin"); err != nil {
		t.Fatalf("Reopen: %v", err)
	}

	// The fee changed while the month was open again. Re-closing must
	// bring the ledger in line with the recomputed amount, not leave the
	// old charges standing next to a row claiming the new one.
	building.ManagementFeeCents = 800
	if err := fx.buildings.Save(ctx, &building); err != nil {
		t.Fatalf("save building: %v", err)
	}

	row, err := fx.service.Close(ctx, "b1", month(t, "2025-07"))
	if err != nil {
		t.Fatalf("re-Close: %v", err)
	}
	if row.ManagementFeesCents != 2400 {
		t.Fatalf("managementFees = %d, want 2400", row.ManagementFeesCents)
	}

	entries, err := fx.ledgerSvc.Repo().EntriesBySource(ctx, "b1", ledger.SourceManagementFee, "mf-b1-2025-07")
	if err != nil {
		t.Fatalf("EntriesBySource: %v", err)
	}
	var net int64
	for _, entry := range entries {
		net += -entry.AmountCents
	}
	if net != 2400 {
		t.Fatalf("fee charges net = %d, want 2400", net)
	}

	for _, apartment := range apartments {
		if err := fx.calc.VerifyApartment(ctx, apartment.ID); err != nil {
			t.Fatalf("VerifyApartment(%s): %v", apartment.ID, err)
		}
	}
}

func TestRecloseKeepsUnchangedCharges(t *testing.T) {
	building, apartments := threeApartmentBuilding()
	now := time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC)
	fx := newClosingFixture(t, building, apartments, now)
	ctx := context.Background()

	if _, err := fx.service.Close(ctx, "b1", month(t, "2025-07")); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := fx.service.Reopen(ctx, "b1", month(t, "2025-07"), "admin"); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if _, err := fx.service.Close(ctx, "b1", month(t, "2025-07")); err != nil {
		t.Fatalf("re-Close: %v", err)
	}

	// Same configuration, same charges: no reversal, no duplicates.
	entries, err := fx.ledgerSvc.Repo().EntriesBySource(ctx, "b1", ledger.SourceManagementFee, "mf-b1-2025-07")
	if err != nil {
		t.Fatalf("EntriesBySource: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("fee entries = %d, want 3", len(entries))
	}
}
