package application

import (
	"context"
	"testing"
	"time"

	closing "condo-ledger/internal/closing/domain"
	closingmem "condo-ledger/internal/closing/infrastructure/memory"
	distribution "condo-ledger/internal/distribution/domain"
	distributionmem "condo-ledger/internal/distribution/infrastructure/memory"
	ledgerapp "condo-ledger/internal/ledger/application"
	ledger "condo-ledger/internal/ledger/domain"
	ledgermem "condo-ledger/internal/ledger/infrastructure/memory"
	"condo-ledger/internal/period"
)

type checkerFixture struct {
	ledgerRepo *ledgermem.LedgerRepository
	expenses   *distributionmem.ExpenseRepository
	closings   *closingmem.ClosingRepository
	checker    *Checker
}

func newCheckerFixture(t *testing.T) *checkerFixture {
	t.Helper()
	ledgerRepo := ledgermem.NewLedgerRepository()
	expenses := distributionmem.NewExpenseRepository()
	closings := closingmem.NewClosingRepository()
	calc, err := ledgerapp.NewCalculator(ledgerRepo)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	checker, err := NewChecker(ledgerRepo, calc, expenses, closings)
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}
	return &checkerFixture{
		ledgerRepo: ledgerRepo,
		expenses:   expenses,
		closings:   closings,
		checker:    checker,
	}
}

func (f *checkerFixture) append(t *testing.T, entry ledger.Entry) {
	t.Helper()
	if err := f.ledgerRepo.Append(context.Background(), &entry); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func (f *checkerFixture) run(t *testing.T, thresholds Thresholds) []Finding {
	t.Helper()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	findings, err := f.checker.CheckBuilding(context.Background(), "b1", from, to, thresholds)
	if err != nil {
		t.Fatalf("CheckBuilding: %v", err)
	}
	return findings
}

func date(day int) time.Time {
	return time.Date(2025, time.July, day, 0, 0, 0, 0, time.UTC)
}

func TestCleanBooksProduceNoFindings(t *testing.T) {
	f := newCheckerFixture(t)

	f.append(t, ledger.Entry{
		ID: "e1", BuildingID: "b1", ApartmentID: "a1", Kind: ledger.KindCharge,
		AmountCents: -6000, Date: date(5), BalanceBefore: 0, BalanceAfter: -6000,
		SourceType: ledger.SourceExpense, SourceID: "exp-1",
	})
	f.append(t, ledger.Entry{
		ID: "e2", BuildingID: "b1", ApartmentID: "a1", Kind: ledger.KindPayment,
		AmountCents: 6000, Date: date(10), BalanceBefore: -6000, BalanceAfter: 0,
		SourceType: ledger.SourcePayment, SourceID: "pay-1",
	})
	saveExpense(t, f, "exp-1", 6000, date(5))

	july := period.YearMonth{Year: 2025, Month: time.July}
	august := july.Next()
	closedAt := date(31)
	saveMonth(t, f, july, 0, 0, true, &closedAt)
	saveMonth(t, f, august, 0, 0, false, nil)

	findings := f.run(t, Thresholds{AlertFindings: 1, StaleOpenMonths: 3})
	if len(findings) != 0 {
		t.Fatalf("want no findings, got %+v", findings)
	}
}

func TestBrokenBalanceChainIsReported(t *testing.T) {
	f := newCheckerFixture(t)

	f.append(t, ledger.Entry{
		ID: "e1", BuildingID: "b1", ApartmentID: "a1", Kind: ledger.KindCharge,
		AmountCents: -6000, Date: date(5), BalanceBefore: 0, BalanceAfter: -6000,
		SourceType: ledger.SourceExpense, SourceID: "exp-1",
	})
	f.append(t, ledger.Entry{
		ID: "e2", BuildingID: "b1", ApartmentID: "a1", Kind: ledger.KindPayment,
		AmountCents: 6000, Date: date(10), BalanceBefore: -5900, BalanceAfter: 100,
		SourceType: ledger.SourcePayment, SourceID: "pay-1",
	})

	findings := f.run(t, Thresholds{AlertFindings: 1})
	if len(findings) != 1 {
		t.Fatalf("want 1 finding, got %+v", findings)
	}
	if findings[0].Check != CheckBalanceChain {
		t.Fatalf("check = %q, want %q", findings[0].Check, CheckBalanceChain)
	}
	if findings[0].ApartmentID != "a1" {
		t.Fatalf("apartment = %q, want a1", findings[0].ApartmentID)
	}
}

func TestAllocationDriftIsReported(t *testing.T) {
	f := newCheckerFixture(t)

	f.append(t, ledger.Entry{
		ID: "e1", BuildingID: "b1", ApartmentID: "a1", Kind: ledger.KindCharge,
		AmountCents: -5900, Date: date(5), BalanceBefore: 0, BalanceAfter: -5900,
		SourceType: ledger.SourceExpense, SourceID: "exp-1",
	})
	saveExpense(t, f, "exp-1", 6000, date(5))

	findings := f.run(t, Thresholds{AlertFindings: 1})
	if len(findings) != 1 {
		t.Fatalf("want 1 finding, got %+v", findings)
	}
	if findings[0].Check != CheckAllocationSum {
		t.Fatalf("check = %q, want %q", findings[0].Check, CheckAllocationSum)
	}
	if findings[0].SourceID != "exp-1" {
		t.Fatalf("source = %q, want exp-1", findings[0].SourceID)
	}
}

func TestReversedExpenseIsNotAFinding(t *testing.T) {
	f := newCheckerFixture(t)

	f.append(t, ledger.Entry{
		ID: "e1", BuildingID: "b1", ApartmentID: "a1", Kind: ledger.KindCharge,
		AmountCents: -6000, Date: date(5), BalanceBefore: 0, BalanceAfter: -6000,
		SourceType: ledger.SourceExpense, SourceID: "exp-1",
	})
	f.append(t, ledger.Entry{
		ID: "e2", BuildingID: "b1", ApartmentID: "a1", Kind: ledger.KindAdjustment,
		AmountCents: 6000, Date: date(6), BalanceBefore: -6000, BalanceAfter: 0,
		SourceType: ledger.SourceExpense, SourceID: "exp-1",
	})
	saveExpense(t, f, "exp-1", 6000, date(5))

	findings := f.run(t, Thresholds{AlertFindings: 1})
	if len(findings) != 0 {
		t.Fatalf("want no findings for reversed expense, got %+v", findings)
	}
}

func TestCarryForwardGapIsReported(t *testing.T) {
	f := newCheckerFixture(t)

	july := period.YearMonth{Year: 2025, Month: time.July}
	august := july.Next()
	closedAt := date(31)
	saveMonth(t, f, july, 0, 12000, true, &closedAt)
	saveMonth(t, f, august, 10000, 0, false, nil)

	findings := f.run(t, Thresholds{AlertFindings: 1})
	if len(findings) != 1 {
		t.Fatalf("want 1 finding, got %+v", findings)
	}
	if findings[0].Check != CheckMonthContinuity {
		t.Fatalf("check = %q, want %q", findings[0].Check, CheckMonthContinuity)
	}
	if findings[0].Month != august.String() {
		t.Fatalf("month = %q, want %q", findings[0].Month, august.String())
	}
}

func TestStaleOpenMonthIsReported(t *testing.T) {
	f := newCheckerFixture(t)

	may := period.YearMonth{Year: 2025, Month: time.May}
	september := period.YearMonth{Year: 2025, Month: time.September}
	saveMonth(t, f, may, 0, 0, false, nil)
	saveMonth(t, f, september, 0, 0, false, nil)

	findings := f.run(t, Thresholds{AlertFindings: 1, StaleOpenMonths: 3})
	if len(findings) != 1 {
		t.Fatalf("want 1 finding, got %+v", findings)
	}
	if findings[0].Check != CheckStaleOpenMonth {
		t.Fatalf("check = %q, want %q", findings[0].Check, CheckStaleOpenMonth)
	}
	if findings[0].Month != may.String() {
		t.Fatalf("month = %q, want %q", findings[0].Month, may.String())
	}

	// Disabling the threshold silences the check.
	findings = f.run(t, Thresholds{AlertFindings: 1})
	if len(findings) != 0 {
		t.Fatalf("want no findings with stale check off, got %+v", findings)
	}
}

func saveExpense(t *testing.T, f *checkerFixture, id string, amount int64, day time.Time) {
	t.Helper()
	err := f.expenses.Save(context.Background(), &distribution.Expense{
		ID:          id,
		BuildingID:  "b1",
		AmountCents: amount,
		Date:        day,
		Category:    "maintenance",
		Type:        distribution.TypeEqualShare,
	})
	if err != nil {
		t.Fatalf("save expense: %v", err)
	}
}

func saveMonth(t *testing.T, f *checkerFixture, ym period.YearMonth, prevObligations, carryForward int64, closed bool, closedAt *time.Time) {
	t.Helper()
	err := f.closings.Save(context.Background(), &closing.MonthlyBalance{
		ID:                  "mb-b1-" + ym.String(),
		BuildingID:          "b1",
		Period:              ym,
		PreviousObligations: prevObligations,
		CarryForwardCents:   carryForward,
		IsClosed:            closed,
		ClosedAt:            closedAt,
	})
	if err != nil {
		t.Fatalf("save month: %v", err)
	}
}
