package reservefund

import (
	"context"
	"testing"
	"time"

	buildings "condo-ledger/internal/buildings/domain"
	"condo-ledger/internal/period"
)

type stubBalances struct {
	balances map[string]int64
}

func (s stubBalances) BalanceAsOf(_ context.Context, apartmentID string, _ time.Time) (int64, error) {
	return s.balances[apartmentID], nil
}

func reserveBuilding(priority buildings.ReservePriority) buildings.Building {
	return buildings.Building{
		ID:                   "b1",
		ReserveFundGoalCents: 300000,
		ReserveFundDuration:  6,
		ReserveFundStart:     time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		ReserveFundPriority:  priority,
	}
}

func mustMonth(t *testing.T, raw string) period.YearMonth {
	t.Helper()
	ym, err := period.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return ym
}

func TestMonthlyTargetWindowBoundaries(t *testing.T) {
	scheduler, err := NewScheduler(stubBalances{})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	building := reserveBuilding(buildings.ReserveAlways)
	ctx := context.Background()

	cases := []struct {
		month string
		want  int64
	}{
		{"2025-06", 0},
		{"2025-07", 50000},
		{"2025-12", 50000},
		{"2026-01", 0},
	}
	for _, tc := range cases {
		got, err := scheduler.MonthlyTarget(ctx, building, mustMonth(t, tc.month), nil)
		if err != nil {
			t.Fatalf("MonthlyTarget(%s): %v", tc.month, err)
		}
		if got != tc.want {
			t.Fatalf("MonthlyTarget(%s) = %d, want %d", tc.month, got, tc.want)
		}
	}
}

func TestMonthlyTargetZeroWithoutGoal(t *testing.T) {
	scheduler, _ := NewScheduler(stubBalances{})
	building := reserveBuilding(buildings.ReserveAlways)
	building.ReserveFundGoalCents = 0

	got, err := scheduler.MonthlyTarget(context.Background(), building, mustMonth(t, "2025-08"), nil)
	if err != nil {
		t.Fatalf("MonthlyTarget: %v", err)
	}
	if got != 0 {
		t.Fatalf("MonthlyTarget = %d, want 0", got)
	}
}

func TestObligationGateSuppressesCollection(t *testing.T) {
	apartments := []buildings.Apartment{
		{ID: "a1", BuildingID: "b1"},
		{ID: "a2", BuildingID: "b1"},
	}
	scheduler, _ := NewScheduler(stubBalances{balances: map[string]int64{"a1": 0, "a2": -100}})
	building := reserveBuilding(buildings.ReserveAfterObligations)

	got, err := scheduler.MonthlyTarget(context.Background(), building, mustMonth(t, "2025-08"), apartments)
	if err != nil {
		t.Fatalf("MonthlyTarget: %v", err)
	}
	if got != 0 {
		t.Fatalf("MonthlyTarget = %d, want 0 while obligations pending", got)
	}

	// Same month collects once every balance is non-negative.
	scheduler, _ = NewScheduler(stubBalances{balances: map[string]int64{"a1": 0, "a2": 500}})
	got, err = scheduler.MonthlyTarget(context.Background(), building, mustMonth(t, "2025-08"), apartments)
	if err != nil {
		t.Fatalf("MonthlyTarget: %v", err)
	}
	if got != 50000 {
		t.Fatalf("MonthlyTarget = %d, want 50000", got)
	}
}

func TestObligationGateIgnoredForAlwaysPriority(t *testing.T) {
	apartments := []buildings.Apartment{{ID: "a1", BuildingID: "b1"}}
	scheduler, _ := NewScheduler(stubBalances{balances: map[string]int64{"a1": -9999}})
	building := reserveBuilding(buildings.ReserveAlways)

	got, err := scheduler.MonthlyTarget(context.Background(), building, mustMonth(t, "2025-08"), apartments)
	if err != nil {
		t.Fatalf("MonthlyTarget: %v", err)
	}
	if got != 50000 {
		t.Fatalf("MonthlyTarget = %d, want 50000", got)
	}
}
