// Package reservefund decides whether and how much reserve contribution a
// building collects in a given month. The scheduler never writes ledger
// entries; the closing service folds its amount into a synthetic monthly
// expense.
package reservefund

import (
	"context"
	"errors"
	"fmt"
	"time"

	buildings "condo-ledger/internal/buildings/domain"
	"condo-ledger/internal/money"
	"condo-ledger/internal/period"
)

// BalanceReader supplies point-in-time apartment balances. Satisfied by the
// ledger balance calculator.
type BalanceReader interface {
	BalanceAsOf(ctx context.Context, apartmentID string, asOf time.Time) (int64, error)
}

// Scheduler computes monthly reserve fund targets.
type Scheduler struct {
	balances BalanceReader
}

// NewScheduler constructs a Scheduler.
func NewScheduler(balances BalanceReader) (*Scheduler, error) {
	if balances == nil {
		return nil, errors.New("reserve scheduler: nil balance reader")
	}
	return &Scheduler{balances: balances}, nil
}

// InWindow reports whether the month falls inside the building's collection
// window [start month, start month + duration).
func InWindow(building buildings.Building, ym period.YearMonth) bool {
	if building.ReserveFundGoalCents <= 0 || building.ReserveFundDuration <= 0 {
		return false
	}
	start := building.ReserveFundStartMonth()
	target := building.ReserveFundTargetMonth()
	return !ym.Before(start) && ym.Before(target)
}

// MonthlyTarget returns the building-level reserve amount to collect for the
// month, in cents. Outside the collection window it is zero. With priority
// after_obligations, any apartment holding a negative balance at the start
// of the month suppresses collection for the whole building.
func (s *Scheduler) MonthlyTarget(ctx context.Context, building buildings.Building, ym period.YearMonth, apartments []buildings.Apartment) (int64, error) {
	if !InWindow(building, ym) {
		return 0, nil
	}
	if building.ReserveFundPriority == buildings.ReserveAfterObligations {
		collectible, err := s.obligationsSettled(ctx, ym, apartments)
		if err != nil {
			return 0, err
		}
		if !collectible {
			return 0, nil
		}
	}
	return money.DivRoundHalfUp(building.ReserveFundGoalCents, int64(building.ReserveFundDuration)), nil
}

// Collectible reports whether the month would collect a non-zero amount.
func (s *Scheduler) Collectible(ctx context.Context, building buildings.Building, ym period.YearMonth, apartments []buildings.Apartment) (bool, error) {
	target, err := s.MonthlyTarget(ctx, building, ym, apartments)
	if err != nil {
		return false, err
	}
	return target > 0, nil
}

// obligationsSettled checks every apartment's balance as of the first day of
// the month. The gate is all-or-nothing at building level.
func (s *Scheduler) obligationsSettled(ctx context.Context, ym period.YearMonth, apartments []buildings.Apartment) (bool, error) {
	monthStart := ym.FirstDay()
	for _, apartment := range apartments {
		balance, err := s.balances.BalanceAsOf(ctx, apartment.ID, monthStart)
		if err != nil {
			return false, fmt.Errorf("reserve scheduler: balance for %s: %w", apartment.ID, err)
		}
		if balance < 0 {
			return false, nil
		}
	}
	return true, nil
}
