package closing

import (
	"context"
	"time"

	"condo-ledger/internal/period"
)

// MonthlyBalance is the immutable snapshot of one building month. While the
// row is open its numbers are previews; closing freezes them and seeds the
// next month's opening obligations.
type MonthlyBalance struct {
	ID                  string
	BuildingID          string
	Period              period.YearMonth
	TotalExpensesCents  int64
	TotalPaymentsCents  int64
	PreviousObligations int64
	ReserveFundCents    int64
	ManagementFeesCents int64
	CarryForwardCents   int64
	IsClosed            bool
	ClosedAt            *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TotalObligations sums everything the building owed in the month.
func (m MonthlyBalance) TotalObligations() int64 {
	return m.TotalExpensesCents + m.ManagementFeesCents + m.ReserveFundCents + m.PreviousObligations
}

// NetResult is payments minus obligations; negative means unpaid debt.
func (m MonthlyBalance) NetResult() int64 {
	return m.TotalPaymentsCents - m.TotalObligations()
}

// Repository persists monthly balance rows, keyed uniquely by
// (building, period).
type Repository interface {
	FindByPeriod(ctx context.Context, buildingID string, ym period.YearMonth) (*MonthlyBalance, error)
	Save(ctx context.Context, balance *MonthlyBalance) error
	ListByBuilding(ctx context.Context, buildingID string) ([]MonthlyBalance, error)
	// IsClosedAt reports whether the month containing at is closed for the
	// building. The ledger service consults it before every append.
	IsClosedAt(ctx context.Context, buildingID string, at time.Time) (bool, error)
}
