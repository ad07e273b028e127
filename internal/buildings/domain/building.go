package buildings

import (
	"context"
	"fmt"
	"time"

	"condo-ledger/internal/period"
)

// ReservePriority controls whether reserve fund collection waits for unpaid
// obligations.
type ReservePriority string

const (
	// ReserveAlways collects the reserve contribution in every window month.
	ReserveAlways ReservePriority = "always"
	// ReserveAfterObligations suppresses collection for the whole building
	// while any apartment carries an unpaid balance.
	ReserveAfterObligations ReservePriority = "after_obligations"
)

// NormalizeReservePriority validates a priority string.
func NormalizeReservePriority(value string) (ReservePriority, bool) {
	switch ReservePriority(value) {
	case ReserveAlways, ReserveAfterObligations:
		return ReservePriority(value), true
	case "":
		return ReserveAlways, true
	default:
		return "", false
	}
}

// Building is the configuration read model for one managed building. The
// bookkeeping core never mutates it; the configuration collaborator owns all
// writes.
type Building struct {
	ID                      string
	TenantID                string
	Name                    string
	ParticipationMillsTotal int
	ManagementFeeCents      int64
	ReserveFundGoalCents    int64
	ReserveFundDuration     int
	ReserveFundStart        time.Time
	ReserveFundPriority     ReservePriority
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Validate checks hard building invariants.
func (b Building) Validate() error {
	if b.ID == "" {
		return ErrEmptyBuildingID
	}
	if b.TenantID == "" {
		return ErrEmptyTenantID
	}
	if b.ManagementFeeCents < 0 {
		return ErrNegativeFee
	}
	if b.ReserveFundGoalCents < 0 {
		return ErrNegativeFee
	}
	if b.ReserveFundGoalCents > 0 && b.ReserveFundDuration <= 0 {
		return ErrInvalidReserveDuration
	}
	if _, ok := NormalizeReservePriority(string(b.ReserveFundPriority)); !ok {
		return ErrInvalidReservePriority
	}
	return nil
}

// Warnings reports soft configuration problems. Mills that do not sum to the
// expected total are a warning, not an error: distribution stays consistent
// against whatever total is observed.
func (b Building) Warnings(apartments []Apartment) []string {
	var warnings []string
	expected := b.ParticipationMillsTotal
	if expected == 0 {
		expected = 1000
	}
	var total int
	for _, apt := range apartments {
		total += apt.ParticipationMills
	}
	if len(apartments) > 0 && total != expected {
		warnings = append(warnings, fmt.Sprintf(
			"participation mills sum to %d, expected %d", total, expected))
	}
	return warnings
}

// ReserveFundStartMonth returns the first month of the collection window.
func (b Building) ReserveFundStartMonth() period.YearMonth {
	return period.FromTime(b.ReserveFundStart)
}

// ReserveFundTargetMonth returns the first month after the collection window.
func (b Building) ReserveFundTargetMonth() period.YearMonth {
	return b.ReserveFundStartMonth().AddMonths(b.ReserveFundDuration)
}

// BuildingRepository manages building read models.
type BuildingRepository interface {
	Get(ctx context.Context, id string) (*Building, error)
	List(ctx context.Context, tenantID string) ([]Building, error)
	Save(ctx context.Context, building *Building) error
}
