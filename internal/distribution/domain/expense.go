package distribution

import (
	"time"
)

// Expense is a building-level cost to be allocated across apartments.
// Immutable once distributed; deletion reverses its ledger entries instead
// of rewriting them.
type Expense struct {
	ID          string
	BuildingID  string
	AmountCents int64
	Date        time.Time
	Category    string
	Type        Type
	DueDate     *time.Time
	// Consumption optionally supplies per-apartment weights for the
	// meter-driven rules (liters, kWh, arbitrary units).
	Consumption map[string]int64
	CreatedAt   time.Time
}

// Validate checks expense invariants prior to distribution.
func (e Expense) Validate() error {
	if e.ID == "" {
		return ErrEmptyExpenseID
	}
	if e.AmountCents <= 0 {
		return ErrNonPositiveAmount
	}
	if _, err := ParseType(string(e.Type)); err != nil {
		return err
	}
	return nil
}
