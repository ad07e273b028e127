package distribution

import (
	"context"
	"time"
)

// ExpenseRepository persists expense records. Amount-level integrity checks
// compare these rows against the ledger entries they produced.
type ExpenseRepository interface {
	Save(ctx context.Context, expense *Expense) error
	Get(ctx context.Context, id string) (*Expense, error)
	ListByBuildingInRange(ctx context.Context, buildingID string, from, to time.Time) ([]Expense, error)
	Delete(ctx context.Context, id string) error
}
