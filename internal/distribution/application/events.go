package application

import "time"

// ExpenseDistributed is published after an expense's charges are appended.
type ExpenseDistributed struct {
	BuildingID   string
	ExpenseID    string
	AmountCents  int64
	ApartmentIDs []string
	OccurredAt   time.Time
}

// ExpenseRemoved is published after an expense is reversed and deleted.
type ExpenseRemoved struct {
	BuildingID string
	ExpenseID  string
	OccurredAt time.Time
}
