package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	distribution "condo-ledger/internal/distribution/domain"
)

// ExpenseRepository is an in-memory expense store for tests and local runs.
type ExpenseRepository struct {
	mu       sync.RWMutex
	expenses map[string]distribution.Expense
}

// NewExpenseRepository constructs an empty repository.
func NewExpenseRepository() *ExpenseRepository {
	return &ExpenseRepository{expenses: make(map[string]distribution.Expense)}
}

// Save stores or replaces an expense.
func (r *ExpenseRepository) Save(ctx context.Context, expense *distribution.Expense) error {
	_ = ctx
	if expense == nil || expense.ID == "" {
		return distribution.ErrEmptyExpenseID
	}
	r.mu.Lock()
	stored := *expense
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.expenses[stored.ID] = stored
	r.mu.Unlock()
	return nil
}

// Get returns an expense or (nil, nil) when absent.
func (r *ExpenseRepository) Get(ctx context.Context, id string) (*distribution.Expense, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	expense, ok := r.expenses[id]
	if !ok {
		return nil, nil
	}
	return &expense, nil
}

// ListByBuildingInRange returns expenses dated in [from, to) ordered by
// (date, id).
func (r *ExpenseRepository) ListByBuildingInRange(ctx context.Context, buildingID string, from, to time.Time) ([]distribution.Expense, error) {
	_ = ctx
	r.mu.RLock()
	var result []distribution.Expense
	for _, expense := range r.expenses {
		if expense.BuildingID != buildingID {
			continue
		}
		if expense.Date.Before(from) || !expense.Date.Before(to) {
			continue
		}
		result = append(result, expense)
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Delete removes an expense record.
func (r *ExpenseRepository) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.expenses[id]; !ok {
		return distribution.ErrExpenseNotFound
	}
	delete(r.expenses, id)
	return nil
}
