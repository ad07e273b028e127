package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	closing "condo-ledger/internal/closing/domain"
	"condo-ledger/internal/period"
)

// ClosingRepository is an in-memory monthly balance store.
type ClosingRepository struct {
	mu   sync.RWMutex
	rows map[string]closing.MonthlyBalance
}

// NewClosingRepository constructs an empty repository.
func NewClosingRepository() *ClosingRepository {
	return &ClosingRepository{rows: make(map[string]closing.MonthlyBalance)}
}

func key(buildingID string, ym period.YearMonth) string {
	return buildingID + "/" + ym.String()
}

// FindByPeriod returns the row for (building, month), nil when absent.
func (r *ClosingRepository) FindByPeriod(ctx context.Context, buildingID string, ym period.YearMonth) (*closing.MonthlyBalance, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[key(buildingID, ym)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// Save stores or replaces a row.
func (r *ClosingRepository) Save(ctx context.Context, balance *closing.MonthlyBalance) error {
	_ = ctx
	if balance == nil || balance.BuildingID == "" {
		return closing.ErrEmptyBuildingID
	}
	r.mu.Lock()
	stored := *balance
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.rows[key(stored.BuildingID, stored.Period)] = stored
	r.mu.Unlock()
	return nil
}

// ListByBuilding returns the building's rows in ascending period order.
func (r *ClosingRepository) ListByBuilding(ctx context.Context, buildingID string) ([]closing.MonthlyBalance, error) {
	_ = ctx
	r.mu.RLock()
	var result []closing.MonthlyBalance
	for _, row := range r.rows {
		if row.BuildingID == buildingID {
			result = append(result, row)
		}
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Period.Before(result[j].Period)
	})
	return result, nil
}

// IsClosedAt reports whether the month containing at is closed.
func (r *ClosingRepository) IsClosedAt(ctx context.Context, buildingID string, at time.Time) (bool, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[key(buildingID, period.FromTime(at))]
	if !ok {
		return false, nil
	}
	return row.IsClosed, nil
}
