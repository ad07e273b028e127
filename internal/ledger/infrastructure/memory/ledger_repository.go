package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	ledger "condo-ledger/internal/ledger/domain"
)

// LedgerRepository is an in-memory append-only ledger store.
type LedgerRepository struct {
	mu      sync.RWMutex
	entries []ledger.Entry
	seq     map[string]int64
}

// NewLedgerRepository constructs a repository.
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{seq: make(map[string]int64)}
}

// Append persists an entry and assigns the building sequence.
func (r *LedgerRepository) Append(ctx context.Context, entry *ledger.Entry) error {
	_ = ctx
	if entry == nil {
		return ledger.ErrNilEntry
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.seq[entry.BuildingID]++
	entry.Seq = r.seq[entry.BuildingID]
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, *entry)
	r.mu.Unlock()
	return nil
}

// EntriesFor returns an apartment's entries in append order.
func (r *LedgerRepository) EntriesFor(ctx context.Context, apartmentID string, before *time.Time) ([]ledger.Entry, error) {
	_ = ctx
	r.mu.RLock()
	var result []ledger.Entry
	for _, entry := range r.entries {
		if entry.ApartmentID != apartmentID {
			continue
		}
		if before != nil && !entry.Date.Before(before.UTC()) {
			continue
		}
		result = append(result, entry)
	}
	r.mu.RUnlock()
	sortEntriesBySeq(result)
	return result, nil
}

// LastFor returns the most recently appended entry for an apartment.
func (r *LedgerRepository) LastFor(ctx context.Context, apartmentID string) (*ledger.Entry, error) {
	entries, err := r.EntriesFor(ctx, apartmentID, nil)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	last := entries[len(entries)-1]
	return &last, nil
}

// EntriesBySource returns the entries referencing one business record.
func (r *LedgerRepository) EntriesBySource(ctx context.Context, buildingID, sourceType, sourceID string) ([]ledger.Entry, error) {
	_ = ctx
	r.mu.RLock()
	var result []ledger.Entry
	for _, entry := range r.entries {
		if entry.BuildingID == buildingID && entry.SourceType == sourceType && entry.SourceID == sourceID {
			result = append(result, entry)
		}
	}
	r.mu.RUnlock()
	sortEntriesBySeq(result)
	return result, nil
}

// EntriesForBuildingInRange returns entries dated in [from, to).
func (r *LedgerRepository) EntriesForBuildingInRange(ctx context.Context, buildingID string, from, to time.Time) ([]ledger.Entry, error) {
	_ = ctx
	r.mu.RLock()
	var result []ledger.Entry
	for _, entry := range r.entries {
		if entry.BuildingID != buildingID {
			continue
		}
		if entry.Date.Before(from.UTC()) || !entry.Date.Before(to.UTC()) {
			continue
		}
		result = append(result, entry)
	}
	r.mu.RUnlock()
	sortEntries(result)
	return result, nil
}

// ApartmentIDs returns distinct apartments with entries in a building.
func (r *LedgerRepository) ApartmentIDs(ctx context.Context, buildingID string) ([]string, error) {
	_ = ctx
	r.mu.RLock()
	seen := make(map[string]struct{})
	for _, entry := range r.entries {
		if entry.BuildingID == buildingID {
			seen[entry.ApartmentID] = struct{}{}
		}
	}
	r.mu.RUnlock()
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func sortEntries(entries []ledger.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Seq < entries[j].Seq
		}
		return entries[i].Date.Before(entries[j].Date)
	})
}

func sortEntriesBySeq(entries []ledger.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Seq < entries[j].Seq
	})
}
