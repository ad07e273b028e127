package ledger

import (
	"context"
	"time"
)

// Repository persists ledger entries. The store is append-only: entries are
// never updated or deleted, corrections and reversals append new entries.
type Repository interface {
	// Append persists an entry, assigning Seq from the building's sequence.
	Append(ctx context.Context, entry *Entry) error
	// EntriesFor returns an apartment's entries in append (seq) order, the
	// order the balance chain was stamped in. When before is non-nil only
	// entries dated strictly earlier are returned.
	EntriesFor(ctx context.Context, apartmentID string, before *time.Time) ([]Entry, error)
	// LastFor returns the apartment's most recently appended entry, or nil
	// when the apartment has none.
	LastFor(ctx context.Context, apartmentID string) (*Entry, error)
	// EntriesBySource returns the entries referencing one business record.
	EntriesBySource(ctx context.Context, buildingID, sourceType, sourceID string) ([]Entry, error)
	// EntriesForBuildingInRange returns a building's entries dated in
	// [from, to) ordered by (date, seq).
	EntriesForBuildingInRange(ctx context.Context, buildingID string, from, to time.Time) ([]Entry, error)
	// ApartmentIDs returns the distinct apartments with entries in a building.
	ApartmentIDs(ctx context.Context, buildingID string) ([]string, error)
}
