package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ledger "condo-ledger/internal/ledger/domain"
)

const defaultLedgerTable = "ledger_entries"

// LedgerRepository is a Postgres implementation of the append-only ledger
// store. Per-building sequence numbers come from a counter row updated inside
// the append transaction.
type LedgerRepository struct {
	db    *sql.DB
	table string
}

// NewLedgerRepository constructs a repository.
func NewLedgerRepository(db *sql.DB, opts ...LedgerOption) *LedgerRepository {
	repo := &LedgerRepository{db: db, table: defaultLedgerTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// LedgerOption configures the repository.
type LedgerOption func(*LedgerRepository)

// WithLedgerTable overrides the default table name.
func WithLedgerTable(table string) LedgerOption {
	return func(repo *LedgerRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Append persists an entry, assigning the building sequence.
func (r *LedgerRepository) Append(ctx context.Context, entry *ledger.Entry) error {
	if r == nil || r.db == nil {
		return errors.New("ledger repo: nil db")
	}
	if entry == nil {
		return ledger.ErrNilEntry
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	var seq int64
	err = tx.QueryRowContext(ctx, `
INSERT INTO ledger_sequences (building_id, last_seq)
VALUES ($1, 1)
ON CONFLICT (building_id)
DO UPDATE SET last_seq = ledger_sequences.last_seq + 1
RETURNING last_seq`, entry.BuildingID).Scan(&seq)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	entry.Seq = seq

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, seq, building_id, apartment_id, kind, amount_cents, entry_date,
	balance_before, balance_after, source_type, source_id, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, r.table)

	_, err = tx.ExecContext(ctx, query,
		entry.ID, entry.Seq, entry.BuildingID, entry.ApartmentID, string(entry.Kind),
		entry.AmountCents, entry.Date.UTC(), entry.BalanceBefore, entry.BalanceAfter,
		entry.SourceType, entry.SourceID, entry.CreatedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// EntriesFor returns an apartment's entries in append (seq) order.
func (r *LedgerRepository) EntriesFor(ctx context.Context, apartmentID string, before *time.Time) ([]ledger.Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	if apartmentID == "" {
		return nil, ledger.ErrEmptyApartmentID
	}

	query := fmt.Sprintf(`
SELECT id, seq, building_id, apartment_id, kind, amount_cents, entry_date,
	balance_before, balance_after, source_type, source_id, created_at
FROM %s
WHERE apartment_id = $1 AND ($2::timestamptz IS NULL OR entry_date < $2)
ORDER BY seq ASC`, r.table)

	var beforeArg any
	if before != nil {
		beforeArg = before.UTC()
	}
	rows, err := r.db.QueryContext(ctx, query, apartmentID, beforeArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// LastFor returns the most recently appended entry for an apartment.
func (r *LedgerRepository) LastFor(ctx context.Context, apartmentID string) (*ledger.Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	if apartmentID == "" {
		return nil, ledger.ErrEmptyApartmentID
	}

	query := fmt.Sprintf(`
SELECT id, seq, building_id, apartment_id, kind, amount_cents, entry_date,
	balance_before, balance_after, source_type, source_id, created_at
FROM %s
WHERE apartment_id = $1
ORDER BY seq DESC
LIMIT 1`, r.table)

	row := r.db.QueryRowContext(ctx, query, apartmentID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

// EntriesBySource returns the entries referencing one business record.
func (r *LedgerRepository) EntriesBySource(ctx context.Context, buildingID, sourceType, sourceID string) ([]ledger.Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, seq, building_id, apartment_id, kind, amount_cents, entry_date,
	balance_before, balance_after, source_type, source_id, created_at
FROM %s
WHERE building_id = $1 AND source_type = $2 AND source_id = $3
ORDER BY seq ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, buildingID, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// EntriesForBuildingInRange returns entries dated in [from, to).
func (r *LedgerRepository) EntriesForBuildingInRange(ctx context.Context, buildingID string, from, to time.Time) ([]ledger.Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	if buildingID == "" {
		return nil, ledger.ErrEmptyBuildingID
	}

	query := fmt.Sprintf(`
SELECT id, seq, building_id, apartment_id, kind, amount_cents, entry_date,
	balance_before, balance_after, source_type, source_id, created_at
FROM %s
WHERE building_id = $1 AND entry_date >= $2 AND entry_date < $3
ORDER BY entry_date ASC, seq ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, buildingID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ApartmentIDs returns distinct apartments with entries in a building.
func (r *LedgerRepository) ApartmentIDs(ctx context.Context, buildingID string) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT DISTINCT apartment_id FROM %s WHERE building_id = $1 ORDER BY apartment_id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, buildingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*ledger.Entry, error) {
	var entry ledger.Entry
	var kind string
	if err := row.Scan(
		&entry.ID,
		&entry.Seq,
		&entry.BuildingID,
		&entry.ApartmentID,
		&kind,
		&entry.AmountCents,
		&entry.Date,
		&entry.BalanceBefore,
		&entry.BalanceAfter,
		&entry.SourceType,
		&entry.SourceID,
		&entry.CreatedAt,
	); err != nil {
		return nil, err
	}
	entry.Kind = ledger.Kind(kind)
	entry.Date = entry.Date.UTC()
	entry.CreatedAt = entry.CreatedAt.UTC()
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]ledger.Entry, error) {
	var result []ledger.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
