package apihttp

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"condo-ledger/internal/money"
)

const timeLayout = time.RFC3339

// DashboardHandler serves per-building bookkeeping summaries.
type DashboardHandler struct {
	db *sql.DB
}

// NewDashboardHandler constructs a DashboardHandler.
func NewDashboardHandler(db *sql.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

// ServeHTTP handles GET /api/v1/dashboard.
func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	buildingID := r.URL.Query().Get("building_id")
	if buildingID == "" {
		http.Error(w, "building_id is required", http.StatusBadRequest)
		return
	}

	summary, err := queryDashboard(r.Context(), h.db, buildingID)
	if err != nil {
		http.Error(w, "query dashboard error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

// ExportLedgerCSVHandler serves ledger entry CSV exports.
type ExportLedgerCSVHandler struct {
	db *sql.DB
}

// NewExportLedgerCSVHandler constructs an ExportLedgerCSVHandler.
func NewExportLedgerCSVHandler(db *sql.DB) *ExportLedgerCSVHandler {
	return &ExportLedgerCSVHandler{db: db}
}

// ServeHTTP handles GET /api/v1/exports/ledger.csv.
func (h *ExportLedgerCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	buildingID := r.URL.Query().Get("building_id")
	if buildingID == "" {
		http.Error(w, "building_id is required", http.StatusBadRequest)
		return
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	rows, err := queryLedgerEntries(r.Context(), h.db, buildingID, from, to)
	if err != nil {
		http.Error(w, "query ledger error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"seq",
		"building_id",
		"apartment_id",
		"kind",
		"amount",
		"entry_date",
		"balance_before",
		"balance_after",
		"source_type",
		"source_id",
		"created_at",
	})
	for _, row := range rows {
		_ = writer.Write([]string{
			formatInt64(row.Seq),
			row.BuildingID,
			row.ApartmentID,
			row.Kind,
			money.Format(row.AmountCents),
			row.EntryDate.Format(timeLayout),
			money.Format(row.BalanceBefore),
			money.Format(row.BalanceAfter),
			row.SourceType,
			row.SourceID,
			formatTime(row.CreatedAt),
		})
	}
	writer.Flush()
}

type dashboardSummary struct {
	BuildingID       string `json:"building_id"`
	ApartmentCount   int    `json:"apartment_count"`
	EntryCount       int64  `json:"entry_count"`
	TotalOutstanding string `json:"total_outstanding"`
	OpenMonths       int    `json:"open_months"`
	ClosedMonths     int    `json:"closed_months"`
}

type ledgerEntryRow struct {
	Seq           int64     `json:"seq"`
	BuildingID    string    `json:"building_id"`
	ApartmentID   string    `json:"apartment_id"`
	Kind          string    `json:"kind"`
	AmountCents   int64     `json:"amount_cents"`
	EntryDate     time.Time `json:"entry_date"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	SourceType    string    `json:"source_type"`
	SourceID      string    `json:"source_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func queryDashboard(ctx context.Context, db *sql.DB, buildingID string) (*dashboardSummary, error) {
	summary := &dashboardSummary{BuildingID: buildingID}

	if err := db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM apartments WHERE building_id = $1`, buildingID).
		Scan(&summary.ApartmentCount); err != nil {
		return nil, err
	}

	// Outstanding debt is the sum of negative running balances over
	// each apartment's latest entry.
	var outstanding sql.NullInt64
	if err := db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(CASE WHEN latest.balance_after < 0 THEN -latest.balance_after ELSE 0 END), 0)
FROM (
	SELECT DISTINCT ON (apartment_id) apartment_id, balance_after
	FROM ledger_entries
	WHERE building_id = $1
	ORDER BY apartment_id, entry_date DESC, seq DESC
) latest`, buildingID).Scan(new(int), &outstanding); err != nil {
		return nil, err
	}
	summary.TotalOutstanding = money.Format(outstanding.Int64)

	if err := db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM ledger_entries WHERE building_id = $1`, buildingID).
		Scan(&summary.EntryCount); err != nil {
		return nil, err
	}

	if err := db.QueryRowContext(ctx, `
SELECT
	COUNT(*) FILTER (WHERE is_closed = FALSE),
	COUNT(*) FILTER (WHERE is_closed = TRUE)
FROM monthly_balances
WHERE building_id = $1`, buildingID).
		Scan(&summary.OpenMonths, &summary.ClosedMonths); err != nil {
		return nil, err
	}

	return summary, nil
}

func queryLedgerEntries(ctx context.Context, db *sql.DB, buildingID string, from, to time.Time) ([]ledgerEntryRow, error) {
	rows, err := db.QueryContext(ctx, `
SELECT
	seq,
	building_id,
	apartment_id,
	kind,
	amount_cents,
	entry_date,
	balance_before,
	balance_after,
	source_type,
	source_id,
	created_at
FROM ledger_entries
WHERE building_id = $1
	AND entry_date >= $2
	AND entry_date < $3
ORDER BY entry_date ASC, seq ASC`, buildingID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledgerEntryRow
	for rows.Next() {
		var row ledgerEntryRow
		if err := rows.Scan(
			&row.Seq,
			&row.BuildingID,
			&row.ApartmentID,
			&row.Kind,
			&row.AmountCents,
			&row.EntryDate,
			&row.BalanceBefore,
			&row.BalanceAfter,
			&row.SourceType,
			&row.SourceID,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		row.EntryDate = row.EntryDate.UTC()
		row.CreatedAt = row.CreatedAt.UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}

func formatInt64(value int64) string {
	return strconv.FormatInt(value, 10)
}
