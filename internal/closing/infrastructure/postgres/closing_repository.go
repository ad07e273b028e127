package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	closing "condo-ledger/internal/closing/domain"
	"condo-ledger/internal/period"
)

const defaultMonthlyBalancesTable = "monthly_balances"

// ClosingRepository is a Postgres implementation for monthly balances.
type ClosingRepository struct {
	db    *sql.DB
	table string
}

// NewClosingRepository constructs a repository.
func NewClosingRepository(db *sql.DB, opts ...ClosingOption) *ClosingRepository {
	repo := &ClosingRepository{db: db, table: defaultMonthlyBalancesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ClosingOption configures the repository.
type ClosingOption func(*ClosingRepository)

// WithMonthlyBalancesTable overrides the default table name.
func WithMonthlyBalancesTable(table string) ClosingOption {
	return func(repo *ClosingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

const monthlyBalanceColumns = `id, building_id, year, month, total_expenses_cents,
	total_payments_cents, previous_obligations_cents, reserve_fund_cents,
	management_fees_cents, carry_forward_cents, is_closed, closed_at,
	created_at, updated_at`

// FindByPeriod returns the row for (building, month), nil when absent.
func (r *ClosingRepository) FindByPeriod(ctx context.Context, buildingID string, ym period.YearMonth) (*closing.MonthlyBalance, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("closing repo: nil db")
	}
	if buildingID == "" {
		return nil, closing.ErrEmptyBuildingID
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE building_id = $1 AND year = $2 AND month = $3
LIMIT 1`, monthlyBalanceColumns, r.table)

	balance, err := scanMonthlyBalance(r.db.QueryRowContext(ctx, query, buildingID, ym.Year, int(ym.Month)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return balance, nil
}

// Save upserts a row on its (building, year, month) unique key.
func (r *ClosingRepository) Save(ctx context.Context, balance *closing.MonthlyBalance) error {
	if r == nil || r.db == nil {
		return errors.New("closing repo: nil db")
	}
	if balance == nil || balance.BuildingID == "" {
		return closing.ErrEmptyBuildingID
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, building_id, year, month, total_expenses_cents,
	total_payments_cents, previous_obligations_cents, reserve_fund_cents,
	management_fees_cents, carry_forward_cents, is_closed, closed_at,
	created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
ON CONFLICT (building_id, year, month) DO UPDATE SET
	total_expenses_cents = EXCLUDED.total_expenses_cents,
	total_payments_cents = EXCLUDED.total_payments_cents,
	previous_obligations_cents = EXCLUDED.previous_obligations_cents,
	reserve_fund_cents = EXCLUDED.reserve_fund_cents,
	management_fees_cents = EXCLUDED.management_fees_cents,
	carry_forward_cents = EXCLUDED.carry_forward_cents,
	is_closed = EXCLUDED.is_closed,
	closed_at = EXCLUDED.closed_at,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		balance.ID,
		balance.BuildingID,
		balance.Period.Year,
		int(balance.Period.Month),
		balance.TotalExpensesCents,
		balance.TotalPaymentsCents,
		balance.PreviousObligations,
		balance.ReserveFundCents,
		balance.ManagementFeesCents,
		balance.CarryForwardCents,
		balance.IsClosed,
		balance.ClosedAt,
	)
	return err
}

// ListByBuilding returns the building's rows in ascending period order.
func (r *ClosingRepository) ListByBuilding(ctx context.Context, buildingID string) ([]closing.MonthlyBalance, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("closing repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE building_id = $1
ORDER BY year, month`, monthlyBalanceColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, buildingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []closing.MonthlyBalance
	for rows.Next() {
		balance, err := scanMonthlyBalance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *balance)
	}
	return result, rows.Err()
}

// IsClosedAt reports whether the month containing at is closed.
func (r *ClosingRepository) IsClosedAt(ctx context.Context, buildingID string, at time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("closing repo: nil db")
	}
	ym := period.FromTime(at)

	query := fmt.Sprintf(`
SELECT is_closed
FROM %s
WHERE building_id = $1 AND year = $2 AND month = $3
LIMIT 1`, r.table)

	var isClosed bool
	if err := r.db.QueryRowContext(ctx, query, buildingID, ym.Year, int(ym.Month)).Scan(&isClosed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return isClosed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonthlyBalance(row rowScanner) (*closing.MonthlyBalance, error) {
	var balance closing.MonthlyBalance
	var year, month int
	var closedAt sql.NullTime
	if err := row.Scan(
		&balance.ID,
		&balance.BuildingID,
		&year,
		&month,
		&balance.TotalExpensesCents,
		&balance.TotalPaymentsCents,
		&balance.PreviousObligations,
		&balance.ReserveFundCents,
		&balance.ManagementFeesCents,
		&balance.CarryForwardCents,
		&balance.IsClosed,
		&closedAt,
		&balance.CreatedAt,
		&balance.UpdatedAt,
	); err != nil {
		return nil, err
	}
	balance.Period = period.YearMonth{Year: year, Month: time.Month(month)}
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		balance.ClosedAt = &at
	}
	return &balance, nil
}
