package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	distribution "condo-ledger/internal/distribution/domain"
)

const defaultExpensesTable = "expenses"

// ExpenseRepository is a Postgres implementation for expenses.
type ExpenseRepository struct {
	db    *sql.DB
	table string
}

// NewExpenseRepository constructs a repository.
func NewExpenseRepository(db *sql.DB, opts ...ExpenseOption) *ExpenseRepository {
	repo := &ExpenseRepository{db: db, table: defaultExpensesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ExpenseOption configures the repository.
type ExpenseOption func(*ExpenseRepository)

// WithExpenseTable overrides the default table name.
func WithExpenseTable(table string) ExpenseOption {
	return func(repo *ExpenseRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Save upserts an expense row. The consumption map is stored as JSONB.
func (r *ExpenseRepository) Save(ctx context.Context, expense *distribution.Expense) error {
	if r == nil || r.db == nil {
		return errors.New("expense repo: nil db")
	}
	if expense == nil || expense.ID == "" {
		return distribution.ErrEmptyExpenseID
	}

	var consumption any
	if len(expense.Consumption) > 0 {
		raw, err := json.Marshal(expense.Consumption)
		if err != nil {
			return fmt.Errorf("expense repo: marshal consumption: %w", err)
		}
		consumption = raw
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, building_id, amount_cents, expense_date, category,
	distribution_type, due_date, consumption, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (id) DO UPDATE SET
	amount_cents = EXCLUDED.amount_cents,
	expense_date = EXCLUDED.expense_date,
	category = EXCLUDED.category,
	distribution_type = EXCLUDED.distribution_type,
	due_date = EXCLUDED.due_date,
	consumption = EXCLUDED.consumption`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		expense.ID,
		expense.BuildingID,
		expense.AmountCents,
		expense.Date.UTC(),
		expense.Category,
		string(expense.Type),
		expense.DueDate,
		consumption,
	)
	return err
}

// Get loads an expense by id, nil when absent.
func (r *ExpenseRepository) Get(ctx context.Context, id string) (*distribution.Expense, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("expense repo: nil db")
	}
	if id == "" {
		return nil, distribution.ErrEmptyExpenseID
	}

	query := fmt.Sprintf(`
SELECT id, building_id, amount_cents, expense_date, category,
	distribution_type, due_date, consumption, created_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	expense, err := scanExpense(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return expense, nil
}

// ListByBuildingInRange returns expenses dated in [from, to) ordered by
// (expense_date, id).
func (r *ExpenseRepository) ListByBuildingInRange(ctx context.Context, buildingID string, from, to time.Time) ([]distribution.Expense, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("expense repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, building_id, amount_cents, expense_date, category,
	distribution_type, due_date, consumption, created_at
FROM %s
WHERE building_id = $1 AND expense_date >= $2 AND expense_date < $3
ORDER BY expense_date, id`, r.table)

	rows, err := r.db.QueryContext(ctx, query, buildingID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []distribution.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *expense)
	}
	return result, rows.Err()
}

// Delete removes an expense row.
func (r *ExpenseRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("expense repo: nil db")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return distribution.ErrExpenseNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*distribution.Expense, error) {
	var expense distribution.Expense
	var distributionType string
	var dueDate sql.NullTime
	var consumption []byte
	if err := row.Scan(
		&expense.ID,
		&expense.BuildingID,
		&expense.AmountCents,
		&expense.Date,
		&expense.Category,
		&distributionType,
		&dueDate,
		&consumption,
		&expense.CreatedAt,
	); err != nil {
		return nil, err
	}
	expense.Type = distribution.Type(distributionType)
	expense.Date = expense.Date.UTC()
	if dueDate.Valid {
		due := dueDate.Time.UTC()
		expense.DueDate = &due
	}
	if len(consumption) > 0 {
		if err := json.Unmarshal(consumption, &expense.Consumption); err != nil {
			return nil, fmt.Errorf("expense repo: decode consumption: %w", err)
		}
	}
	return &expense, nil
}
