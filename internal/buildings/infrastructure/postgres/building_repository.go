package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	buildings "condo-ledger/internal/buildings/domain"
)

const defaultBuildingsTable = "buildings"

// BuildingRepository is a Postgres implementation for buildings.
type BuildingRepository struct {
	db    *sql.DB
	table string
}

// NewBuildingRepository constructs a repository.
func NewBuildingRepository(db *sql.DB, opts ...BuildingOption) *BuildingRepository {
	repo := &BuildingRepository{db: db, table: defaultBuildingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// BuildingOption configures the repository.
type BuildingOption func(*BuildingRepository)

// WithBuildingTable overrides the default table name.
func WithBuildingTable(table string) BuildingOption {
	return func(repo *BuildingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a building by id.
func (r *BuildingRepository) Get(ctx context.Context, id string) (*buildings.Building, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("building repo: nil db")
	}
	if id == "" {
		return nil, buildings.ErrEmptyBuildingID
	}

	query := fmt.Sprintf(`
SELECT id, tenant_id, name, participation_mills_total, management_fee_cents,
	reserve_fund_goal_cents, reserve_fund_duration_months, reserve_fund_start,
	reserve_fund_priority, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var building buildings.Building
	var priority string
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&building.ID,
		&building.TenantID,
		&building.Name,
		&building.ParticipationMillsTotal,
		&building.ManagementFeeCents,
		&building.ReserveFundGoalCents,
		&building.ReserveFundDuration,
		&building.ReserveFundStart,
		&priority,
		&building.CreatedAt,
		&building.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	building.ReserveFundPriority = buildings.ReservePriority(priority)
	building.ReserveFundStart = building.ReserveFundStart.UTC()
	building.CreatedAt = building.CreatedAt.UTC()
	building.UpdatedAt = building.UpdatedAt.UTC()
	return &building, nil
}

// List returns buildings for a tenant.
func (r *BuildingRepository) List(ctx context.Context, tenantID string) ([]buildings.Building, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("building repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, tenant_id, name, participation_mills_total, management_fee_cents,
	reserve_fund_goal_cents, reserve_fund_duration_months, reserve_fund_start,
	reserve_fund_priority, created_at, updated_at
FROM %s
WHERE tenant_id = $1
ORDER BY id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []buildings.Building
	for rows.Next() {
		var building buildings.Building
		var priority string
		if err := rows.Scan(
			&building.ID,
			&building.TenantID,
			&building.Name,
			&building.ParticipationMillsTotal,
			&building.ManagementFeeCents,
			&building.ReserveFundGoalCents,
			&building.ReserveFundDuration,
			&building.ReserveFundStart,
			&priority,
			&building.CreatedAt,
			&building.UpdatedAt,
		); err != nil {
			return nil, err
		}
		building.ReserveFundPriority = buildings.ReservePriority(priority)
		building.ReserveFundStart = building.ReserveFundStart.UTC()
		building.CreatedAt = building.CreatedAt.UTC()
		building.UpdatedAt = building.UpdatedAt.UTC()
		result = append(result, building)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a building.
func (r *BuildingRepository) Save(ctx context.Context, building *buildings.Building) error {
	if r == nil || r.db == nil {
		return errors.New("building repo: nil db")
	}
	if building == nil {
		return errors.New("building repo: nil building")
	}
	if err := building.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	tenant_id,
	name,
	participation_mills_total,
	management_fee_cents,
	reserve_fund_goal_cents,
	reserve_fund_duration_months,
	reserve_fund_start,
	reserve_fund_priority,
	created_at,
	updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10
)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	participation_mills_total = EXCLUDED.participation_mills_total,
	management_fee_cents = EXCLUDED.management_fee_cents,
	reserve_fund_goal_cents = EXCLUDED.reserve_fund_goal_cents,
	reserve_fund_duration_months = EXCLUDED.reserve_fund_duration_months,
	reserve_fund_start = EXCLUDED.reserve_fund_start,
	reserve_fund_priority = EXCLUDED.reserve_fund_priority,
	updated_at = EXCLUDED.updated_at`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		building.ID,
		building.TenantID,
		building.Name,
		building.ParticipationMillsTotal,
		building.ManagementFeeCents,
		building.ReserveFundGoalCents,
		building.ReserveFundDuration,
		building.ReserveFundStart.UTC(),
		string(building.ReserveFundPriority),
		time.Now().UTC(),
	)
	return err
}
