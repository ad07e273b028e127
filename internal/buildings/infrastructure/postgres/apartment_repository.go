package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	buildings "condo-ledger/internal/buildings/domain"
)

const defaultApartmentsTable = "apartments"

// ApartmentRepository is a Postgres implementation for apartments.
type ApartmentRepository struct {
	db    *sql.DB
	table string
}

// NewApartmentRepository constructs a repository.
func NewApartmentRepository(db *sql.DB, opts ...ApartmentOption) *ApartmentRepository {
	repo := &ApartmentRepository{db: db, table: defaultApartmentsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ApartmentOption configures the repository.
type ApartmentOption func(*ApartmentRepository)

// WithApartmentTable overrides the default table name.
func WithApartmentTable(table string) ApartmentOption {
	return func(repo *ApartmentRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads an apartment by id.
func (r *ApartmentRepository) Get(ctx context.Context, id string) (*buildings.Apartment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("apartment repo: nil db")
	}
	if id == "" {
		return nil, buildings.ErrEmptyApartmentID
	}

	query := fmt.Sprintf(`
SELECT id, building_id, number, owner_name, participation_mills, heating_mills,
	elevator_mills, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var apartment buildings.Apartment
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&apartment.ID,
		&apartment.BuildingID,
		&apartment.Number,
		&apartment.OwnerName,
		&apartment.ParticipationMills,
		&apartment.HeatingMills,
		&apartment.ElevatorMills,
		&apartment.CreatedAt,
		&apartment.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	apartment.CreatedAt = apartment.CreatedAt.UTC()
	apartment.UpdatedAt = apartment.UpdatedAt.UTC()
	return &apartment, nil
}

// ListByBuilding returns all apartments of a building ordered by id.
func (r *ApartmentRepository) ListByBuilding(ctx context.Context, buildingID string) ([]buildings.Apartment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("apartment repo: nil db")
	}
	if buildingID == "" {
		return nil, buildings.ErrEmptyBuildingID
	}

	query := fmt.Sprintf(`
SELECT id, building_id, number, owner_name, participation_mills, heating_mills,
	elevator_mills, created_at, updated_at
FROM %s
WHERE building_id = $1
ORDER BY id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, buildingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []buildings.Apartment
	for rows.Next() {
		var apartment buildings.Apartment
		if err := rows.Scan(
			&apartment.ID,
			&apartment.BuildingID,
			&apartment.Number,
			&apartment.OwnerName,
			&apartment.ParticipationMills,
			&apartment.HeatingMills,
			&apartment.ElevatorMills,
			&apartment.CreatedAt,
			&apartment.UpdatedAt,
		); err != nil {
			return nil, err
		}
		apartment.CreatedAt = apartment.CreatedAt.UTC()
		apartment.UpdatedAt = apartment.UpdatedAt.UTC()
		result = append(result, apartment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts an apartment.
func (r *ApartmentRepository) Save(ctx context.Context, apartment *buildings.Apartment) error {
	if r == nil || r.db == nil {
		return errors.New("apartment repo: nil db")
	}
	if apartment == nil {
		return errors.New("apartment repo: nil apartment")
	}
	if err := apartment.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	building_id,
	number,
	owner_name,
	participation_mills,
	heating_mills,
	elevator_mills,
	created_at,
	updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $8
)
ON CONFLICT (id)
DO UPDATE SET
	number = EXCLUDED.number,
	owner_name = EXCLUDED.owner_name,
	participation_mills = EXCLUDED.participation_mills,
	heating_mills = EXCLUDED.heating_mills,
	elevator_mills = EXCLUDED.elevator_mills,
	updated_at = EXCLUDED.updated_at`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		apartment.ID,
		apartment.BuildingID,
		apartment.Number,
		apartment.OwnerName,
		apartment.ParticipationMills,
		apartment.HeatingMills,
		apartment.ElevatorMills,
		time.Now().UTC(),
	)
	return err
}
