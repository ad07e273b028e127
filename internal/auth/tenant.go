package auth

import (
	"context"
	"database/sql"

	buildingrepo "condo-ledger/internal/buildings/infrastructure/postgres"
)

// BuildingTenantChecker validates building tenant ownership.
type BuildingTenantChecker interface {
	EnsureBuildingTenant(ctx context.Context, tenantID, buildingID string) error
}

// BuildingChecker checks building ownership against the buildings table.
type BuildingChecker struct {
	repo *buildingrepo.BuildingRepository
}

// NewBuildingChecker constructs a BuildingChecker.
func NewBuildingChecker(db *sql.DB) *BuildingChecker {
	if db == nil {
		return nil
	}
	return &BuildingChecker{repo: buildingrepo.NewBuildingRepository(db)}
}

// EnsureBuildingTenant verifies the building belongs to the tenant.
func (c *BuildingChecker) EnsureBuildingTenant(ctx context.Context, tenantID, buildingID string) error {
	if c == nil || c.repo == nil {
		return nil
	}
	if tenantID == "" || buildingID == "" {
		return nil
	}
	building, err := c.repo.Get(ctx, buildingID)
	if err != nil {
		return err
	}
	if building == nil {
		return ErrNotFound
	}
	if building.TenantID != tenantID {
		return ErrTenantMismatch
	}
	return nil
}
