package memory

import (
	"context"
	"sort"
	"sync"

	buildings "condo-ledger/internal/buildings/domain"
)

// BuildingRepository is an in-memory repository for buildings.
type BuildingRepository struct {
	mu   sync.RWMutex
	data map[string]buildings.Building
}

// NewBuildingRepository constructs a repository.
func NewBuildingRepository() *BuildingRepository {
	return &BuildingRepository{data: make(map[string]buildings.Building)}
}

// Get loads a building by id.
func (r *BuildingRepository) Get(ctx context.Context, id string) (*buildings.Building, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	building, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	copy := building
	return &copy, nil
}

// List returns buildings for a tenant ordered by id.
func (r *BuildingRepository) List(ctx context.Context, tenantID string) ([]buildings.Building, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []buildings.Building
	for _, building := range r.data {
		if tenantID == "" || building.TenantID == tenantID {
			result = append(result, building)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Save upserts a building.
func (r *BuildingRepository) Save(ctx context.Context, building *buildings.Building) error {
	_ = ctx
	if building == nil {
		return buildings.ErrEmptyBuildingID
	}
	if err := building.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.data[building.ID] = *building
	r.mu.Unlock()
	return nil
}

// ApartmentRepository is an in-memory repository for apartments.
type ApartmentRepository struct {
	mu   sync.RWMutex
	data map[string]buildings.Apartment
}

// NewApartmentRepository constructs a repository.
func NewApartmentRepository() *ApartmentRepository {
	return &ApartmentRepository{data: make(map[string]buildings.Apartment)}
}

// Get loads an apartment by id.
func (r *ApartmentRepository) Get(ctx context.Context, id string) (*buildings.Apartment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	apartment, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	copy := apartment
	return &copy, nil
}

// ListByBuilding returns a building's apartments ordered by id.
func (r *ApartmentRepository) ListByBuilding(ctx context.Context, buildingID string) ([]buildings.Apartment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []buildings.Apartment
	for _, apartment := range r.data {
		if apartment.BuildingID == buildingID {
			result = append(result, apartment)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Save upserts an apartment.
func (r *ApartmentRepository) Save(ctx context.Context, apartment *buildings.Apartment) error {
	_ = ctx
	if apartment == nil {
		return buildings.ErrEmptyApartmentID
	}
	if err := apartment.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.data[apartment.ID] = *apartment
	r.mu.Unlock()
	return nil
}
