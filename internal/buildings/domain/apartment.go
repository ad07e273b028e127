package buildings

import (
	"context"
	"time"
)

// MillsKind selects one of the per-apartment weight fields.
type MillsKind string

const (
	MillsParticipation MillsKind = "participation"
	MillsHeating       MillsKind = "heating"
	MillsElevator      MillsKind = "elevator"
)

// Apartment is the configuration read model for one apartment. It carries no
// balance: balances are always derived from the ledger.
type Apartment struct {
	ID                 string
	BuildingID         string
	Number             string
	OwnerName          string
	ParticipationMills int
	HeatingMills       int
	ElevatorMills      int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate checks apartment invariants.
func (a Apartment) Validate() error {
	if a.ID == "" {
		return ErrEmptyApartmentID
	}
	if a.BuildingID == "" {
		return ErrEmptyBuildingID
	}
	if a.ParticipationMills < 0 || a.HeatingMills < 0 || a.ElevatorMills < 0 {
		return ErrNegativeMills
	}
	return nil
}

// Mills returns the weight of the requested kind.
func (a Apartment) Mills(kind MillsKind) int {
	switch kind {
	case MillsHeating:
		return a.HeatingMills
	case MillsElevator:
		return a.ElevatorMills
	default:
		return a.ParticipationMills
	}
}

// ApartmentRepository manages apartment read models.
type ApartmentRepository interface {
	Get(ctx context.Context, id string) (*Apartment, error)
	ListByBuilding(ctx context.Context, buildingID string) ([]Apartment, error)
	Save(ctx context.Context, apartment *Apartment) error
}
