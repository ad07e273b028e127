package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"

	buildings "condo-ledger/internal/buildings/domain"
)

// RegisterRequest defines a building onboarding payload.
type RegisterRequest struct {
	Building   BuildingInput    `json:"building"`
	Apartments []ApartmentInput `json:"apartments"`
}

// BuildingInput describes a building to register.
type BuildingInput struct {
	ID                   string `json:"id"`
	TenantID             string `json:"tenant_id"`
	Name                 string `json:"name"`
	ParticipationTotal   int    `json:"participation_mills_total"`
	ManagementFeeCents   int64  `json:"management_fee_cents"`
	ReserveFundGoalCents int64  `json:"reserve_fund_goal_cents"`
	ReserveFundDuration  int    `json:"reserve_fund_duration_months"`
	ReserveFundStart     string `json:"reserve_fund_start"`
	ReserveFundPriority  string `json:"reserve_fund_priority"`
}

// ApartmentInput describes an apartment to register.
type ApartmentInput struct {
	ID                 string `json:"id"`
	Number             string `json:"number"`
	OwnerName          string `json:"owner_name"`
	ParticipationMills int    `json:"participation_mills"`
	HeatingMills       int    `json:"heating_mills"`
	ElevatorMills      int    `json:"elevator_mills"`
}

// RegisterResponse summarizes onboarding output.
type RegisterResponse struct {
	BuildingID   string   `json:"building_id"`
	ApartmentIDs []string `json:"apartment_ids"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Service registers buildings and their apartments.
type Service struct {
	buildings  buildings.BuildingRepository
	apartments buildings.ApartmentRepository
	clock      func() time.Time
}

// NewService constructs an onboarding service.
func NewService(buildingRepo buildings.BuildingRepository, apartmentRepo buildings.ApartmentRepository) (*Service, error) {
	if buildingRepo == nil || apartmentRepo == nil {
		return nil, errors.New("provisioning: nil repository")
	}
	return &Service{
		buildings:  buildingRepo,
		apartments: apartmentRepo,
		clock:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the service clock.
func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// RegisterBuilding persists a building and its apartments. IDs left blank are
// derived deterministically so replays of the same payload hit the same rows.
func (s *Service) RegisterBuilding(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	if err := validateRegister(req); err != nil {
		return nil, err
	}

	buildingID := req.Building.ID
	if buildingID == "" {
		buildingID = stableID("bld", req.Building.TenantID+"|"+req.Building.Name)
	}
	for i := range req.Apartments {
		if req.Apartments[i].ID == "" {
			req.Apartments[i].ID = stableID("apt", buildingID+"|"+req.Apartments[i].Number)
		}
	}

	priority, ok := buildings.NormalizeReservePriority(req.Building.ReserveFundPriority)
	if !ok {
		return nil, buildings.ErrInvalidReservePriority
	}
	var reserveStart time.Time
	if req.Building.ReserveFundStart != "" {
		parsed, err := time.Parse("2006-01-02", req.Building.ReserveFundStart)
		if err != nil {
			return nil, errors.New("provisioning: reserve_fund_start must be YYYY-MM-DD")
		}
		reserveStart = parsed.UTC()
	}

	now := s.clock()
	building := &buildings.Building{
		ID:                      buildingID,
		TenantID:                req.Building.TenantID,
		Name:                    req.Building.Name,
		ParticipationMillsTotal: req.Building.ParticipationTotal,
		ManagementFeeCents:      req.Building.ManagementFeeCents,
		ReserveFundGoalCents:    req.Building.ReserveFundGoalCents,
		ReserveFundDuration:     req.Building.ReserveFundDuration,
		ReserveFundStart:        reserveStart,
		ReserveFundPriority:     priority,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := building.Validate(); err != nil {
		return nil, err
	}
	if err := s.buildings.Save(ctx, building); err != nil {
		return nil, err
	}

	resp := &RegisterResponse{BuildingID: buildingID}
	saved := make([]buildings.Apartment, 0, len(req.Apartments))
	for _, input := range req.Apartments {
		apartment := &buildings.Apartment{
			ID:                 input.ID,
			BuildingID:         buildingID,
			Number:             input.Number,
			OwnerName:          input.OwnerName,
			ParticipationMills: input.ParticipationMills,
			HeatingMills:       input.HeatingMills,
			ElevatorMills:      input.ElevatorMills,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := apartment.Validate(); err != nil {
			return nil, err
		}
		if err := s.apartments.Save(ctx, apartment); err != nil {
			return nil, err
		}
		saved = append(saved, *apartment)
		resp.ApartmentIDs = append(resp.ApartmentIDs, apartment.ID)
	}

	resp.Warnings = building.Warnings(saved)
	return resp, nil
}

func validateRegister(req RegisterRequest) error {
	if req.Building.TenantID == "" {
		return errors.New("provisioning: missing building tenant_id")
	}
	if req.Building.Name == "" {
		return errors.New("provisioning: missing building name")
	}
	if len(req.Apartments) == 0 {
		return errors.New("provisioning: apartments required")
	}
	for _, apartment := range req.Apartments {
		if apartment.Number == "" {
			return errors.New("provisioning: apartment number required")
		}
	}
	return nil
}

func stableID(prefix, key string) string {
	sum := sha1.Sum([]byte(key))
	return prefix + "-" + hex.EncodeToString(sum[:8])
}
