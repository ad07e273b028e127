package distribution

import (
	"fmt"

	buildings "condo-ledger/internal/buildings/domain"
)

// Type selects the rule mapping an expense amount to per-apartment shares.
type Type string

const (
	// TypeEqualShare splits the amount evenly across apartments.
	TypeEqualShare Type = "equal_share"
	// TypeByParticipationMills weights by ownership mills.
	TypeByParticipationMills Type = "by_participation_mills"
	// TypeByHeatingMills weights by heating mills.
	TypeByHeatingMills Type = "by_heating_mills"
	// TypeByElevatorMills weights by elevator mills.
	TypeByElevatorMills Type = "by_elevator_mills"
	// TypeByMeters weights by a supplied consumption map, falling back to
	// participation mills when none is given.
	TypeByMeters Type = "by_meters"
	// TypeSpecificApartments behaves like TypeByMeters: the caller supplies
	// the weight map naming the apartments to charge.
	TypeSpecificApartments Type = "specific_apartments"
)

// ParseType validates a raw distribution type string.
func ParseType(raw string) (Type, error) {
	switch Type(raw) {
	case TypeEqualShare, TypeByParticipationMills, TypeByHeatingMills,
		TypeByElevatorMills, TypeByMeters, TypeSpecificApartments:
		return Type(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, raw)
}

// weightFor returns the apartment weight for the rule. Consumption-driven
// rules read the supplied map; the mills rules read the apartment fields.
func (t Type) weightFor(apartment buildings.Apartment, consumption map[string]int64) (int64, bool) {
	switch t {
	case TypeEqualShare:
		return 1, true
	case TypeByParticipationMills:
		return int64(apartment.ParticipationMills), true
	case TypeByHeatingMills:
		return int64(apartment.HeatingMills), true
	case TypeByElevatorMills:
		return int64(apartment.ElevatorMills), true
	case TypeByMeters, TypeSpecificApartments:
		if consumption != nil {
			weight, ok := consumption[apartment.ID]
			if !ok {
				return 0, true
			}
			return weight, true
		}
		return int64(apartment.ParticipationMills), true
	}
	return 0, false
}
