package buildings

import "errors"

var (
	// ErrEmptyBuildingID is returned when a building id is empty.
	ErrEmptyBuildingID = errors.New("buildings: empty building id")
	// ErrEmptyTenantID is returned when a tenant id is empty.
	ErrEmptyTenantID = errors.New("buildings: empty tenant id")
	// ErrEmptyApartmentID is returned when an apartment id is empty.
	ErrEmptyApartmentID = errors.New("buildings: empty apartment id")
	// ErrNegativeMills is returned when a mills weight is negative.
	ErrNegativeMills = errors.New("buildings: negative mills")
	// ErrNegativeFee is returned when a fee or goal amount is negative.
	ErrNegativeFee = errors.New("buildings: negative amount")
	// ErrInvalidReserveDuration is returned when a reserve goal has no duration.
	ErrInvalidReserveDuration = errors.New("buildings: reserve duration must be positive")
	// ErrInvalidReservePriority is returned for unknown priority values.
	ErrInvalidReservePriority = errors.New("buildings: invalid reserve priority")
	// ErrBuildingNotFound is returned when a building does not exist.
	ErrBuildingNotFound = errors.New("buildings: building not found")
	// ErrApartmentNotFound is returned when an apartment does not exist.
	ErrApartmentNotFound = errors.New("buildings: apartment not found")
)
