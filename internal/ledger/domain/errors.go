package ledger

import "errors"

var (
	// ErrEmptyBuildingID is returned when building id is empty.
	ErrEmptyBuildingID = errors.New("ledger: empty building id")
	// ErrEmptyApartmentID is returned when apartment id is empty.
	ErrEmptyApartmentID = errors.New("ledger: empty apartment id")
	// ErrInvalidDate is returned when an entry date is zero.
	ErrInvalidDate = errors.New("ledger: invalid entry date")
	// ErrZeroAmount is returned when an entry amount is zero.
	ErrZeroAmount = errors.New("ledger: zero amount")
	// ErrSignMismatch is returned when an amount sign contradicts the kind.
	ErrSignMismatch = errors.New("ledger: amount sign does not match kind")
	// ErrInvalidKind is returned for unknown entry kinds.
	ErrInvalidKind = errors.New("ledger: invalid entry kind")
	// ErrMissingSource is returned when the source back-reference is empty.
	ErrMissingSource = errors.New("ledger: missing source reference")
	// ErrMonthClosed is returned when an entry falls inside a closed month.
	ErrMonthClosed = errors.New("ledger: month is closed")
	// ErrDataIntegrity indicates the replayed ledger contradicts stored
	// balance stamps. Fatal for automatic processing: surfaced for manual
	// review, never silently repaired.
	ErrDataIntegrity = errors.New("ledger: data integrity violation")
	// ErrNilEntry is returned when appending a nil entry.
	ErrNilEntry = errors.New("ledger: nil entry")
)
