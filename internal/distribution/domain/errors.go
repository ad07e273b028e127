package distribution

import "errors"

var (
	// ErrInvalidType is returned for an unknown distribution type.
	ErrInvalidType = errors.New("distribution: invalid distribution type")
	// ErrNonPositiveAmount is returned when the expense amount is not strictly positive.
	ErrNonPositiveAmount = errors.New("distribution: amount must be positive")
	// ErrEmptyApartmentSet is returned when no apartments are supplied.
	ErrEmptyApartmentSet = errors.New("distribution: empty apartment set")
	// ErrNegativeWeight is returned when an apartment carries a negative weight.
	ErrNegativeWeight = errors.New("distribution: negative weight")
	// ErrAlreadyDistributed is returned when a fresh allocation is requested
	// for an expense whose charges already exist. The caller must reverse
	// the existing entries first.
	ErrAlreadyDistributed = errors.New("distribution: expense already distributed")
	// ErrExpenseNotFound is returned when the expense record does not exist.
	ErrExpenseNotFound = errors.New("distribution: expense not found")
	// ErrEmptyExpenseID is returned for an expense without an identifier.
	ErrEmptyExpenseID = errors.New("distribution: empty expense id")
)
