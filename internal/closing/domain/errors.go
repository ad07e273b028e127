package closing

import "errors"

var (
	// ErrAlreadyClosed is returned when closing a month that is closed.
	ErrAlreadyClosed = errors.New("closing: month already closed")
	// ErrNotClosed is returned when reopening a month that is open.
	ErrNotClosed = errors.New("closing: month is not closed")
	// ErrSequentialClose is returned when months are closed or reopened out
	// of calendar order.
	ErrSequentialClose = errors.New("closing: months must close in order")
	// ErrNotFound is returned when no row exists for the building month.
	ErrNotFound = errors.New("closing: monthly balance not found")
	// ErrEmptyBuildingID is returned for a missing building reference.
	ErrEmptyBuildingID = errors.New("closing: empty building id")
)
