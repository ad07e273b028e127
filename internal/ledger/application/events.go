package application

import "time"

// PaymentRecorded is emitted after a payment entry is appended.
type PaymentRecorded struct {
	BuildingID  string
	ApartmentID string
	PaymentID   string
	AmountCents int64
	Date        time.Time
	OccurredAt  time.Time
}

// EntriesReversed is emitted after compensating entries are appended for a
// deleted source record.
type EntriesReversed struct {
	BuildingID   string
	SourceType   string
	SourceID     string
	ApartmentIDs []string
	OccurredAt   time.Time
}
