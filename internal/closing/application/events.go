package application

import (
	"time"

	"condo-ledger/internal/period"
)

// MonthClosed is published when a building month is frozen.
type MonthClosed struct {
	BuildingID        string
	Period            period.YearMonth
	CarryForwardCents int64
	OccurredAt        time.Time
}

// MonthReopened is published when a closed month is explicitly reopened.
type MonthReopened struct {
	BuildingID string
	Period     period.YearMonth
	Actor      string
	OccurredAt time.Time
}
