package ledger

import (
	"time"
)

// Kind classifies a ledger entry.
type Kind string

const (
	// KindCharge is a cost allocated to the apartment (negative amount).
	KindCharge Kind = "charge"
	// KindPayment is money received from the apartment (positive amount).
	KindPayment Kind = "payment"
	// KindAdjustment is a correcting movement of either sign. Corrections are
	// always new entries; existing entries are never rewritten.
	KindAdjustment Kind = "adjustment"
)

// Source types back-referencing the business record an entry came from.
const (
	SourceExpense       = "expense"
	SourcePayment       = "payment"
	SourceManagementFee = "management_fee"
	SourceReserveFund   = "reserve_fund"
)

// Entry is one immutable signed monetary movement for an apartment, the
// atomic unit of financial truth. Amounts are cents from the apartment's
// point of view: charges negative, payments positive. Entries for an
// apartment ordered by (Date, Seq) form a balance-consistent chain:
// BalanceAfter == BalanceBefore + AmountCents, each BalanceBefore equal to
// the previous BalanceAfter.
type Entry struct {
	ID            string
	Seq           int64
	BuildingID    string
	ApartmentID   string
	Kind          Kind
	AmountCents   int64
	Date          time.Time
	BalanceBefore int64
	BalanceAfter  int64
	SourceType    string
	SourceID      string
	CreatedAt     time.Time
}

// Validate checks entry invariants prior to append.
func (e Entry) Validate() error {
	if e.BuildingID == "" {
		return ErrEmptyBuildingID
	}
	if e.ApartmentID == "" {
		return ErrEmptyApartmentID
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if e.AmountCents == 0 {
		return ErrZeroAmount
	}
	switch e.Kind {
	case KindCharge:
		if e.AmountCents > 0 {
			return ErrSignMismatch
		}
	case KindPayment:
		if e.AmountCents < 0 {
			return ErrSignMismatch
		}
	case KindAdjustment:
		// adjustments carry either sign
	default:
		return ErrInvalidKind
	}
	if e.SourceType == "" || e.SourceID == "" {
		return ErrMissingSource
	}
	return nil
}

// Signed folds a positive share into the signed amount for the kind.
func Signed(kind Kind, cents int64) int64 {
	if kind == KindCharge && cents > 0 {
		return -cents
	}
	return cents
}
