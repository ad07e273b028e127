package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	ledger "condo-ledger/internal/ledger/domain"
)

// Calculator derives apartment balances by replaying the ledger. Replay is
// the only sanctioned way to obtain a balance; any stored balance field is a
// disposable projection of it.
type Calculator struct {
	repo ledger.Repository
}

// NewCalculator constructs a Calculator.
func NewCalculator(repo ledger.Repository) (*Calculator, error) {
	if repo == nil {
		return nil, errors.New("balance calculator: nil repository")
	}
	return &Calculator{repo: repo}, nil
}

// BalanceAsOf sums every entry dated strictly before asOf, starting from
// zero. Pure: same ledger contents, same result.
func (c *Calculator) BalanceAsOf(ctx context.Context, apartmentID string, asOf time.Time) (int64, error) {
	if apartmentID == "" {
		return 0, ledger.ErrEmptyApartmentID
	}
	asOfUTC := asOf.UTC()
	entries, err := c.repo.EntriesFor(ctx, apartmentID, &asOfUTC)
	if err != nil {
		return 0, err
	}
	var balance int64
	for _, entry := range entries {
		balance += entry.AmountCents
	}
	return balance, nil
}

// CurrentBalance replays the apartment's whole ledger.
func (c *Calculator) CurrentBalance(ctx context.Context, apartmentID string) (int64, error) {
	if apartmentID == "" {
		return 0, ledger.ErrEmptyApartmentID
	}
	entries, err := c.repo.EntriesFor(ctx, apartmentID, nil)
	if err != nil {
		return 0, err
	}
	var balance int64
	for _, entry := range entries {
		balance += entry.AmountCents
	}
	return balance, nil
}

// VerifyApartment replays the apartment's entries in append order and checks
// every stored balance stamp against the replayed value. A mismatch is fatal:
// it is surfaced, never repaired.
func (c *Calculator) VerifyApartment(ctx context.Context, apartmentID string) error {
	if apartmentID == "" {
		return ledger.ErrEmptyApartmentID
	}
	entries, err := c.repo.EntriesFor(ctx, apartmentID, nil)
	if err != nil {
		return err
	}
	var balance int64
	for _, entry := range entries {
		if entry.BalanceBefore != balance {
			return fmt.Errorf("%w: apartment %s entry %s balance_before=%d replayed=%d",
				ledger.ErrDataIntegrity, apartmentID, entry.ID, entry.BalanceBefore, balance)
		}
		if entry.BalanceAfter != entry.BalanceBefore+entry.AmountCents {
			return fmt.Errorf("%w: apartment %s entry %s balance_after=%d expected=%d",
				ledger.ErrDataIntegrity, apartmentID, entry.ID, entry.BalanceAfter, entry.BalanceBefore+entry.AmountCents)
		}
		balance = entry.BalanceAfter
	}
	return nil
}
