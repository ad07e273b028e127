package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	buildings "condo-ledger/internal/buildings/domain"
	distribution "condo-ledger/internal/distribution/domain"
	"condo-ledger/internal/eventing"
	ledgerapp "condo-ledger/internal/ledger/application"
	ledger "condo-ledger/internal/ledger/domain"
)

// Engine allocates expenses across a building's apartments and posts the
// resulting charges to the ledger. Allocation itself is pure; all ledger
// writes go through the ledger service, which owns the building lock.
type Engine struct {
	expenses   distribution.ExpenseRepository
	apartments buildings.ApartmentRepository
	ledger     *ledgerapp.Service
	bus        eventing.EventBus
	clock      ledgerapp.Clock
}

// NewEngine constructs the distribution engine.
func NewEngine(
	expenses distribution.ExpenseRepository,
	apartments buildings.ApartmentRepository,
	ledgerService *ledgerapp.Service,
	bus eventing.EventBus,
	clock ledgerapp.Clock,
) (*Engine, error) {
	if expenses == nil {
		return nil, errors.New("distribution engine: nil expense repository")
	}
	if apartments == nil {
		return nil, errors.New("distribution engine: nil apartment repository")
	}
	if ledgerService == nil {
		return nil, errors.New("distribution engine: nil ledger service")
	}
	if clock == nil {
		clock = ledgerapp.SystemClock{}
	}
	return &Engine{
		expenses:   expenses,
		apartments: apartments,
		ledger:     ledgerService,
		bus:        bus,
		clock:      clock,
	}, nil
}

// Preview computes the share map for an expense without persisting anything.
func (e *Engine) Preview(ctx context.Context, expense distribution.Expense) (map[string]int64, error) {
	if err := expense.Validate(); err != nil {
		return nil, err
	}
	apartments, err := e.apartments.ListByBuilding(ctx, expense.BuildingID)
	if err != nil {
		return nil, err
	}
	return distribution.Allocate(expense, apartments)
}

// Distribute allocates the expense and appends one charge entry per non-zero
// share, at most once per expense. A repeated call returns the existing
// allocation unchanged; with fresh=true it fails instead, and the caller
// must reverse the prior entries before re-distributing.
func (e *Engine) Distribute(ctx context.Context, expense distribution.Expense, fresh bool) (map[string]int64, error) {
	if err := expense.Validate(); err != nil {
		return nil, err
	}
	if expense.BuildingID == "" {
		return nil, ledger.ErrEmptyBuildingID
	}
	if expense.Date.IsZero() {
		expense.Date = e.clock.Now()
	}

	apartments, err := e.apartments.ListByBuilding(ctx, expense.BuildingID)
	if err != nil {
		return nil, err
	}
	shares, err := distribution.Allocate(expense, apartments)
	if err != nil {
		return nil, err
	}

	entries, alreadyDistributed, err := e.ledger.DistributeCharges(
		ctx, expense.BuildingID, ledger.SourceExpense, expense.ID, expense.Date, shares)
	if err != nil {
		return nil, err
	}
	if alreadyDistributed {
		// A replay must not touch the stored expense: the ledger keeps
		// the original allocation, so the row keeps the original amount.
		if fresh {
			return nil, fmt.Errorf("%w: %s", distribution.ErrAlreadyDistributed, expense.ID)
		}
		return sharesFromEntries(entries), nil
	}

	if err := e.expenses.Save(ctx, &expense); err != nil {
		return nil, fmt.Errorf("distribution engine: save expense %s: %w", expense.ID, err)
	}

	e.publish(ctx, ExpenseDistributed{
		BuildingID:   expense.BuildingID,
		ExpenseID:    expense.ID,
		AmountCents:  expense.AmountCents,
		ApartmentIDs: apartmentIDsOf(entries),
		OccurredAt:   e.clock.Now(),
	})
	return shares, nil
}

// Remove reverses an expense's ledger entries and deletes the expense row.
// The compensating adjustments restore every affected apartment's balance to
// its pre-distribution value; history itself is retained.
func (e *Engine) Remove(ctx context.Context, expenseID string) error {
	if expenseID == "" {
		return distribution.ErrEmptyExpenseID
	}
	expense, err := e.expenses.Get(ctx, expenseID)
	if err != nil {
		return err
	}
	if expense == nil {
		return fmt.Errorf("%w: %s", distribution.ErrExpenseNotFound, expenseID)
	}

	if _, err := e.ledger.Reverse(ctx, expense.BuildingID, ledger.SourceExpense, expenseID); err != nil {
		return err
	}
	if err := e.expenses.Delete(ctx, expenseID); err != nil {
		return err
	}

	e.publish(ctx, ExpenseRemoved{
		BuildingID: expense.BuildingID,
		ExpenseID:  expenseID,
		OccurredAt: e.clock.Now(),
	})
	return nil
}

// TotalForRange sums expense amounts dated in [from, to), excluding the
// synthetic management-fee and reserve-fund records which are tracked by the
// closing service directly.
func (e *Engine) TotalForRange(ctx context.Context, buildingID string, from, to time.Time) (int64, error) {
	expenses, err := e.expenses.ListByBuildingInRange(ctx, buildingID, from, to)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, expense := range expenses {
		total += expense.AmountCents
	}
	return total, nil
}

// Expenses exposes the repository for read-only collaborators.
func (e *Engine) Expenses() distribution.ExpenseRepository { return e.expenses }

func (e *Engine) publish(ctx context.Context, event any) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(ctx, event)
}

func sharesFromEntries(entries []ledger.Entry) map[string]int64 {
	shares := make(map[string]int64, len(entries))
	for _, entry := range entries {
		shares[entry.ApartmentID] += -entry.AmountCents
	}
	return shares
}

func apartmentIDsOf(entries []ledger.Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ApartmentID)
	}
	return ids
}
