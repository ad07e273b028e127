package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	closing "condo-ledger/internal/closing/domain"
	distribution "condo-ledger/internal/distribution/domain"
	ledgerapp "condo-ledger/internal/ledger/application"
	ledger "condo-ledger/internal/ledger/domain"
	"condo-ledger/internal/money"
)

// Check names used in findings and metrics labels.
const (
	CheckBalanceChain    = "balance_chain"
	CheckAllocationSum   = "allocation_sum"
	CheckMonthContinuity = "month_continuity"
	CheckStaleOpenMonth  = "stale_open_month"
)

// Finding is one detected inconsistency. Findings are reported, never
// auto-repaired.
type Finding struct {
	Check       string `json:"check"`
	BuildingID  string `json:"building_id"`
	ApartmentID string `json:"apartment_id,omitempty"`
	SourceID    string `json:"source_id,omitempty"`
	Month       string `json:"month,omitempty"`
	Detail      string `json:"detail"`
}

// Checker runs read-only consistency sweeps over one building's books.
type Checker struct {
	ledgerRepo ledger.Repository
	calc       *ledgerapp.Calculator
	expenses   distribution.ExpenseRepository
	closings   closing.Repository
}

// NewChecker constructs a Checker.
func NewChecker(
	ledgerRepo ledger.Repository,
	calc *ledgerapp.Calculator,
	expenses distribution.ExpenseRepository,
	closings closing.Repository,
) (*Checker, error) {
	if ledgerRepo == nil || calc == nil || expenses == nil || closings == nil {
		return nil, errors.New("integrity checker: nil dependency")
	}
	return &Checker{
		ledgerRepo: ledgerRepo,
		calc:       calc,
		expenses:   expenses,
		closings:   closings,
	}, nil
}

// CheckBuilding runs every check against one building. Expense coverage is
// limited to [from, to); chain and month checks always cover full history.
func (c *Checker) CheckBuilding(ctx context.Context, buildingID string, from, to time.Time, thresholds Thresholds) ([]Finding, error) {
	if buildingID == "" {
		return nil, errors.New("integrity checker: empty building id")
	}

	var findings []Finding
	chain, err := c.checkBalanceChains(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	findings = append(findings, chain...)

	alloc, err := c.checkAllocations(ctx, buildingID, from, to)
	if err != nil {
		return nil, err
	}
	findings = append(findings, alloc...)

	months, err := c.checkMonths(ctx, buildingID, thresholds)
	if err != nil {
		return nil, err
	}
	findings = append(findings, months...)

	return findings, nil
}

// checkBalanceChains replays every apartment's entries in parallel and
// collects stamp mismatches.
func (c *Checker) checkBalanceChains(ctx context.Context, buildingID string) ([]Finding, error) {
	apartmentIDs, err := c.ledgerRepo.ApartmentIDs(ctx, buildingID)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var findings []Finding
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for _, apartmentID := range apartmentIDs {
		apartmentID := apartmentID
		group.Go(func() error {
			err := c.calc.VerifyApartment(groupCtx, apartmentID)
			if err == nil {
				return nil
			}
			if errors.Is(err, ledger.ErrDataIntegrity) {
				mu.Lock()
				findings = append(findings, Finding{
					Check:       CheckBalanceChain,
					BuildingID:  buildingID,
					ApartmentID: apartmentID,
					Detail:      err.Error(),
				})
				mu.Unlock()
				return nil
			}
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(findings, func(i, j int) bool {
		return findings[i].ApartmentID < findings[j].ApartmentID
	})
	return findings, nil
}

// checkAllocations verifies that every expense in the range nets to exactly
// its amount in the ledger, or to zero when it was reversed.
func (c *Checker) checkAllocations(ctx context.Context, buildingID string, from, to time.Time) ([]Finding, error) {
	expenses, err := c.expenses.ListByBuildingInRange(ctx, buildingID, from, to)
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, expense := range expenses {
		entries, err := c.ledgerRepo.EntriesBySource(ctx, buildingID, ledger.SourceExpense, expense.ID)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			// Saved but never distributed; not a ledger inconsistency.
			continue
		}
		var net int64
		for _, entry := range entries {
			net += entry.AmountCents
		}
		if net != -expense.AmountCents && net != 0 {
			findings = append(findings, Finding{
				Check:      CheckAllocationSum,
				BuildingID: buildingID,
				SourceID:   expense.ID,
				Detail: fmt.Sprintf("expense %s nets to %s in the ledger, want %s or zero",
					expense.ID, money.Format(net), money.Format(-expense.AmountCents)),
			})
		}
	}
	return findings, nil
}

// checkMonths verifies carry-forward continuity across closed months and
// flags months left open far behind the newest period.
func (c *Checker) checkMonths(ctx context.Context, buildingID string, thresholds Thresholds) ([]Finding, error) {
	rows, err := c.closings.ListByBuilding(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Period.Before(rows[j].Period)
	})

	var findings []Finding
	for i := 0; i+1 < len(rows); i++ {
		cur, next := rows[i], rows[i+1]
		if !cur.IsClosed {
			continue
		}
		if next.Period != cur.Period.Next() {
			continue
		}
		if next.PreviousObligations != cur.CarryForwardCents {
			findings = append(findings, Finding{
				Check:      CheckMonthContinuity,
				BuildingID: buildingID,
				Month:      next.Period.String(),
				Detail: fmt.Sprintf("month %s starts with obligations %s but %s closed carrying %s",
					next.Period, money.Format(next.PreviousObligations),
					cur.Period, money.Format(cur.CarryForwardCents)),
			})
		}
	}

	if thresholds.StaleOpenMonths > 0 {
		latest := rows[len(rows)-1].Period
		for _, row := range rows {
			if row.IsClosed {
				continue
			}
			if latest.Compare(row.Period.AddMonths(thresholds.StaleOpenMonths)) >= 0 {
				findings = append(findings, Finding{
					Check:      CheckStaleOpenMonth,
					BuildingID: buildingID,
					Month:      row.Period.String(),
					Detail: fmt.Sprintf("month %s is still open while books reach %s",
						row.Period, latest),
				})
			}
		}
	}
	return findings, nil
}
