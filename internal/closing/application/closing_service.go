package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"condo-ledger/internal/audit"
	buildings "condo-ledger/internal/buildings/domain"
	closing "condo-ledger/internal/closing/domain"
	distribution "condo-ledger/internal/distribution/domain"
	"condo-ledger/internal/eventing"
	ledgerapp "condo-ledger/internal/ledger/application"
	ledger "condo-ledger/internal/ledger/domain"
	"condo-ledger/internal/locking"
	"condo-ledger/internal/period"
	"condo-ledger/internal/reservefund"
)

// ExpenseTotaler sums real expense amounts for a date range. Satisfied by
// the distribution engine.
type ExpenseTotaler interface {
	TotalForRange(ctx context.Context, buildingID string, from, to time.Time) (int64, error)
}

// Service closes building months into immutable snapshots. Closing a month
// appends the synthetic management-fee and reserve-fund charges, freezes the
// totals and seeds the next month's opening obligations.
type Service struct {
	repo       closing.Repository
	buildings  buildings.BuildingRepository
	apartments buildings.ApartmentRepository
	expenses   ExpenseTotaler
	reserve    *reservefund.Scheduler
	ledger     *ledgerapp.Service
	locks      *locking.Registry
	auditor    audit.Logger
	bus        eventing.EventBus
	clock      ledgerapp.Clock
	logger     *log.Logger
}

// NewService constructs the closing service.
func NewService(
	repo closing.Repository,
	buildingRepo buildings.BuildingRepository,
	apartmentRepo buildings.ApartmentRepository,
	expenses ExpenseTotaler,
	reserve *reservefund.Scheduler,
	ledgerService *ledgerapp.Service,
	locks *locking.Registry,
	auditor audit.Logger,
	bus eventing.EventBus,
	clock ledgerapp.Clock,
	logger *log.Logger,
) (*Service, error) {
	if repo == nil {
		return nil, errors.New("closing service: nil repository")
	}
	if buildingRepo == nil || apartmentRepo == nil {
		return nil, errors.New("closing service: nil building repositories")
	}
	if expenses == nil {
		return nil, errors.New("closing service: nil expense totaler")
	}
	if reserve == nil {
		return nil, errors.New("closing service: nil reserve scheduler")
	}
	if ledgerService == nil {
		return nil, errors.New("closing service: nil ledger service")
	}
	if locks == nil {
		return nil, errors.New("closing service: nil lock registry")
	}
	if clock == nil {
		clock = ledgerapp.SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repo:       repo,
		buildings:  buildingRepo,
		apartments: apartmentRepo,
		expenses:   expenses,
		reserve:    reserve,
		ledger:     ledgerService,
		locks:      locks,
		auditor:    auditor,
		bus:        bus,
		clock:      clock,
		logger:     logger,
	}, nil
}

// closeLockKey serializes close/reopen per building without colliding with
// the ledger append lock, which the ledger service takes itself.
func closeLockKey(buildingID string) string { return "close:" + buildingID }

// Preview recomputes the month's totals without freezing anything. The open
// row is refreshed so reporting reads current numbers; repeated calls with
// an unchanged ledger produce identical totals.
func (s *Service) Preview(ctx context.Context, buildingID string, ym period.YearMonth) (*closing.MonthlyBalance, error) {
	release, err := s.locks.Acquire(ctx, closeLockKey(buildingID))
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.repo.FindByPeriod(ctx, buildingID, ym)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsClosed {
		return nil, fmt.Errorf("%w: %s %s", closing.ErrAlreadyClosed, buildingID, ym)
	}

	row, err := s.compute(ctx, buildingID, ym, existing)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Close freezes the month. Steps: refuse if already closed or if an earlier
// month is still open, append the synthetic management-fee and reserve-fund
// charges, compute the totals, mark the row closed and seed the next month's
// row with previousObligations = carryForward.
func (s *Service) Close(ctx context.Context, buildingID string, ym period.YearMonth) (*closing.MonthlyBalance, error) {
	release, err := s.locks.Acquire(ctx, closeLockKey(buildingID))
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.repo.FindByPeriod(ctx, buildingID, ym)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsClosed {
		return nil, fmt.Errorf("%w: %s %s", closing.ErrAlreadyClosed, buildingID, ym)
	}
	if err := s.checkPredecessors(ctx, buildingID, ym); err != nil {
		return nil, err
	}

	building, apartments, err := s.loadBuilding(ctx, buildingID)
	if err != nil {
		return nil, err
	}

	// Synthetic charges carry the last second of the month so they land
	// inside it regardless of when the close is triggered.
	syntheticDate := ym.NextFirstDay().Add(-time.Second)

	managementFees := building.ManagementFeeCents * int64(len(apartments))
	if err := s.reconcileSynthetic(ctx, buildingID, ledger.SourceManagementFee,
		feeSourceID(buildingID, ym), managementFees); err != nil {
		return nil, err
	}
	if managementFees > 0 {
		shares, err := distribution.Allocate(distribution.Expense{
			ID:          feeSourceID(buildingID, ym),
			BuildingID:  buildingID,
			AmountCents: managementFees,
			Date:        syntheticDate,
			Type:        distribution.TypeEqualShare,
		}, apartments)
		if err != nil {
			return nil, fmt.Errorf("closing service: management fees: %w", err)
		}
		if _, _, err := s.ledger.DistributeCharges(ctx, buildingID, ledger.SourceManagementFee,
			feeSourceID(buildingID, ym), syntheticDate, shares); err != nil {
			return nil, err
		}
	}

	reserveAmount, err := s.reserve.MonthlyTarget(ctx, *building, ym, apartments)
	if err != nil {
		return nil, err
	}
	if err := s.reconcileSynthetic(ctx, buildingID, ledger.SourceReserveFund,
		reserveSourceID(buildingID, ym), reserveAmount); err != nil {
		return nil, err
	}
	if reserveAmount > 0 {
		shares, err := distribution.Allocate(distribution.Expense{
			ID:          reserveSourceID(buildingID, ym),
			BuildingID:  buildingID,
			AmountCents: reserveAmount,
			Date:        syntheticDate,
			Type:        distribution.TypeByParticipationMills,
		}, apartments)
		if err != nil {
			return nil, fmt.Errorf("closing service: reserve fund: %w", err)
		}
		if _, _, err := s.ledger.DistributeCharges(ctx, buildingID, ledger.SourceReserveFund,
			reserveSourceID(buildingID, ym), syntheticDate, shares); err != nil {
			return nil, err
		}
	}

	row, err := s.compute(ctx, buildingID, ym, existing)
	if err != nil {
		return nil, err
	}
	row.ManagementFeesCents = managementFees
	row.ReserveFundCents = reserveAmount
	row.CarryForwardCents = carryForward(row.NetResult())

	now := s.clock.Now()
	row.IsClosed = true
	row.ClosedAt = &now
	if err := s.repo.Save(ctx, row); err != nil {
		return nil, err
	}

	if err := s.seedNextMonth(ctx, buildingID, ym, row.CarryForwardCents); err != nil {
		return nil, err
	}

	s.logger.Printf("closing: closed building=%s month=%s carry_forward=%d", buildingID, ym, row.CarryForwardCents)
	s.publish(ctx, MonthClosed{
		BuildingID:        buildingID,
		Period:            ym,
		CarryForwardCents: row.CarryForwardCents,
		OccurredAt:        now,
	})
	return row, nil
}

// Reopen clears the closed flag on a month. Numeric fields keep their last
// computed values until the next Close overwrites them. A month whose
// successor is already closed cannot reopen.
func (s *Service) Reopen(ctx context.Context, buildingID string, ym period.YearMonth, actor string) (*closing.MonthlyBalance, error) {
	release, err := s.locks.Acquire(ctx, closeLockKey(buildingID))
	if err != nil {
		return nil, err
	}
	defer release()

	row, err := s.repo.FindByPeriod(ctx, buildingID, ym)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s %s", closing.ErrNotFound, buildingID, ym)
	}
	if !row.IsClosed {
		return nil, fmt.Errorf("%w: %s %s", closing.ErrNotClosed, buildingID, ym)
	}
	successor, err := s.repo.FindByPeriod(ctx, buildingID, ym.Next())
	if err != nil {
		return nil, err
	}
	if successor != nil && successor.IsClosed {
		return nil, fmt.Errorf("%w: %s is closed", closing.ErrSequentialClose, ym.Next())
	}

	row.IsClosed = false
	row.ClosedAt = nil
	if err := s.repo.Save(ctx, row); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if s.auditor != nil {
		metadata, _ := json.Marshal(map[string]string{"month": ym.String()})
		if err := s.auditor.Log(ctx, audit.Entry{
			Actor:        actor,
			Action:       "monthly_balance.reopen",
			ResourceType: "monthly_balance",
			ResourceID:   row.ID,
			BuildingID:   buildingID,
			Metadata:     metadata,
			CreatedAt:    now,
		}); err != nil {
			s.logger.Printf("closing: audit reopen failed building=%s month=%s err=%v", buildingID, ym, err)
		}
	}
	s.logger.Printf("closing: reopened building=%s month=%s actor=%s", buildingID, ym, actor)
	s.publish(ctx, MonthReopened{BuildingID: buildingID, Period: ym, Actor: actor, OccurredAt: now})
	return row, nil
}

// History returns the building's monthly balance rows in period order.
func (s *Service) History(ctx context.Context, buildingID string) ([]closing.MonthlyBalance, error) {
	return s.repo.ListByBuilding(ctx, buildingID)
}

// Repo exposes the monthly balance store for read-only collaborators.
func (s *Service) Repo() closing.Repository { return s.repo }

// reconcileSynthetic reverses a synthetic source whose live charges no longer
// match the recomputed amount. This only happens when a month is re-closed
// after a reopen with changed building configuration; the reversal adjustments
// keep the old charges on record while the fresh amount is distributed anew.
func (s *Service) reconcileSynthetic(ctx context.Context, buildingID, sourceType, sourceID string, amountCents int64) error {
	entries, err := s.ledger.Repo().EntriesBySource(ctx, buildingID, sourceType, sourceID)
	if err != nil {
		return err
	}
	var charged int64
	for _, entry := range entries {
		charged += -entry.AmountCents
	}
	if charged == 0 || charged == amountCents {
		return nil
	}
	s.logger.Printf("closing: re-close %s source=%s charged=%d recomputed=%d, reversing",
		buildingID, sourceID, charged, amountCents)
	_, err = s.ledger.Reverse(ctx, buildingID, sourceType, sourceID)
	return err
}

// compute derives the row's totals from the ledger and the expense table.
// Synthetic charges are tracked in their own columns, so totalExpenses only
// covers real expenses.
func (s *Service) compute(ctx context.Context, buildingID string, ym period.YearMonth, existing *closing.MonthlyBalance) (*closing.MonthlyBalance, error) {
	from, to := ym.FirstDay(), ym.NextFirstDay()

	totalExpenses, err := s.expenses.TotalForRange(ctx, buildingID, from, to)
	if err != nil {
		return nil, err
	}

	entries, err := s.ledger.Repo().EntriesForBuildingInRange(ctx, buildingID, from, to)
	if err != nil {
		return nil, err
	}
	var totalPayments int64
	var managementFees, reserveFund int64
	for _, entry := range entries {
		switch {
		case entry.Kind == ledger.KindPayment:
			totalPayments += entry.AmountCents
		case entry.SourceType == ledger.SourceManagementFee:
			managementFees += -entry.AmountCents
		case entry.SourceType == ledger.SourceReserveFund:
			reserveFund += -entry.AmountCents
		}
	}

	previousObligations, err := s.previousObligations(ctx, buildingID, ym, existing)
	if err != nil {
		return nil, err
	}

	row := &closing.MonthlyBalance{
		ID:                  uuid.NewString(),
		BuildingID:          buildingID,
		Period:              ym,
		TotalExpensesCents:  totalExpenses,
		TotalPaymentsCents:  totalPayments,
		PreviousObligations: previousObligations,
		ReserveFundCents:    reserveFund,
		ManagementFeesCents: managementFees,
	}
	if existing != nil {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
	}
	row.CarryForwardCents = carryForward(row.NetResult())
	return row, nil
}

// previousObligations reads the prior month's carry-forward. A seeded row
// keeps the value stamped at seeding time even if the predecessor reopened;
// the predecessor's re-close refreshes it.
func (s *Service) previousObligations(ctx context.Context, buildingID string, ym period.YearMonth, existing *closing.MonthlyBalance) (int64, error) {
	prior, err := s.repo.FindByPeriod(ctx, buildingID, ym.Prev())
	if err != nil {
		return 0, err
	}
	if prior != nil && prior.IsClosed {
		return prior.CarryForwardCents, nil
	}
	if existing != nil {
		return existing.PreviousObligations, nil
	}
	return 0, nil
}

// checkPredecessors enforces in-order closing: an earlier open row blocks
// this month.
func (s *Service) checkPredecessors(ctx context.Context, buildingID string, ym period.YearMonth) error {
	rows, err := s.repo.ListByBuilding(ctx, buildingID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.Period.Before(ym) && !row.IsClosed {
			return fmt.Errorf("%w: %s is still open", closing.ErrSequentialClose, row.Period)
		}
	}
	return nil
}

func (s *Service) seedNextMonth(ctx context.Context, buildingID string, ym period.YearMonth, carryForwardCents int64) error {
	next := ym.Next()
	row, err := s.repo.FindByPeriod(ctx, buildingID, next)
	if err != nil {
		return err
	}
	if row == nil {
		row = &closing.MonthlyBalance{
			ID:         uuid.NewString(),
			BuildingID: buildingID,
			Period:     next,
		}
	}
	if row.IsClosed {
		return fmt.Errorf("%w: %s already closed", closing.ErrSequentialClose, next)
	}
	row.PreviousObligations = carryForwardCents
	return s.repo.Save(ctx, row)
}

func (s *Service) loadBuilding(ctx context.Context, buildingID string) (*buildings.Building, []buildings.Apartment, error) {
	building, err := s.buildings.Get(ctx, buildingID)
	if err != nil {
		return nil, nil, err
	}
	if building == nil {
		return nil, nil, fmt.Errorf("%w: %s", buildings.ErrBuildingNotFound, buildingID)
	}
	apartments, err := s.apartments.ListByBuilding(ctx, buildingID)
	if err != nil {
		return nil, nil, err
	}
	return building, apartments, nil
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, event)
}

func carryForward(netResult int64) int64 {
	if netResult < 0 {
		return -netResult
	}
	return 0
}

func feeSourceID(buildingID string, ym period.YearMonth) string {
	return fmt.Sprintf("mf-%s-%s", buildingID, ym)
}

func reserveSourceID(buildingID string, ym period.YearMonth) string {
	return fmt.Sprintf("rf-%s-%s", buildingID, ym)
}
