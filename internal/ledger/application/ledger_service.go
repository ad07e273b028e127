package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"condo-ledger/internal/eventing"
	ledger "condo-ledger/internal/ledger/domain"
	"condo-ledger/internal/locking"
)

// PeriodGuard reports whether the month containing a date is closed for a
// building. No entry may be appended into a closed month.
type PeriodGuard interface {
	IsClosedAt(ctx context.Context, buildingID string, at time.Time) (bool, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Payment is the intake record for money received from an apartment.
type Payment struct {
	ID          string
	BuildingID  string
	ApartmentID string
	AmountCents int64
	Date        time.Time
	Method      string
	PayerType   string
}

// ErrNonPositiveAmount is returned for payments that are not strictly positive.
var ErrNonPositiveAmount = errors.New("ledger service: amount must be positive")

// Service owns all writes to the ledger store. Every mutation serializes on
// the building lock so balance stamps and idempotency checks read a settled
// state.
type Service struct {
	repo  ledger.Repository
	guard PeriodGuard
	locks *locking.Registry
	bus   eventing.EventBus
	clock Clock
}

// NewService constructs the ledger service.
func NewService(repo ledger.Repository, guard PeriodGuard, locks *locking.Registry, bus eventing.EventBus, clock Clock) (*Service, error) {
	if repo == nil {
		return nil, errors.New("ledger service: nil repository")
	}
	if locks == nil {
		return nil, errors.New("ledger service: nil lock registry")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{repo: repo, guard: guard, locks: locks, bus: bus, clock: clock}, nil
}

// Repo exposes the underlying store for read-only collaborators.
func (s *Service) Repo() ledger.Repository { return s.repo }

// RecordPayment appends exactly one payment entry.
func (s *Service) RecordPayment(ctx context.Context, payment Payment) (*ledger.Entry, error) {
	if payment.AmountCents <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if payment.BuildingID == "" {
		return nil, ledger.ErrEmptyBuildingID
	}
	if payment.ApartmentID == "" {
		return nil, ledger.ErrEmptyApartmentID
	}
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	date := payment.Date
	if date.IsZero() {
		date = s.clock.Now()
	}

	release, err := s.locks.Acquire(ctx, payment.BuildingID)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.repo.EntriesBySource(ctx, payment.BuildingID, ledger.SourcePayment, payment.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		entry := existing[0]
		return &entry, nil
	}

	entry := &ledger.Entry{
		ID:          uuid.NewString(),
		BuildingID:  payment.BuildingID,
		ApartmentID: payment.ApartmentID,
		Kind:        ledger.KindPayment,
		AmountCents: payment.AmountCents,
		Date:        date.UTC(),
		SourceType:  ledger.SourcePayment,
		SourceID:    payment.ID,
	}
	if err := s.appendLocked(ctx, entry); err != nil {
		return nil, err
	}

	s.publish(ctx, PaymentRecorded{
		BuildingID:  payment.BuildingID,
		ApartmentID: payment.ApartmentID,
		PaymentID:   payment.ID,
		AmountCents: payment.AmountCents,
		Date:        entry.Date,
		OccurredAt:  s.clock.Now(),
	})
	return entry, nil
}

// DistributeCharges appends one charge entry per non-zero share for a source
// record, at most one live allocation per source. When the source's existing
// entries carry an outstanding balance they are returned unchanged with
// alreadyDistributed=true; a source reversed down to zero may be distributed
// again.
func (s *Service) DistributeCharges(ctx context.Context, buildingID, sourceType, sourceID string, date time.Time, shares map[string]int64) ([]ledger.Entry, bool, error) {
	if buildingID == "" {
		return nil, false, ledger.ErrEmptyBuildingID
	}
	if sourceType == "" || sourceID == "" {
		return nil, false, ledger.ErrMissingSource
	}

	release, err := s.locks.Acquire(ctx, buildingID)
	if err != nil {
		return nil, false, err
	}
	defer release()

	existing, err := s.repo.EntriesBySource(ctx, buildingID, sourceType, sourceID)
	if err != nil {
		return nil, false, err
	}
	if len(existing) > 0 && sumAmounts(existing) != 0 {
		return existing, true, nil
	}

	apartmentIDs := sortedKeys(shares)
	appended := make([]ledger.Entry, 0, len(apartmentIDs))
	for _, apartmentID := range apartmentIDs {
		share := shares[apartmentID]
		if share == 0 {
			continue
		}
		entry := &ledger.Entry{
			ID:          uuid.NewString(),
			BuildingID:  buildingID,
			ApartmentID: apartmentID,
			Kind:        ledger.KindCharge,
			AmountCents: -share,
			Date:        date.UTC(),
			SourceType:  sourceType,
			SourceID:    sourceID,
		}
		if err := s.appendLocked(ctx, entry); err != nil {
			return nil, false, fmt.Errorf("distribute %s/%s apartment %s: %w", sourceType, sourceID, apartmentID, err)
		}
		appended = append(appended, *entry)
	}
	return appended, false, nil
}

// Reverse appends compensating adjustments netting a source record's entries
// to zero. History is never deleted; reversal is idempotent per source.
func (s *Service) Reverse(ctx context.Context, buildingID, sourceType, sourceID string) ([]ledger.Entry, error) {
	if buildingID == "" {
		return nil, ledger.ErrEmptyBuildingID
	}
	if sourceType == "" || sourceID == "" {
		return nil, ledger.ErrMissingSource
	}

	release, err := s.locks.Acquire(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	defer release()

	entries, err := s.repo.EntriesBySource(ctx, buildingID, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var net int64
	affected := make(map[string]int64)
	for _, entry := range entries {
		affected[entry.ApartmentID] += entry.AmountCents
		net += entry.AmountCents
	}
	if net == 0 {
		// already reversed
		return entries, nil
	}

	now := s.clock.Now()
	reversed := make([]ledger.Entry, 0, len(affected))
	var apartmentIDs []string
	for _, apartmentID := range sortedKeys(affected) {
		amount := affected[apartmentID]
		if amount == 0 {
			continue
		}
		entry := &ledger.Entry{
			ID:          uuid.NewString(),
			BuildingID:  buildingID,
			ApartmentID: apartmentID,
			Kind:        ledger.KindAdjustment,
			AmountCents: -amount,
			Date:        now,
			SourceType:  sourceType,
			SourceID:    sourceID,
		}
		if err := s.appendLocked(ctx, entry); err != nil {
			return nil, fmt.Errorf("reverse %s/%s apartment %s: %w", sourceType, sourceID, apartmentID, err)
		}
		reversed = append(reversed, *entry)
		apartmentIDs = append(apartmentIDs, apartmentID)
	}

	s.publish(ctx, EntriesReversed{
		BuildingID:   buildingID,
		SourceType:   sourceType,
		SourceID:     sourceID,
		ApartmentIDs: apartmentIDs,
		OccurredAt:   now,
	})
	return reversed, nil
}

// appendLocked stamps balances and persists. Callers hold the building lock.
// The balance chain runs in append order, not business-date order: an entry
// may carry any date outside a closed month, including one earlier than
// entries already on file.
func (s *Service) appendLocked(ctx context.Context, entry *ledger.Entry) error {
	if s.guard != nil {
		closed, err := s.guard.IsClosedAt(ctx, entry.BuildingID, entry.Date)
		if err != nil {
			return err
		}
		if closed {
			return fmt.Errorf("%w: %s", ledger.ErrMonthClosed, entry.Date.Format("2006-01"))
		}
	}

	last, err := s.repo.LastFor(ctx, entry.ApartmentID)
	if err != nil {
		return err
	}
	var before int64
	if last != nil {
		before = last.BalanceAfter
	}
	entry.BalanceBefore = before
	entry.BalanceAfter = before + entry.AmountCents
	return s.repo.Append(ctx, entry)
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, event)
}

func sumAmounts(entries []ledger.Entry) int64 {
	var total int64
	for _, entry := range entries {
		total += entry.AmountCents
	}
	return total
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
