package distribution

import (
	"sort"

	buildings "condo-ledger/internal/buildings/domain"
	"condo-ledger/internal/money"
)

// Allocate computes the per-apartment share map for an expense. Shares are
// cents and always sum exactly to the expense amount: each raw share is
// rounded half-up, then the rounding remainder goes to the last apartment
// with a positive weight in ascending-by-id order. Rules whose total weight
// is zero fall back to an equal split.
func Allocate(expense Expense, apartments []buildings.Apartment) (map[string]int64, error) {
	if expense.AmountCents <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if len(apartments) == 0 {
		return nil, ErrEmptyApartmentSet
	}
	rule, err := ParseType(string(expense.Type))
	if err != nil {
		return nil, err
	}

	ordered := make([]buildings.Apartment, len(apartments))
	copy(ordered, apartments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	weights := make(map[string]int64, len(ordered))
	var totalWeight int64
	for _, apartment := range ordered {
		weight, ok := rule.weightFor(apartment, expense.Consumption)
		if !ok {
			return nil, ErrInvalidType
		}
		if weight < 0 {
			return nil, ErrNegativeWeight
		}
		weights[apartment.ID] = weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		// equal-share fallback
		for _, apartment := range ordered {
			weights[apartment.ID] = 1
		}
		totalWeight = int64(len(ordered))
	}

	shares := make(map[string]int64, len(ordered))
	var allocated int64
	lastPositive := ""
	for _, apartment := range ordered {
		weight := weights[apartment.ID]
		if weight == 0 {
			continue
		}
		share := money.DivRoundHalfUp(expense.AmountCents*weight, totalWeight)
		shares[apartment.ID] = share
		allocated += share
		lastPositive = apartment.ID
	}
	if remainder := expense.AmountCents - allocated; remainder != 0 {
		shares[lastPositive] += remainder
	}
	return shares, nil
}
