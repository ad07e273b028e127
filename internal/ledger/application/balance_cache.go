package application

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedBalances is a read-through cache in front of a Calculator for the
// current-balance query. Writers must call Invalidate for every apartment
// they touch; the TTL only bounds staleness when an invalidation is missed.
type CachedBalances struct {
	calc  *Calculator
	cache *gocache.Cache
}

// NewCachedBalances constructs a CachedBalances with the given TTL.
func NewCachedBalances(calc *Calculator, ttl time.Duration) (*CachedBalances, error) {
	if calc == nil {
		return nil, errors.New("balance cache: nil calculator")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedBalances{
		calc:  calc,
		cache: gocache.New(ttl, 2*ttl),
	}, nil
}

// CurrentBalance returns the cached balance for the apartment, replaying the
// ledger on a miss.
func (b *CachedBalances) CurrentBalance(ctx context.Context, apartmentID string) (int64, error) {
	if cached, ok := b.cache.Get(apartmentID); ok {
		return cached.(int64), nil
	}
	balance, err := b.calc.CurrentBalance(ctx, apartmentID)
	if err != nil {
		return 0, err
	}
	b.cache.SetDefault(apartmentID, balance)
	return balance, nil
}

// Invalidate drops the cached balance for one apartment.
func (b *CachedBalances) Invalidate(apartmentID string) {
	b.cache.Delete(apartmentID)
}

// InvalidateAll drops every cached balance.
func (b *CachedBalances) InvalidateAll() {
	b.cache.Flush()
}
