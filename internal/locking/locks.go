// Package locking provides per-building exclusive locks. Mutating operations
// against a building's ledger or monthly balances read aggregate state and
// then write it, so two such operations for the same building must serialize;
// operations on different buildings proceed in parallel.
package locking

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a building lock cannot be acquired in time.
// The caller may safely retry the operation.
var ErrLockTimeout = errors.New("locking: building lock timeout")

// Registry hands out one lock per key.
type Registry struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	timeout time.Duration
}

// NewRegistry constructs a Registry with the given acquisition timeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Registry{locks: make(map[string]chan struct{}), timeout: timeout}
}

// Acquire takes the exclusive lock for key, waiting up to the registry
// timeout. The returned release function must be called exactly once.
func (r *Registry) Acquire(ctx context.Context, key string) (func(), error) {
	if r == nil {
		return func() {}, nil
	}
	r.mu.Lock()
	sem, ok := r.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		r.locks[key] = sem
	}
	r.mu.Unlock()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-sem })
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrLockTimeout
	}
}
