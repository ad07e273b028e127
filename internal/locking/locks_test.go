package locking

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireSerializesSameKey(t *testing.T) {
	registry := NewRegistry(50 * time.Millisecond)
	ctx := context.Background()

	release, err := registry.Acquire(ctx, "building-1")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := registry.Acquire(ctx, "building-1"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	release()
	release2, err := registry.Acquire(ctx, "building-1")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestAcquireIndependentKeys(t *testing.T) {
	registry := NewRegistry(50 * time.Millisecond)
	ctx := context.Background()

	releaseA, err := registry.Acquire(ctx, "building-a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer releaseA()

	releaseB, err := registry.Acquire(ctx, "building-b")
	if err != nil {
		t.Fatalf("acquire b should not block on a: %v", err)
	}
	releaseB()
}

func TestAcquireContextCancel(t *testing.T) {
	registry := NewRegistry(time.Second)
	ctx := context.Background()

	release, err := registry.Acquire(ctx, "building-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := registry.Acquire(cancelled, "building-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
