package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLeaseExclusive(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	m := NewRedis(client, "test:", 10*time.Second)

	first, err := m.Acquire(ctx, "job-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := m.Acquire(ctx, "job-1"); !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire error = %v, want ErrHeld", err)
	}
	if _, err := m.Acquire(ctx, "job-2"); err != nil {
		t.Fatalf("other key should be free: %v", err)
	}
	if err := first.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := m.Acquire(ctx, "job-1"); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestRedisLeaseExpiryAndStaleRelease(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	m := NewRedis(client, "test:", time.Second)
	stale, err := m.Acquire(ctx, "job-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)

	fresh, err := m.Acquire(ctx, "job-1")
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	if err := stale.Refresh(ctx); !errors.Is(err, ErrLost) {
		t.Fatalf("stale Refresh error = %v, want ErrLost", err)
	}
	// A stale owner must not release the new holder's lease.
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale Release: %v", err)
	}
	if err := fresh.Refresh(ctx); err != nil {
		t.Fatalf("fresh Refresh: %v", err)
	}
}

func TestLocalLease(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewLocal(time.Minute)
	m.now = func() time.Time { return now }

	l, err := m.Acquire(ctx, "job-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := m.Acquire(ctx, "job-1"); !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := l.Refresh(ctx); !errors.Is(err, ErrLost) {
		t.Fatalf("expected ErrLost after expiry, got %v", err)
	}
	if _, err := m.Acquire(ctx, "job-1"); err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
}
