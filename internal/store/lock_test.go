package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestTryLock_Success(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	lock, err := TryLock(ctx, client, "test:lock", 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if lock == nil {
		t.Fatal("Expected non-nil lock, got nil")
	}
	if lock.Key() != "test:lock" {
		t.Errorf("Lock key mismatch: got %s, want test:lock", lock.Key())
	}
}

func TestTryLock_AlreadyLocked(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	if _, err := TryLock(ctx, client, "test:lock", 10*time.Second); err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}

	lock2, err := TryLock(ctx, client, "test:lock", 10*time.Second)
	if err != nil {
		t.Fatalf("Unexpected error on second attempt: %v", err)
	}
	if lock2 != nil {
		t.Error("Expected nil lock while held elsewhere")
	}
}

func TestAcquireLock_WaitsForRelease(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	first, err := TryLock(ctx, client, "test:lock", 10*time.Second)
	if err != nil || first == nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		first.Release(ctx)
	}()

	second, err := AcquireLock(ctx, client, "test:lock", 10*time.Second, time.Second, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("Expected lock after release, got error: %v", err)
	}
	if second == nil {
		t.Fatal("Expected non-nil lock")
	}
}

func TestAcquireLock_Busy(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	if _, err := TryLock(ctx, client, "test:lock", 10*time.Second); err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}

	_, err := AcquireLock(ctx, client, "test:lock", 10*time.Second, 30*time.Millisecond, 5*time.Millisecond)
	if !errors.Is(err, ErrLockBusy) {
		t.Errorf("Expected ErrLockBusy, got %v", err)
	}
}

func TestAcquireLock_ContextCanceled(t *testing.T) {
	client, _ := setupTestRedis(t)

	if _, err := TryLock(context.Background(), client, "test:lock", 10*time.Second); err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AcquireLock(ctx, client, "test:lock", 10*time.Second, time.Second, 5*time.Millisecond)
	if err == nil {
		t.Fatal("Expected error for canceled context")
	}
}

func TestReleaseLock_NotOwned(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	lock, err := TryLock(ctx, client, "test:lock", 10*time.Second)
	if err != nil || lock == nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	// Another owner takes over after expiry
	mr.Set("test:lock", "someone-else")

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	got, _ := mr.Get("test:lock")
	if got != "someone-else" {
		t.Errorf("Release deleted a lock it did not own, value now %q", got)
	}
}

func TestExtendLock(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	lock, err := TryLock(ctx, client, "test:lock", time.Second)
	if err != nil || lock == nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	if err := lock.Extend(ctx, 20*time.Second); err != nil {
		t.Fatalf("Failed to extend lock: %v", err)
	}
	if ttl := mr.TTL("test:lock"); ttl < 10*time.Second {
		t.Errorf("Expected extended TTL, got %v", ttl)
	}

	mr.Del("test:lock")
	if err := lock.Extend(ctx, 20*time.Second); err == nil {
		t.Error("Expected error extending a lost lock")
	}
}

func TestLock_TTLExpiration(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	if _, err := TryLock(ctx, client, "test:lock", time.Second); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	mr.FastForward(2 * time.Second)

	lock, err := TryLock(ctx, client, "test:lock", time.Second)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if lock == nil {
		t.Error("Expected lock after TTL expiry")
	}
}

func TestTryLock_ConcurrentAttempts(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	var acquired int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := TryLock(ctx, client, "test:lock", 10*time.Second)
			if err == nil && lock != nil {
				atomic.AddInt32(&acquired, 1)
			}
		}()
	}
	wg.Wait()

	if acquired != 1 {
		t.Errorf("Expected exactly one winner, got %d", acquired)
	}
}
