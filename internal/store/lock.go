package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if we still own it
const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// extendScript renews the TTL only if we still own the lock
const extendScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// Lock serializes mutations of one schedule across backend instances
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// TryLock makes one SETNX attempt. It returns nil, nil if the lock is held elsewhere.
func TryLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.New().String()

	acquired, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, nil
	}

	return &Lock{client: client, key: key, token: token, ttl: ttl}, nil
}

// AcquireLock retries TryLock every retry interval until it succeeds, wait
// elapses, or ctx is done. It returns ErrLockBusy on timeout.
func AcquireLock(ctx context.Context, client *redis.Client, key string, ttl, wait, retry time.Duration) (*Lock, error) {
	deadline := time.Now().Add(wait)
	for {
		lock, err := TryLock(ctx, client, key, ttl)
		if err != nil || lock != nil {
			return lock, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockBusy, key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry):
		}
	}
}

// Release deletes the lock if we still own it
func (l *Lock) Release(ctx context.Context) error {
	_, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Result()
	return err
}

// Extend renews the lock TTL. It fails once the lock has expired or changed hands.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.token, ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lock %s no longer owned", l.key)
	}

	l.ttl = ttl
	return nil
}

// Key returns the Redis key of the lock
func (l *Lock) Key() string {
	return l.key
}
