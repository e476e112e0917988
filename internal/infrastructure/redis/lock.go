package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// Only the owner token may release or extend a lock.
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

var ErrLockNotHeld = errors.New("lock not held or expired")

// DistributedLock is a single-key SET NX lock with an owner token.
type DistributedLock struct {
	client   redis.UniversalClient
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client redis.UniversalClient, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire reports false without error when another owner holds the key.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	l.acquired = ok
	return ok, nil
}

// AcquireWithRetry polls Acquire until it succeeds or maxRetries is spent.
func (l *DistributedLock) AcquireWithRetry(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return fmt.Errorf("lock %s still held after %d attempts", l.key, maxRetries)
}

func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.acquired {
		return ErrLockNotHeld
	}
	res, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	if res == 0 {
		l.acquired = false
		return ErrLockNotHeld
	}
	return nil
}

func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}
	res, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	l.acquired = false
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (l *DistributedLock) IsAcquired() bool { return l.acquired }

// Locker hands out per-key DistributedLocks. Settlement only uses it to keep
// two workers from polling the same payment; correctness never depends on it.
type Locker struct {
	client redis.UniversalClient
}

func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: client}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	lock := NewDistributedLock(l.client, key, ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return lock.Release, true, nil
}
