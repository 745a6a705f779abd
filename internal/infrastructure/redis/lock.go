package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/eventrelay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// Lua script for safe lock release (only owner can release)
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	// Lua script for lock extension
	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// LeaderLock is a Redis lease used to run exactly one active dispatcher in
// strict-ordering deployments. The token value guards against releasing or
// extending a lock another instance has since taken over.
type LeaderLock struct {
	client   *redis.Client
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

func NewLeaderLock(client *redis.Client, key string, ttl time.Duration) *LeaderLock {
	return &LeaderLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire attempts to take the lock without blocking.
func (l *LeaderLock) Acquire(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domainErrors.ErrLockAcquisitionFailed, err)
	}

	l.acquired = success
	return success, nil
}

// Extend renews the lease. Fails if the lock is no longer held by this owner.
func (l *LeaderLock) Extend(ctx context.Context) error {
	if !l.acquired {
		return domainErrors.ErrLockNotHeld
	}

	result, err := extendLockScript.Run(
		ctx,
		l.client,
		[]string{l.key},
		l.value,
		l.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}

	val, ok := result.(int64)
	if !ok || val == 0 {
		l.acquired = false
		return domainErrors.ErrLockNotHeld
	}

	return nil
}

// Release gives up the lock. Releasing a lock that expired or was taken over
// is not an error from the caller's point of view.
func (l *LeaderLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	_, err := releaseLockScript.Run(
		ctx,
		l.client,
		[]string{l.key},
		l.value,
	).Result()
	l.acquired = false
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// IsAcquired returns whether the lock is currently believed held.
func (l *LeaderLock) IsAcquired() bool {
	return l.acquired
}

// RunWhenLeader blocks until the lock is acquired, then runs fn while
// renewing the lease at ttl/3. Losing the lease cancels fn's context; losing
// leadership restarts the acquisition wait rather than failing the process.
func (l *LeaderLock) RunWhenLeader(ctx context.Context, logger zerolog.Logger, fn func(ctx context.Context) error) error {
	for {
		acquired, err := l.Acquire(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Leader lock acquisition failed")
		}
		if !acquired {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.ttl / 3):
				continue
			}
		}

		logger.Info().Str("key", l.key).Msg("Acquired dispatcher leadership")
		err = l.runWithRenewal(ctx, logger, fn)
		l.Release(context.WithoutCancel(ctx))
		if err != nil && !errors.Is(err, domainErrors.ErrLockNotHeld) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn().Str("key", l.key).Msg("Lost dispatcher leadership, re-entering election")
	}
}

func (l *LeaderLock) runWithRenewal(ctx context.Context, logger zerolog.Logger, fn func(ctx context.Context) error) error {
	leaderCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	renewErr := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-leaderCtx.Done():
				return
			case <-ticker.C:
				if err := l.Extend(leaderCtx); err != nil {
					logger.Warn().Err(err).Msg("Leader lease renewal failed")
					renewErr <- domainErrors.ErrLockNotHeld
					cancel()
					return
				}
			}
		}
	}()

	err := fn(leaderCtx)
	select {
	case lostErr := <-renewErr:
		return lostErr
	default:
	}
	return err
}
