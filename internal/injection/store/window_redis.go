package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"reservemint/internal/injection/models"
	"reservemint/pkg/domain"
)

const windowKeyPrefix = "reservemint:window:"

// RedisWindowStore shares rate-limit window and breaker state across
// instances. The window lives as a counter with a TTL equal to the window
// duration, started at first use; expiry resets it. Reservation is
// increment-then-check with a compensating decrement, so concurrent
// reservations never jointly exceed the cap even without scripting.
type RedisWindowStore struct {
	client redis.Cmdable
}

// NewRedisWindowStore wraps an existing redis client.
func NewRedisWindowStore(client redis.Cmdable) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

func usedKey(key string) string    { return windowKeyPrefix + key + ":used" }
func startKey(key string) string   { return windowKeyPrefix + key + ":start" }
func breakerKey(key string) string { return windowKeyPrefix + key + ":breaker" }

// Reserve implements WindowStore.
func (s *RedisWindowStore) Reserve(ctx context.Context, key string, amount, cap domain.Amount, now time.Time, window time.Duration) (models.RateLimitWindow, error) {
	reason, err := s.client.Get(ctx, breakerKey(key)).Result()
	if err != nil && err != redis.Nil {
		return models.RateLimitWindow{}, fmt.Errorf("read breaker state: %w", err)
	}
	if err == nil {
		return models.RateLimitWindow{Key: key, DailyCap: cap, CircuitBreakerOpen: true, CircuitBreakerReason: reason}, ErrBreakerOpen
	}

	// First reservation of a window pins its start and arms the TTL on
	// both keys; expiry is the window reset.
	created, err := s.client.SetNX(ctx, startKey(key), now.UTC().Format(time.RFC3339Nano), window).Result()
	if err != nil {
		return models.RateLimitWindow{}, fmt.Errorf("initialize window: %w", err)
	}

	used, err := s.client.IncrBy(ctx, usedKey(key), int64(amount.Micros())).Result()
	if err != nil {
		return models.RateLimitWindow{}, fmt.Errorf("reserve window capacity: %w", err)
	}
	if created {
		if err := s.client.Expire(ctx, usedKey(key), window).Err(); err != nil {
			return models.RateLimitWindow{}, fmt.Errorf("arm window expiry: %w", err)
		}
	}

	snap := models.RateLimitWindow{
		Key:              key,
		WindowStart:      now,
		WindowAmountUsed: domain.Amount(used),
		DailyCap:         cap,
	}
	if domain.Amount(used) > cap {
		if err := s.client.DecrBy(ctx, usedKey(key), int64(amount.Micros())).Err(); err != nil {
			return snap, fmt.Errorf("compensate over-reservation: %w", err)
		}
		return snap, ErrCapExceeded
	}
	return snap, nil
}

// Refund implements WindowStore. Refunding into an already-expired window
// is a no-op: the counter is gone and a fresh window owes nothing.
func (s *RedisWindowStore) Refund(ctx context.Context, key string, amount domain.Amount) error {
	exists, err := s.client.Exists(ctx, usedKey(key)).Result()
	if err != nil {
		return fmt.Errorf("check window state: %w", err)
	}
	if exists == 0 {
		return nil
	}
	if err := s.client.DecrBy(ctx, usedKey(key), int64(amount.Micros())).Err(); err != nil {
		return fmt.Errorf("refund window capacity: %w", err)
	}
	return nil
}

// TripBreaker implements WindowStore. Breaker state has no TTL; only an
// explicit reset closes it.
func (s *RedisWindowStore) TripBreaker(ctx context.Context, key, reason string) error {
	if err := s.client.Set(ctx, breakerKey(key), reason, 0).Err(); err != nil {
		return fmt.Errorf("trip breaker: %w", err)
	}
	return nil
}

// ResetBreaker implements WindowStore.
func (s *RedisWindowStore) ResetBreaker(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, breakerKey(key)).Err(); err != nil {
		return fmt.Errorf("reset breaker: %w", err)
	}
	return nil
}

// Snapshot implements WindowStore.
func (s *RedisWindowStore) Snapshot(ctx context.Context, key string, cap domain.Amount, now time.Time, _ time.Duration) (models.RateLimitWindow, error) {
	snap := models.RateLimitWindow{Key: key, DailyCap: cap, WindowStart: now}

	reason, err := s.client.Get(ctx, breakerKey(key)).Result()
	if err != nil && err != redis.Nil {
		return snap, fmt.Errorf("read breaker state: %w", err)
	}
	if err == nil {
		snap.CircuitBreakerOpen = true
		snap.CircuitBreakerReason = reason
	}

	if raw, err := s.client.Get(ctx, startKey(key)).Result(); err == nil {
		if start, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			snap.WindowStart = start
		}
	} else if err != redis.Nil {
		return snap, fmt.Errorf("read window start: %w", err)
	}

	used, err := s.client.Get(ctx, usedKey(key)).Int64()
	if err != nil && err != redis.Nil {
		return snap, fmt.Errorf("read window usage: %w", err)
	}
	if used > 0 {
		snap.WindowAmountUsed = domain.Amount(used)
	}
	return snap, nil
}
