package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AttemptTracker remembers when a student started a test so that late
// submissions can be rejected.
type AttemptTracker interface {
	Begin(ctx context.Context, userID, testID uint, at time.Time) (time.Time, error)
	StartedAt(ctx context.Context, userID, testID uint) (time.Time, bool, error)
	Clear(ctx context.Context, userID, testID uint) error
}

type redisAttemptTracker struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewAttemptTracker stores attempt starts in Redis. A nil client disables tracking.
func NewAttemptTracker(client *redis.Client, ttl time.Duration, logger zerolog.Logger) AttemptTracker {
	if client == nil {
		return noopAttemptTracker{}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisAttemptTracker{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "attempt_tracker").Logger(),
	}
}

func attemptRedisKey(userID, testID uint) string {
	return fmt.Sprintf("attempt:%d:%d", userID, testID)
}

// Begin records at unless an earlier start is already stored, and returns the
// effective start.
func (t *redisAttemptTracker) Begin(ctx context.Context, userID, testID uint, at time.Time) (time.Time, error) {
	key := attemptRedisKey(userID, testID)
	stored, err := t.client.SetNX(ctx, key, at.UnixMilli(), t.ttl).Result()
	if err != nil {
		return at, err
	}
	if stored {
		return at, nil
	}

	existing, ok, err := t.StartedAt(ctx, userID, testID)
	if err != nil || !ok {
		return at, err
	}
	return existing, nil
}

func (t *redisAttemptTracker) StartedAt(ctx context.Context, userID, testID uint) (time.Time, bool, error) {
	raw, err := t.client.Get(ctx, attemptRedisKey(userID, testID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		t.logger.Warn().Err(err).Str("value", raw).Msg("discarding unreadable attempt start")
		return time.Time{}, false, nil
	}
	return time.UnixMilli(millis).UTC(), true, nil
}

func (t *redisAttemptTracker) Clear(ctx context.Context, userID, testID uint) error {
	return t.client.Del(ctx, attemptRedisKey(userID, testID)).Err()
}

type noopAttemptTracker struct{}

func (noopAttemptTracker) Begin(_ context.Context, _, _ uint, at time.Time) (time.Time, error) {
	return at, nil
}

func (noopAttemptTracker) StartedAt(context.Context, uint, uint) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (noopAttemptTracker) Clear(context.Context, uint, uint) error {
	return nil
}
