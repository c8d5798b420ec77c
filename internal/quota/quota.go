// Package quota bounds how many recipes a user may generate per UTC day.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultDailyLimit is the number of generations allowed per UTC day.
const DefaultDailyLimit = 3

// ErrExceeded is returned by Acquire when the user has no quota left today.
var ErrExceeded = errors.New("daily quota exceeded")

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextReset returns the midnight UTC following t.
func NextReset(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}

// Usage describes a user's consumption in the current window.
type Usage struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

func newUsage(used, limit int, now time.Time) Usage {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Usage{Used: used, Limit: limit, Remaining: remaining, ResetsAt: NextReset(now)}
}

// Reservation is a unit of quota held by an in-flight generation.
type Reservation interface {
	// Release returns the unit when the generation did not complete.
	Release(ctx context.Context)
}

// Limiter decides whether a user may start another generation.
type Limiter interface {
	Acquire(ctx context.Context, userID string) (Reservation, error)
	Usage(ctx context.Context, userID string) (Usage, error)
	Limit() int
}

type noopReservation struct{}

func (noopReservation) Release(context.Context) {}

// Counter counts persisted generation records.
type Counter interface {
	CountGenerationsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// StoreLimiter counts generation records in the data store. The count and
// the later insert are separate operations, so concurrent requests from one
// user can overshoot the limit.
type StoreLimiter struct {
	counter Counter
	limit   int
	now     func() time.Time
}

// NewStoreLimiter creates a StoreLimiter.
func NewStoreLimiter(counter Counter, limit int) *StoreLimiter {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &StoreLimiter{counter: counter, limit: limit, now: time.Now}
}

// Limit returns the daily limit.
func (l *StoreLimiter) Limit() int { return l.limit }

// Acquire fails with ErrExceeded when today's count has reached the limit.
func (l *StoreLimiter) Acquire(ctx context.Context, userID string) (Reservation, error) {
	count, err := l.counter.CountGenerationsSince(ctx, userID, StartOfDay(l.now()))
	if err != nil {
		return nil, fmt.Errorf("quota: count generations: %w", err)
	}
	if count >= l.limit {
		return nil, ErrExceeded
	}
	return noopReservation{}, nil
}

// Usage reports today's consumption.
func (l *StoreLimiter) Usage(ctx context.Context, userID string) (Usage, error) {
	now := l.now()
	count, err := l.counter.CountGenerationsSince(ctx, userID, StartOfDay(now))
	if err != nil {
		return Usage{}, fmt.Errorf("quota: count generations: %w", err)
	}
	return newUsage(count, l.limit, now), nil
}

// RedisLimiter keeps a per-user per-day counter in Redis and increments it
// atomically before the generation starts.
type RedisLimiter struct {
	client redis.Cmdable
	limit  int
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a RedisLimiter.
func NewRedisLimiter(client redis.Cmdable, limit int) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &RedisLimiter{client: client, limit: limit, prefix: "quota", now: time.Now}
}

// Limit returns the daily limit.
func (l *RedisLimiter) Limit() int { return l.limit }

func (l *RedisLimiter) key(userID string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, userID, StartOfDay(now).Format("2006-01-02"))
}

// Acquire increments today's counter and rolls it back when the limit is
// exceeded.
func (l *RedisLimiter) Acquire(ctx context.Context, userID string) (Reservation, error) {
	now := l.now()
	key := l.key(userID, now)

	pipe := l.client.TxPipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, NextReset(now))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("quota: increment counter: %w", err)
	}

	if int(incrCmd.Val()) > l.limit {
		if err := l.client.Decr(ctx, key).Err(); err != nil {
			log.WithError(err).WithField("key", key).Warn("quota: rollback failed")
		}
		return nil, ErrExceeded
	}
	return &redisReservation{client: l.client, key: key}, nil
}

// Usage reports today's consumption.
func (l *RedisLimiter) Usage(ctx context.Context, userID string) (Usage, error) {
	now := l.now()
	used, err := l.client.Get(ctx, l.key(userID, now)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Usage{}, fmt.Errorf("quota: read counter: %w", err)
	}
	return newUsage(used, l.limit, now), nil
}

type redisReservation struct {
	client redis.Cmdable
	key    string
}

func (r *redisReservation) Release(ctx context.Context) {
	if err := r.client.Decr(ctx, r.key).Err(); err != nil {
		log.WithError(err).WithField("key", r.key).Warn("quota: release failed")
	}
}
