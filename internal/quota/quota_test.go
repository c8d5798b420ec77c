package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	count int
	err   error
	since time.Time
}

func (f *fakeCounter) CountGenerationsSince(_ context.Context, _ string, since time.Time) (int, error) {
	f.since = since
	return f.count, f.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStartOfDay(t *testing.T) {
	// 23:30 in New York is already the next day in UTC.
	ny := time.FixedZone("EDT", -4*3600)
	in := time.Date(2024, 5, 1, 23, 30, 0, 0, ny)

	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), StartOfDay(in))
	assert.Equal(t, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), NextReset(in))
}

func TestStoreLimiter_Acquire(t *testing.T) {
	now := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		count   int
		wantErr error
	}{
		{name: "first of the day", count: 0},
		{name: "third of the day", count: 2},
		{name: "limit reached", count: 3, wantErr: ErrExceeded},
		{name: "over limit", count: 7, wantErr: ErrExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := &fakeCounter{count: tt.count}
			l := NewStoreLimiter(counter, 3)
			l.now = fixedClock(now)

			res, err := l.Acquire(context.Background(), "user-1")

			assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), counter.since)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			res.Release(context.Background())
		})
	}
}

func TestStoreLimiter_CountError(t *testing.T) {
	l := NewStoreLimiter(&fakeCounter{err: errors.New("db down")}, 3)

	_, err := l.Acquire(context.Background(), "user-1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExceeded)
}

func TestStoreLimiter_Usage(t *testing.T) {
	now := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	l := NewStoreLimiter(&fakeCounter{count: 5}, 3)
	l.now = fixedClock(now)

	usage, err := l.Usage(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, Usage{Used: 5, Limit: 3, Remaining: 0, ResetsAt: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)}, usage)
}

func TestNewStoreLimiter_DefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultDailyLimit, NewStoreLimiter(&fakeCounter{}, 0).Limit())
}

func newRedisLimiter(t *testing.T, now time.Time) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(now)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := NewRedisLimiter(client, 3)
	l.now = fixedClock(now)
	return l, mr
}

func TestRedisLimiter_Acquire(t *testing.T) {
	now := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	l, mr := newRedisLimiter(t, now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Acquire(ctx, "user-1")
		require.NoError(t, err, "acquire %d", i+1)
	}
	_, err := l.Acquire(ctx, "user-1")
	assert.ErrorIs(t, err, ErrExceeded)

	got, err := mr.Get("quota:user-1:2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, "3", got)
	assert.Equal(t, 9*time.Hour, mr.TTL("quota:user-1:2024-05-01"))

	_, err = l.Acquire(ctx, "user-2")
	assert.NoError(t, err)
}

func TestRedisLimiter_Release(t *testing.T) {
	l, mr := newRedisLimiter(t, time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()

	res, err := l.Acquire(ctx, "user-1")
	require.NoError(t, err)
	res.Release(ctx)

	got, err := mr.Get("quota:user-1:2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, "0", got)
}

func TestRedisLimiter_NewDayResets(t *testing.T) {
	day := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	l, _ := newRedisLimiter(t, day)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Acquire(ctx, "user-1")
		require.NoError(t, err)
	}

	l.now = fixedClock(day.Add(2 * time.Minute))
	_, err := l.Acquire(ctx, "user-1")
	assert.NoError(t, err)
}

func TestRedisLimiter_Usage(t *testing.T) {
	now := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	l, _ := newRedisLimiter(t, now)
	ctx := context.Background()

	usage, err := l.Usage(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Used)
	assert.Equal(t, 3, usage.Remaining)

	_, err = l.Acquire(ctx, "user-1")
	require.NoError(t, err)

	usage, err = l.Usage(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Used)
	assert.Equal(t, 2, usage.Remaining)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), usage.ResetsAt)
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	l, mr := newRedisLimiter(t, time.Now())
	mr.Close()

	_, err := l.Acquire(context.Background(), "user-1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExceeded)
}
