package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
)

// Limiter gates calls to the classification endpoint. The returned release
// func must be called exactly once.
type Limiter interface {
	Acquire(ctx context.Context) (release func(), err error)
}

type LocalLimiter struct {
	sem *semaphore.Weighted
}

func NewLocalLimiter(limit int) *LocalLimiter {
	if limit < 1 {
		limit = 1
	}
	return &LocalLimiter{sem: semaphore.NewWeighted(int64(limit))}
}

func (l *LocalLimiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { l.sem.Release(1) }, nil
}

// KEYS[1] sorted set of holders scored by lease expiry (ms)
// ARGV: now, expiry, limit, token, ttl
var acquireScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return 1
end
return 0
`)

// RedisLimiter is a counting semaphore shared by every process using the
// same key. Each slot is a lease, so a crashed holder frees its slot after
// the lease duration.
type RedisLimiter struct {
	client *redis.Client
	key    string
	limit  int
	lease  time.Duration
	poll   time.Duration
}

func NewRedisLimiter(client *redis.Client, key string, limit int, lease time.Duration) *RedisLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RedisLimiter{
		client: client,
		key:    key,
		limit:  limit,
		lease:  lease,
		poll:   250 * time.Millisecond,
	}
}

func (l *RedisLimiter) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	for {
		now := time.Now()
		acquired, err := acquireScript.Run(ctx, l.client, []string{l.key},
			now.UnixMilli(), now.Add(l.lease).UnixMilli(), l.limit, token, l.lease.Milliseconds(),
		).Int()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire limiter slot: %w", err)
		}

		if acquired == 1 {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := l.client.ZRem(releaseCtx, l.key, token).Err(); err != nil {
					slog.Warn("Failed to release limiter slot", "key", l.key, "error", err)
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}
