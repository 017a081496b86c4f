package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotConfigured is returned when the locker has no Redis client.
var ErrNotConfigured = errors.New("lock: redis client not configured")

// ErrLockTimeout is returned when the lock could not be acquired within MaxWait.
var ErrLockTimeout = errors.New("lock: timed out waiting for lock")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker provides a Redis-backed distributed lock used to serialise coupon
// redemption per restaurant and code.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	MaxWait      time.Duration
}

// Key builds a lock key from its parts, e.g. Key("coupon", restaurantID, code).
func Key(parts ...string) string {
	return "lock:" + strings.Join(parts, ":")
}

// WithLock executes fn while holding the lock for key. The lock is released
// even if fn fails, and only by the holder that acquired it. Acquisition
// retries until ctx is done or MaxWait elapses.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	token := uuid.NewString()

	var deadline <-chan time.Time
	if l.MaxWait > 0 {
		wait := time.NewTimer(l.MaxWait)
		defer wait.Stop()
		deadline = wait.C
	}
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			defer l.release(key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-deadline:
			timer.Stop()
			return ErrLockTimeout
		case <-timer.C:
		}
	}
}

func (l Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
