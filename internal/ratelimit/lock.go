package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// lockNamespace prefixes every lock so pricedesk can share a Redis with
// other services.
const lockNamespace = "pricedesk:lock:"

// Only the holder's token may delete the key; an expired lease that was
// taken over by another run is left alone.
const releaseIfOwnedScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLockNotConfigured = errors.New("lock_not_configured")
	ErrInvalidLockKey    = errors.New("invalid_lock_key")
	ErrInvalidLockTTL    = errors.New("invalid_lock_ttl")
)

// Lock keys are "<scope>:<name>[:<name>...]", e.g. "salesforce:sync:42" or
// "sweep:expire_signatures".
var lockKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(:[A-Za-z0-9_\-]+)+$`)

// Locker hands out leases on Redis keys. A lease expires on its own after
// its TTL, so a crashed holder never blocks the next run for longer than
// that.
type Locker struct {
	client  *redis.Client
	release *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client:  client,
		release: redis.NewScript(releaseIfOwnedScript),
	}
}

// TryLock takes the lease on key without waiting. It returns the holder
// token and false when someone else holds it.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockNotConfigured
	}
	redisKey, err := lockKey(key)
	if err != nil {
		return "", false, err
	}
	if ttl <= 0 {
		return "", false, ErrInvalidLockTTL
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock %s: %w", key, err)
	}
	return token, ok, nil
}

// Release gives the lease back if token still holds it. Releasing a lease
// that already expired is not an error.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	redisKey, err := lockKey(key)
	if err != nil {
		return err
	}
	if err := l.release.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func lockKey(key string) (string, error) {
	if !lockKeyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidLockKey, key)
	}
	return lockNamespace + key, nil
}
