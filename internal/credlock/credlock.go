// Package credlock implements the optional cross-process credential lock
// of SPEC_FULL.md §D7: a Redis SETNX-based short lease on one credential
// fingerprint, mirroring internal/auth/ratelimit.go's INCR+EXPIRE idiom but
// using SETNX since this is a mutual-exclusion lock, not a counter.
package credlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease is how long a held lock survives without renewal. A credential's
// Acquire-to-next-request window is short, so the lease only needs to
// outlast one request round trip.
const Lease = 10 * time.Second

// Locker implements credential.Locker over a Redis client.
type Locker struct {
	redis *redis.Client
}

// New wraps an already-connected Redis client.
func New(rdb *redis.Client) *Locker {
	return &Locker{redis: rdb}
}

// TryLock implements credential.Locker.
func (l *Locker) TryLock(ctx context.Context, fingerprint string) (bool, error) {
	key := fmt.Sprintf("xhscrawl:credlock:%s", fingerprint)
	ok, err := l.redis.SetNX(ctx, key, 1, Lease).Result()
	if err != nil {
		return false, fmt.Errorf("locking credential %s: %w", fingerprint, err)
	}
	return ok, nil
}
