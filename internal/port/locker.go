package port

import (
	"context"
	"time"
)

// Lock is a held distributed lock. Release is safe to call from a defer and
// must not remove the key if the lock has since been acquired by someone else.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out short-lived mutual-exclusion locks backed by a shared
// store, valid across process instances.
type Locker interface {
	// TryLock attempts a non-blocking acquire. It returns (lock, true, nil)
	// on success and (nil, false, nil) when the resource is already held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error)
}
