package port

import (
	"context"
	"time"
)

// KVStore is the minimal key-value surface the cache-aside engine needs.
// Implementations must be safe for concurrent use and must return values
// byte-for-byte as they were written.
type KVStore interface {
	// Get returns (value, true, nil) on hit and ("", false, nil) on miss.
	// I/O failures are returned as errors, never reported as a miss.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value. A zero ttl means no physical expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes a key.
	Del(ctx context.Context, key string) error
}
