// Package cache implements a generic cache-aside engine over a key-value
// store, with penetration protection (tombstone null caching) and two
// breakdown strategies for hot keys: mutex-wait and logical expiration.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hqtran/voucher-rush/internal/metrics"
	"github.com/hqtran/voucher-rush/internal/port"
)

var (
	// ErrNotFound marks a legitimate absence: the value exists neither in
	// cache nor in the database, or the logical-expiry entry was never warmed.
	ErrNotFound = errors.New("cache: not found")

	// ErrInconsistent marks a payload that could not be decoded. The lookup
	// fails loudly instead of guessing.
	ErrInconsistent = errors.New("cache: corrupt payload")
)

const (
	defaultNullTTL     = 2 * time.Minute
	defaultLockTTL     = 10 * time.Second
	defaultWorkers     = 10
	defaultRebuildSlot = 256
	mutexRetryDelay    = 50 * time.Millisecond
	rebuildTimeout     = 30 * time.Second
	lockKeyPrefix      = "lock:"
)

// Fallback loads a value from the database collaborator. found=false means
// the id does not exist (not an error).
type Fallback[V any] func(ctx context.Context, id int64) (v V, found bool, err error)

// Options tune a Cache. Store and Locker are required.
type Options[V any] struct {
	Store  port.KVStore
	Locker port.Locker
	Codec  Codec[V]       // nil => Msgpack
	Logger zerolog.Logger // zero value is usable

	NullTTL        time.Duration // tombstone TTL; 0 => 2m
	LockTTL        time.Duration // rebuild lock TTL; 0 => 10s
	RebuildWorkers int           // 0 => 10
	RebuildQueue   int           // 0 => 256
}

// Cache is a read-through cache generic over the cached value type. All
// query paths run on the caller's goroutine except the logical-expiry
// rebuild, which runs on the cache's fixed worker pool.
type Cache[V any] struct {
	store   port.KVStore
	locker  port.Locker
	codec   Codec[V]
	log     zerolog.Logger
	nullTTL time.Duration
	lockTTL time.Duration

	rebuilds chan func()
}

// logicalEntry wraps a serialized payload with an application-level expiry.
type logicalEntry struct {
	ExpireAt time.Time `msgpack:"exp"`
	Payload  []byte    `msgpack:"p"`
}

func New[V any](opts Options[V]) (*Cache[V], error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("cache: store is required")
	}
	if opts.Locker == nil {
		return nil, fmt.Errorf("cache: locker is required")
	}

	c := &Cache[V]{
		store:   opts.Store,
		locker:  opts.Locker,
		codec:   opts.Codec,
		log:     opts.Logger,
		nullTTL: opts.NullTTL,
		lockTTL: opts.LockTTL,
	}
	if c.codec == nil {
		c.codec = Msgpack[V]{}
	}
	if c.nullTTL == 0 {
		c.nullTTL = defaultNullTTL
	}
	if c.lockTTL == 0 {
		c.lockTTL = defaultLockTTL
	}

	workers := opts.RebuildWorkers
	if workers == 0 {
		workers = defaultWorkers
	}
	slots := opts.RebuildQueue
	if slots == 0 {
		slots = defaultRebuildSlot
	}
	c.rebuilds = make(chan func(), slots)
	for i := 0; i < workers; i++ {
		go c.rebuildWorker()
	}
	return c, nil
}

// Close stops the rebuild workers. Queued rebuilds are drained first.
func (c *Cache[V]) Close() {
	close(c.rebuilds)
}

func (c *Cache[V]) rebuildWorker() {
	for task := range c.rebuilds {
		task()
	}
}

// Set serializes and stores value with a physical expiry.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	payload, err := c.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	if err := c.store.Set(ctx, key, string(payload), ttl); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// SetWithLogicalExpire stores value wrapped with an application-level expiry
// and no physical TTL; the store keeps the entry until it is overwritten.
func (c *Cache[V]) SetWithLogicalExpire(ctx context.Context, key string, value V, ttl time.Duration) error {
	payload, err := c.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	entry := logicalEntry{
		ExpireAt: time.Now().Add(ttl),
		Payload:  payload,
	}
	raw, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: wrap %q: %w", key, err)
	}
	if err := c.store.Set(ctx, key, string(raw), 0); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound on miss or
// tombstone hit. It never calls the database.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("cache: get %q: %w", key, err)
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return zero, ErrNotFound
	}
	if raw == "" {
		metrics.CacheLookups.WithLabelValues("tombstone").Inc()
		return zero, ErrNotFound
	}
	v, err := c.codec.Decode([]byte(raw))
	if err != nil {
		return zero, fmt.Errorf("%w: key %q: %v", ErrInconsistent, key, err)
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return v, nil
}

// Delete invalidates a key (write-through update path).
func (c *Cache[V]) Delete(ctx context.Context, key string) error {
	if err := c.store.Del(ctx, key); err != nil {
		return fmt.Errorf("cache: del %q: %w", key, err)
	}
	return nil
}

// QueryWithPassThrough reads keyPrefix+id, falling back to the database on a
// miss. A database miss writes a tombstone with a short TTL so repeated
// lookups for nonexistent ids are absorbed until the tombstone lapses.
func (c *Cache[V]) QueryWithPassThrough(ctx context.Context, keyPrefix string, id int64, fallback Fallback[V], ttl time.Duration) (V, error) {
	var zero V
	key := keyPrefix + strconv.FormatInt(id, 10)

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("cache: get %q: %w", key, err)
	}
	if ok {
		if raw == "" {
			// tombstone hit: known-absent, no database call
			metrics.CacheLookups.WithLabelValues("tombstone").Inc()
			return zero, ErrNotFound
		}
		v, err := c.codec.Decode([]byte(raw))
		if err != nil {
			return zero, fmt.Errorf("%w: key %q: %v", ErrInconsistent, key, err)
		}
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return v, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	return c.loadAndFill(ctx, key, id, fallback, ttl)
}

// QueryWithMutex is the mutex-wait breakdown strategy: on a miss, only the
// caller holding the key's lock rebuilds from the database; everyone else
// sleeps briefly and retries the lookup.
func (c *Cache[V]) QueryWithMutex(ctx context.Context, keyPrefix string, id int64, fallback Fallback[V], ttl time.Duration) (V, error) {
	var zero V
	key := keyPrefix + strconv.FormatInt(id, 10)

	for {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return zero, fmt.Errorf("cache: get %q: %w", key, err)
		}
		if ok {
			if raw == "" {
				metrics.CacheLookups.WithLabelValues("tombstone").Inc()
				return zero, ErrNotFound
			}
			v, err := c.codec.Decode([]byte(raw))
			if err != nil {
				return zero, fmt.Errorf("%w: key %q: %v", ErrInconsistent, key, err)
			}
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return v, nil
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()

		lock, acquired, err := c.locker.TryLock(ctx, lockKeyPrefix+key, c.lockTTL)
		if err != nil {
			return zero, fmt.Errorf("cache: lock %q: %w", key, err)
		}
		if !acquired {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(mutexRetryDelay):
			}
			continue
		}

		v, err := func() (V, error) {
			defer func() {
				if rerr := lock.Release(ctx); rerr != nil {
					c.log.Error().Err(rerr).Str("key", key).Msg("release rebuild lock")
				}
			}()
			// double check: another holder may have filled the key while
			// we were acquiring
			if v, err := c.Get(ctx, key); err == nil {
				return v, nil
			} else if !errors.Is(err, ErrNotFound) {
				return zero, err
			}
			return c.loadAndFill(ctx, key, id, fallback, ttl)
		}()
		return v, err
	}
}

// QueryWithLogicalExpire serves pre-warmed entries and never blocks readers:
// an expired entry is returned stale while exactly one rebuild runs on the
// worker pool, guarded by the key's lock. An absent key means the entry was
// never warmed and yields ErrNotFound without touching the database.
func (c *Cache[V]) QueryWithLogicalExpire(ctx context.Context, keyPrefix string, id int64, fallback Fallback[V], ttl time.Duration) (V, error) {
	var zero V
	key := keyPrefix + strconv.FormatInt(id, 10)

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("cache: get %q: %w", key, err)
	}
	if !ok || raw == "" {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return zero, ErrNotFound
	}

	var entry logicalEntry
	if err := msgpack.Unmarshal([]byte(raw), &entry); err != nil {
		return zero, fmt.Errorf("%w: key %q: %v", ErrInconsistent, key, err)
	}
	v, err := c.codec.Decode(entry.Payload)
	if err != nil {
		return zero, fmt.Errorf("%w: key %q: %v", ErrInconsistent, key, err)
	}

	if time.Now().Before(entry.ExpireAt) {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return v, nil
	}
	metrics.CacheLookups.WithLabelValues("stale").Inc()

	lock, acquired, err := c.locker.TryLock(ctx, lockKeyPrefix+key, c.lockTTL)
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("rebuild lock attempt failed")
		return v, nil
	}
	if acquired {
		c.submitRebuild(key, id, fallback, ttl, lock)
	}
	// whether or not we won the lock, the stale value goes back immediately
	return v, nil
}

// submitRebuild hands the refresh to the worker pool. If the pool's queue is
// saturated the lock is released right away so a later read can retry.
func (c *Cache[V]) submitRebuild(key string, id int64, fallback Fallback[V], ttl time.Duration, lock port.Lock) {
	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
		defer cancel()
		defer func() {
			if err := lock.Release(ctx); err != nil {
				c.log.Error().Err(err).Str("key", key).Msg("release rebuild lock")
			}
		}()

		v, found, err := fallback(ctx, id)
		if err != nil {
			metrics.CacheRebuilds.WithLabelValues("error").Inc()
			c.log.Error().Err(err).Str("key", key).Msg("cache rebuild failed")
			return
		}
		if !found {
			// entry disappeared from the database; drop it from cache
			if err := c.store.Del(ctx, key); err != nil {
				c.log.Error().Err(err).Str("key", key).Msg("drop vanished entry")
			}
			metrics.CacheRebuilds.WithLabelValues("vanished").Inc()
			return
		}
		if err := c.SetWithLogicalExpire(ctx, key, v, ttl); err != nil {
			metrics.CacheRebuilds.WithLabelValues("error").Inc()
			c.log.Error().Err(err).Str("key", key).Msg("cache rebuild write failed")
			return
		}
		metrics.CacheRebuilds.WithLabelValues("ok").Inc()
	}

	select {
	case c.rebuilds <- task:
	default:
		metrics.CacheRebuilds.WithLabelValues("pool_full").Inc()
		c.log.Warn().Str("key", key).Msg("rebuild pool saturated, releasing lock")
		ctx, cancel := context.WithTimeout(context.Background(), c.lockTTL)
		defer cancel()
		if err := lock.Release(ctx); err != nil {
			c.log.Error().Err(err).Str("key", key).Msg("release rebuild lock")
		}
	}
}

func (c *Cache[V]) loadAndFill(ctx context.Context, key string, id int64, fallback Fallback[V], ttl time.Duration) (V, error) {
	var zero V
	v, found, err := fallback(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("cache: fallback for %q: %w", key, err)
	}
	if !found {
		if err := c.store.Set(ctx, key, "", c.nullTTL); err != nil {
			return zero, fmt.Errorf("cache: set tombstone %q: %w", key, err)
		}
		return zero, ErrNotFound
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return zero, err
	}
	return v, nil
}
