package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hqtran/voucher-rush/internal/port"
)

const (
	// idEpoch is 2022-01-01T00:00:00Z. 32 bits of whole seconds gives the
	// timestamp component ~68 years of range.
	idEpoch = 1640995200

	// sequenceBits is how far the timestamp is shifted; the low bits hold a
	// per-tag, per-day counter.
	sequenceBits = 31

	idCounterKeyPrefix = "icr:"
)

// RedisIDWorker generates unique, time-ordered 64-bit ids. Uniqueness across
// processes is delegated to the store's atomic INCR; the counter key is
// qualified by calendar day so the sequence resets implicitly at midnight.
type RedisIDWorker struct {
	client *redis.Client
	now    func() time.Time
}

var _ port.IDGenerator = (*RedisIDWorker)(nil)

func NewRedisIDWorker(client *redis.Client) *RedisIDWorker {
	return &RedisIDWorker{client: client, now: time.Now}
}

func (w *RedisIDWorker) NextID(ctx context.Context, businessTag string) (int64, error) {
	now := w.now().UTC()
	timestamp := now.Unix() - idEpoch

	day := now.Format("2006:01:02")
	seq, err := w.client.Incr(ctx, idCounterKeyPrefix+businessTag+":"+day).Result()
	if err != nil {
		return 0, fmt.Errorf("increment id counter for %q: %w", businessTag, err)
	}

	return timestamp<<sequenceBits | seq, nil
}
