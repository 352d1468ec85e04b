package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hqtran/voucher-rush/internal/port"
)

const (
	seckillStockKeyPrefix = "seckill:stock:"
	seckillUsersKeyPrefix = "seckill:users:"
)

// admitScript runs the stock check, the stock decrement and the
// duplicate-purchase check as one indivisible operation, so no two callers
// can observe a stale stock value between check and decrement.
// Returns 0 = admitted, 1 = out of stock, 2 = duplicate purchase.
var admitScript = redis.NewScript(`
local stock = tonumber(redis.call('get', KEYS[1]))
if not stock or stock <= 0 then
	return 1
end
if redis.call('sismember', KEYS[2], ARGV[1]) == 1 then
	return 2
end
redis.call('decr', KEYS[1])
redis.call('sadd', KEYS[2], ARGV[1])
return 0
`)

type RedisAdapter struct {
	client *redis.Client
}

var (
	_ port.KVStore         = (*RedisAdapter)(nil)
	_ port.CacheRepository = (*RedisAdapter)(nil)
)

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, true, nil
}

func (r *RedisAdapter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (r *RedisAdapter) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

func (r *RedisAdapter) Admit(ctx context.Context, voucherID, userID int64) (port.Verdict, error) {
	stockKey := seckillStockKeyPrefix + strconv.FormatInt(voucherID, 10)
	usersKey := seckillUsersKeyPrefix + strconv.FormatInt(voucherID, 10)

	result, err := admitScript.Run(ctx, r.client, []string{stockKey, usersKey}, userID).Int()
	if err != nil {
		return 0, fmt.Errorf("run admission script: %w", err)
	}

	switch result {
	case 0:
		return port.VerdictAdmitted, nil
	case 1:
		return port.VerdictOutOfStock, nil
	case 2:
		return port.VerdictDuplicatePurchase, nil
	default:
		return 0, fmt.Errorf("unexpected admission script result: %d", result)
	}
}

// PrimeVoucher seeds the stock counter and rebuilds the purchaser set in one
// pipeline. Callers must pass the database's current buyer list so the set
// and the order table start out consistent.
func (r *RedisAdapter) PrimeVoucher(ctx context.Context, voucherID int64, stock int, purchasers []int64) error {
	stockKey := seckillStockKeyPrefix + strconv.FormatInt(voucherID, 10)
	usersKey := seckillUsersKeyPrefix + strconv.FormatInt(voucherID, 10)

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, stockKey, stock, 0)
	pipe.Del(ctx, usersKey)
	if len(purchasers) > 0 {
		members := make([]interface{}, len(purchasers))
		for i, id := range purchasers {
			members[i] = id
		}
		pipe.SAdd(ctx, usersKey, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("prime voucher %d: %w", voucherID, err)
	}
	return nil
}

func (r *RedisAdapter) RestoreStock(ctx context.Context, voucherID int64) error {
	key := seckillStockKeyPrefix + strconv.FormatInt(voucherID, 10)
	if err := r.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("restore stock for voucher %d: %w", voucherID, err)
	}
	return nil
}
