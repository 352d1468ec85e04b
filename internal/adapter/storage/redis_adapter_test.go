package storage

import (
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hqtran/voucher-rush/internal/port"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func cleanupVoucher(ctx context.Context, client *redis.Client, voucherID int64) {
	id := strconv.FormatInt(voucherID, 10)
	client.Del(ctx, seckillStockKeyPrefix+id, seckillUsersKeyPrefix+id)
}

func TestAdmit_Admitted(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	cleanupVoucher(ctx, client, 100)
	if err := adapter.PrimeVoucher(ctx, 100, 10, nil); err != nil {
		t.Fatalf("prime: %v", err)
	}

	verdict, err := adapter.Admit(ctx, 100, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict != port.VerdictAdmitted {
		t.Errorf("expected admitted, got %v", verdict)
	}

	stock, _ := client.Get(ctx, seckillStockKeyPrefix+"100").Int()
	if stock != 9 {
		t.Errorf("expected stock 9, got %d", stock)
	}
	member, _ := client.SIsMember(ctx, seckillUsersKeyPrefix+"100", 1).Result()
	if !member {
		t.Error("expected user recorded in purchaser set")
	}
}

func TestAdmit_OutOfStock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	cleanupVoucher(ctx, client, 100)
	if err := adapter.PrimeVoucher(ctx, 100, 0, nil); err != nil {
		t.Fatalf("prime: %v", err)
	}

	verdict, err := adapter.Admit(ctx, 100, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict != port.VerdictOutOfStock {
		t.Errorf("expected out of stock, got %v", verdict)
	}
	member, _ := client.SIsMember(ctx, seckillUsersKeyPrefix+"100", 1).Result()
	if member {
		t.Error("rejected user must not be recorded as a purchaser")
	}
}

func TestAdmit_UnprimedVoucherIsOutOfStock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	cleanupVoucher(ctx, client, 101)

	verdict, err := adapter.Admit(ctx, 101, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict != port.VerdictOutOfStock {
		t.Errorf("expected out of stock for missing stock key, got %v", verdict)
	}
}

func TestAdmit_DuplicatePurchase(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	cleanupVoucher(ctx, client, 100)
	if err := adapter.PrimeVoucher(ctx, 100, 10, nil); err != nil {
		t.Fatalf("prime: %v", err)
	}

	if verdict, _ := adapter.Admit(ctx, 100, 1); verdict != port.VerdictAdmitted {
		t.Fatalf("first attempt: expected admitted, got %v", verdict)
	}
	verdict, err := adapter.Admit(ctx, 100, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict != port.VerdictDuplicatePurchase {
		t.Errorf("expected duplicate purchase, got %v", verdict)
	}

	// the duplicate attempt must not burn a unit of stock
	stock, _ := client.Get(ctx, seckillStockKeyPrefix+"100").Int()
	if stock != 9 {
		t.Errorf("expected stock 9, got %d", stock)
	}
}

func TestAdmit_ConcurrentDistinctUsers(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	const stock = 10
	const callers = 100

	cleanupVoucher(ctx, client, 100)
	if err := adapter.PrimeVoucher(ctx, 100, stock, nil); err != nil {
		t.Fatalf("prime: %v", err)
	}

	var admitted, soldOut int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			verdict, err := adapter.Admit(ctx, 100, userID)
			if err != nil {
				t.Errorf("admit: %v", err)
				return
			}
			switch verdict {
			case port.VerdictAdmitted:
				atomic.AddInt32(&admitted, 1)
			case port.VerdictOutOfStock:
				atomic.AddInt32(&soldOut, 1)
			default:
				t.Errorf("unexpected verdict for distinct user: %v", verdict)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	if admitted != stock {
		t.Errorf("expected exactly %d admitted, got %d", stock, admitted)
	}
	if soldOut != callers-stock {
		t.Errorf("expected %d sold out, got %d", callers-stock, soldOut)
	}

	finalStock, _ := client.Get(ctx, seckillStockKeyPrefix+"100").Int()
	if finalStock != 0 {
		t.Errorf("expected stock depleted to 0, got %d", finalStock)
	}
}

func TestPrimeVoucher_SeedsPurchasers(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	cleanupVoucher(ctx, client, 100)
	if err := adapter.PrimeVoucher(ctx, 100, 5, []int64{11, 22}); err != nil {
		t.Fatalf("prime: %v", err)
	}

	if verdict, _ := adapter.Admit(ctx, 100, 11); verdict != port.VerdictDuplicatePurchase {
		t.Errorf("seeded buyer must be a duplicate, got %v", verdict)
	}
	if verdict, _ := adapter.Admit(ctx, 100, 33); verdict != port.VerdictAdmitted {
		t.Errorf("fresh buyer must be admitted, got %v", verdict)
	}
}

func TestRestoreStock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	cleanupVoucher(ctx, client, 100)
	if err := adapter.PrimeVoucher(ctx, 100, 1, nil); err != nil {
		t.Fatalf("prime: %v", err)
	}
	if _, err := adapter.Admit(ctx, 100, 1); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := adapter.RestoreStock(ctx, 100); err != nil {
		t.Fatalf("restore: %v", err)
	}

	stock, _ := client.Get(ctx, seckillStockKeyPrefix+"100").Int()
	if stock != 1 {
		t.Errorf("expected stock back at 1, got %d", stock)
	}
}

func TestKVStore_RoundTripAndTTL(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "test:kv")

	if _, ok, err := adapter.Get(ctx, "test:kv"); err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}

	if err := adapter.Set(ctx, "test:kv", "payload", 100*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, ok, err := adapter.Get(ctx, "test:kv")
	if err != nil || !ok || val != "payload" {
		t.Fatalf("expected hit with payload, got %q ok=%v err=%v", val, ok, err)
	}

	time.Sleep(150 * time.Millisecond)
	if _, ok, _ := adapter.Get(ctx, "test:kv"); ok {
		t.Error("expected miss after TTL elapsed")
	}

	// empty value (tombstone) is a hit, not a miss
	if err := adapter.Set(ctx, "test:kv", "", time.Minute); err != nil {
		t.Fatalf("set tombstone: %v", err)
	}
	val, ok, err = adapter.Get(ctx, "test:kv")
	if err != nil || !ok || val != "" {
		t.Fatalf("expected empty-string hit, got %q ok=%v err=%v", val, ok, err)
	}
	adapter.Del(ctx, "test:kv")
}
