// Stress-drives the admission gate against a real Redis: primes a voucher
// with limited stock, fires concurrent admission attempts from distinct
// users, and checks that exactly stock-many are admitted.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hqtran/voucher-rush/internal/adapter/storage"
	"github.com/hqtran/voucher-rush/internal/port"
)

const (
	voucherID     = int64(999001)
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	gate := storage.NewRedisAdapter(rdb)
	if err := gate.PrimeVoucher(ctx, voucherID, initialStock, nil); err != nil {
		log.Fatalf("failed to prime voucher: %v", err)
	}

	var admitted, soldOut, duplicate, failed atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()

			verdict, err := gate.Admit(ctx, voucherID, userID)
			if err != nil {
				failed.Add(1)
				return
			}
			switch verdict {
			case port.VerdictAdmitted:
				admitted.Add(1)
			case port.VerdictOutOfStock:
				soldOut.Add(1)
			case port.VerdictDuplicatePurchase:
				duplicate.Add(1)
			}
		}(int64(i + 1))
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Admitted:         %d\n", admitted.Load())
	fmt.Printf("Sold Out:         %d\n", soldOut.Load())
	fmt.Printf("Duplicate:        %d\n", duplicate.Load())
	fmt.Printf("Errors:           %d\n", failed.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if admitted.Load() == int32(initialStock) && soldOut.Load() == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d admitted, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d admitted/%d rejected, got %d/%d\n",
			initialStock, totalRequests-initialStock, admitted.Load(), soldOut.Load())
	}

	finalStock, _ := rdb.Get(ctx, fmt.Sprintf("seckill:stock:%d", voucherID)).Int()
	fmt.Printf("Final Redis Stock: %d\n", finalStock)

	if finalStock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", finalStock)
	}
}
