package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hqtran/voucher-rush/internal/core/cache"
	"github.com/hqtran/voucher-rush/internal/core/domain"
	"github.com/hqtran/voucher-rush/internal/metrics"
	"github.com/hqtran/voucher-rush/internal/port"
)

var (
	ErrVoucherNotFound   = errors.New("voucher not found")
	ErrSaleNotStarted    = errors.New("sale not started")
	ErrSaleEnded         = errors.New("sale ended")
	ErrOutOfStock        = errors.New("out of stock")
	ErrDuplicatePurchase = errors.New("duplicate purchase")

	// ErrQueueFull signals the bounded order queue is saturated. This is a
	// capacity error for operators, not routine backpressure.
	ErrQueueFull = errors.New("order queue full")
)

const (
	voucherKeyPrefix   = "cache:voucher:"
	orderLockKeyPrefix = "lock:order:"
	orderIDTag         = "order"

	voucherCacheTTL = 30 * time.Minute
	orderLockTTL    = 10 * time.Second
	commitTimeout   = 5 * time.Second
)

// SeckillService is the flash-sale admission pipeline: a fast cache-side
// admission check, immediate order-id allocation, and an asynchronous
// lock-guarded database commit performed by a single consumer.
type SeckillService struct {
	gate     port.CacheRepository
	db       port.DatabaseRepository
	ids      port.IDGenerator
	locker   port.Locker
	vouchers *cache.Cache[domain.Voucher]
	log      zerolog.Logger

	queue chan domain.OrderTask
	wg    sync.WaitGroup
	now   func() time.Time
}

func NewSeckillService(
	gate port.CacheRepository,
	db port.DatabaseRepository,
	ids port.IDGenerator,
	locker port.Locker,
	vouchers *cache.Cache[domain.Voucher],
	logger zerolog.Logger,
	queueSize int,
) *SeckillService {
	return &SeckillService{
		gate:     gate,
		db:       db,
		ids:      ids,
		locker:   locker,
		vouchers: vouchers,
		log:      logger,
		queue:    make(chan domain.OrderTask, queueSize),
		now:      time.Now,
	}
}

// Start launches the single order consumer. It must be called once, before
// traffic, and pairs with Close.
func (s *SeckillService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for task := range s.queue {
			metrics.QueueDepth.Dec()
			s.commit(task)
		}
	}()
}

// Close stops accepting work and waits for the consumer to drain the queue.
func (s *SeckillService) Close() {
	close(s.queue)
	s.wg.Wait()
}

// Seckill admits or rejects a purchase attempt. On admission the order id is
// returned immediately; the durable commit happens asynchronously.
func (s *SeckillService) Seckill(ctx context.Context, voucherID, userID int64) (int64, error) {
	voucher, err := s.vouchers.QueryWithPassThrough(ctx, voucherKeyPrefix, voucherID, s.loadVoucher, voucherCacheTTL)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return 0, ErrVoucherNotFound
		}
		return 0, fmt.Errorf("load voucher %d: %w", voucherID, err)
	}

	now := s.now()
	if now.Before(voucher.BeginTime) {
		return 0, ErrSaleNotStarted
	}
	if !now.Before(voucher.EndTime) {
		return 0, ErrSaleEnded
	}

	verdict, err := s.gate.Admit(ctx, voucherID, userID)
	if err != nil {
		return 0, fmt.Errorf("admission check: %w", err)
	}
	metrics.AdmissionVerdicts.WithLabelValues(verdict.String()).Inc()
	switch verdict {
	case port.VerdictOutOfStock:
		return 0, ErrOutOfStock
	case port.VerdictDuplicatePurchase:
		return 0, ErrDuplicatePurchase
	}

	orderID, err := s.ids.NextID(ctx, orderIDTag)
	if err != nil {
		return 0, fmt.Errorf("allocate order id: %w", err)
	}

	task := domain.OrderTask{
		OrderID:     orderID,
		UserID:      userID,
		VoucherID:   voucherID,
		SubmittedAt: now,
	}

	select {
	case s.queue <- task:
		metrics.QueueDepth.Inc()
	default:
		metrics.QueueRejections.Inc()
		s.log.Error().
			Int64("order_id", orderID).
			Int64("voucher_id", voucherID).
			Msg("order queue saturated, admission refused")
		return 0, ErrQueueFull
	}

	return orderID, nil
}

// PrepareVoucher primes the cached stock counter and purchaser set from the
// database. It must run before traffic starts for the voucher.
func (s *SeckillService) PrepareVoucher(ctx context.Context, voucherID int64) error {
	voucher, err := s.db.GetVoucherByID(ctx, voucherID)
	if err != nil {
		return fmt.Errorf("load voucher %d: %w", voucherID, err)
	}
	if voucher == nil {
		return ErrVoucherNotFound
	}
	buyers, err := s.db.ListVoucherBuyers(ctx, voucherID)
	if err != nil {
		return fmt.Errorf("load buyers for voucher %d: %w", voucherID, err)
	}
	if err := s.gate.PrimeVoucher(ctx, voucherID, voucher.Stock, buyers); err != nil {
		return err
	}
	s.log.Info().
		Int64("voucher_id", voucherID).
		Int("stock", voucher.Stock).
		Int("buyers", len(buyers)).
		Msg("voucher primed")
	return nil
}

// commit drives one task through Locked -> Committed | RolledBack. The lock
// is a defensive second barrier behind the admission script; on contention
// the task is dropped with a report, not requeued.
func (s *SeckillService) commit(task domain.OrderTask) {
	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()

	lockKey := orderLockKeyPrefix + strconv.FormatInt(task.VoucherID, 10)
	lock, acquired, err := s.locker.TryLock(ctx, lockKey, orderLockTTL)
	if err != nil {
		metrics.OrderCommits.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Int64("order_id", task.OrderID).Msg("order lock attempt failed")
		return
	}
	if !acquired {
		metrics.OrderCommits.WithLabelValues("lock_contended").Inc()
		s.log.Error().
			Int64("order_id", task.OrderID).
			Int64("voucher_id", task.VoucherID).
			Msg("order lock contended, dropping task")
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.log.Error().Err(err).Int64("order_id", task.OrderID).Msg("release order lock")
		}
	}()

	err = s.db.CreateVoucherOrder(ctx, task)
	switch {
	case err == nil:
		metrics.OrderCommits.WithLabelValues("committed").Inc()
		s.log.Info().Int64("order_id", task.OrderID).Int64("user_id", task.UserID).Msg("order committed")
	case errors.Is(err, port.ErrDuplicateOrder):
		metrics.OrderCommits.WithLabelValues("rolled_back_duplicate").Inc()
		s.log.Warn().Int64("order_id", task.OrderID).Int64("user_id", task.UserID).Msg("commit rolled back: duplicate order")
	case errors.Is(err, port.ErrUnderstock):
		metrics.OrderCommits.WithLabelValues("rolled_back_understock").Inc()
		s.log.Warn().Int64("order_id", task.OrderID).Int64("voucher_id", task.VoucherID).Msg("commit rolled back: understock")
	default:
		metrics.OrderCommits.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Int64("order_id", task.OrderID).Msg("order commit failed")
		// infrastructure failure, not a business rollback: give the unit back
		if rerr := s.gate.RestoreStock(ctx, task.VoucherID); rerr != nil {
			s.log.Error().Err(rerr).Int64("voucher_id", task.VoucherID).Msg("stock restore failed")
		}
	}
}

func (s *SeckillService) loadVoucher(ctx context.Context, id int64) (domain.Voucher, bool, error) {
	v, err := s.db.GetVoucherByID(ctx, id)
	if err != nil {
		return domain.Voucher{}, false, err
	}
	if v == nil {
		return domain.Voucher{}, false, nil
	}
	return *v, true, nil
}
