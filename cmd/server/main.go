package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hqtran/voucher-rush/internal/adapter/handler"
	"github.com/hqtran/voucher-rush/internal/adapter/storage"
	"github.com/hqtran/voucher-rush/internal/config"
	"github.com/hqtran/voucher-rush/internal/core/cache"
	"github.com/hqtran/voucher-rush/internal/core/domain"
	"github.com/hqtran/voucher-rush/internal/core/service"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open mysql")
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("ping mysql")
	}
	log.Info().Msg("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("ping redis")
	}
	log.Info().Msg("connected to redis")

	// Adapters
	redisAdapter := storage.NewRedisAdapter(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)
	locker := storage.NewRedisLocker(rdb)
	idWorker := storage.NewRedisIDWorker(rdb)

	// Caches
	shopCache, err := cache.New(cache.Options[domain.Shop]{
		Store:          redisAdapter,
		Locker:         locker,
		Logger:         log.With().Str("cache", "shop").Logger(),
		RebuildWorkers: cfg.RebuildWorkers,
		RebuildQueue:   cfg.RebuildQueue,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build shop cache")
	}
	typeCache, err := cache.New(cache.Options[[]domain.ShopType]{
		Store:  redisAdapter,
		Locker: locker,
		Logger: log.With().Str("cache", "shop-types").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build shop-type cache")
	}
	voucherCache, err := cache.New(cache.Options[domain.Voucher]{
		Store:  redisAdapter,
		Locker: locker,
		Logger: log.With().Str("cache", "voucher").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build voucher cache")
	}

	// Services
	shopService := service.NewShopService(shopCache, typeCache, mysqlAdapter, log)
	seckillService := service.NewSeckillService(
		redisAdapter, mysqlAdapter, idWorker, locker, voucherCache,
		log.With().Str("component", "seckill").Logger(), cfg.OrderQueueSize,
	)

	// Prime seckill vouchers before accepting traffic
	for _, id := range cfg.SeckillVouchers {
		if err := seckillService.PrepareVoucher(ctx, id); err != nil {
			log.Fatal().Err(err).Int64("voucher_id", id).Msg("prime voucher")
		}
	}

	seckillService.Start()
	log.Info().Msg("order consumer started")

	// HTTP server
	httpHandler := handler.NewHTTPHandler(seckillService, shopService)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.HandleFunc("/api/seckill", httpHandler.Seckill)
	mux.HandleFunc("/api/shop", httpHandler.GetShop)
	mux.HandleFunc("/api/shop-types", httpHandler.ListShopTypes)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info().Msg("http server stopped")

	// no producers remain; drain the queue, then stop the rebuild pools
	seckillService.Close()
	log.Info().Msg("order consumer stopped")

	shopCache.Close()
	typeCache.Close()
	voucherCache.Close()

	rdb.Close()
	db.Close()
	log.Info().Msg("connections closed")
}
