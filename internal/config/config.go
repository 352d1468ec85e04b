// Package config loads service configuration from defaults, an optional YAML
// file, and environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr      string `yaml:"http_addr"`
	MySQLDSN      string `yaml:"mysql_dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPoolSize int    `yaml:"redis_pool_size"`

	// OrderQueueSize bounds the admission-to-commit queue. Sized generously
	// so producers never block under normal load; saturation is a capacity
	// error, not backpressure.
	OrderQueueSize int `yaml:"order_queue_size"`

	// RebuildWorkers sizes the logical-expiry rebuild pool.
	RebuildWorkers int `yaml:"rebuild_workers"`
	RebuildQueue   int `yaml:"rebuild_queue"`

	// SeckillVouchers are primed into the cache at startup.
	SeckillVouchers []int64 `yaml:"seckill_vouchers"`
}

func Default() *Config {
	return &Config{
		HTTPAddr:       ":8080",
		MySQLDSN:       "root:root@tcp(localhost:3306)/voucherrush?parseTime=true",
		RedisAddr:      "localhost:6379",
		RedisPoolSize:  100,
		OrderQueueSize: 1 << 20,
		RebuildWorkers: 10,
		RebuildQueue:   256,
	}
}

// Load builds the effective configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.MySQLDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("ORDER_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse ORDER_QUEUE_SIZE: %w", err)
		}
		cfg.OrderQueueSize = n
	}

	return cfg, nil
}
