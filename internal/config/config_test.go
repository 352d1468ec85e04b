package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("unexpected http addr: %s", cfg.HTTPAddr)
	}
	if cfg.OrderQueueSize != 1<<20 {
		t.Errorf("unexpected queue size: %d", cfg.OrderQueueSize)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "redis_addr: redis-1:6379\norder_queue_size: 128\nseckill_vouchers: [7, 8]\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ORDER_QUEUE_SIZE", "256")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RedisAddr != "redis-1:6379" {
		t.Errorf("file value not applied: %s", cfg.RedisAddr)
	}
	if cfg.OrderQueueSize != 256 {
		t.Errorf("env must win over file, got %d", cfg.OrderQueueSize)
	}
	if len(cfg.SeckillVouchers) != 2 || cfg.SeckillVouchers[0] != 7 {
		t.Errorf("unexpected vouchers: %v", cfg.SeckillVouchers)
	}
}

func TestLoad_BadQueueSize(t *testing.T) {
	t.Setenv("ORDER_QUEUE_SIZE", "not-a-number")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error for a malformed ORDER_QUEUE_SIZE")
	}
}
