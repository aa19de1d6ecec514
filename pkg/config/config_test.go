package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
environment: test
server:
  port: 9090
  read_timeout: 5s
  write_timeout: 10s
  shutdown_timeout: 15s
logging:
  level: debug
  format: console
  output: stdout
market:
  ticker: ETH-USD
  binance_url: https://api.binance.com
  coinbase_url: https://api.exchange.coinbase.com
  request_timeout: 10s
  context_days: 365
  cache_ttl: 24h
store:
  artifact_ttl: 72h
  redis:
    enabled: false
broadcast:
  subscriber_buffer: 8
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Market.Ticker != "ETH-USD" {
		t.Fatalf("expected ticker ETH-USD, got %q", cfg.Market.Ticker)
	}
	if cfg.Market.CacheTTL != 24*time.Hour {
		t.Fatalf("expected 24h cache ttl, got %v", cfg.Market.CacheTTL)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("TICKER", "SOL-USD")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")

	cfg, err := LoadWithEnv(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Market.Ticker != "SOL-USD" {
		t.Fatalf("env override ignored, got %q", cfg.Market.Ticker)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "broker2:9092" {
		t.Fatalf("broker list not parsed: %v", cfg.Kafka.Brokers)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	cfg.Server.Port = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for negative port")
	}
}
