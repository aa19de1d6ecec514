package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/cache"
	"MarketPulse/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func newTestSource(t *testing.T, binanceURL, coinbaseURL string, store cache.Store) *Source {
	t.Helper()
	return New(Config{
		BinanceURL:     binanceURL,
		CoinbaseURL:    coinbaseURL,
		RequestTimeout: 2 * time.Second,
		ContextDays:    1,
		CacheTTL:       time.Minute,
	}, store, testLogger(t))
}

// klineServer serves Binance-style klines: price fields as strings,
// timestamps in milliseconds.
func klineServer(t *testing.T, n int) *httptest.Server {
	t.Helper()
	base := time.Now().UTC().Add(-time.Duration(n) * time.Minute).Truncate(time.Minute)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			http.NotFound(w, r)
			return
		}
		rows := make([][]interface{}, 0, n)
		for i := 0; i < n; i++ {
			open := base.Add(time.Duration(i) * time.Minute)
			price := 50000 + float64(i)
			rows = append(rows, []interface{}{
				open.UnixMilli(),
				fmt.Sprintf("%.2f", price-1),
				fmt.Sprintf("%.2f", price+2),
				fmt.Sprintf("%.2f", price-2),
				fmt.Sprintf("%.2f", price),
				"12.5",
				open.Add(time.Minute).UnixMilli() - 1,
			})
		}
		json.NewEncoder(w).Encode(rows)
	}))
}

func failingServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
}

func TestFetchFromBinance(t *testing.T) {
	binance := klineServer(t, 120)
	defer binance.Close()
	coinbase := failingServer(t)
	defer coinbase.Close()

	src := newTestSource(t, binance.URL, coinbase.URL, cache.NewMemoryStore())
	bars, err := src.Fetch(context.Background(), "BTC-USD", "1m", 1, 0)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(bars) != 120 {
		t.Fatalf("expected 120 bars, got %d", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			t.Fatalf("timestamps not strictly increasing at %d", i)
		}
	}
}

func TestFetchCapsAfterNormalize(t *testing.T) {
	binance := klineServer(t, 120)
	defer binance.Close()
	coinbase := failingServer(t)
	defer coinbase.Close()

	src := newTestSource(t, binance.URL, coinbase.URL, cache.NewMemoryStore())
	bars, err := src.Fetch(context.Background(), "BTC-USD", "1m", 1, 50)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(bars) != 50 {
		t.Fatalf("expected cap at 50 bars, got %d", len(bars))
	}
	// the newest bars survive the cap
	all, _ := src.Fetch(context.Background(), "BTC-USD", "1m", 1, 0)
	if !bars[len(bars)-1].Timestamp.Equal(all[len(all)-1].Timestamp) {
		t.Fatalf("cap discarded the newest bar")
	}
}

func TestFetchFallsBackToCache(t *testing.T) {
	binance := klineServer(t, 60)
	coinbase := failingServer(t)
	defer coinbase.Close()

	store := cache.NewMemoryStore()
	src := newTestSource(t, binance.URL, coinbase.URL, store)
	if _, err := src.Fetch(context.Background(), "BTC-USD", "1m", 1, 0); err != nil {
		t.Fatalf("priming fetch failed: %v", err)
	}
	binance.Close()

	bars, err := src.Fetch(context.Background(), "BTC-USD", "1m", 1, 0)
	if err != nil {
		t.Fatalf("expected cache fallback, got %v", err)
	}
	if len(bars) != 60 {
		t.Fatalf("expected 60 cached bars, got %d", len(bars))
	}
}

func TestFetchNoProvidersNoCache(t *testing.T) {
	binance := failingServer(t)
	defer binance.Close()
	coinbase := failingServer(t)
	defer coinbase.Close()

	src := newTestSource(t, binance.URL, coinbase.URL, cache.NewMemoryStore())
	_, err := src.Fetch(context.Background(), "NEW-COIN", "1m", 1, 0)
	if !errors.Is(err, models.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := []models.Bar{
		{Timestamp: base.Add(2 * time.Minute), Close: 102},
		{Timestamp: base, Close: 100},
		{Timestamp: base.Add(time.Minute), Close: 0},              // no usable close
		{Timestamp: base.Add(time.Minute), Close: math.NaN()},     // no usable close
		{Timestamp: base, Close: 100.5},                           // duplicate, latest wins
		{Timestamp: base.Add(3 * time.Minute), Close: math.Inf(1)}, // dropped
	}
	out := Normalize(bars)
	if len(out) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(out))
	}
	if out[0].Close != 100.5 {
		t.Fatalf("expected duplicate resolution to keep latest, got %v", out[0].Close)
	}
	if !out[1].Timestamp.After(out[0].Timestamp) {
		t.Fatalf("expected sorted output")
	}
}

func TestMergeIntradayWins(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	contextBars := []models.Bar{
		{Timestamp: base.Add(-time.Hour), Close: 90},
		{Timestamp: base, Close: 95},
	}
	intraday := []models.Bar{
		{Timestamp: base, Close: 100},
		{Timestamp: base.Add(time.Minute), Close: 101},
	}
	out := Merge(contextBars, intraday)
	if len(out) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(out))
	}
	if out[1].Close != 100 {
		t.Fatalf("expected intraday value to win duplicate, got %v", out[1].Close)
	}
}

func TestSymbolMapping(t *testing.T) {
	cases := []struct {
		ticker   string
		binance  string
		coinbase string
	}{
		{"BTC-USD", "BTCUSDT", "BTC-USD"},
		{"eth_usd", "ETHUSDT", "ETH-USD"},
		{"SOL-USDT", "SOLUSDT", "SOL-USD"},
	}
	for _, tc := range cases {
		if got := binanceSymbol(tc.ticker); got != tc.binance {
			t.Fatalf("binanceSymbol(%s) = %s, want %s", tc.ticker, got, tc.binance)
		}
		if got := coinbaseProduct(tc.ticker); got != tc.coinbase {
			t.Fatalf("coinbaseProduct(%s) = %s, want %s", tc.ticker, got, tc.coinbase)
		}
	}
}
