package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/cache"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"
)

// Source fetches OHLCV bars from Binance with a Coinbase fallback and a
// local cache fallback when both providers are unreachable.
type Source struct {
	client      *xhttp.Client
	store       cache.Store
	log         *logger.Logger
	binanceURL  string
	coinbaseURL string
	contextDays int
	cacheTTL    time.Duration
}

// Config holds Source construction parameters.
type Config struct {
	BinanceURL     string
	CoinbaseURL    string
	RequestTimeout time.Duration
	ContextDays    int
	CacheTTL       time.Duration
}

// New creates a market data source backed by the given key-value store.
func New(cfg Config, store cache.Store, log *logger.Logger) *Source {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.ContextDays <= 0 {
		cfg.ContextDays = 365
	}
	return &Source{
		client:      xhttp.NewClient(xhttp.WithTimeout(cfg.RequestTimeout)),
		store:       store,
		log:         log,
		binanceURL:  cfg.BinanceURL,
		coinbaseURL: cfg.CoinbaseURL,
		contextDays: cfg.ContextDays,
		cacheTTL:    cfg.CacheTTL,
	}
}

// Fetch returns up to maxPoints recent bars for the ticker on the given
// interval, looking back lookbackDays. Provider failures fall back to the
// cached series; with no cache the call fails with ErrDataUnavailable.
// The cap is applied after normalization so the newest bars are kept.
func (s *Source) Fetch(ctx context.Context, ticker, interval string, lookbackDays, maxPoints int) ([]models.Bar, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -lookbackDays)

	bars, err := s.fetchBinance(ctx, ticker, interval, start, end, maxPoints)
	if err != nil || len(bars) == 0 {
		if err != nil {
			s.log.Warn("binance fetch failed, trying coinbase", logger.String("ticker", ticker), logger.Error(err))
		}
		bars, err = s.fetchCoinbase(ctx, ticker, interval, start, end)
	}
	if err != nil || len(bars) == 0 {
		if err != nil {
			s.log.Warn("all providers failed, falling back to cache", logger.String("ticker", ticker), logger.Error(err))
		}
		cached, cacheErr := s.LoadCache(ctx, ticker, interval)
		if cacheErr != nil || len(cached) == 0 {
			return nil, fmt.Errorf("%w: ticker %s interval %s", models.ErrDataUnavailable, ticker, interval)
		}
		return truncate(Normalize(cached), maxPoints), nil
	}

	bars = truncate(Normalize(bars), maxPoints)
	if err := s.SaveCache(ctx, ticker, interval, bars); err != nil {
		s.log.Warn("bar cache save failed", logger.String("ticker", ticker), logger.Error(err))
	}
	return bars, nil
}

// FetchContext returns coarser 1h bars over the configured context window,
// used to extend the intraday series for longer-horizon features.
func (s *Source) FetchContext(ctx context.Context, ticker string) ([]models.Bar, error) {
	return s.Fetch(ctx, ticker, "1h", s.contextDays, 0)
}

// LoadCache returns the cached series for (ticker, interval), if any.
func (s *Source) LoadCache(ctx context.Context, ticker, interval string) ([]models.Bar, error) {
	var bars []models.Bar
	err := s.store.Get(ctx, barCacheKey(ticker, interval), &bars)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return bars, nil
}

// SaveCache persists the series for offline reuse.
func (s *Source) SaveCache(ctx context.Context, ticker, interval string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	return s.store.Set(ctx, barCacheKey(ticker, interval), bars, s.cacheTTL)
}

// Merge combines context bars under intraday bars, deduplicating by
// timestamp with the intraday value winning.
func Merge(context, intraday []models.Bar) []models.Bar {
	merged := make([]models.Bar, 0, len(context)+len(intraday))
	merged = append(merged, context...)
	merged = append(merged, intraday...)
	return Normalize(merged)
}

// Normalize drops bars without a usable close, orders by timestamp, and
// deduplicates keeping the latest-seen value per timestamp. It never
// reorders equal timestamps other than by keeping the last one.
func Normalize(bars []models.Bar) []models.Bar {
	byTime := make(map[int64]models.Bar, len(bars))
	order := make([]int64, 0, len(bars))
	for _, b := range bars {
		if b.Close <= 0 || math.IsNaN(b.Close) || math.IsInf(b.Close, 0) {
			continue
		}
		ts := b.Timestamp.UnixNano()
		if _, seen := byTime[ts]; !seen {
			order = append(order, ts)
		}
		byTime[ts] = b
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]models.Bar, 0, len(order))
	for _, ts := range order {
		out = append(out, byTime[ts])
	}
	return out
}

func truncate(bars []models.Bar, maxPoints int) []models.Bar {
	if maxPoints > 0 && len(bars) > maxPoints {
		return bars[len(bars)-maxPoints:]
	}
	return bars
}

func barCacheKey(ticker, interval string) string {
	return fmt.Sprintf("bars:%s:%s", ticker, interval)
}
