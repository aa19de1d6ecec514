package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/util"
)

// Coinbase serves at most ~300 candles per request.
const coinbaseBatchCandles = 300

// coinbaseProduct maps a generic ticker like BTC-USD to a Coinbase
// Exchange product id; USDT quotes collapse to USD.
func coinbaseProduct(ticker string) string {
	parts := strings.Split(strings.ToUpper(strings.ReplaceAll(ticker, "_", "-")), "-")
	base := parts[0]
	quote := "USD"
	if len(parts) >= 2 {
		quote = parts[1]
	}
	if quote == "USDT" {
		quote = "USD"
	}
	return base + "-" + quote
}

func coinbaseGranularity(interval string) int {
	d, ok := util.IntervalDuration(interval)
	if !ok {
		d = time.Minute
	}
	return int(d.Seconds())
}

// fetchCoinbase pages through Coinbase Exchange candles. Rows come back
// newest-first as [time, low, high, open, close, volume].
func (s *Source) fetchCoinbase(ctx context.Context, ticker, interval string, start, end time.Time) ([]models.Bar, error) {
	product := coinbaseProduct(ticker)
	granularity := coinbaseGranularity(interval)
	step := time.Duration(granularity*coinbaseBatchCandles) * time.Second

	var bars []models.Bar
	for cursor := start; cursor.Before(end); cursor = cursor.Add(step) {
		chunkEnd := cursor.Add(step)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		var batch [][]float64
		err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: http.MethodGet,
			URL:    fmt.Sprintf("%s/products/%s/candles", s.coinbaseURL, product),
			QueryParams: map[string]string{
				"granularity": strconv.Itoa(granularity),
				"start":       cursor.Format(time.RFC3339),
				"end":         chunkEnd.Format(time.RFC3339),
			},
		}, &batch)
		if err != nil {
			return nil, fmt.Errorf("coinbase candles: %w", err)
		}

		for _, row := range batch {
			if len(row) < 6 {
				continue
			}
			bars = append(bars, models.Bar{
				Timestamp: time.Unix(int64(row[0]), 0).UTC(),
				Low:       row[1],
				High:      row[2],
				Open:      row[3],
				Close:     row[4],
				Volume:    row[5],
			})
		}
	}
	return bars, nil
}
