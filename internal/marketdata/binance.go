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
)

const binanceBatchLimit = 1000

// binanceSymbol maps a generic ticker like BTC-USD to a Binance spot
// symbol (BTCUSDT).
func binanceSymbol(ticker string) string {
	symbol := strings.ToUpper(strings.NewReplacer("-", "", "_", "").Replace(ticker))
	if strings.HasSuffix(symbol, "USD") {
		symbol += "T"
	}
	return symbol
}

// fetchBinance pages through Binance klines from start to end. Each row
// is [openTime, open, high, low, close, volume, closeTime, ...] with
// prices serialized as strings.
func (s *Source) fetchBinance(ctx context.Context, ticker, interval string, start, end time.Time, maxPoints int) ([]models.Bar, error) {
	symbol := binanceSymbol(ticker)
	cursor := start.UnixMilli()
	endMs := end.UnixMilli()

	var bars []models.Bar
	for cursor < endMs {
		var batch [][]interface{}
		err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: http.MethodGet,
			URL:    s.binanceURL + "/api/v3/klines",
			QueryParams: map[string]string{
				"symbol":    symbol,
				"interval":  interval,
				"startTime": strconv.FormatInt(cursor, 10),
				"endTime":   strconv.FormatInt(endMs, 10),
				"limit":     strconv.Itoa(binanceBatchLimit),
			},
		}, &batch)
		if err != nil {
			return nil, fmt.Errorf("binance klines: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		var lastClose int64
		for _, row := range batch {
			bar, closeTime, ok := parseBinanceKline(row)
			if !ok {
				continue
			}
			bars = append(bars, bar)
			lastClose = closeTime
		}
		if lastClose == 0 {
			break
		}
		cursor = lastClose + 1
		if len(batch) < binanceBatchLimit {
			break
		}
		if maxPoints > 0 && len(bars) >= maxPoints {
			break
		}
	}
	return bars, nil
}

func parseBinanceKline(row []interface{}) (models.Bar, int64, bool) {
	if len(row) < 7 {
		return models.Bar{}, 0, false
	}
	openTime, ok := row[0].(float64)
	if !ok {
		return models.Bar{}, 0, false
	}
	closeTime, ok := row[6].(float64)
	if !ok {
		return models.Bar{}, 0, false
	}
	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		str, ok := row[i].(string)
		if !ok {
			return models.Bar{}, 0, false
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return models.Bar{}, 0, false
		}
		vals[i-1] = v
	}
	bar := models.Bar{
		Timestamp: time.UnixMilli(int64(openTime)).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}
	return bar, int64(closeTime), true
}
