package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"MarketPulse/internal/broadcast"
	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/forecast"
	"MarketPulse/internal/marketdata"
	"MarketPulse/internal/pipeline"
	"MarketPulse/internal/portfolio"
	"MarketPulse/internal/signal"
	"MarketPulse/pkg/cache"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

func testHandler(t *testing.T) *PipelineHandler {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	store := cache.NewMemoryStore()
	source := marketdata.New(marketdata.Config{
		BinanceURL:     "http://127.0.0.1:9", // nothing listens; forces degraded paths
		CoinbaseURL:    "http://127.0.0.1:9",
		RequestTimeout: 200 * time.Millisecond,
	}, store, log)

	settings := models.DefaultSettings()
	orch := pipeline.New(pipeline.Deps{
		Source: source,
		Minute: forecast.NewModel(models.Horizon{ID: "minute", GridInterval: time.Minute, Steps: 1},
			store, log, time.Hour),
		Long: forecast.NewModel(models.Horizon{ID: "hour", GridInterval: 5 * time.Minute, Steps: 9},
			store, log, time.Hour),
		Engine:      signal.New(settings.BuyMultiplier, settings.SellMultiplier),
		Simulator:   portfolio.New(settings.ChartPoints),
		Broadcaster: broadcast.New(4, log),
		Metrics:     metrics.NewWith(prometheus.NewRegistry()),
		Log:         log,
		Settings:    settings,
	})
	return NewPipelineHandler(log, orch)
}

func doRequest(t *testing.T, h func(echo.Context) error, method, target, body string) xhttp.APIResponse {
	t.Helper()
	e := echo.New()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	var resp xhttp.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestStateAlwaysReturnsSnapshot(t *testing.T) {
	h := testHandler(t)
	resp := doRequest(t, h.State, http.MethodGet, "/api/state", "")
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200 envelope, got %d", resp.Status)
	}
	data, _ := json.Marshal(resp.Data)
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("snapshot decode: %v", err)
	}
	if snap.Status != models.StatusInitializing {
		t.Fatalf("expected initializing status before first cycle, got %q", snap.Status)
	}
}

func TestGetConfig(t *testing.T) {
	h := testHandler(t)
	resp := doRequest(t, h.GetConfig, http.MethodGet, "/api/config", "")
	data, _ := json.Marshal(resp.Data)
	var s models.Settings
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("settings decode: %v", err)
	}
	if s.Ticker != "BTC-USD" {
		t.Fatalf("expected default ticker, got %q", s.Ticker)
	}
}

func TestSetConfigRejectsInvalid(t *testing.T) {
	h := testHandler(t)
	resp := doRequest(t, h.SetConfig, http.MethodPost, "/api/config", `{"intraday_days": -3}`)
	if resp.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 envelope, got %d", resp.Status)
	}
}

func TestSetConfigApplies(t *testing.T) {
	h := testHandler(t)
	resp := doRequest(t, h.SetConfig, http.MethodPost, "/api/config", `{"invest_amount": 2500}`)
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200 envelope, got %d", resp.Status)
	}
	data, _ := json.Marshal(resp.Data)
	var s models.Settings
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("settings decode: %v", err)
	}
	if s.InvestAmount != 2500 {
		t.Fatalf("expected invest amount 2500, got %v", s.InvestAmount)
	}
}

func TestBuyWithoutLivePriceConflicts(t *testing.T) {
	h := testHandler(t)
	resp := doRequest(t, h.Buy, http.MethodPost, "/api/trade/buy", `{"amount": 1000}`)
	if resp.Status != http.StatusConflict {
		t.Fatalf("expected 409 envelope, got %d", resp.Status)
	}
}

func TestSellWithoutPositionConflicts(t *testing.T) {
	h := testHandler(t)
	resp := doRequest(t, h.Sell, http.MethodPost, "/api/trade/sell", "")
	if resp.Status != http.StatusConflict {
		t.Fatalf("expected 409 envelope, got %d", resp.Status)
	}
}

func TestRetrainAccepted(t *testing.T) {
	h := testHandler(t)
	resp := doRequest(t, h.Retrain, http.MethodPost, "/api/retrain", "")
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200 envelope, got %d", resp.Status)
	}
}
