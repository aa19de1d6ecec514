package models

import "time"

// Snapshot status values.
const (
	StatusInitializing = "initializing"
	StatusOK           = "ok"
	StatusStale        = "stale"
)

// SeriesPoint is one charting sample.
type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Label     string    `json:"label,omitempty"`
}

// Series bundles the charting series consumed by the dashboard.
type Series struct {
	Actual              []SeriesPoint `json:"actual"`
	PredictedValidation []SeriesPoint `json:"predicted_validation"`
	PredictedTest       []SeriesPoint `json:"predicted_test"`
	Forecast            []SeriesPoint `json:"forecast"`
}

// Signals carries the derived buy/sell cues.
type Signals struct {
	Buy         bool      `json:"buy"`
	Sell        bool      `json:"sell"`
	GeneratedAt time.Time `json:"generated_at"`
}

// HorizonMetrics holds tail-window evaluation metrics for one model.
type HorizonMetrics struct {
	MAE  float64 `json:"mae"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
}

// Snapshot is the immutable published aggregate of everything a client
// needs to render the dashboard at one point in time. Rebuilt wholesale
// each refresh; never mutated after publication.
type Snapshot struct {
	Status          string         `json:"status"`
	Error           string         `json:"error,omitempty"`
	Ticker          string         `json:"ticker"`
	LatestPrice     float64        `json:"latest_price"`
	NextMinutePrice float64        `json:"next_minute_price"`
	NextHourPrice   float64        `json:"next_hour_price"`
	MinuteMAE       float64        `json:"minute_mae"`
	HourMAE         float64        `json:"hour_mae"`
	MinuteMetrics   HorizonMetrics `json:"minute_metrics"`
	HourMetrics     HorizonMetrics `json:"hour_metrics"`
	Signals         Signals        `json:"signals"`
	Portfolio       PortfolioState `json:"portfolio"`
	Series          Series         `json:"series"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
