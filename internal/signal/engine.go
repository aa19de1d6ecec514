package signal

import (
	"math"
	"time"

	"MarketPulse/internal/domain/models"
)

// Inputs carries everything one evaluation needs. MAE values come from
// the tail evaluation window so the thresholds adapt to recent model
// error rather than training-time error.
type Inputs struct {
	LastPrice       float64
	NextMinutePrice float64
	NextHourPrice   float64
	MinuteMAE       float64
	HourMAE         float64
	Holding         bool
	LastBuyPrice    float64
}

// Engine derives buy/sell cues from forecasts and recent model error.
type Engine struct {
	buyMultiplier  float64
	sellMultiplier float64
}

func New(buyMultiplier, sellMultiplier float64) *Engine {
	return &Engine{buyMultiplier: buyMultiplier, sellMultiplier: sellMultiplier}
}

// SetMultipliers updates the thresholds; applied on settings changes.
func (e *Engine) SetMultipliers(buy, sell float64) {
	e.buyMultiplier = buy
	e.sellMultiplier = sell
}

// Evaluate computes both signals. A buy fires when the long-horizon
// forecast, discounted by its recent error, still clears the current
// price scaled by the buy multiplier. A sell fires only while holding,
// when the minute forecast discounted by its error clears the entry
// price scaled by the sell multiplier. Missing forecasts or error
// estimates suppress the signal rather than erroring.
func (e *Engine) Evaluate(in Inputs) models.Signals {
	out := models.Signals{GeneratedAt: time.Now().UTC()}

	if finite(in.NextHourPrice) && finite(in.HourMAE) && finite(in.LastPrice) && in.LastPrice > 0 {
		out.Buy = in.NextHourPrice-in.HourMAE > e.buyMultiplier*in.LastPrice
	}

	if in.Holding && finite(in.NextMinutePrice) && finite(in.MinuteMAE) && in.LastBuyPrice > 0 {
		out.Sell = in.NextMinutePrice-in.MinuteMAE > e.sellMultiplier*in.LastBuyPrice
	}

	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
