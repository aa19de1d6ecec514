package models

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var settingsValidate = validator.New()

// Settings are the runtime-tunable pipeline parameters. Unlike the static
// process config they can be changed through the API while running.
type Settings struct {
	Ticker              string  `json:"ticker" default:"BTC-USD" validate:"required"`
	IntradayDays        int     `json:"intraday_days" default:"7" validate:"gte=1,lte=30"`
	MaxPoints           int     `json:"max_points" default:"50000" validate:"gte=1000"`
	TrainWindow         int     `json:"train_window" default:"0" validate:"gte=0"`
	MinuteHorizon       int     `json:"minute_horizon" default:"1" validate:"gte=1"`
	LongHorizonSteps    int     `json:"long_horizon_steps" default:"9" validate:"gte=1"`
	InvestAmount        float64 `json:"invest_amount" default:"1000" validate:"gte=0"`
	AutoTrade           bool    `json:"auto_trade"`
	BuyMultiplier       float64 `json:"buy_multiplier" default:"1.5" validate:"gte=0"`
	SellMultiplier      float64 `json:"sell_multiplier" default:"1.2" validate:"gte=0"`
	ChartPoints         int     `json:"chart_points" default:"500" validate:"gte=50,lte=5000"`
	PriceRefreshSeconds int     `json:"price_refresh_seconds" default:"15" validate:"gte=1"`
	ModelRefreshSeconds int     `json:"model_refresh_seconds" default:"60" validate:"gte=5"`
}

// DefaultSettings returns settings populated with default values.
func DefaultSettings() Settings {
	var s Settings
	_ = defaults.Set(&s)
	return s
}

// SettingsUpdate is a partial settings change; nil fields keep their
// current values.
type SettingsUpdate struct {
	Ticker              *string  `json:"ticker"`
	IntradayDays        *int     `json:"intraday_days"`
	MaxPoints           *int     `json:"max_points"`
	TrainWindow         *int     `json:"train_window"`
	MinuteHorizon       *int     `json:"minute_horizon"`
	LongHorizonSteps    *int     `json:"long_horizon_steps"`
	InvestAmount        *float64 `json:"invest_amount"`
	AutoTrade           *bool    `json:"auto_trade"`
	BuyMultiplier       *float64 `json:"buy_multiplier"`
	SellMultiplier      *float64 `json:"sell_multiplier"`
	ChartPoints         *int     `json:"chart_points"`
	PriceRefreshSeconds *int     `json:"price_refresh_seconds"`
	ModelRefreshSeconds *int     `json:"model_refresh_seconds"`
}

// Apply merges the update onto s and validates the result. On any
// validation failure the original settings are returned unchanged.
func (s Settings) Apply(u SettingsUpdate) (Settings, error) {
	next := s
	if u.Ticker != nil {
		next.Ticker = *u.Ticker
	}
	if u.IntradayDays != nil {
		next.IntradayDays = *u.IntradayDays
	}
	if u.MaxPoints != nil {
		next.MaxPoints = *u.MaxPoints
	}
	if u.TrainWindow != nil {
		next.TrainWindow = *u.TrainWindow
	}
	if u.MinuteHorizon != nil {
		next.MinuteHorizon = *u.MinuteHorizon
	}
	if u.LongHorizonSteps != nil {
		next.LongHorizonSteps = *u.LongHorizonSteps
	}
	if u.InvestAmount != nil {
		next.InvestAmount = *u.InvestAmount
	}
	if u.AutoTrade != nil {
		next.AutoTrade = *u.AutoTrade
	}
	if u.BuyMultiplier != nil {
		next.BuyMultiplier = *u.BuyMultiplier
	}
	if u.SellMultiplier != nil {
		next.SellMultiplier = *u.SellMultiplier
	}
	if u.ChartPoints != nil {
		next.ChartPoints = *u.ChartPoints
	}
	if u.PriceRefreshSeconds != nil {
		next.PriceRefreshSeconds = *u.PriceRefreshSeconds
	}
	if u.ModelRefreshSeconds != nil {
		next.ModelRefreshSeconds = *u.ModelRefreshSeconds
	}
	if err := settingsValidate.Struct(next); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return next, nil
}
