package models

import "time"

// Bar represents one OHLCV record on a fixed interval.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// FeatureRow is one supervised sample on a resampled grid. Target is the
// close shifted forward by the horizon's step count; the most recent row
// carries HasTarget=false and is the one used for the live forecast.
type FeatureRow struct {
	Timestamp time.Time
	Features  []float64
	Target    float64
	HasTarget bool
}

// Horizon identifies one of the two forecast grids.
type Horizon struct {
	ID           string        // "minute" or "hour"
	GridInterval time.Duration // resample bucket size
	Steps        int           // forward shift in grid steps
}
