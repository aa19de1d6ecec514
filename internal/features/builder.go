package features

import (
	"math"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/util"
)

// Names lists the feature vector layout, in order. The model persists
// this alongside the artifact so a loaded model rejects mismatched input.
var Names = []string{
	"open", "high", "low", "close", "volume",
	"return_1", "return_5", "log_return", "range_frac",
	"rolling_mean_5", "rolling_mean_15", "rolling_mean_60",
	"rolling_std_15", "rolling_std_60",
	"momentum_10",
	"volume_mean_20", "volume_std_20", "volume_ema_20",
}

// Build resamples bars onto the grid interval and produces supervised
// rows for the given horizon. The target is the close shifted forward by
// horizonSteps on the same grid. Warmup rows with non-finite features are
// dropped; the most recent feature-complete row is retained without a
// target for live inference. Deterministic: no state survives between
// invocations.
func Build(bars []models.Bar, horizonSteps int, grid time.Duration) []models.FeatureRow {
	if len(bars) == 0 || horizonSteps < 1 || grid <= 0 {
		return nil
	}

	resampled := Resample(bars, grid)
	n := len(resampled)
	if n == 0 {
		return nil
	}

	vecs := featureBlock(resampled)

	rows := make([]models.FeatureRow, 0, n)
	for i := 0; i < n; i++ {
		if !finite(vecs[i]) {
			continue
		}
		row := models.FeatureRow{
			Timestamp: resampled[i].Timestamp,
			Features:  vecs[i],
		}
		if i+horizonSteps < n {
			row.Target = resampled[i+horizonSteps].Close
			row.HasTarget = true
		}
		rows = append(rows, row)
	}

	// Keep labeled rows plus the single most recent unlabeled row.
	out := rows[:0]
	for i, row := range rows {
		if row.HasTarget || i == len(rows)-1 {
			out = append(out, row)
		}
	}
	return out
}

// Resample buckets bars onto an even grid using last-value-in-bucket and
// forward-fills gaps so rolling windows see a continuous timeline.
func Resample(bars []models.Bar, grid time.Duration) []models.Bar {
	if len(bars) == 0 {
		return nil
	}

	byBucket := make(map[int64]models.Bar, len(bars))
	first := util.AlignToGrid(bars[0].Timestamp, grid)
	last := first
	for _, b := range bars {
		bucket := util.AlignToGrid(b.Timestamp, grid)
		if bucket.Before(first) {
			first = bucket
		}
		if bucket.After(last) {
			last = bucket
		}
		byBucket[bucket.UnixNano()] = b
	}

	var out []models.Bar
	var prev models.Bar
	havePrev := false
	for t := first; !t.After(last); t = t.Add(grid) {
		b, ok := byBucket[t.UnixNano()]
		if !ok {
			if !havePrev {
				continue
			}
			b = prev
		}
		b.Timestamp = t
		out = append(out, b)
		prev = b
		havePrev = true
	}
	return out
}

// featureBlock computes one vector per resampled bar, laid out per Names.
// Entries whose rolling window has not filled yet are NaN.
func featureBlock(bars []models.Bar) [][]float64 {
	n := len(bars)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	volEMA := ema(volumes, 20)

	vecs := make([][]float64, n)
	for i, b := range bars {
		v := make([]float64, 0, len(Names))
		v = append(v, b.Open, b.High, b.Low, b.Close, b.Volume)
		v = append(v,
			pctChange(closes, i, 1),
			pctChange(closes, i, 5),
			logReturn(closes, i),
			(b.High-b.Low)/b.Close,
			rollingMean(closes, i, 5),
			rollingMean(closes, i, 15),
			rollingMean(closes, i, 60),
			rollingStd(closes, i, 15),
			rollingStd(closes, i, 60),
			diff(closes, i, 10),
			rollingMean(volumes, i, 20),
			rollingStd(volumes, i, 20),
			volEMA[i],
		)
		vecs[i] = v
	}
	return vecs
}

func pctChange(xs []float64, i, periods int) float64 {
	if i < periods || xs[i-periods] == 0 {
		return math.NaN()
	}
	return xs[i]/xs[i-periods] - 1
}

func logReturn(xs []float64, i int) float64 {
	if i < 1 || xs[i] <= 0 || xs[i-1] <= 0 {
		return math.NaN()
	}
	return math.Log(xs[i]) - math.Log(xs[i-1])
}

func diff(xs []float64, i, periods int) float64 {
	if i < periods {
		return math.NaN()
	}
	return xs[i] - xs[i-periods]
}

func rollingMean(xs []float64, i, window int) float64 {
	if i < window-1 {
		return math.NaN()
	}
	sum := 0.0
	for j := i - window + 1; j <= i; j++ {
		sum += xs[j]
	}
	return sum / float64(window)
}

// rollingStd is the sample standard deviation over the trailing window.
func rollingStd(xs []float64, i, window int) float64 {
	if i < window-1 || window < 2 {
		return math.NaN()
	}
	mean := rollingMean(xs, i, window)
	sum := 0.0
	for j := i - window + 1; j <= i; j++ {
		d := xs[j] - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(window-1))
}

// ema computes an exponential moving average with alpha = 2/(span+1),
// seeded from the first value.
func ema(xs []float64, span int) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

func finite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
