package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/features"
	"MarketPulse/pkg/cache"
	"MarketPulse/pkg/logger"
)

// Artifact is one trained model for a horizon. It is immutable after
// training; the owning Model replaces it by reference so concurrent
// readers never observe a partial update.
type Artifact struct {
	HorizonID     string
	TrainedAt     time.Time
	ValidationMAE float64
	Pipeline      *Pipeline
}

// Model owns the regression pipeline for one forecast horizon. Two
// instances run side by side (minute and long); they share no state
// beyond the artifact store.
type Model struct {
	horizon  models.Horizon
	store    cache.Store
	log      *logger.Logger
	ttl      time.Duration
	tailSize int

	artifact atomic.Pointer[Artifact]
}

// TailWindow is the default evaluation window size.
const TailWindow = 100

// NewModel creates a forecast model for the given horizon.
func NewModel(horizon models.Horizon, store cache.Store, log *logger.Logger, ttl time.Duration) *Model {
	return &Model{
		horizon:  horizon,
		store:    store,
		log:      log,
		ttl:      ttl,
		tailSize: TailWindow,
	}
}

// Horizon returns the horizon this model forecasts.
func (m *Model) Horizon() models.Horizon { return m.horizon }

// Current returns the active artifact, or nil before the first train/load.
func (m *Model) Current() *Artifact { return m.artifact.Load() }

// Swap atomically replaces the active artifact.
func (m *Model) Swap(a *Artifact) { m.artifact.Store(a) }

// Train fits a new pipeline on all rows with a present target, using a
// temporal 80/20 split for validation. The returned artifact is not
// installed; callers swap it in once persisted.
func (m *Model) Train(rows []models.FeatureRow) (*Artifact, error) {
	X, y := supervised(rows)
	if len(X) < 2 {
		return nil, fmt.Errorf("%w: horizon %s has %d labeled rows", models.ErrTrainingFailed, m.horizon.ID, len(X))
	}

	cutoff := len(X) * 8 / 10
	if cutoff < 1 {
		cutoff = 1
	}

	pipe := NewPipeline(features.Names, DefaultGBTParams())
	if err := pipe.Fit(X[:cutoff], y[:cutoff]); err != nil {
		return nil, fmt.Errorf("%w: horizon %s: %v", models.ErrTrainingFailed, m.horizon.ID, err)
	}

	valMAE := math.NaN()
	if cutoff < len(X) {
		sum := 0.0
		count := 0
		for i := cutoff; i < len(X); i++ {
			pred, err := pipe.Predict(X[i])
			if err != nil {
				continue
			}
			sum += math.Abs(pred - y[i])
			count++
		}
		if count > 0 {
			valMAE = sum / float64(count)
		}
	}

	return &Artifact{
		HorizonID:     m.horizon.ID,
		TrainedAt:     time.Now().UTC(),
		ValidationMAE: valMAE,
		Pipeline:      pipe,
	}, nil
}

// Predict returns the forecast for one feature vector.
func (m *Model) Predict(a *Artifact, vec []float64) (float64, error) {
	if a == nil || a.Pipeline == nil {
		return 0, fmt.Errorf("horizon %s: no trained artifact", m.horizon.ID)
	}
	return a.Pipeline.Predict(vec)
}

// TailMetrics re-predicts the most recent labeled rows (at most the tail
// window) and returns MAE/MSE/RMSE over them. Recomputed every cycle so
// evaluation tracks current-regime performance rather than training-time
// performance.
func (m *Model) TailMetrics(a *Artifact, rows []models.FeatureRow) models.HorizonMetrics {
	nan := models.HorizonMetrics{MAE: math.NaN(), MSE: math.NaN(), RMSE: math.NaN()}
	if a == nil || a.Pipeline == nil {
		return nan
	}
	X, y := supervised(rows)
	if len(X) == 0 {
		return nan
	}
	start := 0
	if len(X) > m.tailSize {
		start = len(X) - m.tailSize
	}

	absSum := 0.0
	sqSum := 0.0
	count := 0
	for i := start; i < len(X); i++ {
		pred, err := a.Pipeline.Predict(X[i])
		if err != nil {
			continue
		}
		d := pred - y[i]
		absSum += math.Abs(d)
		sqSum += d * d
		count++
	}
	if count == 0 {
		return nan
	}
	mse := sqSum / float64(count)
	return models.HorizonMetrics{
		MAE:  absSum / float64(count),
		MSE:  mse,
		RMSE: math.Sqrt(mse),
	}
}

// PredictSeries re-predicts every labeled row for charting.
func (m *Model) PredictSeries(a *Artifact, rows []models.FeatureRow) []models.SeriesPoint {
	if a == nil || a.Pipeline == nil {
		return nil
	}
	out := make([]models.SeriesPoint, 0, len(rows))
	for _, row := range rows {
		if !row.HasTarget {
			continue
		}
		pred, err := a.Pipeline.Predict(row.Features)
		if err != nil {
			continue
		}
		out = append(out, models.SeriesPoint{Timestamp: row.Timestamp, Value: pred})
	}
	return out
}

// Save persists the artifact under (ticker, horizon).
func (m *Model) Save(ctx context.Context, ticker string, a *Artifact) error {
	data, err := a.Pipeline.Encode()
	if err != nil {
		return err
	}
	stored := storedArtifact{
		TrainedAt:     a.TrainedAt,
		ValidationMAE: a.ValidationMAE,
		Pipeline:      data,
	}
	return m.store.Set(ctx, m.artifactKey(ticker), stored, m.ttl)
}

// Load returns the persisted artifact for (ticker, horizon), or nil when
// none exists.
func (m *Model) Load(ctx context.Context, ticker string) (*Artifact, error) {
	var stored storedArtifact
	err := m.store.Get(ctx, m.artifactKey(ticker), &stored)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	pipe, err := DecodePipeline(stored.Pipeline)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		HorizonID:     m.horizon.ID,
		TrainedAt:     stored.TrainedAt,
		ValidationMAE: stored.ValidationMAE,
		Pipeline:      pipe,
	}, nil
}

func (m *Model) artifactKey(ticker string) string {
	return fmt.Sprintf("model:%s:%s", ticker, m.horizon.ID)
}

type storedArtifact struct {
	TrainedAt     time.Time `json:"trained_at"`
	ValidationMAE float64   `json:"validation_mae"`
	Pipeline      []byte    `json:"pipeline"`
}

func supervised(rows []models.FeatureRow) ([][]float64, []float64) {
	X := make([][]float64, 0, len(rows))
	y := make([]float64, 0, len(rows))
	for _, row := range rows {
		if !row.HasTarget {
			continue
		}
		X = append(X, row.Features)
		y = append(y, row.Target)
	}
	return X, y
}
