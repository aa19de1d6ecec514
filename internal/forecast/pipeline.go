package forecast

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"sort"
)

// Pipeline chains median imputation, standard scaling, and the GBT
// regressor, fitted together and persisted as one unit.
type Pipeline struct {
	FeatureNames []string
	Medians      []float64
	Means        []float64
	Stds         []float64
	Model        *GBTRegressor
}

// NewPipeline creates an unfitted pipeline for the given feature layout.
func NewPipeline(featureNames []string, params GBTParams) *Pipeline {
	return &Pipeline{
		FeatureNames: append([]string(nil), featureNames...),
		Model:        NewGBTRegressor(params),
	}
}

// Fit learns imputation medians, scaling statistics, and the regressor.
func (p *Pipeline) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("pipeline fit: no samples")
	}
	nFeatures := len(X[0])
	if nFeatures != len(p.FeatureNames) {
		return fmt.Errorf("pipeline fit: %d features, expected %d", nFeatures, len(p.FeatureNames))
	}

	p.Medians = columnMedians(X)
	imputed := make([][]float64, len(X))
	for i := range X {
		imputed[i] = p.impute(X[i])
	}

	p.Means, p.Stds = columnStats(imputed)
	scaled := make([][]float64, len(imputed))
	for i := range imputed {
		scaled[i] = p.scale(imputed[i])
	}

	return p.Model.Fit(scaled, y)
}

// Predict transforms one raw feature vector and returns the forecast.
func (p *Pipeline) Predict(x []float64) (float64, error) {
	if len(x) != len(p.FeatureNames) {
		return 0, fmt.Errorf("pipeline predict: %d features, expected %d", len(x), len(p.FeatureNames))
	}
	return p.Model.Predict(p.scale(p.impute(x))), nil
}

func (p *Pipeline) impute(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = p.Medians[i]
		} else {
			out[i] = v
		}
	}
	return out
}

func (p *Pipeline) scale(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		std := p.Stds[i]
		if std == 0 {
			std = 1
		}
		out[i] = (v - p.Means[i]) / std
	}
	return out
}

// Encode serializes the fitted pipeline with gob.
func (p *Pipeline) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, fmt.Errorf("encode pipeline: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePipeline deserializes a pipeline produced by Encode.
func DecodePipeline(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	return &p, nil
}

func columnMedians(X [][]float64) []float64 {
	nFeatures := len(X[0])
	medians := make([]float64, nFeatures)
	col := make([]float64, 0, len(X))
	for f := 0; f < nFeatures; f++ {
		col = col[:0]
		for i := range X {
			v := X[i][f]
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				col = append(col, v)
			}
		}
		medians[f] = median(col)
	}
	return medians
}

func columnStats(X [][]float64) (means, stds []float64) {
	nFeatures := len(X[0])
	n := float64(len(X))
	means = make([]float64, nFeatures)
	stds = make([]float64, nFeatures)
	for f := 0; f < nFeatures; f++ {
		sum := 0.0
		for i := range X {
			sum += X[i][f]
		}
		m := sum / n
		varSum := 0.0
		for i := range X {
			d := X[i][f] - m
			varSum += d * d
		}
		means[f] = m
		stds[f] = math.Sqrt(varSum / n)
	}
	return means, stds
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
