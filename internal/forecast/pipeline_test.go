package forecast

import (
	"math"
	"math/rand"
	"testing"
)

func testParams() GBTParams {
	return GBTParams{
		MaxDepth:       4,
		MaxIter:        60,
		MinSamplesLeaf: 5,
		MaxBins:        64,
		LearningRate:   0.1,
	}
}

func linearDataset(n int) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(42))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		x0 := rng.Float64() * 10
		x1 := rng.Float64() * 5
		X[i] = []float64{x0, x1}
		y[i] = 3*x0 + x1
	}
	return X, y
}

func TestPipelineLearnsLinearTarget(t *testing.T) {
	X, y := linearDataset(500)
	p := NewPipeline([]string{"x0", "x1"}, testParams())
	if err := p.Fit(X, y); err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	var absSum float64
	for i := range X {
		pred, err := p.Predict(X[i])
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		absSum += math.Abs(pred - y[i])
	}
	mae := absSum / float64(len(X))
	// y spans roughly [0, 35]; the fit should land well inside that.
	if mae > 2.0 {
		t.Fatalf("in-sample MAE too high: %v", mae)
	}
}

func TestPipelineImputesMissingValues(t *testing.T) {
	X, y := linearDataset(300)
	p := NewPipeline([]string{"x0", "x1"}, testParams())
	if err := p.Fit(X, y); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	pred, err := p.Predict([]float64{math.NaN(), 2.5})
	if err != nil {
		t.Fatalf("predict with NaN failed: %v", err)
	}
	if math.IsNaN(pred) || math.IsInf(pred, 0) {
		t.Fatalf("expected finite prediction, got %v", pred)
	}
}

func TestPipelineRejectsWrongWidth(t *testing.T) {
	X, y := linearDataset(100)
	p := NewPipeline([]string{"x0", "x1"}, testParams())
	if err := p.Fit(X, y); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if _, err := p.Predict([]float64{1, 2, 3}); err == nil {
		t.Fatalf("expected error for mismatched vector width")
	}
}

func TestPipelineGobRoundTrip(t *testing.T) {
	X, y := linearDataset(300)
	p := NewPipeline([]string{"x0", "x1"}, testParams())
	if err := p.Fit(X, y); err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	data, err := p.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodePipeline(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		want, _ := p.Predict(X[i])
		got, err := decoded.Predict(X[i])
		if err != nil {
			t.Fatalf("decoded predict failed: %v", err)
		}
		if want != got {
			t.Fatalf("prediction drift after roundtrip: %v vs %v", want, got)
		}
	}
}

func TestGBTConstantTarget(t *testing.T) {
	X := make([][]float64, 50)
	y := make([]float64, 50)
	for i := range X {
		X[i] = []float64{float64(i)}
		y[i] = 7.5
	}
	g := NewGBTRegressor(testParams())
	if err := g.Fit(X, y); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if pred := g.Predict([]float64{25}); math.Abs(pred-7.5) > 1e-9 {
		t.Fatalf("expected 7.5, got %v", pred)
	}
}

func TestGBTRejectsEmpty(t *testing.T) {
	g := NewGBTRegressor(testParams())
	if err := g.Fit(nil, nil); err == nil {
		t.Fatalf("expected error on empty training set")
	}
}
