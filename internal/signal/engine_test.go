package signal

import (
	"math"
	"testing"
)

func TestSellSignalFires(t *testing.T) {
	e := New(1.5, 1.2)
	sig := e.Evaluate(Inputs{
		LastPrice:       90,
		NextMinutePrice: 100,
		MinuteMAE:       2,
		NextHourPrice:   100,
		HourMAE:         2,
		Holding:         true,
		LastBuyPrice:    80,
	})
	// (100-2) > 1.2*80 = 96
	if !sig.Sell {
		t.Fatalf("expected sell signal")
	}
}

func TestSellForcedFalseWhenIdle(t *testing.T) {
	e := New(1.5, 1.2)
	sig := e.Evaluate(Inputs{
		LastPrice:       90,
		NextMinutePrice: 1e9,
		MinuteMAE:       0,
		Holding:         false,
		LastBuyPrice:    0,
	})
	if sig.Sell {
		t.Fatalf("sell must be false with no open position")
	}
}

func TestBuySignal(t *testing.T) {
	e := New(1.5, 1.2)
	sig := e.Evaluate(Inputs{
		LastPrice:     100,
		NextHourPrice: 160,
		HourMAE:       5,
	})
	// (160-5) > 1.5*100
	if !sig.Buy {
		t.Fatalf("expected buy signal")
	}

	sig = e.Evaluate(Inputs{
		LastPrice:     100,
		NextHourPrice: 150,
		HourMAE:       5,
	})
	if sig.Buy {
		t.Fatalf("expected no buy signal at threshold")
	}
}

func TestNonFiniteInputsSuppressSignals(t *testing.T) {
	e := New(1.5, 1.2)
	sig := e.Evaluate(Inputs{
		LastPrice:       100,
		NextHourPrice:   math.NaN(),
		HourMAE:         math.NaN(),
		NextMinutePrice: math.NaN(),
		MinuteMAE:       math.NaN(),
		Holding:         true,
		LastBuyPrice:    80,
	})
	if sig.Buy || sig.Sell {
		t.Fatalf("NaN forecasts must not trigger signals")
	}
	if sig.GeneratedAt.IsZero() {
		t.Fatalf("generated_at must be set")
	}
}

func TestMultipliersConfigurable(t *testing.T) {
	e := New(1.0, 1.0)
	sig := e.Evaluate(Inputs{
		LastPrice:     100,
		NextHourPrice: 110,
		HourMAE:       1,
	})
	if !sig.Buy {
		t.Fatalf("expected buy with 1.0 multiplier")
	}
	e.SetMultipliers(2.0, 1.2)
	sig = e.Evaluate(Inputs{
		LastPrice:     100,
		NextHourPrice: 110,
		HourMAE:       1,
	})
	if sig.Buy {
		t.Fatalf("expected no buy with 2.0 multiplier")
	}
}
