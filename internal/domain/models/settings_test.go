package models

import (
	"errors"
	"testing"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.Ticker != "BTC-USD" {
		t.Fatalf("expected default ticker BTC-USD, got %q", s.Ticker)
	}
	if s.InvestAmount != 1000 {
		t.Fatalf("expected default invest amount 1000, got %v", s.InvestAmount)
	}
	if s.BuyMultiplier != 1.5 || s.SellMultiplier != 1.2 {
		t.Fatalf("unexpected default multipliers: %v / %v", s.BuyMultiplier, s.SellMultiplier)
	}
	if s.ChartPoints != 500 {
		t.Fatalf("expected 500 chart points, got %d", s.ChartPoints)
	}
}

func TestApplyMergesPartialUpdate(t *testing.T) {
	s := DefaultSettings()
	days := 14
	auto := true
	next, err := s.Apply(SettingsUpdate{IntradayDays: &days, AutoTrade: &auto})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if next.IntradayDays != 14 || !next.AutoTrade {
		t.Fatalf("update not applied: %+v", next)
	}
	if next.Ticker != s.Ticker || next.InvestAmount != s.InvestAmount {
		t.Fatalf("unspecified fields changed")
	}
}

func TestApplyRejectsInvalidValues(t *testing.T) {
	s := DefaultSettings()
	bad := 0
	next, err := s.Apply(SettingsUpdate{MaxPoints: &bad})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if next.MaxPoints != s.MaxPoints {
		t.Fatalf("rejected update must return original settings")
	}
}

func TestApplyRejectsEmptyTicker(t *testing.T) {
	s := DefaultSettings()
	empty := ""
	if _, err := s.Apply(SettingsUpdate{Ticker: &empty}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for empty ticker, got %v", err)
	}
}
