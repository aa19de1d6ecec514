package util

import (
	"testing"
	"time"
)

func TestIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"1m", time.Minute, true},
		{"5m", 5 * time.Minute, true},
		{"1h", time.Hour, true},
		{"2d", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := IntervalDuration(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("IntervalDuration(%q) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestAlignToGrid(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 17, 42, 0, time.UTC)
	if got := AlignToGrid(ts, 5*time.Minute); got.Minute() != 15 || got.Second() != 0 {
		t.Fatalf("unexpected alignment: %v", got)
	}
	if got := AlignToGrid(ts, 0); !got.Equal(ts) {
		t.Fatalf("zero interval must not change the time")
	}
}
