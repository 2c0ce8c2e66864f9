package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCandleClosed(t *testing.T) {
	interval := time.Minute
	now := time.Date(2024, 1, 2, 10, 16, 0, 0, time.UTC)

	cases := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"closed well before now", time.Date(2024, 1, 2, 10, 10, 0, 0, time.UTC), true},
		{"closed exactly at now boundary", now.Add(-interval), true},
		{"still live", now.Add(-30 * time.Second), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Candle{Timestamp: tc.ts}
			if got := c.Closed(interval, now); got != tc.want {
				t.Errorf("Closed() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPositionKeyEquality(t *testing.T) {
	a := PositionKey{Symbol: "NIFTY25050CE", Seq: 1}
	b := PositionKey{Symbol: "NIFTY25050CE", Seq: 1}
	c := PositionKey{Symbol: "NIFTY25050CE", Seq: 2}

	if a != b {
		t.Errorf("expected equal keys, got %+v != %+v", a, b)
	}
	if a == c {
		t.Errorf("expected distinct keys for distinct sequence numbers")
	}
}

func TestPnLFractionIsDecimalNotPercentage(t *testing.T) {
	p := Position{
		AveragePrice: decimal.NewFromInt(100),
		ExitPrice:    decimal.NewFromInt(130),
	}
	frac := p.ExitPrice.Sub(p.AveragePrice).Div(p.AveragePrice)

	want := decimal.NewFromFloat(0.30)
	if !frac.Sub(want).Abs().LessThan(decimal.NewFromFloat(0.0001)) {
		t.Errorf("pnl fraction = %s, want ~0.30 (not 30)", frac)
	}
}
