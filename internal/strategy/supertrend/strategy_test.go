package supertrend

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nifty-options-trader/pkg/types"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func testConfig() Config {
	return Config{
		Name:                  "supertrend",
		ATMStrikeStep:         50,
		DefaultLotSize:        75,
		ATRPeriod:             3,
		ATRMultiplier:         decimal.NewFromInt(1),
		TargetProfitPercent:   dec(30),
		StopLossPercent:       dec(20),
		TimeStopMinutes:       30,
		SignalCooldownSeconds: 0,
	}
}

// trendingCandles builds n one-minute candles whose close moves by slope per
// candle, starting from base. Tests chain a falling series and a rising one
// so that a Supertrend flip lands on the last closed candle, after more
// than the ATRPeriod+10 warm-up gate's worth of history.
func trendingCandles(start time.Time, n int, base float64, slope float64) []types.Candle {
	out := make([]types.Candle, n)
	price := base
	for i := 0; i < n; i++ {
		price += slope
		out[i] = types.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      dec(price - 1),
			High:      dec(price + 1),
			Low:       dec(price - 2),
			Close:     dec(price),
			Volume:    1000,
		}
	}
	return out
}

func lookupAlways(symbolPrefix string) InstrumentLookup {
	return func(strike int64, opt types.OptionType) (types.Instrument, bool) {
		return types.Instrument{
			Symbol:  symbolPrefix + "_STRIKE",
			LotSize: 75,
		}, true
	}
}

func TestGenerateSignalsEmitsEntryOnTrendFlip(t *testing.T) {
	s := New(testConfig())
	now := time.Now()

	// Downtrend long enough to establish a bearish Supertrend, then two
	// rising candles; the second (close 66 above the final upper band 63.5)
	// flips it bullish on the last closed candle.
	down := trendingCandles(now, 20, 100, -2)
	up := trendingCandles(now.Add(20*time.Minute), 2, 60, 3)
	all := append(down, up...)
	all = append(all, types.Candle{Timestamp: all[len(all)-1].Timestamp.Add(time.Minute)}) // live candle, dropped by UpdateMarketData

	s.UpdateMarketData(all, now)

	sigs := s.GenerateSignals(now, dec(150), nil, lookupAlways("NIFTY"))
	found := false
	for _, sig := range sigs {
		if sig.Type == types.SignalBuyCall || sig.Type == types.SignalBuyPut {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an entry signal on trend flip, got none")
	}
}

func TestGenerateSignalsSuppressedWithoutNewCandle(t *testing.T) {
	s := New(testConfig())
	now := time.Now()
	down := trendingCandles(now, 20, 100, -2)
	up := trendingCandles(now.Add(20*time.Minute), 2, 60, 3)
	all := append(down, up...)
	all = append(all, types.Candle{Timestamp: all[len(all)-1].Timestamp.Add(time.Minute)})

	s.UpdateMarketData(all, now)
	first := s.GenerateSignals(now, dec(150), nil, lookupAlways("NIFTY"))
	if len(first) == 0 {
		t.Fatal("expected first call to emit a signal")
	}

	// No new candle arrived; a second call must emit nothing new.
	second := s.GenerateSignals(now.Add(time.Second), dec(150), nil, lookupAlways("NIFTY"))
	for _, sig := range second {
		if sig.Type == types.SignalBuyCall || sig.Type == types.SignalBuyPut {
			t.Fatal("expected no entry signal without a new closed candle")
		}
	}
}

func TestAntiHedgingBlocksEntryWithOpenPosition(t *testing.T) {
	s := New(testConfig())
	now := time.Now()
	down := trendingCandles(now, 20, 100, -2)
	up := trendingCandles(now.Add(20*time.Minute), 2, 60, 3)
	all := append(down, up...)
	all = append(all, types.Candle{Timestamp: all[len(all)-1].Timestamp.Add(time.Minute)})
	s.UpdateMarketData(all, now)

	open := []types.Position{{Symbol: "NIFTY_OLD", IsOpen: true, OptionType: types.PE}}
	sigs := s.GenerateSignals(now, dec(150), open, lookupAlways("NIFTY"))
	for _, sig := range sigs {
		if sig.Type == types.SignalBuyCall || sig.Type == types.SignalBuyPut {
			t.Fatal("expected anti-hedging to block a new entry while any position is open")
		}
	}
}

func TestCooldownBlocksSecondEntryWithinWindow(t *testing.T) {
	cfg := testConfig()
	cfg.SignalCooldownSeconds = 60
	s := New(cfg)
	now := time.Now()

	down := trendingCandles(now, 20, 100, -2)
	up := trendingCandles(now.Add(20*time.Minute), 2, 60, 3)
	all := append(down, up...)
	all = append(all, types.Candle{Timestamp: all[len(all)-1].Timestamp.Add(time.Minute)})
	s.UpdateMarketData(all, now)
	first := s.GenerateSignals(now, dec(150), nil, lookupAlways("NIFTY"))
	if len(first) == 0 {
		t.Fatal("expected first entry signal")
	}

	// Manufacture a second flip 45s later — inside the 60s cooldown. Seven
	// falling candles (98 down to 86); the seventh closes at 86, not above
	// the final lower band 87.5, and flips the trend bearish.
	moreDown := trendingCandles(all[len(all)-2].Timestamp.Add(time.Minute), 7, 100, -2)
	all2 := append(all[:len(all)-1], moreDown...)
	all2 = append(all2, types.Candle{Timestamp: all2[len(all2)-1].Timestamp.Add(time.Minute)})
	s.UpdateMarketData(all2, now.Add(45*time.Second))
	second := s.GenerateSignals(now.Add(45*time.Second), dec(100), nil, lookupAlways("NIFTY"))
	for _, sig := range second {
		if sig.Type == types.SignalBuyCall || sig.Type == types.SignalBuyPut {
			t.Fatal("expected cooldown to block an entry signal 45s after the previous one")
		}
	}
}

func TestShouldExitMinimumHoldTime(t *testing.T) {
	s := New(testConfig())
	now := time.Now()
	pos := types.Position{
		AveragePrice: dec(100), PeakPrice: dec(100),
		EntryTime: now, OptionType: types.CE,
	}
	exit, _, category, _ := s.ShouldExit(pos, dec(200), now.Add(2*time.Second))
	if exit {
		t.Fatal("expected no exit within the 5s minimum hold window")
	}
	if category != types.ExitMinHoldTime {
		t.Errorf("expected MIN_HOLD_TIME category, got %s", category)
	}
}

func TestShouldExitProfitTarget(t *testing.T) {
	s := New(testConfig())
	now := time.Now().Add(-time.Minute)
	pos := types.Position{
		AveragePrice: dec(100), PeakPrice: dec(100),
		EntryTime: now, OptionType: types.CE,
	}
	exit, _, category, _ := s.ShouldExit(pos, dec(135), now.Add(time.Minute))
	if !exit || category != types.ExitProfitTarget {
		t.Fatalf("expected PROFIT_TARGET exit, got exit=%v category=%s", exit, category)
	}
}

func TestShouldExitTrailingStopFromPeakNotEntry(t *testing.T) {
	s := New(testConfig())
	now := time.Now().Add(-time.Minute)
	pos := types.Position{
		AveragePrice: dec(100), PeakPrice: dec(150),
		EntryTime: now, OptionType: types.CE,
	}
	// 150 -> 119 is a 20.6% drop from peak, crossing the 20% stop-loss, even
	// though price is still well above the entry price of 100.
	exit, _, category, peak := s.ShouldExit(pos, dec(119), now.Add(time.Minute))
	if !exit || category != types.ExitStopLoss {
		t.Fatalf("expected STOP_LOSS exit anchored to peak, got exit=%v category=%s", exit, category)
	}
	if !peak.Equal(dec(150)) {
		t.Errorf("expected peak to remain 150, got %s", peak)
	}
}

func TestShouldExitTimeStop(t *testing.T) {
	s := New(testConfig())
	now := time.Now().Add(-31 * time.Minute)
	pos := types.Position{
		AveragePrice: dec(100), PeakPrice: dec(100),
		EntryTime: now, OptionType: types.CE,
	}
	exit, _, category, _ := s.ShouldExit(pos, dec(105), now.Add(31*time.Minute))
	if !exit || category != types.ExitTimeStop {
		t.Fatalf("expected TIME_STOP exit, got exit=%v category=%s", exit, category)
	}
}

func TestShouldExitNeverForceExitsOnInvalidPrice(t *testing.T) {
	s := New(testConfig())
	now := time.Now().Add(-time.Minute)
	pos := types.Position{
		AveragePrice: dec(100), PeakPrice: dec(100),
		EntryTime: now, OptionType: types.CE,
	}
	exit, reason, _, _ := s.ShouldExit(pos, decimal.Zero, now.Add(time.Minute))
	if exit {
		t.Fatalf("expected no exit on invalid (zero) current price, got reason %q", reason)
	}
}

func TestIndicatorDeterminismSameInputSameOutput(t *testing.T) {
	now := time.Now()
	candles := trendingCandles(now, 30, 100, 1.5)
	candles = append(candles, types.Candle{Timestamp: candles[len(candles)-1].Timestamp.Add(time.Minute)})

	s1 := New(testConfig())
	s1.UpdateMarketData(candles, now)
	sig1 := s1.GenerateSignals(now, dec(130), nil, lookupAlways("NIFTY"))

	s2 := New(testConfig())
	s2.UpdateMarketData(candles, now)
	sig2 := s2.GenerateSignals(now, dec(130), nil, lookupAlways("NIFTY"))

	if len(sig1) != len(sig2) {
		t.Fatalf("expected identical signal count replaying the same candle series, got %d vs %d", len(sig1), len(sig2))
	}
	for i := range sig1 {
		if sig1[i].Type != sig2[i].Type || sig1[i].Symbol != sig2[i].Symbol {
			t.Errorf("signal %d differs between replays: %+v vs %+v", i, sig1[i], sig2[i])
		}
	}
}
