// Package supertrend implements the long-only trend-reversal Supertrend
// strategy: a stateless-looking but internally-buffered indicator over
// closed candles, honoring a signal cooldown and a strict one-open-position
// anti-hedging rule, with a trailing-stop/profit-target/time-stop exit rule
// set that never force-exits on a computation error.
package supertrend

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"nifty-options-trader/pkg/types"
)

const bufferCap = 50

// Config tunes one Strategy instance. Field names mirror
// internal/config.ScalpingConfig; percentages are whole numbers (30 means
// 30%), matching the recognized config schema.
type Config struct {
	Name                  string
	ATMStrikeStep         int64
	DefaultLotSize        int64
	ATRPeriod             int
	ATRMultiplier         decimal.Decimal
	TargetProfitPercent   decimal.Decimal
	StopLossPercent       decimal.Decimal
	TimeStopMinutes       int
	SignalCooldownSeconds int
}

// InstrumentLookup resolves a (strike, option type) pair to a tradable
// instrument, consulted for symbol and lot size. Strategies never invent
// symbols themselves.
type InstrumentLookup func(strike int64, opt types.OptionType) (types.Instrument, bool)

// Strategy is one running Supertrend instance, scoped to a single
// underlying. Safe for concurrent ShouldExit calls; UpdateMarketData and
// GenerateSignals are expected to be called from the single orchestrator
// tick goroutine and are not independently synchronized against each other.
type Strategy struct {
	cfg Config

	mu         sync.Mutex
	buf        []bar
	newCandle  bool
	lastTrend  trend
	lastSignal time.Time
}

// New creates a Strategy with the given tuning. ATRPeriod defaults to 3 and
// ATRMultiplier to 1.0 if left zero, matching the reference parameters.
func New(cfg Config) *Strategy {
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 3
	}
	if cfg.ATRMultiplier.IsZero() {
		cfg.ATRMultiplier = decimal.NewFromInt(1)
	}
	if cfg.ATMStrikeStep <= 0 {
		cfg.ATMStrikeStep = 50
	}
	return &Strategy{cfg: cfg}
}

// UpdateMarketData ingests a candle series, filtering to genuinely new closed
// candles (dropping the last/live candle and anything already in the
// buffer), recomputing indicator state, and setting the new-candle flag when
// at least one candle was actually appended.
func (s *Strategy) UpdateMarketData(candles []types.Candle, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(candles) == 0 {
		return
	}
	closed := candles[:len(candles)-1]

	var lastSeen time.Time
	if len(s.buf) > 0 {
		lastSeen = s.buf[len(s.buf)-1].candle.Timestamp
	}

	appended := false
	for _, c := range closed {
		if !c.Timestamp.After(lastSeen) {
			continue
		}
		s.buf = append(s.buf, bar{candle: c})
		recompute(s.buf, len(s.buf)-1, s.cfg.ATRPeriod, s.cfg.ATRMultiplier)
		lastSeen = c.Timestamp
		appended = true
	}

	if len(s.buf) > bufferCap {
		s.buf = s.buf[len(s.buf)-bufferCap:]
	}

	if appended {
		s.newCandle = true
	}
}

// GenerateSignals produces entry signals (only on a fresh closed candle,
// honoring cooldown and anti-hedging) and exit signals (every call, for every
// open position belonging to this strategy). openPositions must be filtered
// to this strategy's own positions by the caller.
func (s *Strategy) GenerateSignals(now time.Time, spot decimal.Decimal, openPositions []types.Position, lookup InstrumentLookup) []types.Signal {
	var signals []types.Signal

	signals = append(signals, s.generateExitSignals(openPositions, now)...)
	if entry, ok := s.generateEntrySignal(now, spot, openPositions, lookup); ok {
		signals = append(signals, entry)
	}
	return signals
}

func (s *Strategy) generateEntrySignal(now time.Time, spot decimal.Decimal, openPositions []types.Position, lookup InstrumentLookup) (types.Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.newCandle {
		return types.Signal{}, false
	}
	s.newCandle = false

	if len(s.buf) < s.cfg.ATRPeriod+10 {
		return types.Signal{}, false
	}

	last := s.buf[len(s.buf)-1]
	prev := s.buf[len(s.buf)-2]
	if last.trend == trendNeutral || prev.trend == trendNeutral || last.trend == prev.trend {
		s.lastTrend = last.trend
		return types.Signal{}, false
	}

	if s.cfg.SignalCooldownSeconds > 0 && !s.lastSignal.IsZero() {
		if now.Sub(s.lastSignal) < time.Duration(s.cfg.SignalCooldownSeconds)*time.Second {
			return types.Signal{}, false
		}
	}

	for _, p := range openPositions {
		if p.IsOpen {
			return types.Signal{}, false
		}
	}

	var signalType types.SignalType
	var optType types.OptionType
	var strike int64
	atm := roundToStep(spot, s.cfg.ATMStrikeStep)
	switch {
	case last.trend == trendBull:
		signalType, optType, strike = types.SignalBuyCall, types.CE, atm+s.cfg.ATMStrikeStep
	case last.trend == trendBear:
		signalType, optType, strike = types.SignalBuyPut, types.PE, atm-s.cfg.ATMStrikeStep
	default:
		return types.Signal{}, false
	}

	instrument, ok := lookup(strike, optType)
	if !ok {
		return types.Signal{}, false
	}

	qty := instrument.LotSize
	if qty <= 0 {
		qty = s.cfg.DefaultLotSize
	}

	trendCandles := countTrendCandles(s.buf, last.trend)
	confidence := confidenceScore(last)

	sig := types.Signal{
		Strategy:   s.cfg.Name,
		Type:       signalType,
		Symbol:     instrument.Symbol,
		OptionType: optType,
		Quantity:   qty,
		Meta: SignalMetaFor(now, confidence, trendCandles),
	}

	s.lastTrend = last.trend
	s.lastSignal = now
	return sig, true
}

func (s *Strategy) generateExitSignals(openPositions []types.Position, now time.Time) []types.Signal {
	var out []types.Signal
	for _, p := range openPositions {
		if !p.IsOpen || p.CurrentPrice.IsZero() {
			continue
		}
		exit, reason, category, _ := s.ShouldExit(p, p.CurrentPrice, now)
		if !exit {
			continue
		}
		sigType := types.SignalSellCall
		if p.OptionType == types.PE {
			sigType = types.SignalSellPut
		}
		out = append(out, types.Signal{
			Strategy:   s.cfg.Name,
			Type:       sigType,
			Symbol:     p.Symbol,
			OptionType: p.OptionType,
			Quantity:   p.Quantity,
			Meta: types.SignalMeta{
				ExitReason:   reason,
				ExitCategory: category,
				CreatedAt:    now,
			},
		})
	}
	return out
}

// ShouldExit is a pure function over position + current price + time: it
// never mutates Strategy state and never panics out to the caller. It
// returns the position's peak price as of this call (max(peak, current))
// regardless of whether an exit fires; the caller is responsible for
// persisting it back onto the position.
func (s *Strategy) ShouldExit(position types.Position, currentPrice decimal.Decimal, now time.Time) (exit bool, reason string, category types.ExitCategory, newPeak decimal.Decimal) {
	newPeak = position.PeakPrice
	defer func() {
		if r := recover(); r != nil {
			exit, reason, category = false, "continue holding — calculation error", types.ExitError
		}
	}()

	if position.AveragePrice.IsZero() || position.AveragePrice.IsNegative() || currentPrice.IsZero() || currentPrice.IsNegative() {
		return false, "continue holding — invalid price", types.ExitOther, newPeak
	}

	elapsed := now.Sub(position.EntryTime)
	if newPeak.IsZero() {
		newPeak = position.AveragePrice
	}
	if currentPrice.GreaterThan(newPeak) {
		newPeak = currentPrice
	}

	if elapsed < 5*time.Second {
		return false, "minimum hold time not reached", types.ExitMinHoldTime, newPeak
	}

	pnlFraction := currentPrice.Sub(position.AveragePrice).Div(position.AveragePrice)
	targetFraction := s.cfg.TargetProfitPercent.Div(decimal.NewFromInt(100))
	if pnlFraction.GreaterThanOrEqual(targetFraction) {
		return true, fmt.Sprintf("profit target reached: %s%%", pnlFraction.Mul(decimal.NewFromInt(100)).StringFixed(2)), types.ExitProfitTarget, newPeak
	}

	dropFromPeak := newPeak.Sub(currentPrice).Div(newPeak)
	stopFraction := s.cfg.StopLossPercent.Div(decimal.NewFromInt(100))
	if dropFromPeak.GreaterThanOrEqual(stopFraction) {
		return true, fmt.Sprintf("trailing stop triggered: %s%% below peak", dropFromPeak.Mul(decimal.NewFromInt(100)).StringFixed(2)), types.ExitStopLoss, newPeak
	}

	if s.cfg.TimeStopMinutes > 0 && elapsed >= time.Duration(s.cfg.TimeStopMinutes)*time.Minute {
		return true, fmt.Sprintf("time stop reached: %.0fmin", elapsed.Minutes()), types.ExitTimeStop, newPeak
	}

	if reversed := s.trendReversed(position.OptionType); reversed {
		return true, "trend reversal", types.ExitTrendReversal, newPeak
	}

	return false, fmt.Sprintf("continue holding (pnl=%s)", pnlFraction.StringFixed(4)), types.ExitOther, newPeak
}

func (s *Strategy) trendReversed(opt types.OptionType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return false
	}
	current := s.buf[len(s.buf)-1].trend
	if opt == types.CE && current == trendBear {
		return true
	}
	if opt == types.PE && current == trendBull {
		return true
	}
	return false
}

func countTrendCandles(buf []bar, t trend) int {
	count := 0
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i].trend != t {
			break
		}
		count++
	}
	return count
}

func confidenceScore(b bar) float64 {
	if b.atr.IsZero() {
		return 0
	}
	dist := b.candle.Close.Sub(b.line).Abs()
	ratio := dist.Div(b.atr)
	f, _ := ratio.Float64()
	if f > 2 {
		f = 2
	}
	return f / 2
}

func roundToStep(spot decimal.Decimal, step int64) int64 {
	if step <= 0 {
		step = 1
	}
	stepDec := decimal.NewFromInt(step)
	ratio := spot.Div(stepDec).Round(0)
	return ratio.Mul(stepDec).IntPart()
}

// SignalMetaFor is a small helper kept alongside the Strategy so tests and
// callers build SignalMeta consistently.
func SignalMetaFor(now time.Time, confidence float64, trendCandles int) types.SignalMeta {
	return types.SignalMeta{Confidence: confidence, TrendCandles: trendCandles, CreatedAt: now}
}
