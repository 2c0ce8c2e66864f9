// Package orchestrator is the periodic scheduler that composes market data,
// strategy signal generation, and the executor into one cooperative tick
// loop: refresh candles, ask each active strategy for entry/exit signals,
// route them through the executor, monitor open positions, sweep a
// force-exit at the configured cutoff, and persist a daily P&L snapshot
// every ~60 ticks. Mirrors engine.go's New/Start/Stop lifecycle, collapsed
// from a per-market goroutine fan-out into a single ticking loop since every
// trading-state transition here happens on one worker and there is no
// per-market concurrency to fan out over.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"nifty-options-trader/internal/config"
	"nifty-options-trader/internal/executor"
	"nifty-options-trader/internal/risk"
	"nifty-options-trader/internal/store"
	"nifty-options-trader/internal/strategy/supertrend"
	"nifty-options-trader/pkg/types"
)

// ist is the timezone strategy decisions and the force-exit cutoff are
// evaluated in, independent of internal/marketdata's own copy (no shared
// dependency between the two packages).
var ist = time.FixedZone("IST", 5*3600+30*60)

// State is the orchestrator's own lifecycle state machine: {IDLE, RUNNING}.
// There is no PAUSED state; pausing is stopping and restarting.
type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
)

// InstrumentSource is the narrow broker dependency the orchestrator needs at
// startup: the instrument master used to build each strategy's
// InstrumentLookup.
type InstrumentSource interface {
	LoadInstruments(ctx context.Context) ([]types.Instrument, error)
}

// MarketData is the narrow market data dependency the tick loop consumes.
// marketdata.Service satisfies this directly, including executor.PriceSource
// (the same CurrentPrice signature) so it can be passed straight into
// Executor.MonitorPositions without an adapter.
type MarketData interface {
	Candles(ctx context.Context, interval time.Duration, lookbackDays int) ([]types.Candle, error)
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	IsMarketOpen(ctx context.Context) bool
}

// Config tunes one Orchestrator instance; the fields needed out of the
// broader application config, named identically for clarity at the call site.
type Config struct {
	UnderlyingSymbol string // broker symbol for spot price lookups, e.g. "NIFTY 50"
	CandleInterval   time.Duration
	CandleLookbackDays int
	TickInterval     time.Duration
	ForceExitTime    string // "HH:MM" IST
	MaxDailyTrades   int    // 0 disables the cap
	MaxDailyLoss     decimal.Decimal // magnitude; 0 disables the kill switch
	Mode             types.Mode
}

// FromAppConfig builds an orchestrator Config from the application-wide
// config, applying the Supertrend strategy's reference parameters (1-minute
// candles, 5-day lookback).
func FromAppConfig(cfg *config.Config, underlyingSymbol string) Config {
	mode := types.ModePaper
	if cfg.Mode == "LIVE" {
		mode = types.ModeLive
	}
	return Config{
		UnderlyingSymbol:   underlyingSymbol,
		CandleInterval:     time.Minute,
		CandleLookbackDays: 5,
		TickInterval:       cfg.TickInterval(),
		ForceExitTime:      cfg.ForceExitTime,
		MaxDailyTrades:     cfg.MaxDailyTrades,
		MaxDailyLoss:       decimal.NewFromFloat(cfg.MaxDailyLoss),
		Mode:               mode,
	}
}

// Orchestrator is the trading scheduler: one worker goroutine owns every
// trading-state mutation, so there is never a concurrent writer to
// arbitrate between. HTTP reads take a consistent snapshot via
// State/DailyTradeCount.
type Orchestrator struct {
	cfg    Config
	broker InstrumentSource
	market MarketData
	store  store.Client
	exec   *executor.Executor
	risk   *risk.Manager
	logger *slog.Logger

	mu          sync.Mutex
	strategies  map[string]*supertrend.Strategy
	state       State
	tradesToday int
	tradeDate   string // IST calendar date (YYYY-MM-DD) the counter applies to
	forceExited bool
	tickCount   int

	lookup supertrend.InstrumentLookup

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires an Orchestrator. The instrument master is loaded lazily on the
// first Start call (requires the Broker to be authenticated).
func New(cfg Config, broker InstrumentSource, market MarketData, storeClient store.Client, exec *executor.Executor, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		broker:     broker,
		market:     market,
		store:      storeClient,
		exec:       exec,
		risk:       risk.NewManager(cfg.MaxDailyLoss, logger),
		logger:     logger.With("component", "orchestrator"),
		strategies: make(map[string]*supertrend.Strategy),
		state:      StateIdle,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// DailyTradeCount returns today's entry count, for the HTTP status surface.
func (o *Orchestrator) DailyTradeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tradesToday
}

// Mode reports the configured trading mode, for the HTTP status surface.
func (o *Orchestrator) Mode() types.Mode {
	return o.cfg.Mode
}

// AvailableCapital, UsedMargin, OpenPositions, and IsDegraded pass through to
// the executor, giving internal/api a single read-only Provider (this type)
// rather than depending on internal/executor directly.
func (o *Orchestrator) AvailableCapital() decimal.Decimal { return o.exec.AvailableCapital() }
func (o *Orchestrator) UsedMargin() decimal.Decimal       { return o.exec.UsedMargin() }
func (o *Orchestrator) OpenPositions() []types.Position   { return o.exec.OpenPositions() }
func (o *Orchestrator) IsDegraded() bool                  { return o.exec.IsDegraded() }

// RiskBreached reports whether the daily loss kill switch is latched, for
// the HTTP status surface.
func (o *Orchestrator) RiskBreached() bool { return o.risk.Breached() }
