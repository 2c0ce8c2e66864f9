package orchestrator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"nifty-options-trader/internal/executor"
	"nifty-options-trader/internal/strategy/supertrend"
	"nifty-options-trader/pkg/types"
)

// run is the tick-loop worker: ticks on cfg.TickInterval until the
// orchestrator's context is cancelled. A panic inside a single tick is
// recovered and logged so one bad tick never halts the loop.
func (o *Orchestrator) run() {
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.safeTick()
		}
	}
}

func (o *Orchestrator) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("tick panicked, resuming on next tick", "panic", r)
		}
	}()
	o.tick(o.ctx, time.Now())
}

// tick runs one pass of the loop body: market-hours gate, candle refresh,
// signal generation and dispatch, position monitoring, force-exit sweep,
// and a periodic daily P&L snapshot. now is injected rather than read
// internally so tests can drive the IST-calendar-day and force-exit cutoff
// logic deterministically.
func (o *Orchestrator) tick(ctx context.Context, now time.Time) {

	// 1. Market-hours gate.
	if !o.market.IsMarketOpen(ctx) {
		return
	}

	o.resetDailyCounterIfNewDay(now)

	// 2. Force-exit cutoff: swept once per day, the first tick past cutoff.
	cutoff := o.forceExitCutoff(now)
	pastCutoff := !now.Before(cutoff)
	if pastCutoff {
		o.mu.Lock()
		alreadySwept := o.forceExited
		o.forceExited = true
		o.mu.Unlock()
		if !alreadySwept {
			o.ForceExitSweep(ctx)
		}
	}

	// 3. Refresh candle buffers for every active strategy.
	candles, err := o.market.Candles(ctx, o.cfg.CandleInterval, o.cfg.CandleLookbackDays)
	if err != nil {
		o.logger.Warn("candle refresh failed, strategies see no new candle this tick", "error", err)
	}

	o.mu.Lock()
	strategies := make(map[string]*supertrend.Strategy, len(o.strategies))
	for name, s := range o.strategies {
		strategies[name] = s
	}
	lookup := o.lookup
	o.mu.Unlock()

	for _, s := range strategies {
		s.UpdateMarketData(candles, now)
	}

	// 4. Entry/exit signals, requested only before the cutoff; past it, exits
	// come from step 5's monitoring and the force-exit sweep.
	if !pastCutoff {
		spot, err := o.market.CurrentPrice(ctx, o.cfg.UnderlyingSymbol)
		if err != nil || spot.IsZero() {
			o.logger.Warn("spot price unavailable, skipping signal generation this tick", "error", err)
		} else {
			for name, s := range strategies {
				open := o.exec.OpenPositionsForStrategy(name)
				for _, sig := range s.GenerateSignals(now, spot, open, lookup) {
					o.dispatch(ctx, sig, spot)
				}
			}
		}
	}

	// 5. Position monitoring: produces its own exit signals via each
	// strategy's ShouldExit and routes them through PlaceOrder.
	o.exec.MonitorPositions(ctx, o.market, o.strategyLookup)

	// 6. Periodic DailyPnL persistence.
	o.mu.Lock()
	o.tickCount++
	shouldPersist := o.tickCount%60 == 0
	o.mu.Unlock()
	if shouldPersist {
		o.persistDailyPnL(ctx, now)
	}
}

// strategyLookup adapts the orchestrator's strategy map to
// executor.StrategyLookup without the executor package ever importing
// internal/strategy/supertrend.
func (o *Orchestrator) strategyLookup(name string) (executor.ExitEvaluator, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.strategies[name]
	return s, ok
}

// dispatch routes one signal through the executor, enforcing the
// daily-trade cap on new BUY entries only (step 7); SELL signals (exits,
// force-exit) never consult the cap.
func (o *Orchestrator) dispatch(ctx context.Context, sig types.Signal, marketPrice decimal.Decimal) {
	isEntry := sig.Type == types.SignalBuyCall || sig.Type == types.SignalBuyPut
	if isEntry && o.risk.Breached() {
		o.logger.Info("daily loss limit breached, dropping entry signal", "strategy", sig.Strategy, "symbol", sig.Symbol)
		return
	}
	if isEntry && o.cfg.MaxDailyTrades > 0 {
		o.mu.Lock()
		capped := o.tradesToday >= o.cfg.MaxDailyTrades
		o.mu.Unlock()
		if capped {
			o.logger.Info("daily trade cap reached, dropping entry signal", "strategy", sig.Strategy, "symbol", sig.Symbol)
			return
		}
	}

	orderID, err := o.exec.PlaceOrder(ctx, sig, marketPrice)
	if err != nil {
		o.logger.Error("place_order failed", "strategy", sig.Strategy, "symbol", sig.Symbol, "error", err)
		return
	}
	if orderID == "" {
		return // signal rejected by validation; executor already logged why
	}
	if isEntry {
		o.mu.Lock()
		o.tradesToday++
		o.mu.Unlock()
	}
}

func (o *Orchestrator) resetDailyCounterIfNewDay(now time.Time) {
	today := now.In(ist).Format("2006-01-02")
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tradeDate != today {
		o.tradeDate = today
		o.tradesToday = 0
		o.forceExited = false
		o.risk.Reset()
	}
}

func (o *Orchestrator) persistDailyPnL(ctx context.Context, now time.Time) {
	o.mu.Lock()
	strategies := make([]string, 0, len(o.strategies))
	for name := range o.strategies {
		strategies = append(strategies, name)
	}
	o.mu.Unlock()

	date := time.Date(now.In(ist).Year(), now.In(ist).Month(), now.In(ist).Day(), 0, 0, 0, 0, ist)
	var grandTotal decimal.Decimal
	for _, name := range strategies {
		open := o.exec.OpenPositionsForStrategy(name)

		var unrealized decimal.Decimal
		for _, p := range open {
			unrealized = unrealized.Add(p.UnrealizedPnL)
		}

		pnl := &types.DailyPnL{
			Date:          date,
			Strategy:      name,
			Mode:          o.cfg.Mode,
			UnrealizedPnL: unrealized,
		}

		trades, err := o.store.GetTradesByDateAndStrategy(ctx, date, name, o.cfg.Mode)
		if err != nil {
			o.logger.Warn("today's trades read failed, persisting unrealized pnl only", "strategy", name, "error", err)
		}
		for _, t := range trades {
			pnl.RealizedPnL = pnl.RealizedPnL.Add(t.PnL)
			pnl.FeesPaid = pnl.FeesPaid.Add(t.Fees)
			pnl.TradesCount++
			if t.PnL.IsPositive() {
				pnl.WinningTrades++
			} else if t.PnL.IsNegative() {
				pnl.LosingTrades++
			}
		}
		pnl.TotalPnL = pnl.RealizedPnL.Add(pnl.UnrealizedPnL)
		pnl.PortfolioValue = o.exec.AvailableCapital().Add(o.exec.UsedMargin()).Add(unrealized)

		if err := o.store.SaveDailyPnL(ctx, pnl); err != nil {
			o.logger.Warn("daily pnl persist failed", "strategy", name, "error", err)
		}
		grandTotal = grandTotal.Add(pnl.TotalPnL)
	}
	o.risk.Update(grandTotal)
}
