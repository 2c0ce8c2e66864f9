package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"nifty-options-trader/pkg/types"
)

// PriceSource is the narrow broker/marketdata dependency MonitorPositions
// needs: a single-symbol last-traded price, empty (never stale) on failure.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// ExitEvaluator is the per-strategy should_exit contract (see
// internal/strategy/supertrend.Strategy.ShouldExit).
type ExitEvaluator interface {
	ShouldExit(position types.Position, currentPrice decimal.Decimal, now time.Time) (exit bool, reason string, category types.ExitCategory, newPeak decimal.Decimal)
}

// StrategyLookup resolves a strategy name to its ExitEvaluator.
type StrategyLookup func(strategy string) (ExitEvaluator, bool)

// MonitorPositions is the per-tick monitoring loop: for every in-memory open
// position, refresh its current price and unrealized P&L, ask its owning
// strategy whether to exit, and if so route a SELL signal back through
// PlaceOrder (the same pipeline that performs the close).
func (e *Executor) MonitorPositions(ctx context.Context, prices PriceSource, lookup StrategyLookup) {
	for _, pos := range e.OpenPositions() {
		price, err := prices.CurrentPrice(ctx, pos.Symbol)
		if err != nil || price.IsZero() {
			continue
		}

		unrealized := price.Sub(pos.AveragePrice).Mul(decimal.NewFromInt(pos.Quantity))
		pnlFraction := price.Sub(pos.AveragePrice).Div(pos.AveragePrice)

		evaluator, ok := lookup(pos.Strategy)
		if !ok {
			e.updatePriceAndPeak(pos.ID, price, unrealized, pnlFraction, pos.PeakPrice)
			continue
		}

		exit, reason, category, newPeak := evaluator.ShouldExit(pos, price, e.clock())
		e.updatePriceAndPeak(pos.ID, price, unrealized, pnlFraction, newPeak)
		e.persistPriceRefresh(ctx, pos.ID, price, unrealized, pnlFraction)

		if !exit {
			continue
		}

		sigType := types.SignalSellCall
		if pos.OptionType == types.PE {
			sigType = types.SignalSellPut
		}
		signal := types.Signal{
			Strategy:   pos.Strategy,
			Type:       sigType,
			Symbol:     pos.Symbol,
			OptionType: pos.OptionType,
			Quantity:   pos.Quantity,
			Meta: types.SignalMeta{
				ExitReason:   reason,
				ExitCategory: category,
				CreatedAt:    e.clock(),
			},
		}
		if _, err := e.PlaceOrder(ctx, signal, price); err != nil {
			e.logger.Error("exit signal placement failed", "symbol", pos.Symbol, "error", err)
		}
	}
}

func (e *Executor) updatePriceAndPeak(id string, price, unrealized, pnlFraction, peak decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.positions {
		if p.ID == id {
			p.CurrentPrice = price
			p.UnrealizedPnL = unrealized
			p.PnLFraction = pnlFraction
			p.PeakPrice = peak
			p.UpdatedAt = e.clock()
			return
		}
	}
}

func (e *Executor) persistPriceRefresh(ctx context.Context, id string, price, unrealized, pnlFraction decimal.Decimal) {
	patch := types.PositionPatch{
		CurrentPrice:  &price,
		UnrealizedPnL: &unrealized,
		PnLFraction:   &pnlFraction,
	}
	if err := e.store.UpdatePosition(ctx, id, patch); err != nil {
		e.logger.Warn("position price refresh patch failed", "position_id", id, "error", err)
	}
}
