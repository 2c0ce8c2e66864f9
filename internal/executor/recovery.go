package executor

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"nifty-options-trader/pkg/types"
)

// Recover runs the startup recovery protocol: load every open position for
// this executor's mode from the Store, reconstruct it in memory, then
// reconcile orphans — positions the Store still shows open despite a SELL
// order already existing for the same symbol/strategy (broker or process
// restart left the position open despite the sell being recorded).
func (e *Executor) Recover(ctx context.Context) error {
	openPositions, err := e.store.GetOpenPositions(ctx, e.cfg.Mode)
	if err != nil {
		return err
	}

	for _, p := range openPositions {
		pos := p
		if e.alreadyTracked(pos.ID) {
			continue
		}
		key := e.nextKey(pos.Symbol)
		e.mu.Lock()
		e.positions[key] = &pos
		e.mu.Unlock()

		if err := e.reconcileIfOrphaned(ctx, key, pos); err != nil {
			e.logger.Error("orphan reconciliation failed", "symbol", pos.Symbol, "position_id", pos.ID, "error", err)
		}
	}

	e.logger.Info("recovery complete", "open_positions", len(openPositions))
	return nil
}

func (e *Executor) alreadyTracked(positionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.positions {
		if p.ID == positionID {
			return true
		}
	}
	return false
}

func (e *Executor) reconcileIfOrphaned(ctx context.Context, key types.PositionKey, pos types.Position) error {
	sells, err := e.store.GetOrdersBySymbolStrategyAndSide(ctx, pos.Symbol, pos.Strategy, e.cfg.Mode, types.SELL)
	if err != nil {
		return err
	}
	if len(sells) == 0 {
		return nil
	}

	sort.Slice(sells, func(i, j int) bool { return sells[i].CreatedAt.Before(sells[j].CreatedAt) })
	sellOrder := sells[0]

	e.logger.Warn("orphaned position detected on recovery, closing against recorded SELL order",
		"symbol", pos.Symbol, "position_id", pos.ID, "sell_order_id", sellOrder.ID)

	realizedPnL := sellOrder.FilledPrice.Sub(pos.AveragePrice).Mul(decimal.NewFromInt(pos.OriginalQuantity))
	pnlFraction := sellOrder.FilledPrice.Sub(pos.AveragePrice).Div(pos.AveragePrice)
	closedQty := int64(0)
	isOpen := false
	exitTime := sellOrder.FilledAt
	exitPrice := sellOrder.FilledPrice
	reason := "orphan reconciliation on startup"
	category := types.ExitOther

	patch := types.PositionPatch{
		Quantity:     &closedQty,
		RealizedPnL:  &realizedPnL,
		PnLFraction:  &pnlFraction,
		IsOpen:       &isOpen,
		ExitTime:     &exitTime,
		ExitPrice:    &exitPrice,
		ExitReason:   &reason,
		ExitCategory: &category,
		SellOrderID:  &sellOrder.ID,
	}
	if err := e.store.UpdatePosition(ctx, pos.ID, patch); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.positions, key)
	e.mu.Unlock()
	return nil
}
