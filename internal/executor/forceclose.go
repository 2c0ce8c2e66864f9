package executor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"nifty-options-trader/pkg/types"
)

// CloseUntracked closes a position the in-memory map has already lost track
// of but the Store still shows open — a prior close's UpdatePosition patch
// failed after the in-memory side was already removed, or the row belongs to
// a process that restarted without running Recover. It writes the closing
// SELL order and position patch directly against the given position's id,
// skipping the in-memory lookup validateSell requires for strategy-generated
// signals, since by definition there is nothing to find there. Capital and
// used-margin are left untouched: this executor never had the position in
// its accounting to begin with, so there is nothing here to release.
func (e *Executor) CloseUntracked(ctx context.Context, pos types.Position, price decimal.Decimal, reason string, category types.ExitCategory) (string, error) {
	execPrice := applySlippage(price, types.SignalSellCall, e.cfg.SlippageBps)

	order := &types.Order{
		ID:       uuid.NewString(),
		Strategy: pos.Strategy,
		Mode:     e.cfg.Mode,
		Symbol:   pos.Symbol,
		Side:     types.SELL,
		Quantity: pos.Quantity,
		Price:    execPrice,
		Status:   types.OrderPending,
		SignalMeta: types.SignalMeta{
			ExitReason:   reason,
			ExitCategory: category,
			CreatedAt:    e.clock(),
		},
		CreatedAt: e.clock(),
		UpdatedAt: e.clock(),
	}

	savedID, err := e.store.SaveOrder(ctx, order)
	if err != nil {
		return "", fmt.Errorf("close untracked position: order save failed: %w", err)
	}
	order.DatabaseID = savedID
	order.Status = types.OrderFilled
	order.FilledQty = order.Quantity
	order.FilledPrice = execPrice
	order.FilledAt = e.clock()
	order.UpdatedAt = order.FilledAt

	realizedPnL := execPrice.Sub(pos.AveragePrice).Mul(decimal.NewFromInt(pos.OriginalQuantity))
	pnlFraction := execPrice.Sub(pos.AveragePrice).Div(pos.AveragePrice)
	closedQty := int64(0)
	isOpen := false
	zero := decimal.Zero

	patch := types.PositionPatch{
		Quantity:      &closedQty,
		UnrealizedPnL: &zero,
		RealizedPnL:   &realizedPnL,
		PnLFraction:   &pnlFraction,
		IsOpen:        &isOpen,
		ExitTime:      &order.FilledAt,
		ExitPrice:     &execPrice,
		ExitReason:    &reason,
		ExitCategory:  &category,
		SellOrderID:   &order.DatabaseID,
	}
	if err := e.store.UpdatePosition(ctx, pos.ID, patch); err != nil {
		return "", fmt.Errorf("close untracked position: position patch failed: %w", err)
	}

	trade := &types.Trade{
		ID:              uuid.NewString(),
		Strategy:        pos.Strategy,
		Mode:            pos.Mode,
		Symbol:          pos.Symbol,
		EntryPrice:      pos.AveragePrice,
		ExitPrice:       execPrice,
		Quantity:        pos.OriginalQuantity,
		PnL:             realizedPnL,
		PnLPercentage:   pnlFraction,
		EntryTime:       pos.EntryTime,
		ExitTime:        order.FilledAt,
		HoldDurationMin: order.FilledAt.Sub(pos.EntryTime).Minutes(),
		ExitReason:      reason,
		Fees:            pos.EntryFees,
	}
	if err := e.store.SaveTrade(ctx, trade); err != nil {
		e.logger.Warn("trade record save failed, reporting gap only", "symbol", pos.Symbol, "error", err)
	}

	return order.ID, nil
}
