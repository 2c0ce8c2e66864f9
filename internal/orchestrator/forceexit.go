package orchestrator

import (
	"context"
	"fmt"
	"time"

	"nifty-options-trader/pkg/types"
)

// forceExitCutoff parses the configured "HH:MM" force-exit time and returns
// today's (IST calendar date) instant it refers to.
func (o *Orchestrator) forceExitCutoff(now time.Time) time.Time {
	var hour, minute int
	fmt.Sscanf(o.cfg.ForceExitTime, "%d:%d", &hour, &minute) // validated at config load
	nowIST := now.In(ist)
	return time.Date(nowIST.Year(), nowIST.Month(), nowIST.Day(), hour, minute, 0, 0, ist)
}

// ForceExitSweep closes every open position across the union of in-memory
// and Store-recorded open positions for this mode, at current market price,
// with category FORCE_EXIT. Per-symbol failures are recorded but never abort
// the rest of the sweep; the minimum-hold rule does not apply (a force-exit
// SELL bypasses ShouldExit entirely by being submitted here directly, not
// through the strategy). A position the Store still shows open but the
// in-memory map has already lost track of — the exact drift the union exists
// to catch — closes through CloseUntracked instead of PlaceOrder, since
// PlaceOrder's validateSell would reject it for the very absence that makes
// it worth sweeping.
func (o *Orchestrator) ForceExitSweep(ctx context.Context) {
	union, storeOnly := o.unionOpenPositions(ctx)
	if len(union) == 0 {
		return
	}

	o.logger.Warn("force-exit sweep starting", "position_count", len(union), "cutoff", o.cfg.ForceExitTime)

	for _, pos := range union {
		price, err := o.market.CurrentPrice(ctx, pos.Symbol)
		if err != nil || price.IsZero() {
			o.logger.Error("force-exit: current price unavailable, leaving position open", "symbol", pos.Symbol, "error", err)
			continue
		}

		reason := fmt.Sprintf("Force close at %s", o.cfg.ForceExitTime)

		if storeOnly[pos.ID] {
			orderID, err := o.exec.CloseUntracked(ctx, pos, price, reason, types.ExitForceExit)
			if err != nil {
				o.logger.Error("force-exit: close of Store-only position failed", "symbol", pos.Symbol, "position_id", pos.ID, "error", err)
				continue
			}
			o.logger.Warn("force-exit: closed a Store-only position found by the drift sweep", "symbol", pos.Symbol, "position_id", pos.ID, "order_id", orderID)
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
				ExitCategory: types.ExitForceExit,
				CreatedAt:    time.Now(),
			},
		}
		orderID, err := o.exec.PlaceOrder(ctx, signal, price)
		switch {
		case err != nil:
			o.logger.Error("force-exit: place_order failed", "symbol", pos.Symbol, "error", err)
		case orderID == "":
			o.logger.Error("force-exit: SELL rejected", "symbol", pos.Symbol, "position_id", pos.ID)
		}
	}
}

// unionOpenPositions merges in-memory open positions with whatever the Store
// still shows open for this mode, deduplicated by position id, so a position
// the in-memory map lost track of (a prior tick's bug, a restart mid-session)
// is still swept. storeOnly marks the ids present only in the Store read,
// not in the in-memory set, so the caller can route them through the direct
// close path instead of the signal pipeline.
func (o *Orchestrator) unionOpenPositions(ctx context.Context) (union []types.Position, storeOnly map[string]bool) {
	seen := make(map[string]struct{})
	storeOnly = make(map[string]bool)

	for _, p := range o.exec.OpenPositions() {
		seen[p.ID] = struct{}{}
		union = append(union, p)
	}

	storePositions, err := o.store.GetOpenPositions(ctx, o.cfg.Mode)
	if err != nil {
		o.logger.Warn("force-exit: Store open-positions read failed, sweeping in-memory set only", "error", err)
		return union, storeOnly
	}
	for _, p := range storePositions {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		union = append(union, p)
		storeOnly[p.ID] = true
	}
	return union, storeOnly
}
