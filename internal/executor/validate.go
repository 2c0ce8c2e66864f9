package executor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"nifty-options-trader/internal/store"
	"nifty-options-trader/pkg/types"
)

// validate implements the strict signal-validation gate. A SELL must find a
// matching open position in BOTH the in-memory map and a fresh Store query
// (preventing orphan SELLs across restart/stale-memory scenarios); a BUY is
// checked against the degraded flag, the open-position cap, the per-trade
// capital cap, and available capital.
func (e *Executor) validate(ctx context.Context, signal types.Signal, marketPrice decimal.Decimal) error {
	if marketPrice.IsZero() || marketPrice.IsNegative() {
		return fmt.Errorf("%w: market price must be positive, got %s", store.ErrValidationRejected, marketPrice)
	}

	if isBuy(signal.Type) {
		return e.validateBuy(signal, marketPrice)
	}
	return e.validateSell(ctx, signal)
}

func (e *Executor) validateBuy(signal types.Signal, marketPrice decimal.Decimal) error {
	if e.IsDegraded() {
		return fmt.Errorf("%w", ErrDegraded)
	}

	e.mu.Lock()
	openCount := len(e.positions)
	available := e.capital
	e.mu.Unlock()

	if e.cfg.MaxPositions > 0 && openCount >= e.cfg.MaxPositions {
		return fmt.Errorf("%w: open position count %d >= max_positions %d", store.ErrValidationRejected, openCount, e.cfg.MaxPositions)
	}

	requiredCapital := marketPrice.Mul(decimal.NewFromInt(signal.Quantity))
	if e.cfg.CapitalPerTrade.GreaterThan(decimal.Zero) && requiredCapital.GreaterThan(e.cfg.CapitalPerTrade) {
		return fmt.Errorf("%w: required capital %s exceeds capital_per_trade %s", store.ErrValidationRejected, requiredCapital, e.cfg.CapitalPerTrade)
	}
	if requiredCapital.GreaterThan(available) {
		return fmt.Errorf("%w: required capital %s exceeds available capital %s", store.ErrValidationRejected, requiredCapital, available)
	}
	return nil
}

func (e *Executor) validateSell(ctx context.Context, signal types.Signal) error {
	opt := optionTypeFor(signal.Type)

	e.mu.Lock()
	var inMemory bool
	for _, p := range e.positions {
		if p.Symbol == signal.Symbol && p.OptionType == opt && p.IsOpen && p.Quantity >= signal.Quantity {
			inMemory = true
			break
		}
	}
	e.mu.Unlock()
	if !inMemory {
		return fmt.Errorf("%w: no matching open position in memory for %s", store.ErrValidationRejected, signal.Symbol)
	}

	storePositions, err := e.store.GetOpenPositions(ctx, e.cfg.Mode)
	if err != nil {
		return fmt.Errorf("%w: fresh Store read failed: %v", store.ErrValidationRejected, err)
	}
	for _, p := range storePositions {
		if p.Symbol == signal.Symbol && p.OptionType == opt && p.IsOpen && p.Quantity >= signal.Quantity {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching open position in Store for %s", store.ErrValidationRejected, signal.Symbol)
}
