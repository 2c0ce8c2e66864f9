package store

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"nifty-options-trader/pkg/types"
)

// ValidateOrder runs the save_order validation gate: reject if any required
// field is missing, and for SELL orders, reject unless the sum of open
// quantities for (symbol, mode) covers the requested quantity. openQtyLookup
// is supplied by the caller (a fresh Store query, verified at save time
// rather than trusted from stale in-memory state) rather than computed
// here, so this function has no side effects of its own.
func ValidateOrder(ctx context.Context, order *types.Order, openQtyLookup func(ctx context.Context, symbol string, mode types.Mode) (int64, error)) error {
	if order.Symbol == "" || order.Side == "" || order.Quantity <= 0 || order.Price.IsZero() || order.Mode == "" {
		return fmt.Errorf("%w: missing required field", ErrValidationRejected)
	}
	if order.Side == types.SELL {
		openQty, err := openQtyLookup(ctx, order.Symbol, order.Mode)
		if err != nil {
			return fmt.Errorf("check open positions: %w", err)
		}
		if openQty < order.Quantity {
			return fmt.Errorf("%w: SELL quantity %d exceeds open quantity %d for %s", ErrValidationRejected, order.Quantity, openQty, order.Symbol)
		}
	}
	return nil
}

// SanitizeDecimal maps NaN and +/-Inf to a zero value before a numeric
// value is persisted. decimal.Decimal cannot itself represent NaN/Inf, so
// this guards the float64 boundary where such values can still arise (e.g.
// a division in strategy code before the value is converted to decimal).
func SanitizeDecimal(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}
