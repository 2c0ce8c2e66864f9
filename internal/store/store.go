// Package store defines the contract for the persistence layer: typed CRUD
// over orders, positions, trades, and daily_pnl. The store itself (a remote
// relational database reached over HTTP) is an external collaborator —
// only its contract is implemented in this module tree, as an interface
// plus a REST implementation (rest/) and an in-memory test double
// (memory/).
package store

import (
	"context"
	"errors"
	"time"

	"nifty-options-trader/pkg/types"
)

// Sentinel errors, checked with errors.Is by callers that need to branch on
// the transient/permanent distinction without inspecting status codes.
var (
	// ErrTransient wraps network/5xx failures from the store: retried.
	ErrTransient = errors.New("store: transient error")
	// ErrValidationRejected wraps a client-side validation gate failure
	// (missing fields, SELL without a matching open position): never
	// retried, the caller drops the write.
	ErrValidationRejected = errors.New("store: validation rejected")
	// ErrNotFound indicates a read found no matching row.
	ErrNotFound = errors.New("store: not found")
)

// Client is the typed CRUD surface the executor and orchestrator depend on.
// All methods must be safe to call concurrently; writes are idempotent by
// server-assigned id, so at-least-once delivery is acceptable.
type Client interface {
	// SaveOrder validates and persists a new order. The validation gate
	// (required fields, SELL-must-match-open-position) runs before any
	// network call; no numeric sanitization step runs, since the order's
	// amounts are decimal values that cannot be NaN or infinite.
	SaveOrder(ctx context.Context, order *types.Order) (id string, err error)

	// SavePosition inserts a new position, or updates by id if the
	// position already carries one.
	SavePosition(ctx context.Context, position *types.Position) (id string, err error)

	// UpdatePosition applies a partial patch to an existing position, used
	// for current-price/P&L refresh and for close.
	UpdatePosition(ctx context.Context, id string, patch types.PositionPatch) error

	// GetOpenPositions returns every open position for the given mode.
	GetOpenPositions(ctx context.Context, mode types.Mode) ([]types.Position, error)

	// GetOrdersBySymbol returns every order for a symbol in the given
	// mode, used for validation and recovery.
	GetOrdersBySymbol(ctx context.Context, symbol string, mode types.Mode) ([]types.Order, error)

	// GetOrdersBySymbolStrategyAndSide narrows GetOrdersBySymbol to one
	// strategy and one side, used by the orphan-reconciliation routine so a
	// stale SELL row belonging to a different strategy on the same symbol
	// can never be mistaken for the position's own closing order.
	GetOrdersBySymbolStrategyAndSide(ctx context.Context, symbol, strategy string, mode types.Mode, side types.Side) ([]types.Order, error)

	// SaveDailyPnL upserts the (date, strategy, mode) aggregate row.
	SaveDailyPnL(ctx context.Context, pnl *types.DailyPnL) error

	// SaveTrade appends the derived, reporting-only record summarizing one
	// closed position. Failure here never unwinds the position close that
	// produced it; trades are reporting, not correctness, data.
	SaveTrade(ctx context.Context, trade *types.Trade) error

	// GetTradesByDateAndStrategy returns every trade whose ExitTime falls on
	// the given (IST calendar) date, for one strategy and mode. Used to
	// aggregate a day's realized P&L and win/loss counts into DailyPnL.
	GetTradesByDateAndStrategy(ctx context.Context, date time.Time, strategy string, mode types.Mode) ([]types.Trade, error)
}
