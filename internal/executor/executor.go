// Package executor implements the virtual trading state machine: capital and
// used-margin accounting, BUY/SELL order placement with signal validation,
// position creation and close, startup recovery, and per-tick position
// monitoring. Its fill accounting follows strategy.Inventory's
// average-price/realized-P&L math, its per-tick check-compute-reconcile loop
// shape follows strategy.Maker.quoteUpdate, and its BUY validation gate
// mirrors risk.Manager's limit-check-then-signal shape.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"nifty-options-trader/internal/store"
	"nifty-options-trader/pkg/types"
)

// ErrDegraded is returned for new BUY validation while the executor is
// degraded (a SELL save previously exhausted retries and left a reporting
// gap that has not yet been reconciled).
var ErrDegraded = errors.New("executor: degraded, rejecting new entries until reconciled")

// Config tunes one Executor instance.
type Config struct {
	Mode            types.Mode
	InitialCapital  decimal.Decimal
	MaxPositions    int
	CapitalPerTrade decimal.Decimal
	MaxPositionSize decimal.Decimal
	SlippageBps     int64 // default 0 in paper mode
}

// Executor is the trading state machine. One Executor instance serves one
// (mode) pairing; the orchestrator's single worker goroutine is its only
// writer, but HTTP snapshot reads take the same mutex for a consistent copy.
type Executor struct {
	cfg   Config
	store store.Client
	clock func() time.Time

	logger *slog.Logger

	mu         sync.Mutex
	capital    decimal.Decimal
	usedMargin decimal.Decimal
	positions  map[types.PositionKey]*types.Position
	seq        map[string]int64
	degraded   bool
}

// New builds an Executor with the configured initial capital.
func New(cfg Config, storeClient store.Client, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:       cfg,
		store:     storeClient,
		clock:     time.Now,
		logger:    logger.With("component", "executor"),
		capital:   cfg.InitialCapital,
		positions: make(map[types.PositionKey]*types.Position),
		seq:       make(map[string]int64),
	}
}

// AvailableCapital, UsedMargin, and IsDegraded expose read-only snapshots for
// the HTTP status surface and tests.
func (e *Executor) AvailableCapital() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capital
}

func (e *Executor) UsedMargin() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usedMargin
}

func (e *Executor) IsDegraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.degraded
}

// ClearDegraded lifts the degraded flag. Nothing in this module calls it:
// no Store-read reconciliation clears the flag, so once a SELL-save failure
// sets it, it stays set until ClearDegraded is called.
func (e *Executor) ClearDegraded() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.degraded = false
}

// OpenPositions returns a snapshot copy of every currently open position,
// safe for concurrent callers (HTTP handlers) to read.
func (e *Executor) OpenPositions() []types.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	return out
}

// OpenPositionsForStrategy filters OpenPositions to one strategy's own
// positions, the slice GenerateSignals needs for anti-hedging.
func (e *Executor) OpenPositionsForStrategy(strategy string) []types.Position {
	all := e.OpenPositions()
	out := make([]types.Position, 0, len(all))
	for _, p := range all {
		if p.Strategy == strategy {
			out = append(out, p)
		}
	}
	return out
}

func (e *Executor) nextKey(symbol string) types.PositionKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq[symbol]++
	return types.PositionKey{Symbol: symbol, Seq: e.seq[symbol]}
}

func isBuy(t types.SignalType) bool {
	return t == types.SignalBuyCall || t == types.SignalBuyPut
}

// PlaceOrder validates a signal, applies slippage, constructs an order, and
// executes it: BUY opens a new position, SELL closes the oldest matching
// one. Returns an empty order id (never an error the caller should treat as
// fatal) when the signal fails validation — the orchestrator's policy is to
// skip and continue.
func (e *Executor) PlaceOrder(ctx context.Context, signal types.Signal, marketPrice decimal.Decimal) (string, error) {
	if err := e.validate(ctx, signal, marketPrice); err != nil {
		e.logger.Info("signal rejected", "symbol", signal.Symbol, "type", signal.Type, "reason", err)
		return "", nil
	}

	execPrice := applySlippage(marketPrice, signal.Type, e.cfg.SlippageBps)

	order := &types.Order{
		ID:         uuid.NewString(),
		Strategy:   signal.Strategy,
		Mode:       e.cfg.Mode,
		Symbol:     signal.Symbol,
		Side:       sideFor(signal.Type),
		Quantity:   signal.Quantity,
		Price:      execPrice,
		Status:     types.OrderPending,
		SignalMeta: signal.Meta,
		CreatedAt:  e.clock(),
		UpdatedAt:  e.clock(),
	}

	return e.execute(ctx, order, execPrice, signal.Type)
}

func sideFor(t types.SignalType) types.Side {
	if isBuy(t) {
		return types.BUY
	}
	return types.SELL
}

func optionTypeFor(t types.SignalType) types.OptionType {
	if t == types.SignalBuyCall || t == types.SignalSellCall {
		return types.CE
	}
	return types.PE
}

func applySlippage(price decimal.Decimal, t types.SignalType, bps int64) decimal.Decimal {
	if bps == 0 {
		return price
	}
	factor := decimal.NewFromInt(bps).Div(decimal.NewFromInt(10000))
	if isBuy(t) {
		return price.Mul(decimal.NewFromInt(1).Add(factor))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(factor))
}

func (e *Executor) execute(ctx context.Context, order *types.Order, execPrice decimal.Decimal, signalType types.SignalType) (string, error) {
	qty := decimal.NewFromInt(order.Quantity)
	fees := decimal.Zero
	cost := execPrice.Mul(qty).Add(fees)
	buy := isBuy(signalType)

	if buy {
		e.mu.Lock()
		available := e.capital
		e.mu.Unlock()
		if cost.GreaterThan(available) {
			return "", nil
		}
	}

	savedID, saveErr := e.store.SaveOrder(ctx, order)
	switch {
	case saveErr != nil && buy:
		return "", fmt.Errorf("abort BUY: order save failed: %w", saveErr)
	case saveErr != nil && !buy:
		e.logger.Error("SELL order save failed, proceeding with in-memory close to avoid a stuck-open position",
			"symbol", order.Symbol, "error", saveErr)
		e.setDegraded()
	default:
		order.DatabaseID = savedID
		if !e.verifyPersisted(ctx, order) {
			if buy {
				return "", fmt.Errorf("abort BUY: %w: order %s not found on verification read", store.ErrNotFound, savedID)
			}
			e.logger.Error("SELL order verification read found no row, proceeding with in-memory close",
				"symbol", order.Symbol, "order_id", savedID)
			e.setDegraded()
		}
	}

	order.Status = types.OrderFilled
	order.FilledQty = order.Quantity
	order.FilledPrice = execPrice
	order.FilledAt = e.clock()
	order.UpdatedAt = order.FilledAt

	if buy {
		if _, err := e.openPosition(ctx, order, optionTypeFor(signalType)); err != nil {
			return "", fmt.Errorf("position create: %w", err)
		}
		e.mu.Lock()
		e.capital = e.capital.Sub(cost)
		e.usedMargin = e.usedMargin.Add(cost)
		e.mu.Unlock()
		return order.ID, nil
	}

	if err := e.closePosition(ctx, order, execPrice, optionTypeFor(signalType)); err != nil {
		return "", fmt.Errorf("position close: %w", err)
	}
	return order.ID, nil
}

func (e *Executor) verifyPersisted(ctx context.Context, order *types.Order) bool {
	orders, err := e.store.GetOrdersBySymbol(ctx, order.Symbol, order.Mode)
	if err != nil {
		return false
	}
	for _, o := range orders {
		if o.ID == order.DatabaseID {
			return true
		}
	}
	return false
}

func (e *Executor) setDegraded() {
	e.mu.Lock()
	e.degraded = true
	e.mu.Unlock()
}

func (e *Executor) openPosition(ctx context.Context, order *types.Order, opt types.OptionType) (string, error) {
	key := e.nextKey(order.Symbol)

	pos := types.Position{
		Strategy:         order.Strategy,
		Mode:             order.Mode,
		Symbol:           order.Symbol,
		OptionType:       opt,
		Quantity:         order.Quantity,
		OriginalQuantity: order.Quantity,
		AveragePrice:     order.FilledPrice,
		CurrentPrice:     order.FilledPrice,
		PeakPrice:        order.FilledPrice,
		EntryTime:        order.FilledAt,
		IsOpen:           true,
		BuyOrderID:       order.DatabaseID,
		EntryFees:        decimal.Zero,
		CreatedAt:        order.FilledAt,
		UpdatedAt:        order.FilledAt,
	}

	id, err := e.store.SavePosition(ctx, &pos)
	if err != nil {
		return "", fmt.Errorf("%w: position cannot exist without a backing row: %v", store.ErrValidationRejected, err)
	}
	pos.ID = id

	e.mu.Lock()
	e.positions[key] = &pos
	e.mu.Unlock()
	return id, nil
}

// closePosition selects the oldest open position (FIFO by entry time)
// matching symbol, option type, and quantity, marks it closed, patches the
// Store, releases capital, records a Trade, and removes it from the
// in-memory map.
func (e *Executor) closePosition(ctx context.Context, order *types.Order, execPrice decimal.Decimal, opt types.OptionType) error {
	key, pos, ok := e.findOldestOpen(order.Symbol, opt, order.Quantity)
	if !ok {
		return fmt.Errorf("%w: no open position matches symbol=%s opt=%s qty=%d", store.ErrValidationRejected, order.Symbol, opt, order.Quantity)
	}

	realizedPnL := execPrice.Sub(pos.AveragePrice).Mul(decimal.NewFromInt(pos.OriginalQuantity))
	pnlFraction := execPrice.Sub(pos.AveragePrice).Div(pos.AveragePrice)
	exitTime := order.FilledAt
	closedQty := int64(0)
	isOpen := false
	zero := decimal.Zero

	patch := types.PositionPatch{
		Quantity:      &closedQty,
		UnrealizedPnL: &zero,
		RealizedPnL:   &realizedPnL,
		PnLFraction:   &pnlFraction,
		IsOpen:        &isOpen,
		ExitTime:      &exitTime,
		ExitPrice:     &execPrice,
		ExitReason:    &order.SignalMeta.ExitReason,
		ExitCategory:  &order.SignalMeta.ExitCategory,
	}
	if order.DatabaseID != "" {
		patch.SellOrderID = &order.DatabaseID
	}

	if err := e.store.UpdatePosition(ctx, pos.ID, patch); err != nil {
		// The position is still treated as closed in memory: a failed patch
		// here is a reporting gap, not grounds to leave the position open
		// and re-enter it. The Store row stays is_open=true: a later Recover
		// reloads it (and closes it against its saved SELL order), and the
		// force-exit sweep closes it through CloseUntracked.
		e.logger.Error("position close patch failed", "position_id", pos.ID, "error", err)
	}

	release := pos.AveragePrice.Mul(decimal.NewFromInt(pos.OriginalQuantity)).Add(pos.EntryFees).Add(realizedPnL)
	usedByPosition := pos.AveragePrice.Mul(decimal.NewFromInt(pos.OriginalQuantity)).Add(pos.EntryFees)

	e.mu.Lock()
	e.capital = e.capital.Add(release)
	e.usedMargin = e.usedMargin.Sub(usedByPosition)
	delete(e.positions, key)
	e.mu.Unlock()

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
		ExitTime:        exitTime,
		HoldDurationMin: exitTime.Sub(pos.EntryTime).Minutes(),
		ExitReason:      order.SignalMeta.ExitReason,
		Fees:            pos.EntryFees,
	}
	if err := e.store.SaveTrade(ctx, trade); err != nil {
		e.logger.Warn("trade record save failed, reporting gap only", "symbol", pos.Symbol, "error", err)
	}

	return nil
}

func (e *Executor) findOldestOpen(symbol string, opt types.OptionType, quantity int64) (types.PositionKey, types.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		bestKey types.PositionKey
		best    *types.Position
	)
	for key, p := range e.positions {
		if p.Symbol != symbol || p.OptionType != opt || !p.IsOpen || p.Quantity != quantity {
			continue
		}
		if best == nil || p.EntryTime.Before(best.EntryTime) {
			k, pp := key, *p
			bestKey, best = k, &pp
		}
	}
	if best == nil {
		return types.PositionKey{}, types.Position{}, false
	}
	return bestKey, *best, true
}
