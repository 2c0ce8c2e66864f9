// Package memory implements store.Client entirely in process memory. It
// mirrors the map-based, mutex-serialized semantics of a simple local store
// but behind the store.Client interface, so it can stand in for the remote
// relational store in executor and orchestrator tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nifty-options-trader/internal/store"
	"nifty-options-trader/pkg/types"
)

// Store is an in-memory store.Client implementation for tests.
type Store struct {
	mu        sync.Mutex
	seq       int
	orders    map[string]types.Order
	positions map[string]types.Position
	dailyPnL  []types.DailyPnL
	trades    []types.Trade
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		orders:    make(map[string]types.Order),
		positions: make(map[string]types.Position),
	}
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// SaveOrder validates and inserts an order, assigning it a server id.
func (s *Store) SaveOrder(ctx context.Context, order *types.Order) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := store.ValidateOrder(ctx, order, s.openQuantityLocked); err != nil {
		return "", err
	}

	id := s.nextID("order")
	order.ID = id
	s.orders[id] = *order
	return id, nil
}

func (s *Store) openQuantityLocked(ctx context.Context, symbol string, mode types.Mode) (int64, error) {
	var total int64
	for _, p := range s.positions {
		if p.Symbol == symbol && p.Mode == mode && p.IsOpen {
			total += p.Quantity
		}
	}
	return total, nil
}

// SavePosition inserts a new position or updates current_price by id.
func (s *Store) SavePosition(ctx context.Context, position *types.Position) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if position.ID != "" {
		existing, ok := s.positions[position.ID]
		if !ok {
			return "", store.ErrNotFound
		}
		existing.CurrentPrice = position.CurrentPrice
		s.positions[position.ID] = existing
		return position.ID, nil
	}

	if position.EntryTime.IsZero() || position.Quantity <= 0 || position.AveragePrice.IsZero() {
		return "", fmt.Errorf("%w: new open position missing required fields", store.ErrValidationRejected)
	}

	id := s.nextID("position")
	position.ID = id
	s.positions[id] = *position
	return id, nil
}

// UpdatePosition applies a partial patch to a position by id.
func (s *Store) UpdatePosition(ctx context.Context, id string, patch types.PositionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return store.ErrNotFound
	}
	applyPatch(&p, patch)
	s.positions[id] = p
	return nil
}

// GetOpenPositions returns every open position for the given mode, ordered
// by entry time for deterministic FIFO tests.
func (s *Store) GetOpenPositions(ctx context.Context, mode types.Mode) ([]types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Position
	for _, p := range s.positions {
		if p.Mode == mode && p.IsOpen {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out, nil
}

// GetOrdersBySymbol returns every order for a symbol in the given mode.
func (s *Store) GetOrdersBySymbol(ctx context.Context, symbol string, mode types.Mode) ([]types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Order
	for _, o := range s.orders {
		if o.Symbol == symbol && o.Mode == mode {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetOrdersBySymbolStrategyAndSide narrows GetOrdersBySymbol to one
// strategy and one side.
func (s *Store) GetOrdersBySymbolStrategyAndSide(ctx context.Context, symbol, strategy string, mode types.Mode, side types.Side) ([]types.Order, error) {
	all, err := s.GetOrdersBySymbol(ctx, symbol, mode)
	if err != nil {
		return nil, err
	}
	var out []types.Order
	for _, o := range all {
		if o.Side == side && o.Strategy == strategy {
			out = append(out, o)
		}
	}
	return out, nil
}

// SaveDailyPnL appends or replaces the (date, strategy, mode) aggregate row.
func (s *Store) SaveDailyPnL(ctx context.Context, pnl *types.DailyPnL) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.dailyPnL {
		if existing.Date.Equal(pnl.Date) && existing.Strategy == pnl.Strategy && existing.Mode == pnl.Mode {
			s.dailyPnL[i] = *pnl
			return nil
		}
	}
	s.dailyPnL = append(s.dailyPnL, *pnl)
	return nil
}

// SaveTrade appends the derived reporting record for a closed position.
func (s *Store) SaveTrade(ctx context.Context, trade *types.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, *trade)
	return nil
}

// GetTradesByDateAndStrategy returns every trade exiting on the given
// calendar date (compared in date's own location) for one strategy and mode.
func (s *Store) GetTradesByDateAndStrategy(ctx context.Context, date time.Time, strategy string, mode types.Mode) ([]types.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := date.Location()
	year, month, day := date.Date()

	var out []types.Trade
	for _, t := range s.trades {
		if t.Strategy != strategy || t.Mode != mode {
			continue
		}
		ty, tm, td := t.ExitTime.In(loc).Date()
		if ty == year && tm == month && td == day {
			out = append(out, t)
		}
	}
	return out, nil
}

// Trades exposes the recorded trades for test assertions.
func (s *Store) Trades() []types.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// Position exposes a direct read for test assertions that don't want to go
// through GetOpenPositions (e.g. asserting a closed position's final state).
func (s *Store) Position(id string) (types.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	return p, ok
}

func applyPatch(p *types.Position, patch types.PositionPatch) {
	if patch.CurrentPrice != nil {
		p.CurrentPrice = *patch.CurrentPrice
	}
	if patch.Quantity != nil {
		p.Quantity = *patch.Quantity
	}
	if patch.UnrealizedPnL != nil {
		p.UnrealizedPnL = *patch.UnrealizedPnL
	}
	if patch.RealizedPnL != nil {
		p.RealizedPnL = *patch.RealizedPnL
	}
	if patch.PnLFraction != nil {
		p.PnLFraction = *patch.PnLFraction
	}
	if patch.IsOpen != nil {
		p.IsOpen = *patch.IsOpen
	}
	if patch.ExitTime != nil {
		p.ExitTime = *patch.ExitTime
	}
	if patch.ExitPrice != nil {
		p.ExitPrice = *patch.ExitPrice
	}
	if patch.ExitReason != nil {
		p.ExitReason = *patch.ExitReason
	}
	if patch.ExitCategory != nil {
		p.ExitCategory = *patch.ExitCategory
	}
	if patch.SellOrderID != nil {
		p.SellOrderID = *patch.SellOrderID
	}
}
