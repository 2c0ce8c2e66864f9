// Package rest implements store.Client over a PostgREST-style HTTP API:
// GET with ?column=eq.value filters, POST to insert, PATCH to update by id.
// This is the wire protocol confirmed for the brokerage's actual store
// (a Supabase/PostgREST backend) — see DESIGN.md.
package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"nifty-options-trader/internal/store"
	"nifty-options-trader/pkg/types"
)

// Client is a resty-based PostgREST client implementing store.Client.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// Config is the subset of store configuration the client needs.
type Config struct {
	BaseURL string
	APIKey  string
}

// New builds a Store REST client.
func New(cfg Config, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("apikey", cfg.APIKey).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Prefer", "return=representation")

	return &Client{http: httpClient, logger: logger.With("component", "store")}
}

// retrySchedule is the save_order/save_position retry schedule: 0.5s, 1.0s,
// 2.0s, tried only on a transient network/5xx failure.
var retrySchedule = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, store.ErrTransient) || attempt >= len(retrySchedule) {
			return lastErr
		}
		timer := time.NewTimer(retrySchedule[attempt])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func classify(statusCode int, networkErr error) error {
	if networkErr != nil {
		return store.ErrTransient
	}
	switch {
	case statusCode >= 500:
		return store.ErrTransient
	case statusCode >= 400:
		return store.ErrValidationRejected
	default:
		return nil
	}
}

// SaveOrder validates the order client-side, then inserts it.
func (c *Client) SaveOrder(ctx context.Context, order *types.Order) (string, error) {
	if err := store.ValidateOrder(ctx, order, c.openQuantity); err != nil {
		return "", err
	}

	type insertResult struct {
		ID string `json:"id"`
	}
	var results []insertResult
	err := c.withRetry(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(order).
			SetResult(&results).
			Post("/orders")
		return c.checkResponse(resp, err)
	})
	if err != nil {
		return "", fmt.Errorf("save order: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("save order: no row returned")
	}
	return results[0].ID, nil
}

func (c *Client) openQuantity(ctx context.Context, symbol string, mode types.Mode) (int64, error) {
	positions, err := c.GetOpenPositions(ctx, mode)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, p := range positions {
		if p.Symbol == symbol {
			total += p.Quantity
		}
	}
	return total, nil
}

// SavePosition inserts a new position, or updates by id if one is set.
func (c *Client) SavePosition(ctx context.Context, position *types.Position) (string, error) {
	if position.ID != "" {
		price := position.CurrentPrice
		return position.ID, c.UpdatePosition(ctx, position.ID, types.PositionPatch{CurrentPrice: &price})
	}
	if position.EntryTime.IsZero() || position.Quantity <= 0 || position.AveragePrice.IsZero() {
		return "", fmt.Errorf("%w: new open position missing required fields", store.ErrValidationRejected)
	}

	type insertResult struct {
		ID string `json:"id"`
	}
	var results []insertResult
	err := c.withRetry(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(position).
			SetResult(&results).
			Post("/positions")
		return c.checkResponse(resp, err)
	})
	if err != nil {
		return "", fmt.Errorf("save position: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("save position: no row returned")
	}
	return results[0].ID, nil
}

// UpdatePosition applies a partial patch by id. Only the non-nil fields of
// patch are sent, matching PostgREST's PATCH-is-partial semantics.
func (c *Client) UpdatePosition(ctx context.Context, id string, patch types.PositionPatch) error {
	body := patchBody(patch)
	return c.withRetry(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			SetQueryParam("id", "eq."+id).
			Patch("/positions")
		return c.checkResponse(resp, err)
	})
}

func patchBody(patch types.PositionPatch) map[string]any {
	body := map[string]any{}
	if patch.CurrentPrice != nil {
		body["current_price"] = patch.CurrentPrice.String()
	}
	if patch.Quantity != nil {
		body["quantity"] = *patch.Quantity
	}
	if patch.UnrealizedPnL != nil {
		body["unrealized_pnl"] = patch.UnrealizedPnL.String()
	}
	if patch.RealizedPnL != nil {
		body["realized_pnl"] = patch.RealizedPnL.String()
	}
	if patch.PnLFraction != nil {
		body["pnl_percent"] = patch.PnLFraction.String()
	}
	if patch.IsOpen != nil {
		body["is_open"] = *patch.IsOpen
	}
	if patch.ExitTime != nil {
		body["exit_time"] = patch.ExitTime.Format(time.RFC3339)
	}
	if patch.ExitPrice != nil {
		body["exit_price"] = patch.ExitPrice.String()
	}
	if patch.ExitReason != nil {
		body["exit_reason"] = *patch.ExitReason
	}
	if patch.ExitCategory != nil {
		body["exit_reason_category"] = *patch.ExitCategory
	}
	if patch.SellOrderID != nil {
		body["sell_order_id"] = *patch.SellOrderID
	}
	return body
}

// GetOpenPositions returns every open position for the given mode.
func (c *Client) GetOpenPositions(ctx context.Context, mode types.Mode) ([]types.Position, error) {
	var results []types.Position
	err := c.withRetry(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("trading_mode", "eq."+string(mode)).
			SetQueryParam("is_open", "eq.true").
			SetResult(&results).
			Get("/positions")
		return c.checkResponse(resp, err)
	})
	return results, err
}

// GetOrdersBySymbol returns every order for a symbol in the given mode.
func (c *Client) GetOrdersBySymbol(ctx context.Context, symbol string, mode types.Mode) ([]types.Order, error) {
	var results []types.Order
	err := c.withRetry(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("symbol", "eq."+symbol).
			SetQueryParam("trading_mode", "eq."+string(mode)).
			SetResult(&results).
			Get("/orders")
		return c.checkResponse(resp, err)
	})
	return results, err
}

// GetOrdersBySymbolStrategyAndSide narrows GetOrdersBySymbol to one
// strategy and one side.
func (c *Client) GetOrdersBySymbolStrategyAndSide(ctx context.Context, symbol, strategy string, mode types.Mode, side types.Side) ([]types.Order, error) {
	var results []types.Order
	err := c.withRetry(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("symbol", "eq."+symbol).
			SetQueryParam("strategy_name", "eq."+strategy).
			SetQueryParam("trading_mode", "eq."+string(mode)).
			SetQueryParam("order_type", "eq."+string(side)).
			SetResult(&results).
			Get("/orders")
		return c.checkResponse(resp, err)
	})
	return results, err
}

// SaveDailyPnL upserts the (date, strategy, mode) aggregate row.
func (c *Client) SaveDailyPnL(ctx context.Context, pnl *types.DailyPnL) error {
	return c.withRetry(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Prefer", "resolution=merge-duplicates").
			SetBody(pnl).
			Post("/daily_pnl")
		return c.checkResponse(resp, err)
	})
}

// SaveTrade appends the derived reporting record for a closed position.
func (c *Client) SaveTrade(ctx context.Context, trade *types.Trade) error {
	return c.withRetry(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(trade).
			Post("/trades")
		return c.checkResponse(resp, err)
	})
}

// GetTradesByDateAndStrategy returns every trade whose exit_time falls on
// date's calendar day (in date's own location), for one strategy and mode.
func (c *Client) GetTradesByDateAndStrategy(ctx context.Context, date time.Time, strategy string, mode types.Mode) ([]types.Trade, error) {
	loc := date.Location()
	year, month, day := date.Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)

	params := url.Values{}
	params.Add("strategy_name", "eq."+strategy)
	params.Add("trading_mode", "eq."+string(mode))
	params.Add("exit_time", "gte."+start.Format(time.RFC3339))
	params.Add("exit_time", "lt."+end.Format(time.RFC3339))

	var results []types.Trade
	err := c.withRetry(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParamsFromValues(params).
			SetResult(&results).
			Get("/trades")
		return c.checkResponse(resp, err)
	})
	return results, err
}

func (c *Client) checkResponse(resp *resty.Response, err error) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrTransient, err)
	}
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		return nil
	}
	if kind := classify(status, nil); kind != nil {
		return fmt.Errorf("status %d: %w", status, kind)
	}
	return fmt.Errorf("unexpected status %d", status)
}
