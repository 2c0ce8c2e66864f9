// Package broker implements the single point of contact with the
// brokerage: an OAuth-session REST client gated by a minimum-interval rate
// limiter and wrapped in retry-with-exponential-backoff on transient
// failures. The brokerage itself is an external collaborator reached over
// HTTP — only the client side of that contract is implemented here, not
// brokerage internals.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"nifty-options-trader/pkg/types"
)

// Client is the brokerage REST client. One Client is constructed per
// process and passed by reference; the rate gate and auth state it owns are
// instance-scoped, not module-level globals.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rate   *RateGate
	retry  RetryConfig
	logger *slog.Logger
}

// Config is the subset of broker configuration the client needs.
type Config struct {
	BaseURL     string
	APIKey      string
	APISecret   string
	RedirectURL string
	TokenFile   string
}

// NewClient builds a rate-limited, retrying REST client for the brokerage.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   NewAuth(cfg.APIKey, cfg.APISecret, cfg.RedirectURL, cfg.TokenFile),
		rate:   NewRateGate(200 * time.Millisecond),
		retry:  DefaultRetry,
		logger: logger.With("component", "broker"),
	}
}

// LoginURL returns the OAuth authorization URL.
func (c *Client) LoginURL() string {
	return c.auth.LoginURL()
}

// IsAuthenticated reports whether an access token is currently loaded.
func (c *Client) IsAuthenticated() bool {
	return c.auth.IsAuthenticated()
}

type sessionResponse struct {
	AccessToken string `json:"access_token"`
}

// CompleteSession exchanges a request token for an access token and
// persists it, so subsequent restarts skip the OAuth dance.
func (c *Client) CompleteSession(ctx context.Context, requestToken string) (string, error) {
	var result sessionResponse
	err := c.do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]string{
				"api_key":       c.auth.apiKey,
				"request_token": requestToken,
				"api_secret":    c.auth.apiSecret,
			}).
			SetResult(&result).
			Post("/session/token")
		return c.checkResponse(resp, err, "complete session")
	})
	if err != nil {
		return "", err
	}
	if err := c.auth.SetAccessToken(result.AccessToken); err != nil {
		return "", fmt.Errorf("persist access token: %w", err)
	}
	return result.AccessToken, nil
}

// LoadInstruments downloads the instrument master for the Nifty options
// segment. Refreshed once at startup.
func (c *Client) LoadInstruments(ctx context.Context) ([]types.Instrument, error) {
	var result []types.Instrument
	err := c.do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(c.auth.AccessToken()).
			SetResult(&result).
			Get("/instruments?segment=NFO-OPT&name=NIFTY")
		return c.checkResponse(resp, err, "load instruments")
	})
	return result, err
}

// LTP returns last-traded price for each requested symbol. On failure
// returns an empty map, never stale data.
func (c *Client) LTP(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	var result map[string]decimal.Decimal
	err := c.do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(c.auth.AccessToken()).
			SetQueryParam("i", joinSymbols(symbols)).
			SetResult(&result).
			Get("/quote/ltp")
		return c.checkResponse(resp, err, "ltp")
	})
	if err != nil {
		return map[string]decimal.Decimal{}, err
	}
	return result, nil
}

// QuoteDetail is one symbol's full quote.
type QuoteDetail struct {
	Price  decimal.Decimal `json:"price"`
	OI     int64           `json:"oi"`
	Volume int64           `json:"volume"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
}

// Quote returns full depth/OI/volume quotes for each requested symbol.
func (c *Client) Quote(ctx context.Context, symbols []string) (map[string]QuoteDetail, error) {
	var result map[string]QuoteDetail
	err := c.do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(c.auth.AccessToken()).
			SetQueryParam("i", joinSymbols(symbols)).
			SetResult(&result).
			Get("/quote")
		return c.checkResponse(resp, err, "quote")
	})
	if err != nil {
		return map[string]QuoteDetail{}, err
	}
	return result, nil
}

// Historical returns OHLCV candles for the given instrument token and
// interval between from and to. The caller (marketdata.Service) is
// responsible for excluding the final, still-forming candle.
func (c *Client) Historical(ctx context.Context, token string, from, to time.Time, interval string) ([]types.Candle, error) {
	var result []types.Candle
	err := c.do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(c.auth.AccessToken()).
			SetQueryParams(map[string]string{
				"from":     from.Format(time.RFC3339),
				"to":       to.Format(time.RFC3339),
				"interval": interval,
			}).
			SetResult(&result).
			Get(fmt.Sprintf("/instruments/historical/%s", token))
		return c.checkResponse(resp, err, "historical")
	})
	return result, err
}

type placeOrderResponse struct {
	OrderID string `json:"order_id"`
}

// PlaceOrder submits a live order to the brokerage. Used only in LIVE mode;
// PAPER mode never calls this.
func (c *Client) PlaceOrder(ctx context.Context, symbol string, side types.Side, qty int64, orderType, product string, price *decimal.Decimal) (string, error) {
	body := map[string]any{
		"tradingsymbol": symbol,
		"transaction_type": side,
		"quantity":          qty,
		"order_type":        orderType,
		"product":           product,
	}
	if price != nil {
		body["price"] = price.String()
	}

	var result placeOrderResponse
	err := c.do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(c.auth.AccessToken()).
			SetBody(body).
			SetResult(&result).
			Post("/orders/regular")
		return c.checkResponse(resp, err, "place order")
	})
	return result.OrderID, err
}

// Positions returns the broker's current open positions (LIVE mode
// reconciliation only; PAPER mode positions live in the executor).
func (c *Client) Positions(ctx context.Context) ([]types.Position, error) {
	var result []types.Position
	err := c.do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(c.auth.AccessToken()).
			SetResult(&result).
			Get("/portfolio/positions")
		return c.checkResponse(resp, err, "positions")
	})
	return result, err
}

// Holdings returns long-term broker holdings. Not consulted by the core
// trading loop; exposed for completeness of the adapter contract.
func (c *Client) Holdings(ctx context.Context) ([]types.Instrument, error) {
	var result []types.Instrument
	err := c.do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(c.auth.AccessToken()).
			SetResult(&result).
			Get("/portfolio/holdings")
		return c.checkResponse(resp, err, "holdings")
	})
	return result, err
}

type marginsResponse struct {
	AvailableCash decimal.Decimal `json:"available_cash"`
}

// Margins returns the broker's available cash balance.
func (c *Client) Margins(ctx context.Context) (decimal.Decimal, error) {
	var result marginsResponse
	err := c.do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(c.auth.AccessToken()).
			SetResult(&result).
			Get("/user/margins")
		return c.checkResponse(resp, err, "margins")
	})
	return result.AvailableCash, err
}

// do gates the call on the rate limiter and retries it on transient failure.
func (c *Client) do(ctx context.Context, fn func() error) error {
	if err := c.rate.Wait(ctx); err != nil {
		return err
	}
	return withRetry(ctx, c.retry, fn)
}

// checkResponse classifies a resty response/error pair into the
// transient/terminal taxonomy, wrapping with the call's operation name.
func (c *Client) checkResponse(resp *resty.Response, err error, op string) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrTransient)
	}
	if status == http.StatusOK || status == http.StatusCreated {
		return nil
	}
	if kind := Classify(status, nil); kind != nil {
		c.logger.Warn("broker call failed", "op", op, "status", status, "kind", kind)
		return fmt.Errorf("%s: status %d: %w", op, status, kind)
	}
	return fmt.Errorf("%s: unexpected status %d", op, status)
}

func joinSymbols(symbols []string) string {
	out := ""
	for i, s := range symbols {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
