package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/market"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/ratelimit"
)

// State is the client's connection state.
type State string

const (
	StateDisconnected   State = "DISCONNECTED"
	StateAuthenticating State = "AUTHENTICATING"
	StateConnected      State = "CONNECTED"
)

// Credentials holds what the broker needs for a session exchange.
type Credentials struct {
	APIKey   string
	Username string
	Password string
}

// Client is the authenticated REST client. All requests pass the rate limiter
// (global bucket plus the request's category), carry the session tokens, and
// run through a bounded retry machine: 429 honors Retry-After, 401 triggers a
// single session refresh, 5xx retries up to three times with exponential
// backoff. Anything else propagates immediately.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	creds   Credentials
	limiter *ratelimit.Limiter
	sleep   sleeper

	mu            sync.RWMutex
	state         State
	cst           string
	securityToken string
}

// NewClient builds a broker client. limiter may not be nil.
func NewClient(baseURL string, creds Credentials, limiter *ratelimit.Limiter) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		creds:      creds,
		limiter:    limiter,
		sleep:      time.Sleep,
		state:      StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SecurityToken returns the current session token for out-of-band use
// (the websocket channel authenticates with it).
func (c *Client) SecurityToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.securityToken
}

// Authenticate performs the credential exchange and stores the session tokens.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateAuthenticating
	c.mu.Unlock()

	if err := c.createSession(ctx); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()
	return nil
}

func (c *Client) createSession(ctx context.Context) error {
	if err := c.limiter.Wait(ctx, ratelimit.CategoryAccount); err != nil {
		return err
	}

	body, _ := json.Marshal(map[string]string{
		"identifier": c.creds.Username,
		"password":   c.creds.Password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/session", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CAP-API-KEY", c.creds.APIKey)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("broker session: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: session status %d", ErrAuthFailed, res.StatusCode)
	}

	cst := res.Header.Get("CST")
	token := res.Header.Get("X-SECURITY-TOKEN")
	if cst == "" || token == "" {
		return fmt.Errorf("%w: session response missing tokens", ErrAuthFailed)
	}

	c.mu.Lock()
	c.cst = cst
	c.securityToken = token
	c.mu.Unlock()
	return nil
}

// refreshSession re-runs the credential exchange. Serialized so concurrent
// 401s trigger a single refresh.
func (c *Client) refreshSession(ctx context.Context) error {
	if err := c.createSession(ctx); err != nil {
		return fmt.Errorf("%w: refresh: %v", ErrAuthFailed, err)
	}
	return nil
}

// do executes one logical request through the limiter and the retry machine.
// The body is buffered so replays send the same bytes unmodified.
func (c *Client) do(ctx context.Context, category ratelimit.Category, method, path string, body []byte, out any) error {
	if c.State() == StateDisconnected {
		return ErrNotConnected
	}

	var rs retryState
	for {
		if err := c.limiter.Wait(ctx, category); err != nil {
			return err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-CAP-API-KEY", c.creds.APIKey)
		c.mu.RLock()
		req.Header.Set("CST", c.cst)
		req.Header.Set("X-SECURITY-TOKEN", c.securityToken)
		c.mu.RUnlock()

		res, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("broker %s %s: %w", method, path, err)
		}

		action, delay := rs.next(res.StatusCode, res.Header.Get("Retry-After"))
		switch action {
		case actionDone:
			defer res.Body.Close()
			if out == nil {
				return nil
			}
			return json.NewDecoder(res.Body).Decode(out)

		case actionSleepReplay:
			res.Body.Close()
			log.Printf("broker: rate limited on %s, replaying in %s", path, delay)
			c.sleep(delay)

		case actionRefreshReplay:
			res.Body.Close()
			if err := c.refreshSession(ctx); err != nil {
				return err
			}

		case actionBackoffReplay:
			res.Body.Close()
			log.Printf("broker: %d on %s, retrying in %s", res.StatusCode, path, delay)
			c.sleep(delay)

		case actionFail:
			raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
			res.Body.Close()
			return c.failure(res.StatusCode, string(raw))
		}
	}
}

func (c *Client) failure(status int, body string) error {
	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: refresh exhausted", ErrAuthFailed)
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrServerUnavailable, status)
	}
	return &HTTPError{Status: status, Body: body}
}

// GetBalance fetches the account balance.
func (c *Client) GetBalance(ctx context.Context) (*Balance, error) {
	var resp struct {
		Balance Balance `json:"balance"`
	}
	if err := c.do(ctx, ratelimit.CategoryAccount, http.MethodGet, "/api/v1/accounts/balance", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Balance, nil
}

// GetPositions fetches the broker's authoritative open positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var resp struct {
		Positions []Position `json:"positions"`
	}
	if err := c.do(ctx, ratelimit.CategoryAccount, http.MethodGet, "/api/v1/positions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

// GetOrders fetches working orders.
func (c *Client) GetOrders(ctx context.Context) ([]Order, error) {
	var resp struct {
		Orders []Order `json:"workingOrders"`
	}
	if err := c.do(ctx, ratelimit.CategoryAccount, http.MethodGet, "/api/v1/orders", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetMarketInfo fetches instrument details for an epic.
func (c *Client) GetMarketInfo(ctx context.Context, epic string) (*MarketInfo, error) {
	var info MarketInfo
	path := "/api/v1/markets/" + url.PathEscape(epic)
	if err := c.do(ctx, ratelimit.CategoryMarketData, http.MethodGet, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetCandles fetches historical candles for an epic and resolution.
func (c *Client) GetCandles(ctx context.Context, epic, resolution string, from, to time.Time) ([]market.Candle, error) {
	params := url.Values{}
	params.Set("resolution", resolution)
	params.Set("from", strconv.FormatInt(from.UnixMilli(), 10))
	params.Set("to", strconv.FormatInt(to.UnixMilli(), 10))
	path := "/api/v1/prices/" + url.PathEscape(epic) + "?" + params.Encode()

	var resp struct {
		Prices []struct {
			Timestamp int64   `json:"timestamp"`
			Open      float64 `json:"open"`
			High      float64 `json:"high"`
			Low       float64 `json:"low"`
			Close     float64 `json:"close"`
			Volume    float64 `json:"volume"`
		} `json:"prices"`
	}
	if err := c.do(ctx, ratelimit.CategoryMarketData, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		candles = append(candles, market.Candle{
			Timestamp: time.UnixMilli(p.Timestamp).UTC(),
			Open:      p.Open,
			High:      p.High,
			Low:       p.Low,
			Close:     p.Close,
			Volume:    p.Volume,
		})
	}
	return candles, nil
}

// PlaceOrder submits a new order. Rejections are surfaced as ErrOrderRejected
// and never retried here.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderConfirmation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var conf OrderConfirmation
	if err := c.do(ctx, ratelimit.CategoryTrading, http.MethodPost, "/api/v1/positions", body, &conf); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.Status >= 400 && httpErr.Status < 500 {
			return nil, fmt.Errorf("%w: %s", ErrOrderRejected, httpErr.Body)
		}
		return nil, err
	}
	if conf.Status == StatusRejected {
		return nil, fmt.Errorf("%w: %s", ErrOrderRejected, conf.Reason)
	}
	return &conf, nil
}

// CancelOrder cancels a working order by id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := "/api/v1/orders/" + url.PathEscape(orderID)
	err := c.do(ctx, ratelimit.CategoryTrading, http.MethodDelete, path, nil, nil)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.Status >= 400 && httpErr.Status < 500 {
			return fmt.Errorf("%w: cancel %s: %s", ErrOrderRejected, orderID, httpErr.Body)
		}
	}
	return err
}
