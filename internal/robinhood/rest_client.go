package robinhood

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"robinhood-tool-server/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.robinhood.com"
	// clientID is the public OAuth client id of the Robinhood web app.
	clientID = "c82SH0WZOsabOXGP2sxqcj34FxkvfnWRZBKlBjFS"

	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
	OrderSideBuy    = "buy"
	OrderSideSell   = "sell"

	maxRetries = 3
)

var (
	// ErrNotLoggedIn is returned by authenticated calls made without a session.
	ErrNotLoggedIn = errors.New("not logged in to Robinhood")
	// ErrNotFound is returned when the API answers 404 or an empty result set.
	ErrNotFound = errors.New("not found")
)

// ClientInterface defines the interface for the Robinhood REST API client.
type ClientInterface interface {
	Login(ctx context.Context, username, password, mfaCode string) (*TokenResponse, error)
	Logout(ctx context.Context) error
	IsLoggedIn() bool
	GetQuotes(ctx context.Context, symbols ...string) ([]Quote, error)
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
	GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error)
	GetInstrumentByURL(ctx context.Context, url string) (*Instrument, error)
	GetInstrumentBySymbol(ctx context.Context, symbol string) (*Instrument, error)
	GetAllStockOrders(ctx context.Context) ([]Order, error)
	GetAllOpenStockOrders(ctx context.Context) ([]Order, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetAccount(ctx context.Context) (*Account, error)
	GetPortfolio(ctx context.Context) (*Portfolio, error)
	GetDividends(ctx context.Context) ([]Dividend, error)
	GetOpenPositions(ctx context.Context) ([]Position, error)
	GetHistoricalPortfolio(ctx context.Context, span string) (*HistoricalPortfolio, error)
}

// RequestObserver is notified after every HTTP attempt.
type RequestObserver func(endpoint string, status int, elapsed time.Duration)

// RestClient is a client for the Robinhood REST API.
// It implements the ClientInterface.
type RestClient struct {
	client       *resty.Client
	logger       *zap.Logger
	limiter      *rate.Limiter
	retryBackoff time.Duration
	deviceToken  string
	observer     RequestObserver

	mu      sync.RWMutex
	token   string
	account *Account
}

// ensure RestClient implements the interface
var _ ClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Robinhood REST API client.
func NewRestClient(cfg *config.Robinhood, logger *zap.Logger) *RestClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:       client,
		logger:       logger.Named("robinhood"),
		limiter:      limiter,
		retryBackoff: time.Second,
		deviceToken:  uuid.NewString(),
	}
}

// SetObserver installs a callback used for request metrics.
// It may be called while requests are in flight.
func (c *RestClient) SetObserver(o RequestObserver) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

// IsLoggedIn reports whether a session token is held.
func (c *RestClient) IsLoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// authRequest returns a request carrying the session bearer token.
func (c *RestClient) authRequest(ctx context.Context) (*resty.Request, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return nil, ErrNotLoggedIn
	}
	return c.client.R().SetContext(ctx).SetAuthToken(token), nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", url))
		start := time.Now()
		resp, err = req.Execute(method, url)
		c.mu.RLock()
		observe := c.observer
		c.mu.RUnlock()
		if observe != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode()
			}
			observe(endpointLabel(url), status, time.Since(start))
		}

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err == nil && resp != nil {
			statusCode := resp.StatusCode()
			switch {
			case statusCode == http.StatusTooManyRequests:
				shouldRetry = true
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			case statusCode >= 500:
				shouldRetry = true
			}
		} else if ctx.Err() == nil { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			if err != nil {
				return nil, fmt.Errorf("request failed: %w", err)
			}
			return nil, statusError(resp)
		}

		if retryAfter == 0 {
			// Exponential backoff: 1x, 2x, 4x
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.retryBackoff
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.String("url", url),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err == nil && resp != nil {
		err = statusError(resp)
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

func statusError(resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, resp.Request.URL)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: session rejected (status %s)", ErrNotLoggedIn, resp.Status())
	}
	return fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
}

// endpointLabel reduces a URL to its first path segment, e.g. "/orders/".
func endpointLabel(url string) string {
	path := url
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
		if j := strings.Index(path, "/"); j >= 0 {
			path = path[j:]
		} else {
			path = "/"
		}
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "/"
	}
	return "/" + strings.SplitN(trimmed, "/", 2)[0] + "/"
}

// fetchAll follows the "next" links of a paginated endpoint.
func fetchAll[T any](ctx context.Context, c *RestClient, url string, newRequest func() (*resty.Request, error)) ([]T, error) {
	var all []T
	for url != "" {
		req, err := newRequest()
		if err != nil {
			return nil, err
		}
		var p page[T]
		req.SetResult(&p)

		if _, err := c.doRequest(ctx, http.MethodGet, url, req); err != nil {
			return nil, err
		}
		all = append(all, p.Results...)
		url = p.Next
	}
	return all, nil
}

// Login authenticates with username and password and stores the session token.
func (c *RestClient) Login(ctx context.Context, username, password, mfaCode string) (*TokenResponse, error) {
	form := map[string]string{
		"client_id":      clientID,
		"expires_in":     "86400",
		"grant_type":     "password",
		"scope":          "internal",
		"username":       username,
		"password":       password,
		"device_token":   c.deviceToken,
		"challenge_type": "sms",
	}
	if mfaCode != "" {
		form["mfa_code"] = mfaCode
	}

	req := c.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&TokenResponse{})

	resp, err := c.doRequest(ctx, http.MethodPost, "/oauth2/token/", req)
	if err != nil {
		c.logger.Error("Login failed", zap.Error(err))
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	token := resp.Result().(*TokenResponse)
	if token.AccessToken == "" {
		if token.MFARequired {
			return nil, errors.New("failed to login: mfa code required")
		}
		return nil, fmt.Errorf("failed to login: no access token in response: %s", token.Detail)
	}

	c.mu.Lock()
	c.token = token.AccessToken
	c.account = nil
	c.mu.Unlock()

	c.logger.Info("Logged in", zap.String("scope", token.Scope), zap.Int("expires_in", token.ExpiresIn))
	return token, nil
}

// Logout revokes the session token. The local session is cleared even if revocation fails.
func (c *RestClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.token = ""
	c.account = nil
	c.mu.Unlock()

	if token == "" {
		return ErrNotLoggedIn
	}

	req := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"client_id": clientID, "token": token})

	if _, err := c.doRequest(ctx, http.MethodPost, "/oauth2/revoke_token/", req); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	c.logger.Info("Logged out")
	return nil
}

// GetQuotes fetches the latest quotes for one or more symbols.
// Unknown symbols are omitted from the result.
func (c *RestClient) GetQuotes(ctx context.Context, symbols ...string) ([]Quote, error) {
	req, err := c.authRequest(ctx)
	if err != nil {
		return nil, err
	}
	var result page[*Quote]
	req.SetQueryParam("symbols", strings.ToUpper(strings.Join(symbols, ","))).SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodGet, "/quotes/", req); err != nil {
		return nil, fmt.Errorf("failed to get quotes: %w", err)
	}

	quotes := make([]Quote, 0, len(result.Results))
	for _, q := range result.Results {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}
	return quotes, nil
}

func (c *RestClient) getQuote(ctx context.Context, symbol string) (*Quote, error) {
	quotes, err := c.GetQuotes(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: no quote for %s", ErrNotFound, symbol)
	}
	return &quotes[0], nil
}

// GetLatestPrice returns the last trade price of symbol.
func (c *RestClient) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	quote, err := c.getQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(quote.LastTradePrice, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid last trade price %q for %s: %w", quote.LastTradePrice, symbol, err)
	}
	return price, nil
}

// GetFundamentals fetches fundamental data for symbol.
func (c *RestClient) GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	req, err := c.authRequest(ctx)
	if err != nil {
		return nil, err
	}
	var result page[*Fundamentals]
	req.SetQueryParam("symbols", strings.ToUpper(symbol)).SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodGet, "/fundamentals/", req); err != nil {
		return nil, fmt.Errorf("failed to get fundamentals: %w", err)
	}
	if len(result.Results) == 0 || result.Results[0] == nil {
		return nil, fmt.Errorf("%w: no fundamentals for %s", ErrNotFound, symbol)
	}
	return result.Results[0], nil
}

// GetInstrumentByURL fetches the instrument behind an instrument URL.
// This endpoint does not require a session.
func (c *RestClient) GetInstrumentByURL(ctx context.Context, url string) (*Instrument, error) {
	req := c.client.R().SetContext(ctx).SetResult(&Instrument{})

	resp, err := c.doRequest(ctx, http.MethodGet, url, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}
	return resp.Result().(*Instrument), nil
}

// GetInstrumentBySymbol looks up the instrument for a ticker symbol.
func (c *RestClient) GetInstrumentBySymbol(ctx context.Context, symbol string) (*Instrument, error) {
	var result page[Instrument]
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", strings.ToUpper(symbol)).
		SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodGet, "/instruments/", req); err != nil {
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}
	if len(result.Results) == 0 {
		return nil, fmt.Errorf("%w: no instrument for %s", ErrNotFound, symbol)
	}
	return &result.Results[0], nil
}

// GetAllStockOrders fetches the full stock order history, newest first.
func (c *RestClient) GetAllStockOrders(ctx context.Context) ([]Order, error) {
	orders, err := fetchAll[Order](ctx, c, "/orders/", func() (*resty.Request, error) {
		return c.authRequest(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}
	c.logger.Debug("Fetched stock orders", zap.Int("count", len(orders)))
	return orders, nil
}

// GetAllOpenStockOrders fetches the orders that are not yet final.
func (c *RestClient) GetAllOpenStockOrders(ctx context.Context) ([]Order, error) {
	orders, err := c.GetAllStockOrders(ctx)
	if err != nil {
		return nil, err
	}
	open := make([]Order, 0)
	for _, o := range orders {
		if o.IsOpen() {
			open = append(open, o)
		}
	}
	return open, nil
}

// GetAccount fetches the primary brokerage account. The result is cached per session.
func (c *RestClient) GetAccount(ctx context.Context) (*Account, error) {
	c.mu.RLock()
	cached := c.account
	c.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	req, err := c.authRequest(ctx)
	if err != nil {
		return nil, err
	}
	var result page[Account]
	req.SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodGet, "/accounts/", req); err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if len(result.Results) == 0 {
		return nil, fmt.Errorf("%w: no brokerage account", ErrNotFound)
	}

	account := &result.Results[0]
	c.mu.Lock()
	c.account = account
	c.mu.Unlock()
	return account, nil
}

// PlaceOrder submits a new stock order.
// Market orders are sent with the current ask (buy) or bid (sell) as a price collar.
func (c *RestClient) PlaceOrder(ctx context.Context, r OrderRequest) (*Order, error) {
	if err := validateOrder(r); err != nil {
		return nil, err
	}

	account, err := c.GetAccount(ctx)
	if err != nil {
		return nil, err
	}
	instrument, err := c.GetInstrumentBySymbol(ctx, r.Symbol)
	if err != nil {
		return nil, err
	}

	price := r.LimitPrice
	if r.Type == OrderTypeMarket {
		quote, err := c.getQuote(ctx, r.Symbol)
		if err != nil {
			return nil, err
		}
		collar := quote.AskPrice
		if r.Side == OrderSideSell {
			collar = quote.BidPrice
		}
		price, err = strconv.ParseFloat(collar, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid quote price %q for %s: %w", collar, r.Symbol, err)
		}
	}

	timeInForce := r.TimeInForce
	if timeInForce == "" {
		timeInForce = "gtc"
	}

	body := map[string]any{
		"account":        account.URL,
		"instrument":     instrument.URL,
		"symbol":         strings.ToUpper(r.Symbol),
		"price":          fmt.Sprintf("%.2f", price),
		"quantity":       strconv.FormatFloat(r.Quantity, 'f', -1, 64),
		"ref_id":         uuid.NewString(),
		"type":           r.Type,
		"time_in_force":  timeInForce,
		"trigger":        "immediate",
		"side":           r.Side,
		"extended_hours": r.ExtendedHours,
	}

	req, err := c.authRequest(ctx)
	if err != nil {
		return nil, err
	}
	req.SetBody(body).SetResult(&Order{})

	resp, err := c.doRequest(ctx, http.MethodPost, "/orders/", req)
	if err != nil {
		c.logger.Error("Failed to place order",
			zap.Error(err),
			zap.String("symbol", r.Symbol),
			zap.String("side", r.Side),
		)
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	order := resp.Result().(*Order)
	c.logger.Info("Placed order",
		zap.String("order_id", order.ID),
		zap.String("symbol", r.Symbol),
		zap.String("side", r.Side),
		zap.String("type", r.Type),
		zap.Float64("quantity", r.Quantity),
	)
	return order, nil
}

func validateOrder(r OrderRequest) error {
	if strings.TrimSpace(r.Symbol) == "" {
		return errors.New("symbol is required")
	}
	if r.Side != OrderSideBuy && r.Side != OrderSideSell {
		return fmt.Errorf("invalid order side %q", r.Side)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %v", r.Quantity)
	}
	switch r.Type {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if r.LimitPrice <= 0 {
			return fmt.Errorf("limit price must be positive, got %v", r.LimitPrice)
		}
	default:
		return fmt.Errorf("invalid order type %q", r.Type)
	}
	return nil
}

// CancelOrder cancels an open order.
func (c *RestClient) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return errors.New("order id is required")
	}
	req, err := c.authRequest(ctx)
	if err != nil {
		return err
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/orders/"+orderID+"/cancel/", req); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	c.logger.Info("Cancelled order", zap.String("order_id", orderID))
	return nil
}

// GetPortfolio fetches the portfolio summary of the primary account.
func (c *RestClient) GetPortfolio(ctx context.Context) (*Portfolio, error) {
	req, err := c.authRequest(ctx)
	if err != nil {
		return nil, err
	}
	var result page[Portfolio]
	req.SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodGet, "/portfolios/", req); err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	if len(result.Results) == 0 {
		return nil, fmt.Errorf("%w: no portfolio", ErrNotFound)
	}
	return &result.Results[0], nil
}

// GetDividends fetches every dividend record of the account.
func (c *RestClient) GetDividends(ctx context.Context) ([]Dividend, error) {
	dividends, err := fetchAll[Dividend](ctx, c, "/dividends/", func() (*resty.Request, error) {
		return c.authRequest(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get dividends: %w", err)
	}
	return dividends, nil
}

// GetOpenPositions fetches the positions with a non-zero quantity.
func (c *RestClient) GetOpenPositions(ctx context.Context) ([]Position, error) {
	positions, err := fetchAll[Position](ctx, c, "/positions/", func() (*resty.Request, error) {
		req, err := c.authRequest(ctx)
		if err != nil {
			return nil, err
		}
		return req.SetQueryParam("nonzero", "true"), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	return positions, nil
}

// historicalIntervals maps a history span to the sampling interval the API accepts for it.
var historicalIntervals = map[string]string{
	"day":    "5minute",
	"week":   "10minute",
	"month":  "hour",
	"3month": "hour",
	"year":   "day",
	"5year":  "week",
	"all":    "week",
}

// ValidSpan reports whether span is accepted by GetHistoricalPortfolio.
func ValidSpan(span string) bool {
	_, ok := historicalIntervals[span]
	return ok
}

// GetHistoricalPortfolio fetches the equity history of the account over span.
func (c *RestClient) GetHistoricalPortfolio(ctx context.Context, span string) (*HistoricalPortfolio, error) {
	interval, ok := historicalIntervals[span]
	if !ok {
		return nil, fmt.Errorf("invalid span %q", span)
	}
	account, err := c.GetAccount(ctx)
	if err != nil {
		return nil, err
	}
	req, err := c.authRequest(ctx)
	if err != nil {
		return nil, err
	}
	req.SetQueryParams(map[string]string{
		"span":     span,
		"interval": interval,
		"bounds":   "regular",
	}).SetResult(&HistoricalPortfolio{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/portfolios/historicals/"+account.AccountNumber+"/", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get historical portfolio: %w", err)
	}
	return resp.Result().(*HistoricalPortfolio), nil
}
