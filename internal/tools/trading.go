package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"robinhood-tool-server/internal/robinhood"

	"go.uber.org/zap"
)

var errInvalidArgument = errors.New("invalid argument")

type tickerArgs struct {
	Ticker string `json:"ticker"`
}

type orderArgs struct {
	Ticker        string  `json:"ticker"`
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price"`
	TimeInForce   string  `json:"time_in_force"`
	ExtendedHours bool    `json:"extended_hours"`
}

type loginArgs struct {
	Username string `json:"username"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code"`
}

type cancelArgs struct {
	OrderID string `json:"order_id"`
}

type dateArgs struct {
	Date string `json:"date"`
}

func normalizeTicker(ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return "", fmt.Errorf("%w: ticker is required", errInvalidArgument)
	}
	return ticker, nil
}

func validateDate(date string) error {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", errInvalidArgument, date)
	}
	return nil
}

// num parses a brokerage decimal string, treating empty or malformed values as 0.
func num(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// nullableNum is like num but yields nil for an absent value.
func nullableNum(s string) any {
	if s == "" {
		return nil
	}
	return num(s)
}

func (tb *Toolbox) login(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args loginArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Username == "" && tb.cfg != nil {
		args.Username = tb.cfg.Robinhood.Username
		args.Password = tb.cfg.Robinhood.Password
		if args.MFACode == "" {
			args.MFACode = tb.cfg.Robinhood.MFACode
		}
	}
	if args.Username == "" || args.Password == "" {
		return nil, fmt.Errorf("login failed: %w: username and password are required", errInvalidArgument)
	}

	token, err := tb.client.Login(ctx, args.Username, args.Password, args.MFACode)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	tb.logger.Info("Logged in to Robinhood", zap.String("scope", token.Scope))

	expiresIn := token.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 86400
	}
	scope := token.Scope
	if scope == "" {
		scope = "internal"
	}
	return Result{
		"message":    "Successfully logged in to Robinhood",
		"expires_in": expiresIn,
		"scope":      scope,
	}, nil
}

func (tb *Toolbox) logout(ctx context.Context, _ json.RawMessage) (Result, error) {
	if err := tb.client.Logout(ctx); err != nil {
		return nil, fmt.Errorf("logout failed: %w", err)
	}
	return Result{"message": "Successfully logged out from Robinhood"}, nil
}

func (tb *Toolbox) getStockQuote(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args tickerArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	ticker, err := normalizeTicker(args.Ticker)
	if err != nil {
		return nil, err
	}

	quotes, err := tb.client.GetQuotes(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", ticker, err)
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("no quote data found for %s", ticker)
	}
	q := quotes[0]
	return Result{
		"ticker":           ticker,
		"ask_price":        num(q.AskPrice),
		"bid_price":        num(q.BidPrice),
		"last_trade_price": num(q.LastTradePrice),
		"previous_close":   num(q.PreviousClose),
		"updated_at":       q.UpdatedAt,
	}, nil
}

func (tb *Toolbox) getLatestPrice(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args tickerArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	ticker, err := normalizeTicker(args.Ticker)
	if err != nil {
		return nil, err
	}

	price, err := tb.client.GetLatestPrice(ctx, ticker)
	if err != nil {
		if errors.Is(err, robinhood.ErrNotFound) {
			return nil, fmt.Errorf("no price data found for %s", ticker)
		}
		return nil, fmt.Errorf("failed to get price for %s: %w", ticker, err)
	}
	return Result{"ticker": ticker, "price": price}, nil
}

func (args *orderArgs) validate(limit bool) error {
	ticker, err := normalizeTicker(args.Ticker)
	if err != nil {
		return err
	}
	args.Ticker = ticker
	if args.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", errInvalidArgument)
	}
	if limit && args.Price <= 0 {
		return fmt.Errorf("%w: limit price must be positive", errInvalidArgument)
	}
	return nil
}

func (tb *Toolbox) marketOrder(side string) Handler {
	return func(ctx context.Context, raw json.RawMessage) (Result, error) {
		var args orderArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		if err := args.validate(false); err != nil {
			return nil, err
		}

		order, err := tb.client.PlaceOrder(ctx, robinhood.OrderRequest{
			Symbol:        args.Ticker,
			Side:          side,
			Type:          robinhood.OrderTypeMarket,
			Quantity:      args.Quantity,
			TimeInForce:   args.TimeInForce,
			ExtendedHours: args.ExtendedHours,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to place %s order: %w", side, err)
		}
		tb.logger.Info("Placed market order",
			zap.String("side", side), zap.String("ticker", args.Ticker),
			zap.Float64("quantity", args.Quantity), zap.String("order_id", order.ID))

		return Result{
			"order_id":   order.ID,
			"state":      order.State,
			"ticker":     args.Ticker,
			"quantity":   args.Quantity,
			"type":       robinhood.OrderTypeMarket,
			"side":       side,
			"created_at": order.CreatedAt,
		}, nil
	}
}

func (tb *Toolbox) limitOrder(side string) Handler {
	return func(ctx context.Context, raw json.RawMessage) (Result, error) {
		var args orderArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		if err := args.validate(true); err != nil {
			return nil, err
		}

		order, err := tb.client.PlaceOrder(ctx, robinhood.OrderRequest{
			Symbol:        args.Ticker,
			Side:          side,
			Type:          robinhood.OrderTypeLimit,
			Quantity:      args.Quantity,
			LimitPrice:    args.Price,
			TimeInForce:   args.TimeInForce,
			ExtendedHours: args.ExtendedHours,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to place %s limit order: %w", side, err)
		}
		tb.logger.Info("Placed limit order",
			zap.String("side", side), zap.String("ticker", args.Ticker),
			zap.Float64("quantity", args.Quantity), zap.Float64("limit_price", args.Price),
			zap.String("order_id", order.ID))

		return Result{
			"order_id":    order.ID,
			"state":       order.State,
			"ticker":      args.Ticker,
			"quantity":    args.Quantity,
			"limit_price": args.Price,
			"type":        robinhood.OrderTypeLimit,
			"side":        side,
			"created_at":  order.CreatedAt,
		}, nil
	}
}

func (tb *Toolbox) cancelOrder(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args cancelArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.OrderID) == "" {
		return nil, fmt.Errorf("%w: order_id is required", errInvalidArgument)
	}

	if err := tb.client.CancelOrder(ctx, args.OrderID); err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	return Result{"order_id": args.OrderID, "message": "Order cancelled successfully"}, nil
}
