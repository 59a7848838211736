package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"robinhood-tool-server/internal/config"
	"robinhood-tool-server/internal/metrics"
	"robinhood-tool-server/internal/profit"
	"robinhood-tool-server/internal/robinhood"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrUnknownTool is returned when a tool name is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Result is the transport-neutral outcome of a tool or resource call.
// It always carries a "status" key.
type Result map[string]any

func errorResult(message string) Result {
	return Result{"status": StatusError, "message": message}
}

// Handler executes one tool with JSON-encoded arguments.
type Handler func(ctx context.Context, args json.RawMessage) (Result, error)

// Tool is a named operation exposed to the agent.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	handler     Handler
}

// Toolbox owns the brokerage session and every tool built on it.
type Toolbox struct {
	logger   *zap.Logger
	cfg      *config.Config
	client   robinhood.ClientInterface
	resolver *TickerResolver
	analyzer *profit.Analyzer
	reports  *ReportStore
	metrics  *metrics.Metrics

	tools []Tool
	index map[string]int
}

// NewToolbox wires the tools to a brokerage client. db and m may be nil,
// in which case tickers are only cached in memory, reports are not stored
// and no metrics are recorded.
func NewToolbox(logger *zap.Logger, cfg *config.Config, client robinhood.ClientInterface, db *gorm.DB, m *metrics.Metrics) *Toolbox {
	logger = logger.Named("tools")
	resolver := NewTickerResolver(client, db, logger)

	tb := &Toolbox{
		logger:   logger,
		cfg:      cfg,
		client:   client,
		resolver: resolver,
		analyzer: profit.NewAnalyzer(NewBrokerSource(client, resolver), logger),
		metrics:  m,
		index:    make(map[string]int),
	}
	if db != nil {
		tb.reports = NewReportStore(db)
	}
	tb.register()
	return tb
}

// Reports returns the stored analysis history, or nil without a database.
func (tb *Toolbox) Reports() *ReportStore {
	return tb.reports
}

func (tb *Toolbox) add(name, description string, h Handler) {
	tb.index[name] = len(tb.tools)
	tb.tools = append(tb.tools, Tool{Name: name, Description: description, handler: h})
}

func (tb *Toolbox) register() {
	tb.add("login", "Log in to Robinhood. Falls back to configured credentials when none are given.", tb.login)
	tb.add("logout", "Log out from Robinhood and invalidate the current session.", tb.logout)
	tb.add("get_stock_quote", "Get the latest quote for a stock: bid, ask, last trade and previous close.", tb.getStockQuote)
	tb.add("get_latest_price", "Get the latest trade price for a stock.", tb.getLatestPrice)
	tb.add("buy_stock_market_order", "Buy a quantity of a stock at the market price.", tb.marketOrder(robinhood.OrderSideBuy))
	tb.add("sell_stock_market_order", "Sell a quantity of a stock at the market price.", tb.marketOrder(robinhood.OrderSideSell))
	tb.add("buy_stock_limit_order", "Buy a quantity of a stock at or below a limit price.", tb.limitOrder(robinhood.OrderSideBuy))
	tb.add("sell_stock_limit_order", "Sell a quantity of a stock at or above a limit price.", tb.limitOrder(robinhood.OrderSideSell))
	tb.add("cancel_order", "Cancel an open order by order id.", tb.cancelOrder)
	tb.add("get_portfolio", "Get equity, cash balance and dividend totals of the account.", tb.getPortfolio)
	tb.add("get_positions", "Get the stocks currently held, with quantity and cost basis.", tb.getPositions)
	tb.add("get_open_orders", "Get all orders that are not yet filled or cancelled.", tb.getOpenOrders)
	tb.add("get_orders_by_date", "Get all orders created on a date (YYYY-MM-DD, UTC).", tb.getOrdersByDate)
	tb.add("analyze_trading_profit", "Calculate realized day-trading profit for a date (YYYY-MM-DD) using closest-price matching of buys and sells.", tb.analyzeTradingProfit)
}

// Tools lists the registered tools in registration order.
func (tb *Toolbox) Tools() []Tool {
	out := make([]Tool, len(tb.tools))
	copy(out, tb.tools)
	return out
}

// Call runs the named tool. Failures are reported inside the Result;
// only an unknown tool name yields an error.
func (tb *Toolbox) Call(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	i, ok := tb.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tb.run(ctx, name, func(ctx context.Context) (Result, error) {
		return tb.tools[i].handler(ctx, args)
	}), nil
}

// run is the failure boundary shared by tools and resources.
func (tb *Toolbox) run(ctx context.Context, name string, fn func(ctx context.Context) (Result, error)) (result Result) {
	l := tb.logger.With(zap.String("tool", name))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			l.Error("Tool panicked", zap.Any("panic", r))
			result = errorResult(fmt.Sprintf("%s failed unexpectedly: %v", name, r))
		}
		status, _ := result["status"].(string)
		if tb.metrics != nil {
			tb.metrics.ObserveTool(name, status, time.Since(start))
		}
		l.Debug("Tool finished", zap.String("status", status), zap.Duration("elapsed", time.Since(start)))
	}()

	res, err := fn(ctx)
	if err != nil {
		l.Warn("Tool failed", zap.Error(err))
		return errorResult(err.Error())
	}
	if res == nil {
		res = Result{}
	}
	res["status"] = StatusSuccess
	return res
}

// decodeArgs unmarshals tool arguments; empty input leaves v untouched.
func decodeArgs(args json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
