package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"robinhood-tool-server/internal/profit"
	"robinhood-tool-server/internal/robinhood"
)

var eastern = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// dividendTotal sums every dividend that was not voided.
func dividendTotal(dividends []robinhood.Dividend) float64 {
	var total float64
	for _, d := range dividends {
		if d.State == "voided" {
			continue
		}
		total += num(d.Amount)
	}
	return total
}

func (tb *Toolbox) symbolFor(ctx context.Context, symbol, instrument string) string {
	if symbol != "" {
		return symbol
	}
	return tb.resolver.Resolve(ctx, instrument)
}

func (tb *Toolbox) getPortfolio(ctx context.Context, _ json.RawMessage) (Result, error) {
	portfolio, err := tb.client.GetPortfolio(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	account, err := tb.client.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	dividends, err := tb.client.GetDividends(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	return Result{
		"equity":                num(portfolio.Equity),
		"extended_hours_equity": num(portfolio.ExtendedHoursEquity),
		"cash":                  num(account.Cash),
		"dividend_total":        dividendTotal(dividends),
	}, nil
}

func (tb *Toolbox) getPositions(ctx context.Context, _ json.RawMessage) (Result, error) {
	positions, err := tb.client.GetOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	out := make([]map[string]any, 0, len(positions))
	for _, p := range positions {
		quantity := num(p.Quantity)
		avg := num(p.AverageBuyPrice)
		out = append(out, map[string]any{
			"ticker":            tb.symbolFor(ctx, p.Symbol, p.Instrument),
			"quantity":          quantity,
			"average_buy_price": avg,
			"cost_basis":        quantity * avg,
		})
	}
	return Result{"positions": out}, nil
}

func (tb *Toolbox) formatOrder(ctx context.Context, o robinhood.Order) map[string]any {
	return map[string]any{
		"order_id":   o.ID,
		"ticker":     tb.symbolFor(ctx, o.Symbol, o.Instrument),
		"side":       o.Side,
		"quantity":   num(o.Quantity),
		"type":       o.Type,
		"price":      nullableNum(o.Price),
		"created_at": o.CreatedAt,
		"state":      o.State,
	}
}

func (tb *Toolbox) getOpenOrders(ctx context.Context, _ json.RawMessage) (Result, error) {
	orders, err := tb.client.GetAllOpenStockOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}

	out := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		out = append(out, tb.formatOrder(ctx, o))
	}
	return Result{"orders": out}, nil
}

func (tb *Toolbox) getOrdersByDate(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args dateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := validateDate(args.Date); err != nil {
		return nil, err
	}

	orders, err := tb.client.GetAllStockOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get orders for date %s: %w", args.Date, err)
	}

	var matched []robinhood.Order
	for _, o := range orders {
		if strings.HasPrefix(o.CreatedAt, args.Date) {
			matched = append(matched, o)
		}
	}
	// newest first
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt > matched[j].CreatedAt
	})

	out := make([]map[string]any, 0, len(matched))
	for _, o := range matched {
		entry := tb.formatOrder(ctx, o)
		executions := o.Executions
		if executions == nil {
			executions = []profit.Execution{}
		}
		entry["executions"] = executions
		entry["filled_quantity"] = num(o.CumulativeQuantity)
		entry["average_price"] = nullableNum(o.AveragePrice)
		if t, err := time.Parse(time.RFC3339, o.CreatedAt); err == nil {
			entry["created_at_et"] = t.In(eastern).Format("2006-01-02 15:04:05 MST")
		}
		out = append(out, entry)
	}

	return Result{
		"date":         args.Date,
		"orders_count": len(out),
		"orders":       out,
	}, nil
}
