package tools

import (
	"context"
	"fmt"
	"strings"

	"robinhood-tool-server/internal/robinhood"

	"go.uber.org/zap"
)

// Resource URI templates, relative to the server's /resources/ prefix.
const (
	ResourceStockInfo        = "stock_info/{ticker}"
	ResourcePortfolioSummary = "portfolio/summary"
	ResourceAccountHistory   = "account/history/{timespan}"
)

// Resources lists the readable resource templates.
func (tb *Toolbox) Resources() []string {
	return []string{ResourceStockInfo, ResourcePortfolioSummary, ResourceAccountHistory}
}

// StockInfo returns fundamentals for ticker.
func (tb *Toolbox) StockInfo(ctx context.Context, ticker string) Result {
	return tb.run(ctx, "resource:stock_info", func(ctx context.Context) (Result, error) {
		symbol, err := normalizeTicker(ticker)
		if err != nil {
			return nil, err
		}
		f, err := tb.client.GetFundamentals(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to get stock info for %s: %w", symbol, err)
		}

		name := ""
		if inst, err := tb.client.GetInstrumentBySymbol(ctx, symbol); err == nil {
			name = inst.Name
		} else {
			tb.logger.Debug("Instrument name unavailable", zap.String("ticker", symbol), zap.Error(err))
		}

		return Result{
			"ticker":         symbol,
			"name":           name,
			"sector":         f.Sector,
			"industry":       f.Industry,
			"market_cap":     num(f.MarketCap),
			"pe_ratio":       num(f.PERatio),
			"dividend_yield": num(f.DividendYield),
			"high_52_weeks":  num(f.High52Weeks),
			"low_52_weeks":   num(f.Low52Weeks),
		}, nil
	})
}

// PortfolioSummary returns equity, cash and position count.
func (tb *Toolbox) PortfolioSummary(ctx context.Context) Result {
	return tb.run(ctx, "resource:portfolio_summary", func(ctx context.Context) (Result, error) {
		portfolio, err := tb.client.GetPortfolio(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get portfolio summary: %w", err)
		}
		account, err := tb.client.GetAccount(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get portfolio summary: %w", err)
		}
		positions, err := tb.client.GetOpenPositions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get portfolio summary: %w", err)
		}
		dividends, err := tb.client.GetDividends(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get portfolio summary: %w", err)
		}

		equity := num(portfolio.Equity)
		cash := num(account.Cash)
		return Result{
			"equity":          equity,
			"cash":            cash,
			"total_assets":    equity + cash,
			"positions_count": len(positions),
			"dividend_total":  dividendTotal(dividends),
		}, nil
	})
}

// AccountHistory returns the equity curve over timespan.
func (tb *Toolbox) AccountHistory(ctx context.Context, timespan string) Result {
	return tb.run(ctx, "resource:account_history", func(ctx context.Context) (Result, error) {
		timespan = strings.ToLower(strings.TrimSpace(timespan))
		if !robinhood.ValidSpan(timespan) {
			return nil, fmt.Errorf("%w: invalid timespan %q, must be one of day, week, month, 3month, year, 5year, all",
				errInvalidArgument, timespan)
		}

		history, err := tb.client.GetHistoricalPortfolio(ctx, timespan)
		if err != nil {
			return nil, fmt.Errorf("failed to get account history: %w", err)
		}

		points := make([]map[string]any, 0, len(history.EquityHistoricals))
		for _, p := range history.EquityHistoricals {
			points = append(points, map[string]any{
				"date":            p.BeginsAt,
				"equity":          num(p.CloseEquity),
				"adjusted_equity": num(p.AdjustedCloseEquity),
			})
		}

		start, end := "", ""
		if n := len(history.EquityHistoricals); n > 0 {
			start = history.EquityHistoricals[0].BeginsAt
			end = history.EquityHistoricals[n-1].BeginsAt
		}
		return Result{
			"timespan":                timespan,
			"equity_data":             points,
			"start_date":              start,
			"end_date":                end,
			"total_return_percentage": num(history.TotalReturn.Percentage),
		}, nil
	})
}
