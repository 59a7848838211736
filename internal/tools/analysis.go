package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

func (tb *Toolbox) analyzeTradingProfit(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args dateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := validateDate(args.Date); err != nil {
		return nil, err
	}

	report, err := tb.analyzer.Analyze(ctx, args.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze trading profit: %w", err)
	}

	if tb.metrics != nil {
		tb.metrics.ObserveAnalysis(report.TotalProfit, report.SkippedOrders)
	}
	if tb.reports != nil && (tb.cfg == nil || tb.cfg.Analysis.PersistReports) {
		// A storage failure does not invalidate the computed report.
		if err := tb.reports.Save(ctx, report); err != nil {
			tb.logger.Warn("Failed to store profit report", zap.String("date", report.Date), zap.Error(err))
		}
	}

	return Result{
		"date":           report.Date,
		"total_profit":   report.TotalProfit,
		"ticker_results": report.TickerResults,
		"matched_trades": report.MatchedTrades,
		"trade_count":    report.TradeCount,
		"skipped_orders": report.SkippedOrders,
		"algorithm":      report.Algorithm,
	}, nil
}
