package profit

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Analyzer computes realized day-trading profit from a Source.
// It holds no per-call state, so one Analyzer may serve concurrent calls.
type Analyzer struct {
	source Source
	logger *zap.Logger
}

// NewAnalyzer creates an Analyzer reading orders from source.
func NewAnalyzer(source Source, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		source: source,
		logger: logger.Named("profit"),
	}
}

// Analyze builds the profit report for date (YYYY-MM-DD).
// Only a failed order fetch or an unexpected panic yields an error; bad
// orders and unresolvable instruments are absorbed into the report.
func (a *Analyzer) Analyze(ctx context.Context, date string) (report *Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Profit analysis panicked", zap.String("date", date), zap.Any("panic", r))
			report = nil
			err = fmt.Errorf("%w: %v", ErrUnexpected, r)
		}
	}()

	orders, err := a.source.FetchOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCollaborator, err)
	}

	resolve := func(instrument string) string {
		return a.source.ResolveTicker(ctx, instrument)
	}
	report = AnalyzeOrders(date, orders, resolve, a.logger)

	a.logger.Info("Profit analysis complete",
		zap.String("date", date),
		zap.Int("trade_count", report.TradeCount),
		zap.Int("matched_trades", report.MatchedTrades),
		zap.Int("skipped_orders", report.SkippedOrders),
		zap.Float64("total_profit", report.TotalProfit),
	)
	return report, nil
}

// AnalyzeOrders runs filtering, grouping, matching and aggregation over an
// in-memory order list.
func AnalyzeOrders(date string, orders []RawOrder, resolve TickerFunc, logger *zap.Logger) *Report {
	filled := FilterFilled(orders, date)
	groups, skipped := GroupOrders(filled, resolve, logger)
	return BuildReport(date, groups, len(filled), skipped)
}
