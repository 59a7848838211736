package profit

import "sort"

// summarize rolls up the matches of one ticker. The returned raw profit is
// the unrounded sum used for the report total.
func summarize(g *TickerGroup, pairs []MatchedPair) (TickerResult, float64) {
	var profit, fees, matchedShares float64
	for _, p := range pairs {
		profit += p.Profit
		fees += p.Fees
		matchedShares += p.Quantity
	}

	var buyShares, sellShares float64
	for _, b := range g.Buys {
		buyShares += b.Quantity
	}
	for _, s := range g.Sells {
		sellShares += s.Quantity
	}

	var avg float64
	if matchedShares > 0 {
		avg = profit / matchedShares
	}

	if pairs == nil {
		pairs = []MatchedPair{}
	}

	return TickerResult{
		Ticker:            g.Ticker,
		BuyOrders:         len(g.Buys),
		SellOrders:        len(g.Sells),
		MatchedTrades:     len(pairs),
		BuyShares:         buyShares,
		SellShares:        sellShares,
		MatchedShares:     matchedShares,
		Fees:              round2(fees),
		Profit:            round2(profit),
		AvgProfitPerShare: round2(avg),
		Matches:           pairs,
	}, profit
}

// BuildReport matches every group and aggregates the results.
// Ticker results are ordered by profit, highest first; equal profits keep
// group order.
func BuildReport(date string, groups []*TickerGroup, tradeCount, skipped int) *Report {
	report := &Report{
		Date:          date,
		TickerResults: make([]TickerResult, 0, len(groups)),
		TradeCount:    tradeCount,
		SkippedOrders: skipped,
		Algorithm:     Algorithm,
	}

	var total float64
	for _, g := range groups {
		result, raw := summarize(g, MatchGroup(g))
		total += raw
		report.MatchedTrades += result.MatchedTrades
		report.TickerResults = append(report.TickerResults, result)
	}

	sort.SliceStable(report.TickerResults, func(i, j int) bool {
		return report.TickerResults[i].Profit > report.TickerResults[j].Profit
	})
	report.TotalProfit = round2(total)

	return report
}
