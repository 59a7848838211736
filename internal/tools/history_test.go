package tools

import (
	"context"
	"testing"
	"time"

	"robinhood-tool-server/internal/profit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(date string, total float64) *profit.Report {
	return &profit.Report{
		Date:          date,
		TotalProfit:   total,
		TickerResults: []profit.TickerResult{{Ticker: "AAPL", Profit: total, MatchedTrades: 1}},
		MatchedTrades: 1,
		TradeCount:    2,
		Algorithm:     profit.Algorithm,
	}
}

func TestReportStore_SaveReplacesSameDate(t *testing.T) {
	store := NewReportStore(testDB(t))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, report("2025-05-02", 10)))
	require.NoError(t, store.Save(ctx, report("2025-05-02", 12.5)))

	snaps, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 12.5, snaps[0].TotalProfit)

	got, err := store.Get(ctx, "2025-05-02")
	require.NoError(t, err)
	assert.Equal(t, 12.5, got.TotalProfit)
	require.Len(t, got.TickerResults, 1)
	assert.Equal(t, "AAPL", got.TickerResults[0].Ticker)
}

func TestReportStore_ListNewestFirst(t *testing.T) {
	store := NewReportStore(testDB(t))
	ctx := context.Background()

	for _, d := range []string{"2025-05-01", "2025-05-05", "2025-05-02"} {
		require.NoError(t, store.Save(ctx, report(d, 1)))
	}

	snaps, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, "2025-05-05", snaps[0].Date)
	assert.Equal(t, "2025-05-02", snaps[1].Date)
	assert.Equal(t, "2025-05-01", snaps[2].Date)
}

func TestReportStore_GetMissing(t *testing.T) {
	store := NewReportStore(testDB(t))

	_, err := store.Get(context.Background(), "2025-05-02")
	assert.Error(t, err)
}

func TestReportStore_Statistics(t *testing.T) {
	store := NewReportStore(testDB(t))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, report("2025-04-01", 100.10)))
	require.NoError(t, store.Save(ctx, report("2025-05-01", -20.05)))
	require.NoError(t, store.Save(ctx, report("2025-05-02", 30.20)))
	require.NoError(t, store.Save(ctx, report("2025-05-03", 0)))

	now := time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC)
	stats, err := store.Statistics(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.AllTime.DaysAnalyzed)
	assert.Equal(t, 2, stats.AllTime.ProfitableDays)
	assert.Equal(t, 0.5, stats.AllTime.WinRate)
	assert.Equal(t, 110.25, stats.AllTime.TotalProfit)

	assert.Equal(t, 3, stats.Last7Days.DaysAnalyzed)
	assert.Equal(t, 1, stats.Last7Days.ProfitableDays)
	assert.InDelta(t, 1.0/3.0, stats.Last7Days.WinRate, 1e-9)
	assert.Equal(t, 10.15, stats.Last7Days.TotalProfit)
}
