package profit

import (
	"context"
	"errors"
	"time"
)

const (
	// UnknownTicker is used for orders whose instrument cannot be resolved.
	UnknownTicker = "UNKNOWN"
	// Algorithm names the matching heuristic in every report.
	Algorithm = "closest_price_matching"

	stateFilled = "filled"
)

var (
	// ErrCollaborator wraps a failure to retrieve the order list. No report is produced.
	ErrCollaborator = errors.New("failed to fetch orders")
	// ErrRecordParse marks an order whose numeric or time fields are unusable.
	// Such orders are excluded from matching; the batch continues.
	ErrRecordParse = errors.New("unparseable order")
	// ErrTickerResolution marks an instrument lookup failure.
	// The order is kept under UnknownTicker.
	ErrTickerResolution = errors.New("ticker resolution failed")
	// ErrUnexpected wraps a panic caught inside the analysis.
	ErrUnexpected = errors.New("unexpected analysis failure")
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Execution is a single fill of a brokerage order.
type Execution struct {
	Fees      string `json:"fees"`
	Price     string `json:"price,omitempty"`
	Quantity  string `json:"quantity,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// RawOrder is an order as returned by the brokerage. Numeric fields are
// decimal strings; a null average_price decodes to "".
type RawOrder struct {
	ID                string      `json:"id"`
	Side              string      `json:"side"`
	State             string      `json:"state"`
	Instrument        string      `json:"instrument"`
	AveragePrice      string      `json:"average_price"`
	Quantity          string      `json:"quantity"`
	CreatedAt         string      `json:"created_at"`
	LastTransactionAt string      `json:"last_transaction_at"`
	Executions        []Execution `json:"executions"`
}

// Source supplies orders and ticker symbols to the analyzer.
type Source interface {
	// FetchOrders returns every stock order on the account.
	FetchOrders(ctx context.Context) ([]RawOrder, error)
	// ResolveTicker maps an instrument reference to its symbol.
	// It returns UnknownTicker on any failure and never errors.
	ResolveTicker(ctx context.Context, instrument string) string
}

// TradeRecord is a filled order normalized for matching.
type TradeRecord struct {
	ID                string
	Side              Side
	Price             float64
	Quantity          float64
	RemainingQuantity float64
	Fees              float64
	CreatedAt         time.Time
	// TransactionAt is the last execution time; it falls back to CreatedAt
	// when the brokerage did not report one.
	TransactionAt time.Time

	// Timestamp text as received. Used for ordering when a time did not
	// parse, in which case the corresponding time.Time is zero.
	createdText     string
	transactionText string
}

// createdBefore orders buys by creation time.
func createdBefore(a, b *TradeRecord) bool {
	if a.CreatedAt.IsZero() || b.CreatedAt.IsZero() {
		return a.createdText < b.createdText
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// executedAfter reports whether sell executed strictly after buy was created.
func executedAfter(sell, buy *TradeRecord) bool {
	if sell.TransactionAt.IsZero() || buy.CreatedAt.IsZero() {
		return sell.transactionText > buy.createdText
	}
	return sell.TransactionAt.After(buy.CreatedAt)
}

// TickerGroup holds the buys and sells of one instrument.
type TickerGroup struct {
	Ticker string
	Buys   []*TradeRecord
	Sells  []*TradeRecord
}

// MatchedPair links part of a buy to part of a later sell.
type MatchedPair struct {
	BuyID     string  `json:"buy_id"`
	SellID    string  `json:"sell_id"`
	Quantity  float64 `json:"quantity"`
	BuyPrice  float64 `json:"buy_price"`
	SellPrice float64 `json:"sell_price"`
	Profit    float64 `json:"profit"`
	Fees      float64 `json:"fees"`
}

// TickerResult aggregates the matches of one instrument.
type TickerResult struct {
	Ticker            string        `json:"ticker"`
	BuyOrders         int           `json:"buy_orders"`
	SellOrders        int           `json:"sell_orders"`
	MatchedTrades     int           `json:"matched_trades"`
	BuyShares         float64       `json:"buy_shares"`
	SellShares        float64       `json:"sell_shares"`
	MatchedShares     float64       `json:"matched_shares"`
	Fees              float64       `json:"fees"`
	Profit            float64       `json:"profit"`
	AvgProfitPerShare float64       `json:"avg_profit_per_share"`
	Matches           []MatchedPair `json:"matches"`
}

// Report is the realized profit of one trading day.
type Report struct {
	Date          string         `json:"date"`
	TotalProfit   float64        `json:"total_profit"`
	TickerResults []TickerResult `json:"ticker_results"`
	MatchedTrades int            `json:"matched_trades"`
	TradeCount    int            `json:"trade_count"`
	SkippedOrders int            `json:"skipped_orders"`
	Algorithm     string         `json:"algorithm"`
}
