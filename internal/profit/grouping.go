package profit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TickerFunc resolves an instrument reference to a symbol.
type TickerFunc func(instrument string) string

// FilterFilled keeps the filled orders created on date (YYYY-MM-DD).
// The date test is a prefix match on the UTC created_at text.
func FilterFilled(orders []RawOrder, date string) []RawOrder {
	filled := make([]RawOrder, 0, len(orders))
	for _, o := range orders {
		if !strings.HasPrefix(o.CreatedAt, date) {
			continue
		}
		if o.State != stateFilled {
			continue
		}
		filled = append(filled, o)
	}
	return filled
}

// parseOrder converts a raw order into a TradeRecord.
// A failed numeric conversion is reported as ErrRecordParse. Only the exact
// side "buy" is a buy; any other side is treated as a sell.
func parseOrder(o RawOrder) (*TradeRecord, error) {
	price, err := strconv.ParseFloat(o.AveragePrice, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: average_price %q: %v", ErrRecordParse, o.AveragePrice, err)
	}
	if price < 0 {
		return nil, fmt.Errorf("%w: negative average_price %v", ErrRecordParse, price)
	}

	quantity, err := strconv.ParseFloat(o.Quantity, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: quantity %q: %v", ErrRecordParse, o.Quantity, err)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: non-positive quantity %v", ErrRecordParse, quantity)
	}

	var fees float64
	for i, e := range o.Executions {
		if e.Fees == "" {
			continue
		}
		f, err := strconv.ParseFloat(e.Fees, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: execution %d fees %q: %v", ErrRecordParse, i, e.Fees, err)
		}
		fees += f
	}

	// A created_at that is not RFC 3339 keeps the order; it is then
	// ordered by its raw text.
	createdAt, _ := time.Parse(time.RFC3339, o.CreatedAt)
	transactionAt, transactionText := createdAt, o.CreatedAt
	if o.LastTransactionAt != "" {
		if t, err := time.Parse(time.RFC3339, o.LastTransactionAt); err == nil {
			transactionAt, transactionText = t, o.LastTransactionAt
		}
	}

	side := SideSell
	if o.Side == string(SideBuy) {
		side = SideBuy
	}

	return &TradeRecord{
		ID:                o.ID,
		Side:              side,
		Price:             price,
		Quantity:          quantity,
		RemainingQuantity: quantity,
		Fees:              fees,
		CreatedAt:         createdAt,
		TransactionAt:     transactionAt,
		createdText:       o.CreatedAt,
		transactionText:   transactionText,
	}, nil
}

// GroupOrders partitions orders by ticker into buy and sell lists.
// Groups are returned in the order their ticker was first seen, and each
// list keeps input order. Orders that fail to parse are skipped and counted.
func GroupOrders(orders []RawOrder, resolve TickerFunc, logger *zap.Logger) (groups []*TickerGroup, skipped int) {
	index := make(map[string]*TickerGroup)

	for _, o := range orders {
		record, err := parseOrder(o)
		if err != nil {
			logger.Debug("Skipping order", zap.String("order_id", o.ID), zap.Error(err))
			skipped++
			continue
		}

		ticker := UnknownTicker
		if o.Instrument != "" {
			ticker = resolve(o.Instrument)
		}
		if ticker == "" {
			ticker = UnknownTicker
		}

		g, ok := index[ticker]
		if !ok {
			g = &TickerGroup{Ticker: ticker}
			index[ticker] = g
			groups = append(groups, g)
		}

		if record.Side == SideBuy {
			g.Buys = append(g.Buys, record)
		} else {
			g.Sells = append(g.Sells, record)
		}
	}

	return groups, skipped
}
