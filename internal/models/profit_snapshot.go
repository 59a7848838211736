package models

import "gorm.io/gorm"

// ProfitSnapshot is a stored result of one day-trading profit analysis.
// Re-running the analysis for the same date replaces the previous snapshot.
type ProfitSnapshot struct {
	gorm.Model
	Date          string  `gorm:"uniqueIndex;not null" json:"date"`
	TotalProfit   float64 `json:"total_profit"`
	MatchedTrades int     `json:"matched_trades"`
	TradeCount    int     `json:"trade_count"`
	TickerCount   int     `json:"ticker_count"`
	Report        string  `gorm:"type:text" json:"-"` // full report as JSON
}
