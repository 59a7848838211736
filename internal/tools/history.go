package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"robinhood-tool-server/internal/models"
	"robinhood-tool-server/internal/profit"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReportStore persists profit reports as snapshots, one per date.
type ReportStore struct {
	db *gorm.DB
}

// NewReportStore creates a ReportStore on an already migrated database.
func NewReportStore(db *gorm.DB) *ReportStore {
	return &ReportStore{db: db}
}

// Save stores report, replacing any earlier snapshot for the same date.
func (s *ReportStore) Save(ctx context.Context, report *profit.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	snap := models.ProfitSnapshot{
		Date:          report.Date,
		TotalProfit:   report.TotalProfit,
		MatchedTrades: report.MatchedTrades,
		TradeCount:    report.TradeCount,
		TickerCount:   len(report.TickerResults),
		Report:        string(body),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at", "total_profit", "matched_trades", "trade_count", "ticker_count", "report"}),
	}).Create(&snap).Error
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", report.Date, err)
	}
	return nil
}

// List returns all snapshots, most recent trading day first.
func (s *ReportStore) List(ctx context.Context) ([]models.ProfitSnapshot, error) {
	var snaps []models.ProfitSnapshot
	if err := s.db.WithContext(ctx).Order("date desc").Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snaps, nil
}

// Get returns the stored report for date.
func (s *ReportStore) Get(ctx context.Context, date string) (*profit.Report, error) {
	var snap models.ProfitSnapshot
	if err := s.db.WithContext(ctx).Where("date = ?", date).First(&snap).Error; err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", date, err)
	}
	var report profit.Report
	if err := json.Unmarshal([]byte(snap.Report), &report); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for %s: %w", date, err)
	}
	return &report, nil
}

// StatsDetail aggregates snapshots over a period.
type StatsDetail struct {
	DaysAnalyzed   int     `json:"days_analyzed"`
	ProfitableDays int     `json:"profitable_days"`
	WinRate        float64 `json:"win_rate"`
	TotalProfit    float64 `json:"total_profit"`
	MatchedTrades  int     `json:"matched_trades"`
}

// Statistics is the aggregate served by /api/statistics.
type Statistics struct {
	Last7Days StatsDetail `json:"last_7_days"`
	AllTime   StatsDetail `json:"all_time"`
}

// Statistics aggregates every stored snapshot. The 7-day window ends at now.
func (s *ReportStore) Statistics(ctx context.Context, now time.Time) (*Statistics, error) {
	snaps, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	since := now.UTC().AddDate(0, 0, -7).Format(time.DateOnly)
	stats := &Statistics{}
	for _, snap := range snaps {
		stats.AllTime.add(snap)
		if snap.Date > since {
			stats.Last7Days.add(snap)
		}
	}
	stats.AllTime.finish()
	stats.Last7Days.finish()
	return stats, nil
}

func (d *StatsDetail) add(snap models.ProfitSnapshot) {
	d.DaysAnalyzed++
	if snap.TotalProfit > 0 {
		d.ProfitableDays++
	}
	d.TotalProfit += snap.TotalProfit
	d.MatchedTrades += snap.MatchedTrades
}

func (d *StatsDetail) finish() {
	if d.DaysAnalyzed > 0 {
		d.WinRate = float64(d.ProfitableDays) / float64(d.DaysAnalyzed)
	}
	d.TotalProfit, _ = strconv.ParseFloat(strconv.FormatFloat(d.TotalProfit, 'f', 2, 64), 64)
}
