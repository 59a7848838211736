package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"robinhood-tool-server/internal/models"
	"robinhood-tool-server/internal/profit"
	"robinhood-tool-server/internal/robinhood"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TickerResolver maps instrument URLs to ticker symbols.
// Resolved symbols are cached in memory and, when a database is present, in
// the instruments table. Failures are never cached.
type TickerResolver struct {
	client robinhood.ClientInterface
	db     *gorm.DB
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewTickerResolver creates a resolver; db may be nil.
func NewTickerResolver(client robinhood.ClientInterface, db *gorm.DB, logger *zap.Logger) *TickerResolver {
	return &TickerResolver{
		client: client,
		db:     db,
		logger: logger,
		cache:  make(map[string]string),
	}
}

// Resolve returns the symbol for url, or profit.UnknownTicker on any failure.
func (r *TickerResolver) Resolve(ctx context.Context, url string) string {
	symbol, err := r.lookup(ctx, url)
	if err != nil {
		r.logger.Debug("Instrument lookup failed", zap.String("instrument", url), zap.Error(err))
		return profit.UnknownTicker
	}
	return symbol
}

func (r *TickerResolver) lookup(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("%w: empty instrument", profit.ErrTickerResolution)
	}

	r.mu.RLock()
	symbol, ok := r.cache[url]
	r.mu.RUnlock()
	if ok {
		return symbol, nil
	}

	if r.db != nil {
		var row models.Instrument
		err := r.db.WithContext(ctx).Where("url = ?", url).First(&row).Error
		if err == nil {
			r.remember(url, row.Symbol)
			return row.Symbol, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.logger.Warn("Instrument cache read failed", zap.Error(err))
		}
	}

	instrument, err := r.client.GetInstrumentByURL(ctx, url)
	if err != nil {
		return "", fmt.Errorf("%w: %w", profit.ErrTickerResolution, err)
	}
	if instrument.Symbol == "" {
		return "", fmt.Errorf("%w: instrument has no symbol", profit.ErrTickerResolution)
	}

	r.remember(url, instrument.Symbol)
	if r.db != nil {
		row := models.Instrument{URL: url, Symbol: instrument.Symbol}
		err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "url"}}, DoUpdates: clause.AssignmentColumns([]string{"symbol"})}).
			Create(&row).Error
		if err != nil {
			r.logger.Warn("Instrument cache write failed", zap.String("instrument", url), zap.Error(err))
		}
	}
	return instrument.Symbol, nil
}

func (r *TickerResolver) remember(url, symbol string) {
	r.mu.Lock()
	r.cache[url] = symbol
	r.mu.Unlock()
}

// BrokerSource feeds the profit analyzer from the brokerage client.
type BrokerSource struct {
	client   robinhood.ClientInterface
	resolver *TickerResolver
}

var _ profit.Source = (*BrokerSource)(nil)

// NewBrokerSource creates a profit.Source backed by client.
func NewBrokerSource(client robinhood.ClientInterface, resolver *TickerResolver) *BrokerSource {
	return &BrokerSource{client: client, resolver: resolver}
}

// FetchOrders returns every stock order on the account.
func (s *BrokerSource) FetchOrders(ctx context.Context) ([]profit.RawOrder, error) {
	orders, err := s.client.GetAllStockOrders(ctx)
	if err != nil {
		return nil, err
	}
	raw := make([]profit.RawOrder, len(orders))
	for i, o := range orders {
		raw[i] = o.RawOrder
	}
	return raw, nil
}

// ResolveTicker maps an instrument URL to its symbol.
func (s *BrokerSource) ResolveTicker(ctx context.Context, instrument string) string {
	return s.resolver.Resolve(ctx, instrument)
}
