package tools

import (
	"context"
	"strings"
	"testing"

	"robinhood-tool-server/internal/config"
	"robinhood-tool-server/internal/database"
	"robinhood-tool-server/internal/metrics"
	"robinhood-tool-server/internal/robinhood"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MockClient is a mock implementation of robinhood.ClientInterface.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Login(ctx context.Context, username, password, mfaCode string) (*robinhood.TokenResponse, error) {
	args := m.Called(ctx, username, password, mfaCode)
	return args.Get(0).(*robinhood.TokenResponse), args.Error(1)
}

func (m *MockClient) Logout(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockClient) IsLoggedIn() bool {
	return m.Called().Bool(0)
}

func (m *MockClient) GetQuotes(ctx context.Context, symbols ...string) ([]robinhood.Quote, error) {
	args := m.Called(ctx, symbols)
	return args.Get(0).([]robinhood.Quote), args.Error(1)
}

func (m *MockClient) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockClient) GetFundamentals(ctx context.Context, symbol string) (*robinhood.Fundamentals, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(*robinhood.Fundamentals), args.Error(1)
}

func (m *MockClient) GetInstrumentByURL(ctx context.Context, url string) (*robinhood.Instrument, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(*robinhood.Instrument), args.Error(1)
}

func (m *MockClient) GetInstrumentBySymbol(ctx context.Context, symbol string) (*robinhood.Instrument, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(*robinhood.Instrument), args.Error(1)
}

func (m *MockClient) GetAllStockOrders(ctx context.Context) ([]robinhood.Order, error) {
	args := m.Called(ctx)
	return args.Get(0).([]robinhood.Order), args.Error(1)
}

func (m *MockClient) GetAllOpenStockOrders(ctx context.Context) ([]robinhood.Order, error) {
	args := m.Called(ctx)
	return args.Get(0).([]robinhood.Order), args.Error(1)
}

func (m *MockClient) PlaceOrder(ctx context.Context, req robinhood.OrderRequest) (*robinhood.Order, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(*robinhood.Order), args.Error(1)
}

func (m *MockClient) CancelOrder(ctx context.Context, orderID string) error {
	return m.Called(ctx, orderID).Error(0)
}

func (m *MockClient) GetAccount(ctx context.Context) (*robinhood.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).(*robinhood.Account), args.Error(1)
}

func (m *MockClient) GetPortfolio(ctx context.Context) (*robinhood.Portfolio, error) {
	args := m.Called(ctx)
	return args.Get(0).(*robinhood.Portfolio), args.Error(1)
}

func (m *MockClient) GetDividends(ctx context.Context) ([]robinhood.Dividend, error) {
	args := m.Called(ctx)
	return args.Get(0).([]robinhood.Dividend), args.Error(1)
}

func (m *MockClient) GetOpenPositions(ctx context.Context) ([]robinhood.Position, error) {
	args := m.Called(ctx)
	return args.Get(0).([]robinhood.Position), args.Error(1)
}

func (m *MockClient) GetHistoricalPortfolio(ctx context.Context, span string) (*robinhood.HistoricalPortfolio, error) {
	args := m.Called(ctx, span)
	return args.Get(0).(*robinhood.HistoricalPortfolio), args.Error(1)
}

// testDB opens a private in-memory database named after the running test.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.NewDatabase("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// setupTest creates a toolbox with a mock client, an in-memory DB and fresh metrics.
func setupTest(t *testing.T) (*Toolbox, *MockClient, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	client := new(MockClient)
	cfg := &config.Config{
		Robinhood: config.Robinhood{Username: "trader@example.com", Password: "hunter2"},
		Analysis:  config.Analysis{PersistReports: true},
	}
	tb := NewToolbox(zap.NewNop(), cfg, client, db, metrics.New("test"))
	return tb, client, db
}
