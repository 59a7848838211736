package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"robinhood-tool-server/internal/config"
	"robinhood-tool-server/internal/database"
	"robinhood-tool-server/internal/logger"
	"robinhood-tool-server/internal/profit"
	"robinhood-tool-server/internal/robinhood"
	"robinhood-tool-server/internal/tools"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	date := flag.String("date", time.Now().UTC().Format(time.DateOnly), "trading day to analyze (YYYY-MM-DD)")
	input := flag.String("input", "", "analyze a saved order list (JSON) instead of the live account")
	configPath := flag.String("config", "./configs", "directory containing config.yml")
	flag.Parse()

	if _, err := time.Parse(time.DateOnly, *date); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -date %q: expected YYYY-MM-DD\n", *date)
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var db *gorm.DB
	if cfg.Database.DSN != "" {
		if db, err = database.NewDatabase(cfg.Database.DSN); err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := robinhood.NewRestClient(&cfg.Robinhood, log)

	var result any
	if *input != "" {
		result, err = analyzeFile(ctx, *input, *date, client, db, log)
	} else {
		result, err = analyzeAccount(ctx, *date, &cfg, client, db, log)
	}
	if err != nil {
		log.Fatal("Profit analysis failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal("Failed to write report", zap.Error(err))
	}
}

// analyzeAccount logs in with the configured credentials and analyzes the live order history.
func analyzeAccount(ctx context.Context, date string, cfg *config.Config, client *robinhood.RestClient, db *gorm.DB, log *zap.Logger) (tools.Result, error) {
	toolbox := tools.NewToolbox(log, cfg, client, db, nil)

	res, _ := toolbox.Call(ctx, "login", nil)
	if res["status"] != tools.StatusSuccess {
		return nil, fmt.Errorf("%v", res["message"])
	}
	defer toolbox.Call(context.Background(), "logout", nil)

	res, _ = toolbox.Call(ctx, "analyze_trading_profit", json.RawMessage(fmt.Sprintf(`{"date":%q}`, date)))
	if res["status"] != tools.StatusSuccess {
		return nil, fmt.Errorf("%v", res["message"])
	}
	return res, nil
}

// analyzeFile runs the analysis on orders saved from the brokerage API.
// The file holds either an order array or a paginated {"results": [...]} envelope.
// Orders carrying a "symbol" need no instrument lookup.
func analyzeFile(ctx context.Context, path, date string, client *robinhood.RestClient, db *gorm.DB, log *zap.Logger) (*profit.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}

	var orders []robinhood.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		var envelope struct {
			Results []robinhood.Order `json:"results"`
		}
		if err2 := json.Unmarshal(data, &envelope); err2 != nil {
			return nil, fmt.Errorf("failed to decode orders: %w", err)
		}
		orders = envelope.Results
	}

	symbols := make(map[string]string)
	raw := make([]profit.RawOrder, len(orders))
	for i, o := range orders {
		raw[i] = o.RawOrder
		if o.Symbol != "" {
			symbols[o.Instrument] = o.Symbol
		}
	}

	resolver := tools.NewTickerResolver(client, db, log)
	resolve := func(instrument string) string {
		if s, ok := symbols[instrument]; ok {
			return s
		}
		return resolver.Resolve(ctx, instrument)
	}

	log.Info("Analyzing saved orders", zap.String("file", path), zap.Int("orders", len(orders)), zap.String("date", date))
	return profit.AnalyzeOrders(date, raw, resolve, log), nil
}
