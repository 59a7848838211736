package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"robinhood-tool-server/internal/config"
	"robinhood-tool-server/internal/database"
	"robinhood-tool-server/internal/logger"
	"robinhood-tool-server/internal/metrics"
	"robinhood-tool-server/internal/robinhood"
	"robinhood-tool-server/internal/tools"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Credentials may live in a local .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig("./configs")
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
	log.Info("Configuration loaded")

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	m := metrics.New("robinhood_tools")

	restClient := robinhood.NewRestClient(&cfg.Robinhood, log)
	restClient.SetObserver(m.ObserveBrokerRequest)

	toolbox := tools.NewToolbox(log, &cfg, restClient, db, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Robinhood.AutoLogin {
		res, _ := toolbox.Call(ctx, "login", nil)
		if res["status"] != tools.StatusSuccess {
			log.Warn("Automatic login failed; tools will require an explicit login", zap.Any("message", res["message"]))
		}
	}

	handler := NewAPIHandler(log, toolbox, restClient)
	server := NewAPIServer(cfg.Server.Port, handler.Routes(m.Handler()), log)
	server.Start()

	<-ctx.Done()
	log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server", zap.Error(err))
	}
	log.Info("Server has been shut down.")
}
