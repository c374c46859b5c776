package main

import (
	"context"
	"log" // Use standard log only for fatal errors before the logger is set up
	"os/signal"
	"syscall"

	"stratbot/config"
	"stratbot/internal/adapters/binanceclient"
	"stratbot/internal/adapters/logger"
	"stratbot/internal/adapters/sqlite"
	"stratbot/internal/engine"
	"stratbot/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Load and validate the strategy artifact. This is the fatal
	// startup case: the loop never starts without a valid contract.
	doc, err := cfg.StrategyDocument()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	strat, err := strategy.Load(doc)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to load strategy artifact")
		log.Fatalf("FATAL: Failed to load strategy artifact: %v", err)
	}
	guarded := strategy.NewGuard(strat, appLogger)
	appLogger.Info(context.Background(), "Strategy artifact loaded", map[string]interface{}{"strategy": strat.Name()})

	// 4. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize ledger repository")
		log.Fatalf("FATAL: Failed to initialize ledger repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing ledger repository")
		}
	}()

	// 5. Initialize Exchange Client (Binance Adapter)
	exchange, err := binanceclient.New(binanceclient.Config{
		APIKey:    cfg.APIKey,
		SecretKey: cfg.SecretKey,
		Mode:      cfg.Mode,
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 6. Wire and run the engine. Termination arrives as an external
	// process stop; the runner persists the stopped status on the way out.
	runner, err := engine.NewRunner(cfg, appLogger, exchange, repo, guarded)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize engine")
		log.Fatalf("FATAL: Failed to initialize engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Run(ctx); err != nil {
		appLogger.Error(ctx, err, "Engine exited with error")
		log.Fatalf("FATAL: Engine exited with error: %v", err)
	}
	appLogger.Info(context.Background(), "Deployment finished gracefully.")
}
