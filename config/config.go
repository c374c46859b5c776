package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"stratbot/internal/adapters/logger"
	"stratbot/internal/domain"
)

const (
	minLeverage = 1
	maxLeverage = 20
)

// Config holds the full configuration for one strategy deployment.
// It is immutable for the lifetime of the running process; changing any
// value requires a new deployment.
type Config struct {
	// Deployment identity
	DeploymentID string
	OwnerID      string

	// Exchange credentials
	APIKey    string
	SecretKey string

	// Trading parameters
	Symbol     string
	Timeframe  string  // candle interval, e.g. "1m", "1h"
	Amount     float64 // notional base; effective position value = Amount * Leverage
	Leverage   int
	StopLoss   float64 // fractional, e.g. 0.02 for 2%
	TakeProfit float64 // fractional, e.g. 0.05 for 5%
	Mode       domain.Mode

	// Strategy artifact: either a path to the JSON document or the
	// document itself. Exactly one must be supplied.
	StrategyPath string
	StrategySpec string

	// Engine timing
	PollInterval   time.Duration // sleep between cycles
	ErrorBackoff   time.Duration // sleep after a failed cycle
	SettleDelay    time.Duration // pause between a close and a same-cycle reopen
	RequestTimeout time.Duration // bound on every network call
	CandleLimit    int           // candles fetched per cycle

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel
}

// Load reads configuration from environment variables (.env file supported).
func Load() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	cfg.DeploymentID = getEnv("DEPLOYMENT_ID", "")
	if cfg.DeploymentID == "" {
		cfg.DeploymentID = uuid.NewString()
	}
	cfg.OwnerID = getEnv("OWNER_ID", "")

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	cfg.Symbol = getEnv("SYMBOL", "BTCUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	cfg.Timeframe = getEnv("TIMEFRAME", "1m")

	cfg.Amount, err = getEnvAsFloatRequired("AMOUNT", 100.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid AMOUNT: %v", err))
	} else if cfg.Amount <= 0 {
		errs = append(errs, "AMOUNT must be positive")
	}

	cfg.Leverage, err = getEnvAsIntRequired("LEVERAGE", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE: %v", err))
	} else if cfg.Leverage < minLeverage || cfg.Leverage > maxLeverage {
		errs = append(errs, fmt.Sprintf("LEVERAGE must be between %d and %d", minLeverage, maxLeverage))
	}

	cfg.StopLoss, err = getEnvAsFloatRequired("STOP_LOSS", 0.02)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS: %v", err))
	} else if cfg.StopLoss <= 0 || cfg.StopLoss >= 1.0 {
		errs = append(errs, "STOP_LOSS must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.TakeProfit, err = getEnvAsFloatRequired("TAKE_PROFIT", 0.05)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT: %v", err))
	} else if cfg.TakeProfit <= 0 || cfg.TakeProfit >= 1.0 {
		errs = append(errs, "TAKE_PROFIT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.Mode, err = domain.ParseMode(getEnv("MODE", string(domain.ModeSandbox)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MODE: %v", err))
	}

	cfg.StrategyPath = getEnv("STRATEGY_ARTIFACT", "")
	cfg.StrategySpec = getEnv("STRATEGY_SPEC", "")
	if cfg.StrategyPath == "" && cfg.StrategySpec == "" {
		errs = append(errs, "one of STRATEGY_ARTIFACT or STRATEGY_SPEC must be set")
	}
	if cfg.StrategyPath != "" && cfg.StrategySpec != "" {
		errs = append(errs, "STRATEGY_ARTIFACT and STRATEGY_SPEC are mutually exclusive")
	}

	pollSeconds := getEnvAsInt("POLL_INTERVAL_SECONDS", 60)
	if pollSeconds <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	backoffSeconds := getEnvAsInt("ERROR_BACKOFF_SECONDS", 15)
	if backoffSeconds <= 0 {
		errs = append(errs, "ERROR_BACKOFF_SECONDS must be positive")
	}
	cfg.ErrorBackoff = time.Duration(backoffSeconds) * time.Second

	settleMillis := getEnvAsInt("SETTLE_DELAY_MS", 1000)
	if settleMillis < 0 {
		errs = append(errs, "SETTLE_DELAY_MS cannot be negative")
	}
	cfg.SettleDelay = time.Duration(settleMillis) * time.Millisecond

	timeoutSeconds := getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 10)
	if timeoutSeconds <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT_SECONDS must be positive")
	}
	cfg.RequestTimeout = time.Duration(timeoutSeconds) * time.Second

	cfg.CandleLimit = getEnvAsInt("CANDLE_LIMIT", 200)
	if cfg.CandleLimit <= 0 {
		errs = append(errs, "CANDLE_LIMIT must be positive")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/stratbot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// StrategyDocument returns the raw strategy artifact, reading it from disk
// when a path was configured. A failure here is the fatal startup case.
func (c *Config) StrategyDocument() ([]byte, error) {
	if c.StrategySpec != "" {
		return []byte(c.StrategySpec), nil
	}
	raw, err := os.ReadFile(c.StrategyPath)
	if err != nil {
		return nil, fmt.Errorf("reading strategy artifact %q: %w", c.StrategyPath, err)
	}
	return raw, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
