// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir            string  // Base directory for the history and cache databases
	Port               int     // HTTP listen port
	LogLevel           string  // debug, info, warn, error
	DevMode            bool    // Pretty logging, permissive CORS
	MarketIndex        string  // Index used for CAPM beta (e.g. "NSE20")
	TBillTenorDays     int     // Tenor for the risk-free rate lookup
	MaxAllocation      float64 // Default per-asset weight cap
	MinTargetReturn    float64 // Floor used when no target return is requested
	MonteCarloDraws    int     // Default number of Monte Carlo portfolios
	OutlookRefreshSpec string  // Cron spec for the market-outlook refresh job
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PESAGURU_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		Port:               getEnvAsInt("PESAGURU_PORT", 8002),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		MarketIndex:        getEnv("PESAGURU_MARKET_INDEX", "NSE20"),
		TBillTenorDays:     getEnvAsInt("PESAGURU_TBILL_TENOR_DAYS", 91),
		MaxAllocation:      getEnvAsFloat("PESAGURU_MAX_ALLOCATION", 0.25),
		MinTargetReturn:    getEnvAsFloat("PESAGURU_MIN_TARGET_RETURN", 0.08),
		MonteCarloDraws:    getEnvAsInt("PESAGURU_MONTE_CARLO_DRAWS", 10000),
		OutlookRefreshSpec: getEnv("PESAGURU_OUTLOOK_REFRESH_SPEC", "0 6 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.MaxAllocation <= 0 || c.MaxAllocation > 1 {
		return fmt.Errorf("max allocation must be in (0, 1], got %v", c.MaxAllocation)
	}
	if c.MonteCarloDraws <= 0 {
		return fmt.Errorf("monte carlo draws must be positive, got %d", c.MonteCarloDraws)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
