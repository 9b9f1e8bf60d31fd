// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the WhalePulse engine.
type Config struct {
	// Binance futures market data
	BinanceWSURL   string
	BinanceRESTURL string
	QuoteAsset     string

	// Pump detection
	PumpPriceChangeMin  float64
	PumpVolumeRatioMin  float64
	PumpVolumeRatio5m   float64
	PumpVolumeRatio10m  float64
	PumpCooldown        time.Duration
	PumpVolumeBucketCap int

	// Trend-start detection
	TrendMinCandles       int
	TrendConsolidationMax float64
	TrendBreakoutMin      float64
	TrendConfirmCandles   int
	TrendCooldown         time.Duration

	// Momentum classification
	ParabolicVolumeRatio     float64
	ParabolicPriceChange     float64
	StaircaseVolumeRatio     float64
	InstitutionalVolumeRatio float64
	InstitutionalPriceChange float64
	BasicPriceChange         float64
	BasicVolumeRatio         float64
	MomentumCooldown         time.Duration

	// Signal policy: "independent" evaluates every detector per tick,
	// "first-wins" stops at the first detector that fires.
	SignalPolicy string

	// Trading
	FeeRate            float64
	TrailingStopPct    float64
	InitialBalance     float64
	MaxAlerts          int
	MaxHistory         int
	EvaluationInterval time.Duration

	// Enrichment
	EnrichCacheTTL      time.Duration
	EnrichRatePerMinute int
	Klines1mLimit       int
	Klines5mLimit       int
	RecentTradesLimit   int

	// HTTP API
	APIPort int

	// Logging
	LogLevel string
}

// Signal policy values.
const (
	PolicyIndependent = "independent"
	PolicyFirstWins   = "first-wins"
)

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		// Market data
		BinanceWSURL:   getEnv("BINANCE_WS_URL", "wss://fstream.binance.com/ws/!ticker@arr"),
		BinanceRESTURL: getEnv("BINANCE_REST_URL", "https://fapi.binance.com"),
		QuoteAsset:     getEnv("QUOTE_ASSET", "USDT"),

		// Pump detection
		PumpPriceChangeMin:  getEnvFloat("PUMP_PRICE_CHANGE_MIN", 1.0),
		PumpVolumeRatioMin:  getEnvFloat("PUMP_VOLUME_RATIO_MIN", 2.0),
		PumpVolumeRatio5m:   getEnvFloat("PUMP_VOLUME_RATIO_5M_AVG", 1.8),
		PumpVolumeRatio10m:  getEnvFloat("PUMP_VOLUME_RATIO_10M_AVG", 2.2),
		PumpCooldown:        time.Duration(getEnvInt("PUMP_COOLDOWN_MS", 180000)) * time.Millisecond,
		PumpVolumeBucketCap: getEnvInt("PUMP_VOLUME_BUCKETS", 20),

		// Trend-start
		TrendMinCandles:       getEnvInt("TREND_MIN_CANDLES", 10),
		TrendConsolidationMax: getEnvFloat("TREND_CONSOLIDATION_MAX", 1.5),
		TrendBreakoutMin:      getEnvFloat("TREND_BREAKOUT_MIN", 1.0),
		TrendConfirmCandles:   getEnvInt("TREND_CONFIRM_CANDLES", 2),
		TrendCooldown:         time.Duration(getEnvInt("TREND_COOLDOWN_MS", 60000)) * time.Millisecond,

		// Momentum
		ParabolicVolumeRatio:     getEnvFloat("PARABOLIC_VOLUME_RATIO", 2.5),
		ParabolicPriceChange:     getEnvFloat("PARABOLIC_PRICE_CHANGE", 0.8),
		StaircaseVolumeRatio:     getEnvFloat("STAIRCASE_VOLUME_RATIO", 1.5),
		InstitutionalVolumeRatio: getEnvFloat("INSTITUTIONAL_VOLUME_RATIO", 1.8),
		InstitutionalPriceChange: getEnvFloat("INSTITUTIONAL_PRICE_CHANGE", 0.6),
		BasicPriceChange:         getEnvFloat("BASIC_PRICE_CHANGE", 0.8),
		BasicVolumeRatio:         getEnvFloat("BASIC_VOLUME_RATIO", 1.3),
		MomentumCooldown:         time.Duration(getEnvInt("MOMENTUM_COOLDOWN_MS", 8000)) * time.Millisecond,

		SignalPolicy: getEnv("SIGNAL_POLICY", PolicyIndependent),

		// Trading
		FeeRate:            getEnvFloat("FEE_RATE", 0.0005),
		TrailingStopPct:    getEnvFloat("TRAILING_SL_PERCENT", 1.5),
		InitialBalance:     getEnvFloat("INITIAL_BALANCE", 10000),
		MaxAlerts:          getEnvInt("MAX_ALERTS", 1000),
		MaxHistory:         getEnvInt("MAX_HISTORY", 500),
		EvaluationInterval: time.Duration(getEnvInt("EVALUATION_INTERVAL_MS", 1000)) * time.Millisecond,

		// Enrichment
		EnrichCacheTTL:      time.Duration(getEnvInt("ENRICH_CACHE_MS", 60000)) * time.Millisecond,
		EnrichRatePerMinute: getEnvInt("ENRICH_RATE_PER_MINUTE", 50),
		Klines1mLimit:       getEnvInt("KLINES_1M_LIMIT", 60),
		Klines5mLimit:       getEnvInt("KLINES_5M_LIMIT", 24),
		RecentTradesLimit:   getEnvInt("RECENT_TRADES_LIMIT", 200),

		// API
		APIPort: getEnvInt("API_PORT", 8080),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.BinanceWSURL == "" {
		return fmt.Errorf("BINANCE_WS_URL is required")
	}

	if c.QuoteAsset == "" {
		return fmt.Errorf("QUOTE_ASSET is required")
	}

	if c.PumpPriceChangeMin <= 0 {
		return fmt.Errorf("PUMP_PRICE_CHANGE_MIN must be positive")
	}

	if c.TrendMinCandles < 2 {
		return fmt.Errorf("TREND_MIN_CANDLES must be at least 2")
	}

	if c.FeeRate < 0 || c.FeeRate >= 1 {
		return fmt.Errorf("FEE_RATE must be in [0, 1)")
	}

	if c.InitialBalance <= 0 {
		return fmt.Errorf("INITIAL_BALANCE must be positive")
	}

	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT must be between 1 and 65535")
	}

	switch strings.ToLower(c.SignalPolicy) {
	case PolicyIndependent, PolicyFirstWins:
	default:
		return fmt.Errorf("SIGNAL_POLICY must be %q or %q", PolicyIndependent, PolicyFirstWins)
	}

	return nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
