package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading core.
type Config struct {
	Port string

	// Broker endpoints and credentials
	BrokerDemo      bool
	BrokerAPIKey    string
	BrokerUsername  string
	BrokerPassword  string
	BrokerBaseURL   string
	BrokerStreamURL string

	// Per-category rate limits (requests per second)
	RateGlobal     float64
	RateMarketData float64
	RateTrading    float64
	RateAccount    float64

	// Trading universe
	Symbols    []string
	Timeframes []string
	PairsFile  string // optional YAML pair config overriding Symbols/Timeframes

	// Risk
	MaxPositions    int
	MaxRiskPerTrade float64 // percent of balance, e.g. 2 = 2%
	MaxDrawdown     float64 // percent of balance
	MinIncrement    float64 // broker's minimum tradable increment

	// Analysis collaborator
	AnalyzerURL     string
	AnalyzeInterval time.Duration

	// Candle cache
	CacheMaxAge  time.Duration
	CacheBackend string // "sqlite" (default) or "redis"
	RedisAddr    string
	RedisDB      int

	// Database
	DBPath string

	// Status API
	APIEnabled bool
	JWTSecret  string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	demo := getEnv("BROKER_DEMO", "true") == "true"
	baseURL := getEnv("BROKER_BASE_URL", "")
	if baseURL == "" {
		baseURL = "https://api-capital.backend-capital.com"
		if demo {
			baseURL = "https://demo-api-capital.backend-capital.com"
		}
	}
	streamURL := getEnv("BROKER_STREAM_URL", "")
	if streamURL == "" {
		streamURL = "wss://api-streaming-capital.backend-capital.com/connect"
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		BrokerDemo:      demo,
		BrokerAPIKey:    os.Getenv("BROKER_API_KEY"),
		BrokerUsername:  os.Getenv("BROKER_USERNAME"),
		BrokerPassword:  os.Getenv("BROKER_PASSWORD"),
		BrokerBaseURL:   baseURL,
		BrokerStreamURL: streamURL,
		RateGlobal:      getEnvFloat("RATE_GLOBAL_PER_SEC", 10),
		RateMarketData:  getEnvFloat("RATE_MARKET_DATA_PER_SEC", 5),
		RateTrading:     getEnvFloat("RATE_TRADING_PER_SEC", 1),
		RateAccount:     getEnvFloat("RATE_ACCOUNT_PER_SEC", 2),
		Symbols:         splitAndTrim(getEnv("SYMBOLS", "EURUSD,GBPUSD")),
		Timeframes:      splitAndTrim(getEnv("TIMEFRAMES", "1m,5m,15m")),
		PairsFile:       getEnv("PAIRS_FILE", ""),
		MaxPositions:    getEnvInt("MAX_POSITIONS", 3),
		MaxRiskPerTrade: getEnvFloat("MAX_RISK_PER_TRADE", 2),
		MaxDrawdown:     getEnvFloat("MAX_DRAWDOWN", 10),
		MinIncrement:    getEnvFloat("MIN_INCREMENT", 0.01),
		AnalyzerURL:     getEnv("ANALYZER_URL", "http://localhost:9000"),
		AnalyzeInterval: getEnvDuration("ANALYZE_INTERVAL", time.Minute),
		CacheMaxAge:     getEnvDuration("CACHE_MAX_AGE", 24*time.Hour),
		CacheBackend:    strings.ToLower(getEnv("CACHE_BACKEND", "sqlite")),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		DBPath:          getEnv("DB_PATH", "./data/tracker.db"),
		APIEnabled:      getEnv("API_ENABLED", "true") == "true",
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
