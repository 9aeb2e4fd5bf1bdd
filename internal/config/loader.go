// Package config loads the process configuration from the environment,
// following the godotenv + os.Getenv convention already used across this
// codebase's services.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds every environment-derived setting the five components need.
type Config struct {
	// Exchange credentials
	BinanceAPIKey    string
	BinanceAPISecret string
	IsTestnet        bool

	// Pipeline scope
	Symbols   []string
	Timeframe string

	// Stream bus
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StreamBlockMs int64

	StreamMaxLenMarket1m int64
	StreamMaxLenMarket2m int64
	StreamMaxLenInd      int64
	StreamMaxLenSignal   int64
	StreamRetentionMs    int64

	// Calculator
	CatchupThresholdMs int64
	DefaultTickSize    decimal.Decimal

	// Ingestor backfill
	BackfillOnStart bool
	Backfill1mLimit int
	BackfillMin2m   int

	// Router
	RouterRefreshSeconds int

	// Executor
	DefaultLeverage     int
	DefaultTPRMultiple  decimal.Decimal
	MaxRetries          int
	BackoffFactor       float64

	// Monitor
	OrderMonitorIntervalSeconds int
	BalanceTTLSeconds           int

	// Operator alerting
	TelegramBotToken string
	TelegramChatID   int64

	// Dry-run: swap the trading adapter for a logging no-op.
	DryRunMode bool

	// Bot config seed file (JSON array of BotConfig), since the admin
	// CRUD path that owns bot configuration lives outside this core.
	BotsConfigFile string
}

// Load reads .env (if present) and the process environment into a Config,
// applying the same defaults-on-missing-value behavior as the rest of this
// codebase's loaders.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found. Relying on system environment variables.")
	}

	cfg := &Config{
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: firstNonEmpty(os.Getenv("BINANCE_API_SECRET"), os.Getenv("BINANCE_SECRET_KEY")),
		IsTestnet:        envBool("BINANCE_TESTNET", false),

		Symbols:   envCSV("SYMBOLS", []string{"BTCUSDT"}),
		Timeframe: envString("TIMEFRAME", "2m"),

		RedisAddr:     envString("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		StreamBlockMs: envInt64("STREAM_BLOCK_MS", 15000),

		StreamMaxLenMarket1m: envInt64("STREAM_MAXLEN_MARKET_1M", 5000),
		StreamMaxLenMarket2m: envInt64("STREAM_MAXLEN_MARKET_2M", 5000),
		StreamMaxLenInd:      envInt64("STREAM_MAXLEN_IND", 5000),
		StreamMaxLenSignal:   envInt64("STREAM_MAXLEN_SIGNAL", 5000),
		StreamRetentionMs:    envInt64("STREAM_RETENTION_MS", int64(7*24*time.Hour/time.Millisecond)),

		CatchupThresholdMs: envInt64("CATCHUP_THRESHOLD_MS", 15000),
		DefaultTickSize:    envDecimal("DEFAULT_TICK_SIZE", decimal.NewFromFloat(0.1)),

		BackfillOnStart: envBool("BACKFILL_ON_START", true),
		Backfill1mLimit: envInt("BACKFILL_1M_LIMIT", 500),
		BackfillMin2m:   envInt("BACKFILL_MIN_2M", 150),

		RouterRefreshSeconds: envInt("ROUTER_REFRESH_SECONDS", 60),

		DefaultLeverage:    envInt("DEFAULT_LEVERAGE", 10),
		DefaultTPRMultiple: envDecimal("DEFAULT_TP_R_MULTIPLE", decimal.NewFromFloat(1.5)),
		MaxRetries:         envInt("MAX_RETRIES", 3),
		BackoffFactor:      envFloat("BACKOFF_FACTOR", 0.5),

		OrderMonitorIntervalSeconds: envInt("ORDER_MONITOR_INTERVAL_SECONDS", 2),
		BalanceTTLSeconds:           envInt("BALANCE_TTL_SECONDS", 30),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   envInt64("TELEGRAM_CHAT_ID", 0),

		DryRunMode: envBool("DRY_RUN_MODE", false),

		BotsConfigFile: os.Getenv("BOTS_CONFIG_FILE"),
	}

	if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
		log.Println("⚠️  CRITICAL: Binance credentials missing — exchange calls will fail unless DRY_RUN_MODE is set.")
	}

	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envCSV(key string, def []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func envBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func envInt64(key string, def int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func envDecimal(key string, def decimal.Decimal) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return def
	}
	return v
}
