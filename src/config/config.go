package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const envPrefix = "VENUE_"

// Settings holds everything the venue process needs. Fields carry both the
// appsettings.json key and the environment variable name; durations are
// environment-only (Go duration syntax).
type Settings struct {
	Host     string `json:"host" env:"HOST"`
	Port     int    `json:"port" env:"PORT"`
	LogLevel string `json:"log_level" env:"LOG_LEVEL"`
	// LogFile is empty, "none" or "disabled" to log to stdout only.
	LogFile   string `json:"log_file" env:"LOG_FILE"`
	LogFormat string `json:"log_format" env:"LOG_FORMAT"`

	MaxOrderSize int64           `json:"max_order_size" env:"MAX_ORDER_SIZE"`
	MinPrice     decimal.Decimal `json:"min_price" env:"MIN_PRICE"`

	MatchInterval   time.Duration `json:"-" env:"MATCH_INTERVAL"`
	ShutdownTimeout time.Duration `json:"-" env:"SHUTDOWN_TIMEOUT"`
	// VerifyBook re-checks the book after every matching pass and panics on
	// any inconsistency.
	VerifyBook     bool  `json:"verify_book" env:"VERIFY_BOOK"`
	LatencyWindow  int   `json:"latency_window" env:"LATENCY_WINDOW"`
	DefaultDepth   int   `json:"orderbook_default_depth" env:"ORDERBOOK_DEFAULT_DEPTH"`
	MaxDepth       int   `json:"orderbook_max_depth" env:"ORDERBOOK_MAX_DEPTH"`
	MaintenanceOn  bool  `json:"maintenance_mode" env:"MAINTENANCE_MODE"`
	MaxConcurrent  int64 `json:"max_concurrent_requests" env:"MAX_CONCURRENT_REQUESTS"`
	RequestLogging bool  `json:"request_logging" env:"REQUEST_LOGGING"`

	RateLimit RateLimitSettings `json:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Ledger    LedgerSettings    `json:"ledger" envPrefix:"LEDGER_"`
	Kafka     KafkaSettings     `json:"kafka" envPrefix:"KAFKA_"`
}

type RateLimitSettings struct {
	Disabled    bool          `json:"disabled" env:"DISABLED"`
	MaxRequests int           `json:"max_requests" env:"MAX"`
	Window      time.Duration `json:"-" env:"WINDOW"`
}

// LedgerSettings points at the sqlite trade journal. An empty path disables it.
type LedgerSettings struct {
	Path string `json:"path" env:"PATH"`
}

// KafkaSettings configures the trade publisher. No brokers disables it.
type KafkaSettings struct {
	Brokers []string `json:"brokers" env:"BROKERS" envSeparator:","`
	Topic   string   `json:"topic" env:"TOPIC"`
}

func Default() Settings {
	return Settings{
		Host:            "0.0.0.0",
		Port:            8080,
		LogLevel:        "info",
		LogFormat:       "json",
		MaxOrderSize:    1000,
		MinPrice:        decimal.RequireFromString("0.01"),
		MatchInterval:   100 * time.Millisecond,
		ShutdownTimeout: 10 * time.Second,
		LatencyWindow:   10000,
		DefaultDepth:    10,
		MaxDepth:        1000,
		RequestLogging:  true,
		RateLimit: RateLimitSettings{
			MaxRequests: 100,
			Window:      time.Second,
		},
		Kafka: KafkaSettings{
			Topic: "venue.trades",
		},
	}
}

// appSettingsFile mirrors the layout of appsettings.json.
type appSettingsFile struct {
	TradingEngineServerConfiguration struct {
		TradingEngineServerSettings json.RawMessage `json:"TradingEngineServerSettings"`
	} `json:"TradingEngineServerConfiguration"`
}

// Load builds Settings from defaults, then the JSON file at path (skipped
// when path is empty or the file does not exist), then a .env file in the
// working directory, then VENUE_* environment variables.
func Load(path string) (Settings, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Settings{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("load .env: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Settings{}, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// MustLoad is Load for process start-up.
func MustLoad(path string) Settings {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func loadFile(path string, cfg *Settings) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var file appSettingsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	raw := file.TradingEngineServerConfiguration.TradingEngineServerSettings
	if len(raw) == 0 {
		return fmt.Errorf("parse %s: missing TradingEngineServerConfiguration.TradingEngineServerSettings", path)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (s Settings) Validate() error {
	switch {
	case s.Port < 0 || s.Port > 65535:
		return fmt.Errorf("config: port %d out of range", s.Port)
	case s.MaxOrderSize <= 0:
		return fmt.Errorf("config: max_order_size must be positive, got %d", s.MaxOrderSize)
	case s.MinPrice.IsNegative():
		return fmt.Errorf("config: min_price must not be negative, got %s", s.MinPrice)
	case s.MatchInterval <= 0:
		return fmt.Errorf("config: match_interval must be positive, got %s", s.MatchInterval)
	case s.ShutdownTimeout <= 0:
		return fmt.Errorf("config: shutdown_timeout must be positive, got %s", s.ShutdownTimeout)
	case s.DefaultDepth <= 0 || s.MaxDepth < s.DefaultDepth:
		return fmt.Errorf("config: orderbook depth %d/%d invalid", s.DefaultDepth, s.MaxDepth)
	case !s.RateLimit.Disabled && (s.RateLimit.MaxRequests <= 0 || s.RateLimit.Window < time.Second):
		return fmt.Errorf("config: rate limit %d per %s invalid", s.RateLimit.MaxRequests, s.RateLimit.Window)
	}
	return nil
}

func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
