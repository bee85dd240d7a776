package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	AppPort string `yaml:"app_port"`
	IsProd  bool   `yaml:"is_prod"`

	DBDriver    string `yaml:"db_driver"` // postgres or sqlite
	DatabaseURL string `yaml:"database_url"`

	RedisAddr string `yaml:"redis_addr"` // empty disables quote caching
	RedisPass string `yaml:"redis_pass"`
	RedisDB   int    `yaml:"redis_db"`

	QuoteProvider       string        `yaml:"quote_provider"` // alpaca or sim
	AlpacaAPIKey        string        `yaml:"alpaca_api_key"`
	AlpacaAPISecret     string        `yaml:"alpaca_api_secret"`
	AlpacaDataURL       string        `yaml:"alpaca_data_url"`
	QuoteTimeout        time.Duration `yaml:"quote_timeout"`
	QuoteCacheTTL       time.Duration `yaml:"quote_cache_ttl"`
	PriceUpdateInterval time.Duration `yaml:"price_update_interval"`
	PriceStaleness      time.Duration `yaml:"price_staleness"`

	UserID          int64  `yaml:"user_id"`
	Username        string `yaml:"username"`
	StartingBalance string `yaml:"starting_balance"`
	Currency        string `yaml:"currency"`
	TradeMaxRetries int    `yaml:"trade_max_retries"`
	// AutoInitUser creates the user at startup. Off by default so that only
	// POST /init_user creates it.
	AutoInitUser bool `yaml:"auto_init_user"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text or json
}

// Default returns a Config populated with development defaults.
func Default() *Config {
	return &Config{
		AppPort:             "8080",
		DBDriver:            "sqlite",
		DatabaseURL:         "file:stocksim.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		QuoteProvider:       "sim",
		QuoteTimeout:        5 * time.Second,
		QuoteCacheTTL:       10 * time.Second,
		PriceUpdateInterval: time.Hour,
		PriceStaleness:      15 * time.Minute,
		UserID:              1,
		Username:            "alex",
		StartingBalance:     "1000000.00",
		Currency:            "USD",
		TradeMaxRetries:     3,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// LoadConfig loads the .env file if present, then the optional YAML file at
// path, then environment overrides. The result is validated.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StartingBalanceDecimal returns the parsed starting balance. Validate
// guarantees it parses.
func (c *Config) StartingBalanceDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(c.StartingBalance)
	return d
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid DB_DRIVER %q, must be postgres or sqlite", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.QuoteProvider {
	case "sim":
	case "alpaca":
		if c.AlpacaAPIKey == "" || c.AlpacaAPISecret == "" {
			return fmt.Errorf("ALPACA_API_KEY and ALPACA_API_SECRET are required for the alpaca quote provider")
		}
	default:
		return fmt.Errorf("invalid QUOTE_PROVIDER %q, must be alpaca or sim", c.QuoteProvider)
	}
	if c.QuoteTimeout <= 0 {
		return fmt.Errorf("QUOTE_TIMEOUT must be positive")
	}
	if c.QuoteCacheTTL < 0 {
		return fmt.Errorf("QUOTE_CACHE_TTL must not be negative")
	}
	if c.PriceUpdateInterval <= 0 {
		return fmt.Errorf("PRICE_UPDATE_INTERVAL must be positive")
	}
	if c.UserID <= 0 {
		return fmt.Errorf("USER_ID must be positive")
	}
	if c.Username == "" {
		return fmt.Errorf("USERNAME is required")
	}
	bal, err := decimal.NewFromString(c.StartingBalance)
	if err != nil {
		return fmt.Errorf("invalid STARTING_BALANCE %q: %w", c.StartingBalance, err)
	}
	if bal.IsNegative() {
		return fmt.Errorf("STARTING_BALANCE must not be negative")
	}
	if c.TradeMaxRetries < 1 {
		return fmt.Errorf("TRADE_MAX_RETRIES must be at least 1")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q, must be text or json", c.LogFormat)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	setStr(&cfg.AppPort, "APP_PORT")
	setStr(&cfg.DBDriver, "DB_DRIVER")
	// POSTGRES_URL is kept for existing deployments; it implies the postgres driver.
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.DatabaseURL = v
		cfg.DBDriver = "postgres"
	}
	setStr(&cfg.DatabaseURL, "DATABASE_URL")
	setStr(&cfg.RedisAddr, "REDIS_ADDR")
	setStr(&cfg.RedisPass, "REDIS_PASS")
	setStr(&cfg.QuoteProvider, "QUOTE_PROVIDER")
	setStr(&cfg.AlpacaAPIKey, "ALPACA_API_KEY")
	setStr(&cfg.AlpacaAPISecret, "ALPACA_API_SECRET")
	setStr(&cfg.AlpacaDataURL, "ALPACA_DATA_URL")
	setStr(&cfg.Username, "USERNAME")
	setStr(&cfg.StartingBalance, "STARTING_BALANCE")
	setStr(&cfg.Currency, "CURRENCY")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setStr(&cfg.LogFormat, "LOG_FORMAT")
	if v := os.Getenv("IS_PROD"); v != "" {
		cfg.IsProd = v == "true"
	}
	if v := os.Getenv("AUTO_INIT_USER"); v != "" {
		cfg.AutoInitUser = v == "true"
	}

	if err := setInt(&cfg.RedisDB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&cfg.TradeMaxRetries, "TRADE_MAX_RETRIES"); err != nil {
		return err
	}
	if v := os.Getenv("USER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid USER_ID: %w", err)
		}
		cfg.UserID = id
	}

	for key, dst := range map[string]*time.Duration{
		"QUOTE_TIMEOUT":         &cfg.QuoteTimeout,
		"QUOTE_CACHE_TTL":       &cfg.QuoteCacheTTL,
		"PRICE_UPDATE_INTERVAL": &cfg.PriceUpdateInterval,
		"PRICE_STALENESS":       &cfg.PriceStaleness,
	} {
		if err := setDuration(dst, key); err != nil {
			return err
		}
	}
	return nil
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

// setDuration accepts Go duration strings ("30s") or a bare number of seconds,
// which is how PRICE_UPDATE_INTERVAL has always been given.
func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
