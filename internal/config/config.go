package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime knob for the assistant. Values resolve in
// three layers: built-in defaults, then an optional YAML file pointed at
// by ASSISTANT_CONFIG, then environment variables.
type Config struct {
	// Market selection
	Asset          string
	Symbol         string
	WindowDuration time.Duration

	// Engine cadence
	TickInterval    time.Duration
	SampleSpacing   time.Duration
	HistoryCapacity int

	// Indicators
	ATRPeriod     int
	ATRMultiplier float64
	ATRMode       string
	KlineInterval string
	KlineLimit    int
	KlineRefresh  time.Duration

	// Upstream APIs
	GammaAPIURL        string
	ClobAPIURL         string
	BinanceWSURL       string
	MarketPollInterval time.Duration
	PricePollInterval  time.Duration
	RequestsPerSec     float64
	RequestBurst       int

	// Reference price capture: "spot" uses the exchange feed,
	// "chainlink" reads the on-chain oracle.
	ReferenceSource string
	ChainlinkRPCURL string
	ChainlinkPoll   time.Duration

	// Database
	DatabasePath      string
	SnapshotRetention time.Duration

	// Optional services; empty values disable them.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	S3Bucket       string
	S3Prefix       string
	AWSRegion      string
	TelegramToken  string
	TelegramChatID int64

	// HTTP API
	HTTPAddr string

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// Load builds the effective configuration. A missing YAML file is an
// error only when ASSISTANT_CONFIG explicitly names one.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("ASSISTANT_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Asset:          "btc",
		Symbol:         "BTCUSDT",
		WindowDuration: 15 * time.Minute,

		TickInterval:    time.Second,
		SampleSpacing:   5 * time.Second,
		HistoryCapacity: 720,

		ATRPeriod:     14,
		ATRMultiplier: 0.5,
		ATRMode:       "simple",
		KlineInterval: "1m",
		KlineLimit:    100,
		KlineRefresh:  30 * time.Second,

		GammaAPIURL:        "https://gamma-api.polymarket.com",
		ClobAPIURL:         "https://clob.polymarket.com",
		BinanceWSURL:       "wss://stream.binance.com:9443/ws",
		MarketPollInterval: 6 * time.Second,
		PricePollInterval:  2 * time.Second,
		RequestsPerSec:     8,
		RequestBurst:       4,

		ReferenceSource: "spot",
		ChainlinkRPCURL: "https://polygon-rpc.com",
		ChainlinkPoll:   2 * time.Second,

		DatabasePath:      "data/assistant.db",
		SnapshotRetention: 24 * time.Hour,

		HTTPAddr: ":8080",

		LogLevel:      "info",
		LogMaxSizeMB:  100,
		LogMaxBackups: 3,
		LogMaxAgeDays: 28,
	}
}

// fileConfig mirrors Config with optional YAML keys so an overlay file
// only overrides what it names. Durations are written as Go duration
// strings ("15m", "5s").
type fileConfig struct {
	Asset          *string `yaml:"asset"`
	Symbol         *string `yaml:"symbol"`
	WindowDuration *string `yaml:"window_duration"`

	TickInterval    *string `yaml:"tick_interval"`
	SampleSpacing   *string `yaml:"sample_spacing"`
	HistoryCapacity *int    `yaml:"history_capacity"`

	ATRPeriod     *int     `yaml:"atr_period"`
	ATRMultiplier *float64 `yaml:"atr_multiplier"`
	ATRMode       *string  `yaml:"atr_mode"`
	KlineInterval *string  `yaml:"kline_interval"`
	KlineLimit    *int     `yaml:"kline_limit"`
	KlineRefresh  *string  `yaml:"kline_refresh"`

	GammaAPIURL        *string  `yaml:"gamma_api_url"`
	ClobAPIURL         *string  `yaml:"clob_api_url"`
	BinanceWSURL       *string  `yaml:"binance_ws_url"`
	MarketPollInterval *string  `yaml:"market_poll_interval"`
	PricePollInterval  *string  `yaml:"price_poll_interval"`
	RequestsPerSec     *float64 `yaml:"requests_per_sec"`
	RequestBurst       *int     `yaml:"request_burst"`

	ReferenceSource *string `yaml:"reference_source"`
	ChainlinkRPCURL *string `yaml:"chainlink_rpc_url"`
	ChainlinkPoll   *string `yaml:"chainlink_poll"`

	DatabasePath      *string `yaml:"database_path"`
	SnapshotRetention *string `yaml:"snapshot_retention"`

	RedisAddr     *string `yaml:"redis_addr"`
	RedisPassword *string `yaml:"redis_password"`
	RedisDB       *int    `yaml:"redis_db"`
	S3Bucket      *string `yaml:"s3_bucket"`
	S3Prefix      *string `yaml:"s3_prefix"`
	AWSRegion     *string `yaml:"aws_region"`

	TelegramToken  *string `yaml:"telegram_token"`
	TelegramChatID *int64  `yaml:"telegram_chat_id"`

	HTTPAddr *string `yaml:"http_addr"`

	LogLevel      *string `yaml:"log_level"`
	LogFile       *string `yaml:"log_file"`
	LogMaxSizeMB  *int    `yaml:"log_max_size_mb"`
	LogMaxBackups *int    `yaml:"log_max_backups"`
	LogMaxAgeDays *int    `yaml:"log_max_age_days"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	setString(&c.Asset, fc.Asset)
	setString(&c.Symbol, fc.Symbol)
	if err := setDuration(&c.WindowDuration, fc.WindowDuration); err != nil {
		return fmt.Errorf("window_duration: %w", err)
	}

	if err := setDuration(&c.TickInterval, fc.TickInterval); err != nil {
		return fmt.Errorf("tick_interval: %w", err)
	}
	if err := setDuration(&c.SampleSpacing, fc.SampleSpacing); err != nil {
		return fmt.Errorf("sample_spacing: %w", err)
	}
	setInt(&c.HistoryCapacity, fc.HistoryCapacity)

	setInt(&c.ATRPeriod, fc.ATRPeriod)
	setFloat(&c.ATRMultiplier, fc.ATRMultiplier)
	setString(&c.ATRMode, fc.ATRMode)
	setString(&c.KlineInterval, fc.KlineInterval)
	setInt(&c.KlineLimit, fc.KlineLimit)
	if err := setDuration(&c.KlineRefresh, fc.KlineRefresh); err != nil {
		return fmt.Errorf("kline_refresh: %w", err)
	}

	setString(&c.GammaAPIURL, fc.GammaAPIURL)
	setString(&c.ClobAPIURL, fc.ClobAPIURL)
	setString(&c.BinanceWSURL, fc.BinanceWSURL)
	if err := setDuration(&c.MarketPollInterval, fc.MarketPollInterval); err != nil {
		return fmt.Errorf("market_poll_interval: %w", err)
	}
	if err := setDuration(&c.PricePollInterval, fc.PricePollInterval); err != nil {
		return fmt.Errorf("price_poll_interval: %w", err)
	}
	setFloat(&c.RequestsPerSec, fc.RequestsPerSec)
	setInt(&c.RequestBurst, fc.RequestBurst)

	setString(&c.ReferenceSource, fc.ReferenceSource)
	setString(&c.ChainlinkRPCURL, fc.ChainlinkRPCURL)
	if err := setDuration(&c.ChainlinkPoll, fc.ChainlinkPoll); err != nil {
		return fmt.Errorf("chainlink_poll: %w", err)
	}

	setString(&c.DatabasePath, fc.DatabasePath)
	if err := setDuration(&c.SnapshotRetention, fc.SnapshotRetention); err != nil {
		return fmt.Errorf("snapshot_retention: %w", err)
	}

	setString(&c.RedisAddr, fc.RedisAddr)
	setString(&c.RedisPassword, fc.RedisPassword)
	setInt(&c.RedisDB, fc.RedisDB)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Prefix, fc.S3Prefix)
	setString(&c.AWSRegion, fc.AWSRegion)

	setString(&c.TelegramToken, fc.TelegramToken)
	if fc.TelegramChatID != nil {
		c.TelegramChatID = *fc.TelegramChatID
	}

	setString(&c.HTTPAddr, fc.HTTPAddr)

	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFile, fc.LogFile)
	setInt(&c.LogMaxSizeMB, fc.LogMaxSizeMB)
	setInt(&c.LogMaxBackups, fc.LogMaxBackups)
	setInt(&c.LogMaxAgeDays, fc.LogMaxAgeDays)

	return nil
}

func (c *Config) applyEnv() {
	c.Asset = getEnv("ASSET", c.Asset)
	c.Symbol = getEnv("SYMBOL", c.Symbol)
	c.WindowDuration = getEnvDuration("WINDOW_DURATION", c.WindowDuration)

	c.TickInterval = getEnvDuration("TICK_INTERVAL", c.TickInterval)
	c.SampleSpacing = getEnvDuration("SAMPLE_SPACING", c.SampleSpacing)
	c.HistoryCapacity = getEnvInt("HISTORY_CAPACITY", c.HistoryCapacity)

	c.ATRPeriod = getEnvInt("ATR_PERIOD", c.ATRPeriod)
	c.ATRMultiplier = getEnvFloat("ATR_MULTIPLIER", c.ATRMultiplier)
	c.ATRMode = getEnv("ATR_MODE", c.ATRMode)
	c.KlineInterval = getEnv("KLINE_INTERVAL", c.KlineInterval)
	c.KlineLimit = getEnvInt("KLINE_LIMIT", c.KlineLimit)
	c.KlineRefresh = getEnvDuration("KLINE_REFRESH", c.KlineRefresh)

	c.GammaAPIURL = getEnv("GAMMA_API_URL", c.GammaAPIURL)
	c.ClobAPIURL = getEnv("CLOB_API_URL", c.ClobAPIURL)
	c.BinanceWSURL = getEnv("BINANCE_WS_URL", c.BinanceWSURL)
	c.MarketPollInterval = getEnvDuration("MARKET_POLL_INTERVAL", c.MarketPollInterval)
	c.PricePollInterval = getEnvDuration("PRICE_POLL_INTERVAL", c.PricePollInterval)
	c.RequestsPerSec = getEnvFloat("REQUESTS_PER_SEC", c.RequestsPerSec)
	c.RequestBurst = getEnvInt("REQUEST_BURST", c.RequestBurst)

	c.ReferenceSource = getEnv("REFERENCE_SOURCE", c.ReferenceSource)
	c.ChainlinkRPCURL = getEnv("CHAINLINK_RPC_URL", c.ChainlinkRPCURL)
	c.ChainlinkPoll = getEnvDuration("CHAINLINK_POLL", c.ChainlinkPoll)

	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.SnapshotRetention = getEnvDuration("SNAPSHOT_RETENTION", c.SnapshotRetention)

	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.S3Bucket = getEnv("S3_BUCKET", c.S3Bucket)
	c.S3Prefix = getEnv("S3_PREFIX", c.S3Prefix)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)

	c.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramToken)
	c.TelegramChatID = getEnvInt64("TELEGRAM_CHAT_ID", c.TelegramChatID)

	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.LogMaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", c.LogMaxSizeMB)
	c.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", c.LogMaxBackups)
	c.LogMaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", c.LogMaxAgeDays)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Asset == "" {
		return fmt.Errorf("config: ASSET must not be empty")
	}
	if c.Symbol == "" {
		return fmt.Errorf("config: SYMBOL must not be empty")
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("config: WINDOW_DURATION must be positive, got %s", c.WindowDuration)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("config: TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.SampleSpacing < 0 {
		return fmt.Errorf("config: SAMPLE_SPACING must not be negative, got %s", c.SampleSpacing)
	}
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("config: HISTORY_CAPACITY must be positive, got %d", c.HistoryCapacity)
	}
	if c.ATRPeriod <= 0 {
		return fmt.Errorf("config: ATR_PERIOD must be positive, got %d", c.ATRPeriod)
	}
	if c.ATRMultiplier < 0 {
		return fmt.Errorf("config: ATR_MULTIPLIER must not be negative, got %g", c.ATRMultiplier)
	}
	if c.ATRMode != "simple" && c.ATRMode != "wilder" {
		return fmt.Errorf("config: ATR_MODE must be \"simple\" or \"wilder\", got %q", c.ATRMode)
	}
	if c.KlineLimit < c.ATRPeriod+1 {
		return fmt.Errorf("config: KLINE_LIMIT %d too small for ATR_PERIOD %d, need at least %d bars",
			c.KlineLimit, c.ATRPeriod, c.ATRPeriod+1)
	}
	if c.ReferenceSource != "spot" && c.ReferenceSource != "chainlink" {
		return fmt.Errorf("config: REFERENCE_SOURCE must be \"spot\" or \"chainlink\", got %q", c.ReferenceSource)
	}
	if c.RequestsPerSec <= 0 {
		return fmt.Errorf("config: REQUESTS_PER_SEC must be positive, got %g", c.RequestsPerSec)
	}
	if c.SnapshotRetention <= 0 {
		return fmt.Errorf("config: SNAPSHOT_RETENTION must be positive, got %s", c.SnapshotRetention)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("config: HTTP_ADDR must not be empty")
	}
	return nil
}

// TelegramEnabled reports whether notification settings are complete.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// CacheEnabled reports whether a Redis endpoint is configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

// ArchiveEnabled reports whether an S3 bucket is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Bucket != ""
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
