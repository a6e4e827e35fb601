package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv pins every variable Load reads to unset for the duration of
// the test, so results do not depend on the invoking shell.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"ASSISTANT_CONFIG", "ASSET", "SYMBOL", "WINDOW_DURATION",
		"TICK_INTERVAL", "SAMPLE_SPACING", "HISTORY_CAPACITY",
		"ATR_PERIOD", "ATR_MULTIPLIER", "ATR_MODE",
		"KLINE_INTERVAL", "KLINE_LIMIT", "KLINE_REFRESH",
		"GAMMA_API_URL", "CLOB_API_URL", "BINANCE_WS_URL",
		"MARKET_POLL_INTERVAL", "PRICE_POLL_INTERVAL",
		"REQUESTS_PER_SEC", "REQUEST_BURST",
		"REFERENCE_SOURCE", "CHAINLINK_RPC_URL", "CHAINLINK_POLL",
		"DATABASE_PATH", "SNAPSHOT_RETENTION",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"S3_BUCKET", "S3_PREFIX", "AWS_REGION",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "HTTP_ADDR",
		"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS",
		"LOG_MAX_AGE_DAYS",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Asset != "btc" {
		t.Errorf("Asset = %q, want btc", cfg.Asset)
	}
	if cfg.WindowDuration != 15*time.Minute {
		t.Errorf("WindowDuration = %s, want 15m", cfg.WindowDuration)
	}
	if cfg.TickInterval != time.Second {
		t.Errorf("TickInterval = %s, want 1s", cfg.TickInterval)
	}
	if cfg.ATRPeriod != 14 {
		t.Errorf("ATRPeriod = %d, want 14", cfg.ATRPeriod)
	}
	if cfg.ATRMode != "simple" {
		t.Errorf("ATRMode = %q, want simple", cfg.ATRMode)
	}
	if cfg.GammaAPIURL != "https://gamma-api.polymarket.com" {
		t.Errorf("GammaAPIURL = %q", cfg.GammaAPIURL)
	}
	if cfg.ReferenceSource != "spot" {
		t.Errorf("ReferenceSource = %q, want spot", cfg.ReferenceSource)
	}
	if cfg.SnapshotRetention != 24*time.Hour {
		t.Errorf("SnapshotRetention = %s, want 24h", cfg.SnapshotRetention)
	}
	if cfg.TelegramEnabled() {
		t.Error("TelegramEnabled should be false with no token")
	}
	if cfg.CacheEnabled() {
		t.Error("CacheEnabled should be false with no addr")
	}
	if cfg.ArchiveEnabled() {
		t.Error("ArchiveEnabled should be false with no bucket")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASSET", "eth")
	t.Setenv("SYMBOL", "ETHUSDT")
	t.Setenv("WINDOW_DURATION", "1h")
	t.Setenv("SAMPLE_SPACING", "10s")
	t.Setenv("ATR_PERIOD", "7")
	t.Setenv("ATR_MULTIPLIER", "1.25")
	t.Setenv("ATR_MODE", "wilder")
	t.Setenv("REFERENCE_SOURCE", "chainlink")
	t.Setenv("SNAPSHOT_RETENTION", "48h")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100200300")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Asset != "eth" || cfg.Symbol != "ETHUSDT" {
		t.Errorf("asset/symbol = %q/%q", cfg.Asset, cfg.Symbol)
	}
	if cfg.WindowDuration != time.Hour {
		t.Errorf("WindowDuration = %s, want 1h", cfg.WindowDuration)
	}
	if cfg.SampleSpacing != 10*time.Second {
		t.Errorf("SampleSpacing = %s, want 10s", cfg.SampleSpacing)
	}
	if cfg.ATRPeriod != 7 || cfg.ATRMultiplier != 1.25 || cfg.ATRMode != "wilder" {
		t.Errorf("ATR settings = %d/%g/%q", cfg.ATRPeriod, cfg.ATRMultiplier, cfg.ATRMode)
	}
	if cfg.ReferenceSource != "chainlink" {
		t.Errorf("ReferenceSource = %q", cfg.ReferenceSource)
	}
	if cfg.SnapshotRetention != 48*time.Hour {
		t.Errorf("SnapshotRetention = %s, want 48h", cfg.SnapshotRetention)
	}
	if !cfg.TelegramEnabled() {
		t.Error("TelegramEnabled should be true")
	}
	if cfg.TelegramChatID != -100200300 {
		t.Errorf("TelegramChatID = %d", cfg.TelegramChatID)
	}
	if !cfg.CacheEnabled() {
		t.Error("CacheEnabled should be true")
	}
}

func TestLoadMalformedEnvFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("ATR_PERIOD", "not-a-number")
	t.Setenv("WINDOW_DURATION", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ATRPeriod != 14 {
		t.Errorf("ATRPeriod = %d, want default 14", cfg.ATRPeriod)
	}
	if cfg.WindowDuration != 15*time.Minute {
		t.Errorf("WindowDuration = %s, want default 15m", cfg.WindowDuration)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "assistant.yaml")
	body := strings.Join([]string{
		"asset: eth",
		"window_duration: 1h",
		"atr_period: 5",
		"snapshot_retention: 72h",
		"http_addr: ':9090'",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ASSISTANT_CONFIG", path)
	// Env wins over the file.
	t.Setenv("ASSET", "sol")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Asset != "sol" {
		t.Errorf("Asset = %q, want env override sol", cfg.Asset)
	}
	if cfg.WindowDuration != time.Hour {
		t.Errorf("WindowDuration = %s, want 1h from file", cfg.WindowDuration)
	}
	if cfg.ATRPeriod != 5 {
		t.Errorf("ATRPeriod = %d, want 5 from file", cfg.ATRPeriod)
	}
	if cfg.SnapshotRetention != 72*time.Hour {
		t.Errorf("SnapshotRetention = %s, want 72h from file", cfg.SnapshotRetention)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090 from file", cfg.HTTPAddr)
	}
	// Keys the file does not name keep their defaults.
	if cfg.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q, want default BTCUSDT", cfg.Symbol)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASSISTANT_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadBadDurationInFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "assistant.yaml")
	if err := os.WriteFile(path, []byte("tick_interval: whenever\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ASSISTANT_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config { return defaults() }

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty asset", func(c *Config) { c.Asset = "" }},
		{"zero window", func(c *Config) { c.WindowDuration = 0 }},
		{"negative tick", func(c *Config) { c.TickInterval = -time.Second }},
		{"zero history", func(c *Config) { c.HistoryCapacity = 0 }},
		{"zero atr period", func(c *Config) { c.ATRPeriod = 0 }},
		{"negative multiplier", func(c *Config) { c.ATRMultiplier = -1 }},
		{"unknown atr mode", func(c *Config) { c.ATRMode = "exponential" }},
		{"kline limit below period", func(c *Config) { c.KlineLimit = 10; c.ATRPeriod = 14 }},
		{"unknown reference source", func(c *Config) { c.ReferenceSource = "oracle" }},
		{"zero rate limit", func(c *Config) { c.RequestsPerSec = 0 }},
		{"zero retention", func(c *Config) { c.SnapshotRetention = 0 }},
		{"empty http addr", func(c *Config) { c.HTTPAddr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}
