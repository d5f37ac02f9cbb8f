package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"papertrade/internal/model"
	"papertrade/internal/signal"
	"papertrade/internal/store/redis"
)

// FileEnv names the environment variable pointing at an optional YAML file.
const FileEnv = "PAPERTRADE_CONFIG"

// DefaultUniverse is the NSE symbol list tradable out of the box.
var DefaultUniverse = []string{
	"RELIANCE", "INFY", "TCS", "WIPRO", "HDFC", "HDFCBANK",
	"ICICIBANK", "SBIN", "BAJAJFINSV", "BHARTIARTL", "ITC",
	"AXISBANK", "MARUTI", "ONGC", "SUNPHARMA", "KOTAKBANK",
}

// Config holds all application configuration. Defaults are overlaid by the
// YAML file named in PAPERTRADE_CONFIG, then by environment variables.
type Config struct {
	Service         string        `yaml:"service"`
	LogLevel        string        `yaml:"log_level"`
	HTTPAddr        string        `yaml:"http_addr"`
	MetricsAddr     string        `yaml:"metrics_addr"` // empty serves /metrics on HTTPAddr
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Infrastructure
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`

	// Accounts and orders
	InitialBalance decimal.Decimal `yaml:"initial_balance"`
	Universe       []string        `yaml:"universe"`
	SlippageBps    int64           `yaml:"slippage_bps"`

	Signal SignalConfig `yaml:"signal"`
	Notify NotifyConfig `yaml:"notify"`

	// WSReplay is the number of recent events kept for reconnecting clients.
	WSReplay int `yaml:"ws_replay"`
}

// RedisConfig locates the market data store.
type RedisConfig struct {
	Addr     string                  `yaml:"addr"`
	Password string                  `yaml:"password"`
	DB       int                     `yaml:"db"`
	Timeout  time.Duration           `yaml:"timeout"`
	Breaker  redis.BreakerConfig     `yaml:"breaker"`
	Lookback map[model.Horizon]int64 `yaml:"lookback"`
}

// SignalConfig tunes the signal engine.
type SignalConfig struct {
	Params   signal.Params  `yaml:"params"`
	Weights  signal.Weights `yaml:"weights"`
	Fallback string         `yaml:"fallback"` // hold or fail
}

// NotifyConfig selects fill notification channels. The log channel is always on.
type NotifyConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service:         "papertrade",
		LogLevel:        "info",
		HTTPAddr:        ":8080",
		ShutdownTimeout: 10 * time.Second,

		SQLitePath: "data/papertrade.db",
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Timeout:  2 * time.Second,
			Breaker:  redis.BreakerConfig{MaxFailures: 5, ResetTimeout: 10 * time.Second},
			Lookback: redis.DefaultLookback(),
		},

		InitialBalance: decimal.NewFromInt(100000),
		Universe:       append([]string(nil), DefaultUniverse...),

		Signal: SignalConfig{
			Params:   signal.DefaultParams(),
			Weights:  signal.DefaultWeights(),
			Fallback: string(signal.FallbackHold),
		},

		WSReplay: 500,
	}
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment, then validates it.
func Load() (*Config, error) {
	c := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := c.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadFile builds the configuration from defaults and one YAML file, without
// environment overrides.
func LoadFile(path string) (*Config, error) {
	c := Default()
	if err := c.mergeFile(path); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.SQLitePath, "SQLITE_PATH")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Signal.Fallback, "SIGNAL_FALLBACK")
	setString(&c.Notify.WebhookURL, "WEBHOOK_URL")
	setString(&c.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")

	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Redis.DB = n
	}
	if v := os.Getenv("SLIPPAGE_BPS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SLIPPAGE_BPS: %w", err)
		}
		c.SlippageBps = n
	}
	if v := os.Getenv("INITIAL_BALANCE"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("INITIAL_BALANCE: %w", err)
		}
		c.InitialBalance = d
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Universe = ParseSymbols(v)
	}
	return nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.SQLitePath == "" {
		errs = append(errs, errors.New("sqlite_path is required"))
	}
	if c.InitialBalance.IsNegative() {
		errs = append(errs, fmt.Errorf("initial_balance must not be negative, got %s", c.InitialBalance))
	}
	if c.SlippageBps < 0 || c.SlippageBps > 1000 {
		errs = append(errs, fmt.Errorf("slippage_bps must be within [0, 1000], got %d", c.SlippageBps))
	}
	for _, s := range c.Universe {
		if s == "" || strings.ToUpper(s) != s {
			errs = append(errs, fmt.Errorf("universe symbol %q must be non-empty upper case", s))
		}
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, errors.New("telegram_token and telegram_chat_id must be set together"))
	}
	if err := c.Signal.Params.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Signal.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := signal.ParseFallbackPolicy(c.Signal.Fallback); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseSymbols splits a comma-separated list, trimming and upper-casing.
func ParseSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
