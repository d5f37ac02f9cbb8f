package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/model"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "papertrade.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !c.InitialBalance.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("initial balance: %s", c.InitialBalance)
	}
	if len(c.Universe) != 16 {
		t.Errorf("universe: %d symbols", len(c.Universe))
	}
}

func TestLoadFile_OverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
http_addr: ":9000"
initial_balance: "250000.50"
universe: [TCS, INFY]
redis:
  addr: redis:6379
  breaker:
    max_failures: 3
    reset_timeout: 5s
  lookback:
    longterm: 400
signal:
  fallback: fail
  weights:
    intraday: 0.2
    shortterm: 0.5
    longterm: 0.3
  params:
    oversold: 25
`)
	c, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.HTTPAddr != ":9000" || c.Redis.Addr != "redis:6379" {
		t.Errorf("addresses: %s %s", c.HTTPAddr, c.Redis.Addr)
	}
	if !c.InitialBalance.Equal(decimal.RequireFromString("250000.50")) {
		t.Errorf("initial balance: %s", c.InitialBalance)
	}
	if !reflect.DeepEqual(c.Universe, []string{"TCS", "INFY"}) {
		t.Errorf("universe: %v", c.Universe)
	}
	if c.Redis.Breaker.MaxFailures != 3 || c.Redis.Breaker.ResetTimeout != 5*time.Second {
		t.Errorf("breaker: %+v", c.Redis.Breaker)
	}
	if c.Redis.Lookback[model.HorizonLongTerm] != 400 || c.Redis.Lookback[model.HorizonIntraday] != 100 {
		t.Errorf("lookback: %v", c.Redis.Lookback)
	}
	if c.Signal.Fallback != "fail" || c.Signal.Weights.ShortTerm != 0.5 {
		t.Errorf("signal: %+v", c.Signal)
	}
	// Unset params keep their defaults.
	if c.Signal.Params.Oversold != 25 || c.Signal.Params.Overbought != 70 || c.Signal.Params.RSIWindow != 14 {
		t.Errorf("params: %+v", c.Signal.Params)
	}
	if c.SQLitePath != "data/papertrade.db" {
		t.Errorf("sqlite path default lost: %s", c.SQLitePath)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFile(writeFile(t, "http_addr: [unterminated")); err == nil {
		t.Error("expected parse error")
	}
	_, err := LoadFile(writeFile(t, `
signal:
  fallback: retry
  weights: {intraday: -1, shortterm: 1, longterm: 0}
slippage_bps: -5
`))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"fallback", "negative weight", "slippage_bps"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "http_addr: \":9000\"\nsqlite_path: /tmp/a.db\n")
	t.Setenv(FileEnv, path)
	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("SYMBOLS", " reliance, tcs ,,")
	t.Setenv("INITIAL_BALANCE", "5000")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SLIPPAGE_BPS", "5")

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.HTTPAddr != ":7000" {
		t.Errorf("env did not override file: %s", c.HTTPAddr)
	}
	if c.SQLitePath != "/tmp/a.db" {
		t.Errorf("file value lost: %s", c.SQLitePath)
	}
	if !reflect.DeepEqual(c.Universe, []string{"RELIANCE", "TCS"}) {
		t.Errorf("universe: %v", c.Universe)
	}
	if !c.InitialBalance.Equal(decimal.NewFromInt(5000)) || c.Redis.DB != 2 || c.SlippageBps != 5 {
		t.Errorf("numeric overrides: %s %d %d", c.InitialBalance, c.Redis.DB, c.SlippageBps)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("REDIS_DB", "zero")
	if _, err := Load(); err == nil {
		t.Error("expected error for non-numeric REDIS_DB")
	}
}

func TestValidate_TelegramPair(t *testing.T) {
	c := Default()
	c.Notify.TelegramToken = "tok"
	if err := c.Validate(); err == nil {
		t.Error("token without chat id must fail")
	}
	c.Notify.TelegramChatID = "42"
	if err := c.Validate(); err != nil {
		t.Errorf("complete telegram config rejected: %v", err)
	}
}
