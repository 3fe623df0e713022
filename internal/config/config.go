package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"SwapSentinel/internal/model"
	"SwapSentinel/internal/retry"
	"SwapSentinel/internal/strategy"
)

// Config holds all application configuration.
type Config struct {
	Solana struct {
		RPCURL string `yaml:"rpc_url"`
	} `yaml:"solana"`
	Wallet struct {
		PrivateKey string `yaml:"private_key"`
	} `yaml:"wallet"`
	Trading struct {
		SOLMint             string  `yaml:"sol_mint"`
		USDCMint            string  `yaml:"usdc_mint"`
		PositionSizeUSDC    float64 `yaml:"position_size_usdc"`
		MaxPositionSizeUSDC float64 `yaml:"max_position_size_usdc"`
		MaxSlippagePercent  float64 `yaml:"max_slippage_percent"`
		FeeReserveSOL       float64 `yaml:"fee_reserve_sol"`
	} `yaml:"trading"`
	Execution struct {
		QuoteURL               string  `yaml:"quote_url"`
		SwapURL                string  `yaml:"swap_url"`
		MaxRetries             int     `yaml:"max_retries"`
		RetryDelaySeconds      float64 `yaml:"retry_delay_seconds"`
		MaxRetryDelaySeconds   float64 `yaml:"max_retry_delay_seconds"`
		MaxQuoteRetries        int     `yaml:"max_quote_retries"`
		SkipConfirmation       bool    `yaml:"skip_confirmation"`
		ConfirmIntervalSeconds float64 `yaml:"confirm_interval_seconds"`
		ConfirmTimeoutSeconds  float64 `yaml:"confirm_timeout_seconds"`
	} `yaml:"execution"`
	Data struct {
		Historical          string  `yaml:"historical"` // binance | synthetic
		Runtime             string  `yaml:"runtime"`    // geckoterminal | binance | synthetic
		Fallback            string  `yaml:"fallback"`   // yahoo | binance | none
		BinanceSymbol       string  `yaml:"binance_symbol"`
		BinanceAPIKey       string  `yaml:"binance_api_key"`
		BinanceSecretKey    string  `yaml:"binance_secret_key"`
		GeckoPool           string  `yaml:"gecko_pool"`
		YahooTicker         string  `yaml:"yahoo_ticker"`
		PriceCacheSeconds   float64 `yaml:"price_cache_seconds"`
		BreakerFailures     int     `yaml:"breaker_failures"`
		BreakerResetSeconds float64 `yaml:"breaker_reset_seconds"`
	} `yaml:"data"`
	Candles struct {
		Timeframe    string `yaml:"timeframe"`
		HistoryLimit int    `yaml:"history_limit"`
	} `yaml:"candles"`
	Strategy strategy.Config `yaml:"strategy"`
	Schedule struct {
		Tick               string  `yaml:"tick"`
		Report             string  `yaml:"report"`
		ErrorPauseSeconds  float64 `yaml:"error_pause_seconds"`
		TickTimeoutSeconds float64 `yaml:"tick_timeout_seconds"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath     string `yaml:"sqlite_path"`
		DisableJournal bool   `yaml:"disable_journal"`
	} `yaml:"database"`
	State struct {
		File string `yaml:"file"`
	} `yaml:"state"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Tracing struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"tracing"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{Strategy: strategy.DefaultConfig()}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %v: %w", err, model.ErrConfiguration)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	var bad error
	num := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				bad = fmt.Errorf("%s=%q is not a number: %w", key, v, model.ErrConfiguration)
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				bad = fmt.Errorf("%s=%q is not an integer: %w", key, v, model.ErrConfiguration)
				return
			}
			*dst = n
		}
	}

	str("SOLANA_RPC_URL", &c.Solana.RPCURL)
	str("WALLET_PRIVATE_KEY", &c.Wallet.PrivateKey)
	str("SOL_MINT", &c.Trading.SOLMint)
	str("USDC_MINT", &c.Trading.USDCMint)
	num("POSITION_SIZE_USDC", &c.Trading.PositionSizeUSDC)
	num("MAX_POSITION_SIZE_USDC", &c.Trading.MaxPositionSizeUSDC)
	num("MAX_SLIPPAGE_PERCENT", &c.Trading.MaxSlippagePercent)
	integer("MAX_RETRIES", &c.Execution.MaxRetries)
	num("RETRY_DELAY_SECONDS", &c.Execution.RetryDelaySeconds)
	num("MAX_RETRY_DELAY_SECONDS", &c.Execution.MaxRetryDelaySeconds)
	str("OHLC_TIMEFRAME", &c.Candles.Timeframe)
	integer("OHLC_HISTORY_LIMIT", &c.Candles.HistoryLimit)
	str("STRATEGY", &c.Strategy.Name)
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	str("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	str("HTTPS_PROXY", &c.Proxy)
	str("SQLITE_PATH", &c.Database.SQLitePath)
	str("STATE_FILE", &c.State.File)
	str("METRICS_ADDR", &c.Metrics.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	if v := os.Getenv("CHECK_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("CHECK_INTERVAL_SECONDS=%q must be a positive integer: %w", v, model.ErrConfiguration)
		}
		c.Schedule.Tick = fmt.Sprintf("@every %ds", n)
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = v == "true" || v == "1"
	}
	return bad
}

func (c *Config) applyDefaults() {
	setStr := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	setNum := func(dst *float64, def float64) {
		if *dst == 0 {
			*dst = def
		}
	}
	setInt := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
		}
	}

	setStr(&c.Solana.RPCURL, "https://api.mainnet-beta.solana.com")
	setStr(&c.Trading.SOLMint, model.SOLMint)
	setStr(&c.Trading.USDCMint, model.USDCMint)
	setNum(&c.Trading.PositionSizeUSDC, 100)
	setNum(&c.Trading.MaxPositionSizeUSDC, 1000)
	setNum(&c.Trading.MaxSlippagePercent, 1.0)
	setNum(&c.Trading.FeeReserveSOL, 0.01)

	setInt(&c.Execution.MaxRetries, 3)
	setNum(&c.Execution.RetryDelaySeconds, 1)
	setNum(&c.Execution.MaxRetryDelaySeconds, 60)
	setInt(&c.Execution.MaxQuoteRetries, 3)
	setNum(&c.Execution.ConfirmIntervalSeconds, 2)
	setNum(&c.Execution.ConfirmTimeoutSeconds, 30)

	setStr(&c.Data.Historical, "binance")
	setStr(&c.Data.Runtime, "geckoterminal")
	setStr(&c.Data.Fallback, "yahoo")
	setStr(&c.Data.BinanceSymbol, "SOLUSDT")
	setStr(&c.Data.GeckoPool, "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2")
	setStr(&c.Data.YahooTicker, "SOL-USD")
	setNum(&c.Data.PriceCacheSeconds, 5)
	setInt(&c.Data.BreakerFailures, 5)
	setNum(&c.Data.BreakerResetSeconds, 60)

	setStr(&c.Candles.Timeframe, string(model.Timeframe1m))
	setInt(&c.Candles.HistoryLimit, 200)

	setStr(&c.Strategy.Name, "rsi")
	setStr(&c.Schedule.Tick, "@every 10s")
	setStr(&c.Schedule.Report, "@hourly")
	setNum(&c.Schedule.ErrorPauseSeconds, 5)
	setNum(&c.Schedule.TickTimeoutSeconds, 120)

	setStr(&c.Database.SQLitePath, "data/candles.db")
	setStr(&c.State.File, "data/bot_state.json")
	setStr(&c.Log.Level, "info")
	setStr(&c.Log.Format, "console")
}

// Validate checks everything except the wallet key.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), model.ErrConfiguration)
	}

	if c.Trading.PositionSizeUSDC <= 0 {
		return fail("trading.position_size_usdc must be positive")
	}
	if c.Trading.MaxPositionSizeUSDC < c.Trading.PositionSizeUSDC {
		return fail("trading.max_position_size_usdc (%.2f) is below position_size_usdc (%.2f)",
			c.Trading.MaxPositionSizeUSDC, c.Trading.PositionSizeUSDC)
	}
	if c.Trading.MaxSlippagePercent <= 0 || c.Trading.MaxSlippagePercent > 50 {
		return fail("trading.max_slippage_percent must be in (0, 50], got %.2f", c.Trading.MaxSlippagePercent)
	}
	if c.Trading.FeeReserveSOL < 0 {
		return fail("trading.fee_reserve_sol must not be negative")
	}
	if c.Execution.MaxRetries < 1 || c.Execution.MaxQuoteRetries < 1 {
		return fail("execution retries must be at least 1")
	}
	if _, err := model.ParseTimeframe(c.Candles.Timeframe); err != nil {
		return fail("candles.timeframe: %v", err)
	}
	if c.Candles.HistoryLimit <= 0 {
		return fail("candles.history_limit must be positive")
	}
	if _, err := strategy.New(c.Strategy); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if _, err := cron.ParseStandard(c.Schedule.Tick); err != nil {
		return fail("schedule.tick %q: %v", c.Schedule.Tick, err)
	}
	if c.Schedule.Report != "" && c.Schedule.Report != "off" {
		if _, err := cron.ParseStandard(c.Schedule.Report); err != nil {
			return fail("schedule.report %q: %v", c.Schedule.Report, err)
		}
	}
	switch c.Data.Historical {
	case "binance", "synthetic":
	default:
		return fail("data.historical %q: want binance or synthetic", c.Data.Historical)
	}
	switch c.Data.Runtime {
	case "geckoterminal", "binance", "synthetic":
	default:
		return fail("data.runtime %q: want geckoterminal, binance or synthetic", c.Data.Runtime)
	}
	switch c.Data.Fallback {
	case "yahoo", "binance", "none":
	default:
		return fail("data.fallback %q: want yahoo, binance or none", c.Data.Fallback)
	}
	return nil
}

// ValidateLive adds the checks that only matter when trading for real.
func (c *Config) ValidateLive() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key (WALLET_PRIVATE_KEY) is required: %w", model.ErrConfiguration)
	}
	return nil
}

func (c *Config) Timeframe() model.Timeframe {
	tf, _ := model.ParseTimeframe(c.Candles.Timeframe)
	return tf
}

func (c *Config) SlippageBps() int {
	return int(math.Round(c.Trading.MaxSlippagePercent * 100))
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Execution.MaxRetries,
		Initial:     Seconds(c.Execution.RetryDelaySeconds),
		Max:         Seconds(c.Execution.MaxRetryDelaySeconds),
	}
}

// TickSchedule parses schedule.tick. Call after Validate.
func (c *Config) TickSchedule() cron.Schedule {
	s, err := cron.ParseStandard(c.Schedule.Tick)
	if err != nil {
		return cron.Every(10 * time.Second)
	}
	return s
}

// ReportSchedule parses schedule.report; nil when disabled.
func (c *Config) ReportSchedule() cron.Schedule {
	if c.Schedule.Report == "" || c.Schedule.Report == "off" {
		return nil
	}
	s, err := cron.ParseStandard(c.Schedule.Report)
	if err != nil {
		return nil
	}
	return s
}

func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Seconds converts a config value in seconds to a duration.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
