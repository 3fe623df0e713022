package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"SwapSentinel/internal/backtest"
	"SwapSentinel/internal/candles"
	"SwapSentinel/internal/collector"
	"SwapSentinel/internal/config"
	"SwapSentinel/internal/execution"
	"SwapSentinel/internal/jupiter"
	"SwapSentinel/internal/logger"
	"SwapSentinel/internal/metrics"
	"SwapSentinel/internal/notifier"
	"SwapSentinel/internal/recorder"
	"SwapSentinel/internal/scheduler"
	"SwapSentinel/internal/state"
	"SwapSentinel/internal/strategy"
	"SwapSentinel/internal/trace"
	"SwapSentinel/internal/wallet"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to the YAML config")
	testMode := flag.Bool("test", false, "backtest over cached candles instead of trading")
	nCandles := flag.Int("candles", 500, "number of candles to replay in --test mode")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := trace.Init(cfg.Tracing.Enabled, version); err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *testMode {
		err = runBacktest(ctx, cfg, *nCandles)
	} else {
		err = runLive(ctx, cfg)
	}
	if err != nil {
		logger.Fatal("SwapSentinel stopped with error", zap.Error(err))
	}
}

func runLive(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateLive(); err != nil {
		return err
	}
	logger.Info("SwapSentinel starting",
		zap.String("version", version),
		zap.String("strategy", cfg.Strategy.Name),
		zap.String("timeframe", cfg.Candles.Timeframe),
		zap.String("tick", cfg.Schedule.Tick))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		go metrics.Serve(ctx, cfg.Metrics.Addr, reg)
	}

	w, err := wallet.Load(cfg.Wallet.PrivateKey)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}
	logger.Info("wallet loaded", zap.String("address", w.Address()))
	rpc := wallet.NewRPC(cfg.Solana.RPCURL)

	cache, err := openCache(cfg.Database.SQLitePath)
	if err != nil {
		return err
	}
	defer cache.Close()

	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		return err
	}

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if !cfg.Database.DisableJournal {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			logger.Warn("trade journal unavailable, using noop", zap.Error(err))
		} else {
			rec = sr
			defer sr.Close()
		}
	}

	exec := execution.New(
		jupiter.NewClient(cfg.Execution.QuoteURL, cfg.Execution.SwapURL, cfg.Proxy),
		w,
		rpc,
		execution.Options{
			SOLMint:         cfg.Trading.SOLMint,
			USDCMint:        cfg.Trading.USDCMint,
			SlippageBps:     cfg.SlippageBps(),
			MaxQuoteRetries: cfg.Execution.MaxQuoteRetries,
			Retry:           cfg.RetryPolicy(),
			Confirm:         !cfg.Execution.SkipConfirmation,
			ConfirmInterval: config.Seconds(cfg.Execution.ConfirmIntervalSeconds),
			ConfirmTimeout:  config.Seconds(cfg.Execution.ConfirmTimeoutSeconds),
			Metrics:         m,
		},
	)

	var tn *notifier.TelegramNotifier
	var notify notifier.Notifier = notifier.Noop{}
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		tn.Retry = cfg.RetryPolicy()
		notify = tn
	}

	orch := scheduler.New(scheduler.Deps{
		Market:   buildAggregator(cfg, m),
		Candles:  cache,
		Account:  &wallet.Account{RPC: rpc, Owner: w.PublicKey(), USDCMint: cfg.Trading.USDCMint},
		Executor: exec,
		Engine:   strategy.NewEngine(strat),
		State:    state.NewStore(cfg.State.File),
		Recorder: rec,
		Notifier: notify,
	}, scheduler.Options{
		Timeframe:           cfg.Timeframe(),
		HistoryLimit:        cfg.Candles.HistoryLimit,
		PositionSizeUSDC:    cfg.Trading.PositionSizeUSDC,
		MaxPositionSizeUSDC: cfg.Trading.MaxPositionSizeUSDC,
		FeeReserveSOL:       cfg.Trading.FeeReserveSOL,
		Tick:                cfg.TickSchedule(),
		Report:              cfg.ReportSchedule(),
		ErrorPause:          config.Seconds(cfg.Schedule.ErrorPauseSeconds),
		TickTimeout:         config.Seconds(cfg.Schedule.TickTimeoutSeconds),
		Metrics:             m,
	})

	if tn != nil {
		go tn.StartPolling(ctx, orch.HandleCommand)
		logger.Info("telegram polling started")
	}

	logger.Info("SwapSentinel is running, press Ctrl+C to stop")
	if err := orch.Run(ctx); err != nil {
		return err
	}
	logger.Info("SwapSentinel stopped")
	return nil
}

func runBacktest(ctx context.Context, cfg *config.Config, n int) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if n <= 0 {
		return errors.New("--candles must be positive")
	}

	cache, err := openCache(cfg.Database.SQLitePath)
	if err != nil {
		return err
	}
	defer cache.Close()

	tf := cfg.Timeframe()
	agg := buildAggregator(cfg, metrics.NewUnregistered())
	if res, err := agg.Sync(ctx, cache, tf, n, true); err != nil {
		logger.Warn("candle refresh failed, replaying cached data only", zap.Error(err))
	} else {
		logger.Info("candle cache refreshed", zap.String("source", res.Source), zap.Int("upserted", res.Upserted))
	}

	series, err := cache.Series(ctx, tf, n)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}
	if len(series) < n {
		logger.Warn("fewer candles cached than requested", zap.Int("have", len(series)), zap.Int("want", n))
	}

	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		return err
	}
	backtest.Run(strategy.NewEngine(strat), series, cfg.Trading.PositionSizeUSDC).Write(os.Stdout)
	return nil
}

func buildAggregator(cfg *config.Config, m *metrics.Metrics) *collector.Aggregator {
	binance := collector.NewBinanceProvider(cfg.Data.BinanceAPIKey, cfg.Data.BinanceSecretKey, cfg.Data.BinanceSymbol, cfg.Proxy)
	synthetic := collector.NewSyntheticProvider(150, 42)

	var historical collector.Provider = binance
	if cfg.Data.Historical == "synthetic" {
		historical = synthetic
	}

	var runtime collector.Provider
	switch cfg.Data.Runtime {
	case "binance":
		runtime = binance
	case "synthetic":
		runtime = synthetic
	default:
		runtime = collector.NewGeckoTerminalProvider(cfg.Data.GeckoPool, cfg.Proxy)
	}

	var fallback collector.Provider
	switch cfg.Data.Fallback {
	case "yahoo":
		fallback = collector.NewYahooFetcher(cfg.Data.YahooTicker, cfg.Proxy)
	case "binance":
		fallback = binance
	}

	return collector.NewAggregator(historical, runtime, fallback, collector.Options{
		Retry:           cfg.RetryPolicy(),
		PriceTTL:        config.Seconds(cfg.Data.PriceCacheSeconds),
		BreakerFailures: cfg.Data.BreakerFailures,
		BreakerReset:    config.Seconds(cfg.Data.BreakerResetSeconds),
		Metrics:         m,
	})
}

func openCache(path string) (*candles.Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	cache, err := candles.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle cache: %w", err)
	}
	return cache, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
