package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"SwapSentinel/internal/calculator"
	"SwapSentinel/internal/collector"
	"SwapSentinel/internal/execution"
	"SwapSentinel/internal/logger"
	"SwapSentinel/internal/metrics"
	"SwapSentinel/internal/model"
	"SwapSentinel/internal/notifier"
	"SwapSentinel/internal/recorder"
	"SwapSentinel/internal/retry"
	"SwapSentinel/internal/strategy"
	"SwapSentinel/internal/trace"
)

// MarketData refreshes candles and prices.
type MarketData interface {
	Sync(ctx context.Context, store collector.CandleStore, tf model.Timeframe, required int, startup bool) (collector.SyncResult, error)
	FetchCurrentPrice(ctx context.Context) (float64, error)
}

// CandleSource is the candle cache.
type CandleSource interface {
	collector.CandleStore
	Series(ctx context.Context, tf model.Timeframe, limit int) (model.CandleSeries, error)
}

// Account reports node health and wallet balances.
type Account interface {
	Healthy(ctx context.Context) bool
	Balances(ctx context.Context) (sol, usdc float64, err error)
}

// Executor places swaps.
type Executor interface {
	Buy(ctx context.Context, usdc float64) (model.SwapResult, error)
	Sell(ctx context.Context, sol float64) (model.SwapResult, error)
}

// StateStore persists the bot state.
type StateStore interface {
	Load() model.BotState
	Save(st model.BotState) error
}

type Deps struct {
	Market   MarketData
	Candles  CandleSource
	Account  Account
	Executor Executor
	Engine   *strategy.Engine
	State    StateStore
	Recorder recorder.Recorder
	Notifier notifier.Notifier
}

type Options struct {
	Timeframe           model.Timeframe
	HistoryLimit        int
	PositionSizeUSDC    float64
	MaxPositionSizeUSDC float64
	FeeReserveSOL       float64

	Tick       cron.Schedule
	Report     cron.Schedule // nil disables the periodic report
	ErrorPause time.Duration

	// TickTimeout bounds one iteration. A stop request does not cancel it.
	TickTimeout time.Duration

	Metrics *metrics.Metrics
}

// Orchestrator runs the trading loop. One iteration finishes, including its
// state write, before the next one starts.
type Orchestrator struct {
	deps Deps
	opts Options

	mu     sync.RWMutex
	status notifier.Status

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	if opts.Tick == nil {
		opts.Tick = cron.Every(10 * time.Second)
	}
	if opts.MaxPositionSizeUSDC <= 0 {
		opts.MaxPositionSizeUSDC = opts.PositionSizeUSDC
	}
	if opts.ErrorPause <= 0 {
		opts.ErrorPause = 5 * time.Second
	}
	if opts.TickTimeout <= 0 {
		opts.TickTimeout = 2 * time.Minute
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifier.Noop{}
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		status: notifier.Status{Strategy: deps.Engine.Strategy().Name()},
		now:    time.Now,
		sleep:  retry.Sleep,
	}
}

// Start restores persisted state and fills the candle cache.
func (o *Orchestrator) Start(ctx context.Context) {
	st := o.deps.State.Load()
	o.deps.Engine.Restore(st)
	pos := o.deps.Engine.Position()
	o.opts.Metrics.PositionLong.Set(boolGauge(pos.IsLong()))
	o.updateStatus(func(s *notifier.Status) { s.Position = pos })
	logger.Info("state restored",
		zap.Stringer("position", pos.Side),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.String("strategy", o.deps.Engine.Strategy().Name()))

	res, err := o.deps.Market.Sync(ctx, o.deps.Candles, o.opts.Timeframe, o.opts.HistoryLimit, true)
	if err != nil {
		logger.Warn("startup candle sync failed", zap.Error(err))
		return
	}
	logger.Info("startup candle sync",
		zap.String("timeframe", string(o.opts.Timeframe)),
		zap.String("source", res.Source),
		zap.Int("upserted", res.Upserted),
		zap.Bool("full_fetch", res.Plan.FullFetch))
}

// Run loops until ctx is cancelled. Cancellation is only observed between
// iterations: a running tick, including a swap in flight, works on a context
// detached from ctx and completes before Run returns. The state is flushed
// once more on the way out.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.Start(ctx)
	defer o.flush()

	var nextReport time.Time
	if o.opts.Report != nil {
		nextReport = o.opts.Report.Next(o.now())
	}

	for {
		if ctx.Err() != nil {
			logger.Info("stop requested, leaving loop")
			return nil
		}

		started := o.now()
		tickCtx, cancelTick := context.WithTimeout(context.WithoutCancel(ctx), o.opts.TickTimeout)
		err := o.safeTick(tickCtx)

		now := o.now()
		if o.opts.Report != nil && !now.Before(nextReport) {
			o.report(tickCtx)
			nextReport = o.opts.Report.Next(now)
		}
		cancelTick()

		wait := o.opts.Tick.Next(started).Sub(now)
		if err != nil && wait < o.opts.ErrorPause {
			wait = o.opts.ErrorPause
		}
		if wait > 0 {
			if err := o.sleep(ctx, wait); err != nil {
				logger.Info("stop requested, leaving loop")
				return nil
			}
		}
	}
}

// safeTick runs one iteration, turning a panic into an error.
func (o *Orchestrator) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.opts.Metrics.TickErrors.WithLabelValues("panic").Inc()
			err = fmt.Errorf("tick panicked: %v", r)
			logger.Error("tick panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	if err := o.Tick(ctx); err != nil {
		o.opts.Metrics.TickErrors.WithLabelValues("error").Inc()
		logger.Warn("tick skipped", zap.Error(err))
		return err
	}
	return nil
}

// Tick performs one iteration: health, candles, price, balances, decision,
// optional execution, persistence.
func (o *Orchestrator) Tick(ctx context.Context) (err error) {
	tickID := uuid.NewString()
	ctx, span := trace.StartSpan(ctx, "scheduler.tick", attribute.String("tick_id", tickID))
	defer func() { trace.End(span, err) }()

	o.opts.Metrics.TicksTotal.Inc()
	timer := prometheus.NewTimer(o.opts.Metrics.TickDuration)
	defer timer.ObserveDuration()

	log := logger.L().With(zap.String("tick_id", tickID))
	now := o.now()

	healthy := o.deps.Account.Healthy(ctx)
	o.updateStatus(func(s *notifier.Status) { s.Healthy = healthy })
	if !healthy {
		return fmt.Errorf("rpc health check failed: %w", model.ErrTransientNetwork)
	}

	if _, err := o.deps.Market.Sync(ctx, o.deps.Candles, o.opts.Timeframe, o.opts.HistoryLimit, false); err != nil {
		return fmt.Errorf("refresh candles: %w", err)
	}
	series, err := o.deps.Candles.Series(ctx, o.opts.Timeframe, o.opts.HistoryLimit)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}

	price, err := o.deps.Market.FetchCurrentPrice(ctx)
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}

	sol, usdc, err := o.deps.Account.Balances(ctx)
	if err != nil {
		return fmt.Errorf("fetch balances: %w", err)
	}

	t := strategy.Tick{Time: now, Price: price, Candles: series}
	o.deps.Engine.Update(t)
	sig := o.deps.Engine.Evaluate(t)
	o.opts.Metrics.SignalsTotal.WithLabelValues(sig.String()).Inc()

	pos := o.deps.Engine.Position()
	ind := calculator.Snapshot(series, price)
	log.Debug("tick evaluated",
		zap.Float64("price", price),
		zap.Int("candles", len(series)),
		zap.Float64("rsi", ind.RSI),
		zap.Float64("sma", ind.SMA),
		zap.Float64("macd_hist", ind.MACDHistogram),
		zap.Stringer("signal", sig),
		zap.Stringer("position", pos.Side))
	if err := o.deps.Recorder.RecordDecision(ctx, &recorder.Decision{
		TickID: tickID, Price: price, RSI: ind.RSI, SMA: ind.SMA,
		Signal: sig.String(), Position: pos.Side.String(), Timestamp: now,
	}); err != nil {
		log.Warn("record decision failed", zap.Error(err))
	}

	switch sig {
	case model.SignalHold:
	case model.SignalBuy, model.SignalSell:
		o.execute(ctx, log, tickID, sig, price, sol, usdc)
	}

	pos = o.deps.Engine.Position()
	if err := o.deps.State.Save(o.deps.Engine.Snapshot()); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	o.opts.Metrics.PositionLong.Set(boolGauge(pos.IsLong()))
	o.updateStatus(func(s *notifier.Status) {
		s.Position = pos
		s.LastPrice = price
		s.LastTick = now
		s.Ticks++
		s.SOLBalance = sol
		s.USDCBalance = usdc
		s.Indicators = ind
	})
	return nil
}

// execute sizes and places the order for sig. Failures are logged and
// reported; the position only moves on a fill.
func (o *Orchestrator) execute(ctx context.Context, log *zap.Logger, tickID string, sig model.Signal, price, sol, usdc float64) {
	var (
		amount float64
		res    model.SwapResult
		err    error
	)
	switch sig {
	case model.SignalBuy:
		amount = min(o.opts.PositionSizeUSDC, usdc, o.opts.MaxPositionSizeUSDC)
	case model.SignalSell:
		amount = min(o.opts.PositionSizeUSDC/price, sol-o.opts.FeeReserveSOL)
	default:
		return
	}
	if amount <= 0 {
		log.Warn("order aborted",
			zap.Stringer("signal", sig),
			zap.Float64("sol", sol),
			zap.Float64("usdc", usdc),
			zap.Error(model.ErrInsufficientBalance))
		return
	}

	log.Info("placing order", zap.Stringer("signal", sig), zap.Float64("amount", amount), zap.Float64("price", price))
	if sig == model.SignalBuy {
		res, err = o.deps.Executor.Buy(ctx, amount)
	} else {
		res, err = o.deps.Executor.Sell(ctx, amount)
	}

	trade := &recorder.Trade{TickID: tickID, Side: lower(sig), Price: price, Timestamp: o.now()}
	if err != nil || !res.Filled() {
		if err == nil {
			err = fmt.Errorf("swap returned no signature")
		}
		trade.Error = err.Error()
		o.journal(ctx, log, trade)
		o.notify(ctx, notifier.FormatFailure(sig, err))
		return
	}

	fill := execution.FillPrice(sig, res, price)
	if err := o.deps.Engine.OnFill(sig, fill, o.now()); err != nil {
		log.Error("fill rejected by position machine", zap.Error(err))
	}

	inDec, outDec := int32(model.USDCDecimals), int32(model.SOLDecimals)
	if sig == model.SignalSell {
		inDec, outDec = outDec, inDec
	}
	trade.Price = fill
	trade.Signature = res.Signature
	trade.Confirmed = res.Confirmed
	trade.InAmount = execution.FromSmallestUnit(res.InAmount, inDec)
	trade.OutAmount = execution.FromSmallestUnit(res.OutAmount, outDec)
	o.journal(ctx, log, trade)

	log.Info("order filled",
		zap.Stringer("signal", sig),
		zap.String("signature", res.Signature),
		zap.Bool("confirmed", res.Confirmed),
		zap.Float64("fill_price", fill))
	o.notify(ctx, notifier.FormatFill(sig, fill, trade.InAmount, trade.OutAmount, res))
}

func (o *Orchestrator) journal(ctx context.Context, log *zap.Logger, t *recorder.Trade) {
	if err := o.deps.Recorder.RecordTrade(ctx, t); err != nil {
		log.Warn("record trade failed", zap.Error(err))
	}
}

func (o *Orchestrator) notify(ctx context.Context, text string) {
	if err := o.deps.Notifier.Notify(ctx, text); err != nil {
		logger.Warn("notification failed", zap.Error(err))
	}
}

func (o *Orchestrator) report(ctx context.Context) {
	o.notify(ctx, notifier.FormatStatus(o.Status()))
}

func (o *Orchestrator) flush() {
	if err := o.deps.State.Save(o.deps.Engine.Snapshot()); err != nil {
		logger.Error("final state save failed", zap.Error(err))
		return
	}
	logger.Info("state flushed")
}

// Status returns a copy of the latest status. Safe for concurrent use.
func (o *Orchestrator) Status() notifier.Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

func (o *Orchestrator) updateStatus(fn func(s *notifier.Status)) {
	o.mu.Lock()
	fn(&o.status)
	o.mu.Unlock()
}

// HandleCommand answers chat commands.
func (o *Orchestrator) HandleCommand(command string) string {
	switch command {
	case "/status", "/position":
		return notifier.FormatStatus(o.Status())
	default:
		return "Commands:\n/status - position, last price and last tick\n/position - same as /status"
	}
}

func lower(sig model.Signal) string {
	if sig == model.SignalBuy {
		return "buy"
	}
	return "sell"
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
