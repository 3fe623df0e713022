package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"SwapSentinel/internal/logger"
	"SwapSentinel/internal/metrics"
	"SwapSentinel/internal/model"
	"SwapSentinel/internal/retry"
	"SwapSentinel/internal/trace"
)

// Options tunes the aggregator.
type Options struct {
	Retry    retry.Policy
	PriceTTL time.Duration

	// Runtime leg breaker: opens after BreakerFailures consecutive failures
	// and stays open for BreakerReset. Zero values mean 5 and one minute.
	BreakerFailures int
	BreakerReset    time.Duration

	Metrics *metrics.Metrics
}

// Aggregator routes bulk history to the historical provider and small,
// frequent refreshes to the runtime provider, falling back when the runtime
// provider fails.
type Aggregator struct {
	historical Provider
	runtime    Provider
	fallback   Provider
	opts       Options
	breaker    *gobreaker.CircuitBreaker

	mu          sync.Mutex
	lastPrice   float64
	lastPriceAt time.Time
	now         func() time.Time
}

// NewAggregator wires the providers. fallback may be nil.
func NewAggregator(historical, runtime, fallback Provider, opts Options) *Aggregator {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	if opts.BreakerFailures <= 0 {
		opts.BreakerFailures = 5
	}
	m := opts.Metrics
	br := newBreaker(runtime.Name(), opts.BreakerFailures, opts.BreakerReset, func(from, to BreakerState) {
		m.BreakerState.Set(float64(to))
		logger.Warn("runtime provider breaker state change",
			zap.String("provider", runtime.Name()),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
	})
	return &Aggregator{
		historical: historical,
		runtime:    runtime,
		fallback:   fallback,
		opts:       opts,
		breaker:    br,
		now:        time.Now,
	}
}

// BreakerState reports the runtime leg's breaker.
func (a *Aggregator) BreakerState() BreakerState { return breakerState(a.breaker.State()) }

// FetchStartupHistorical pulls deep history from the historical provider.
func (a *Aggregator) FetchStartupHistorical(ctx context.Context, tf model.Timeframe, limit int) (model.CandleSeries, error) {
	ctx, span := trace.StartSpan(ctx, "collector.fetch_historical")
	bars, err := a.candlesFrom(ctx, a.historical, tf, limit)
	trace.End(span, err)
	return bars, err
}

// FetchRuntimeCandles pulls the latest bars from the runtime provider, or the
// fallback provider if the runtime leg fails or its breaker is open.
func (a *Aggregator) FetchRuntimeCandles(ctx context.Context, tf model.Timeframe, limit int) (model.CandleSeries, error) {
	ctx, span := trace.StartSpan(ctx, "collector.fetch_runtime")
	var bars model.CandleSeries
	err := a.withFallback(ctx, "candles", func(p Provider) error {
		var err error
		bars, err = a.candlesFrom(ctx, p, tf, limit)
		return err
	})
	trace.End(span, err)
	return bars, err
}

// FetchCurrentPrice returns the spot price, reusing a recent value within PriceTTL.
func (a *Aggregator) FetchCurrentPrice(ctx context.Context) (float64, error) {
	a.mu.Lock()
	if a.opts.PriceTTL > 0 && !a.lastPriceAt.IsZero() && a.now().Sub(a.lastPriceAt) < a.opts.PriceTTL {
		p := a.lastPrice
		a.mu.Unlock()
		return p, nil
	}
	a.mu.Unlock()

	var price float64
	err := a.withFallback(ctx, "price", func(p Provider) error {
		v, err := retry.Value(ctx, a.policy("price:"+p.Name()), "price:"+p.Name(), p.FetchCurrentPrice)
		if err != nil {
			return err
		}
		if v <= 0 {
			return fmt.Errorf("%s returned non-positive price %f", p.Name(), v)
		}
		price = v
		return nil
	})
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	a.lastPrice, a.lastPriceAt = price, a.now()
	a.mu.Unlock()
	a.opts.Metrics.LastPrice.Set(price)
	return price, nil
}

func (a *Aggregator) candlesFrom(ctx context.Context, p Provider, tf model.Timeframe, limit int) (model.CandleSeries, error) {
	op := "candles:" + p.Name()
	bars, err := retry.Value(ctx, a.policy(op), op, func(ctx context.Context) ([]model.Candle, error) {
		return p.FetchCandles(ctx, tf, limit)
	})
	if err != nil {
		a.opts.Metrics.ProviderFailures.WithLabelValues(p.Name()).Inc()
		return nil, fmt.Errorf("%s: %w: %w", op, model.ErrTransientNetwork, err)
	}
	return normalize(tf, bars), nil
}

func (a *Aggregator) withFallback(ctx context.Context, what string, call func(Provider) error) error {
	_, err := a.breaker.Execute(func() (interface{}, error) { return nil, call(a.runtime) })
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || a.fallback == nil {
		return err
	}

	logger.Warn("runtime provider failed, using fallback",
		zap.String("what", what),
		zap.String("runtime", a.runtime.Name()),
		zap.String("fallback", a.fallback.Name()),
		zap.Error(err))
	a.opts.Metrics.Fallbacks.Inc()

	if ferr := call(a.fallback); ferr != nil {
		return fmt.Errorf("runtime: %v; fallback: %w", err, ferr)
	}
	return nil
}

func (a *Aggregator) policy(op string) retry.Policy {
	p := a.opts.Retry
	p.OnRetry = a.opts.Metrics.RetryHook(op)
	return p
}
