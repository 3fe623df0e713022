package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"SwapSentinel/internal/logger"
)

// Metrics holds all Prometheus collectors for the bot.
type Metrics struct {
	TicksTotal       prometheus.Counter
	TickErrors       *prometheus.CounterVec // labels: kind=error|panic
	TickDuration     prometheus.Histogram
	SignalsTotal     *prometheus.CounterVec // labels: signal
	SwapAttempts     *prometheus.CounterVec // labels: side
	SwapOutcomes     *prometheus.CounterVec // labels: side, outcome=confirmed|unconfirmed|failed
	QuoteRefreshes   prometheus.Counter
	RetriesTotal     *prometheus.CounterVec // labels: op
	ProviderFailures *prometheus.CounterVec // labels: provider
	Fallbacks        prometheus.Counter
	BreakerState     prometheus.Gauge // 0=closed, 1=open, 2=half-open
	CandlesUpserted  *prometheus.CounterVec // labels: timeframe
	PositionLong     prometheus.Gauge
	LastPrice        prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swapbot_ticks_total",
			Help: "Total loop iterations started",
		}),
		TickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapbot_tick_errors_total",
			Help: "Iterations aborted by an error or a recovered panic",
		}, []string{"kind"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swapbot_tick_duration_seconds",
			Help:    "Wall time of one loop iteration",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapbot_signals_total",
			Help: "Strategy decisions by signal",
		}, []string{"signal"}),
		SwapAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapbot_swap_attempts_total",
			Help: "Swap executions started",
		}, []string{"side"}),
		SwapOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapbot_swap_outcomes_total",
			Help: "Swap executions by final outcome",
		}, []string{"side", "outcome"}),
		QuoteRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swapbot_quote_refreshes_total",
			Help: "Quotes discarded and re-requested after a stale-quote failure",
		}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapbot_retries_total",
			Help: "Backoff retries by operation",
		}, []string{"op"}),
		ProviderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapbot_provider_failures_total",
			Help: "Market data provider calls that failed after retries",
		}, []string{"provider"}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swapbot_provider_fallbacks_total",
			Help: "Runtime requests served by the fallback provider",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swapbot_runtime_breaker_state",
			Help: "Runtime provider circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		CandlesUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapbot_candles_upserted_total",
			Help: "Candles written to the cache",
		}, []string{"timeframe"}),
		PositionLong: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swapbot_position_long",
			Help: "1 when a position is open, 0 when flat",
		}),
		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swapbot_last_price",
			Help: "Last observed price of the traded pair",
		}),
	}

	reg.MustRegister(
		m.TicksTotal, m.TickErrors, m.TickDuration, m.SignalsTotal,
		m.SwapAttempts, m.SwapOutcomes, m.QuoteRefreshes, m.RetriesTotal,
		m.ProviderFailures, m.Fallbacks, m.BreakerState, m.CandlesUpserted,
		m.PositionLong, m.LastPrice,
	)
	return m
}

// NewUnregistered returns collectors bound to a private registry, for tests and backtests.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// RetryHook counts retries for op, for use as retry.Policy.OnRetry.
func (m *Metrics) RetryHook(op string) func(int, error) {
	return func(int, error) { m.RetriesTotal.WithLabelValues(op).Inc() }
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
