package collector

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SwapSentinel/internal/candles"
	"SwapSentinel/internal/metrics"
	"SwapSentinel/internal/model"
	"SwapSentinel/internal/retry"
)

// fakeProvider serves scripted bars and counts calls.
type fakeProvider struct {
	name  string
	bars  func(tf model.Timeframe, limit int) []model.Candle
	price float64
	err   error

	mu          sync.Mutex
	candleCalls int
	priceCalls  int
	limits      []int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FetchCandles(_ context.Context, tf model.Timeframe, limit int) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candleCalls++
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	return f.bars(tf, limit), nil
}

func (f *fakeProvider) FetchCurrentPrice(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	if f.err != nil {
		return 0, f.err
	}
	return f.price, nil
}

// tailBars returns limit bars ending at endTS, newest last.
func tailBars(endTS int64, closeBase float64) func(model.Timeframe, int) []model.Candle {
	return func(tf model.Timeframe, limit int) []model.Candle {
		out := make([]model.Candle, 0, limit)
		for i := limit - 1; i >= 0; i-- {
			ts := endTS - int64(i)*tf.Seconds()
			out = append(out, model.Candle{Timestamp: ts, Open: closeBase, High: closeBase, Low: closeBase, Close: closeBase})
		}
		return out
	}
}

func fastOptions() Options {
	return Options{Retry: retry.Policy{MaxAttempts: 2, Initial: time.Millisecond, Max: time.Millisecond}}
}

func TestFetchRuntimeCandles_UsesRuntimeProvider(t *testing.T) {
	runtime := &fakeProvider{name: "runtime", bars: tailBars(6000, 10)}
	fallback := &fakeProvider{name: "fallback", bars: tailBars(6000, 20)}
	agg := NewAggregator(&fakeProvider{name: "hist"}, runtime, fallback, fastOptions())

	bars, err := agg.FetchRuntimeCandles(context.Background(), model.Timeframe1m, 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, model.Timeframe1m, bars[0].Timeframe)
	assert.Equal(t, 10.0, bars[2].Close)
	assert.Zero(t, fallback.candleCalls)
}

func TestFetchRuntimeCandles_FallsBackAfterRetries(t *testing.T) {
	runtime := &fakeProvider{name: "runtime", err: errors.New("503")}
	fallback := &fakeProvider{name: "fallback", bars: tailBars(6000, 20)}
	agg := NewAggregator(&fakeProvider{name: "hist"}, runtime, fallback, fastOptions())

	bars, err := agg.FetchRuntimeCandles(context.Background(), model.Timeframe1m, 2)
	require.NoError(t, err)
	assert.Equal(t, 20.0, bars[1].Close)
	assert.Equal(t, 2, runtime.candleCalls, "runtime provider retried before falling back")
	assert.Equal(t, 1, fallback.candleCalls)
}

func TestFetchRuntimeCandles_BothFail(t *testing.T) {
	runtime := &fakeProvider{name: "runtime", err: errors.New("down")}
	fallback := &fakeProvider{name: "fallback", err: errors.New("also down")}
	agg := NewAggregator(&fakeProvider{name: "hist"}, runtime, fallback, fastOptions())

	bars, err := agg.FetchRuntimeCandles(context.Background(), model.Timeframe1m, 2)
	assert.Nil(t, bars)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransientNetwork)
}

func TestFetchRuntimeCandles_OpenBreakerSkipsRuntime(t *testing.T) {
	runtime := &fakeProvider{name: "runtime", err: errors.New("down")}
	fallback := &fakeProvider{name: "fallback", bars: tailBars(6000, 20)}
	opts := fastOptions()
	opts.BreakerFailures = 1
	opts.BreakerReset = time.Hour
	agg := NewAggregator(&fakeProvider{name: "hist"}, runtime, fallback, opts)

	_, err := agg.FetchRuntimeCandles(context.Background(), model.Timeframe1m, 2)
	require.NoError(t, err)
	assert.Equal(t, BreakerOpen, agg.BreakerState())
	calls := runtime.candleCalls

	_, err = agg.FetchRuntimeCandles(context.Background(), model.Timeframe1m, 2)
	require.NoError(t, err)
	assert.Equal(t, calls, runtime.candleCalls, "open breaker must not reach the runtime provider")
	assert.Equal(t, 2, fallback.candleCalls)
}

func TestRuntimeBreaker_RecoversAfterReset(t *testing.T) {
	runtime := &fakeProvider{name: "runtime", err: errors.New("down"), price: 150}
	opts := fastOptions()
	opts.BreakerFailures = 2
	opts.BreakerReset = 20 * time.Millisecond
	opts.Metrics = metrics.NewUnregistered()
	agg := NewAggregator(&fakeProvider{name: "hist"}, runtime, nil, opts)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := agg.FetchCurrentPrice(ctx)
		require.Error(t, err)
	}
	assert.Equal(t, BreakerOpen, agg.BreakerState())
	assert.Equal(t, float64(BreakerOpen), testutil.ToFloat64(opts.Metrics.BreakerState))

	calls := runtime.priceCalls
	_, err := agg.FetchCurrentPrice(ctx)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, calls, runtime.priceCalls)

	runtime.err = nil
	time.Sleep(30 * time.Millisecond)
	price, err := agg.FetchCurrentPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, 150.0, price)
	assert.Equal(t, BreakerClosed, agg.BreakerState())
	assert.Equal(t, float64(BreakerClosed), testutil.ToFloat64(opts.Metrics.BreakerState))
}

func TestFetchCurrentPrice_CachesWithinTTL(t *testing.T) {
	runtime := &fakeProvider{name: "runtime", price: 150}
	opts := fastOptions()
	opts.PriceTTL = 5 * time.Second
	agg := NewAggregator(&fakeProvider{name: "hist"}, runtime, nil, opts)

	now := time.Unix(1_700_000_000, 0)
	agg.now = func() time.Time { return now }

	p, err := agg.FetchCurrentPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 150.0, p)

	runtime.price = 151
	now = now.Add(2 * time.Second)
	p, _ = agg.FetchCurrentPrice(context.Background())
	assert.Equal(t, 150.0, p)

	now = now.Add(4 * time.Second)
	p, _ = agg.FetchCurrentPrice(context.Background())
	assert.Equal(t, 151.0, p)
	assert.Equal(t, 2, runtime.priceCalls)
}

func TestFetchCurrentPrice_RejectsNonPositive(t *testing.T) {
	runtime := &fakeProvider{name: "runtime", price: 0}
	agg := NewAggregator(&fakeProvider{name: "hist"}, runtime, nil, fastOptions())
	_, err := agg.FetchCurrentPrice(context.Background())
	assert.Error(t, err)
}

func openCache(t *testing.T) *candles.Cache {
	t.Helper()
	c, err := candles.Open(filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSync_EmptyCacheDoesFullHistoricalFetch(t *testing.T) {
	ctx := context.Background()
	now := time.Now().Unix()
	end := now - now%60
	hist := &fakeProvider{name: "hist", bars: tailBars(end, 100)}
	runtime := &fakeProvider{name: "runtime", bars: tailBars(end, 100)}
	agg := NewAggregator(hist, runtime, nil, fastOptions())
	cache := openCache(t)

	res, err := agg.Sync(ctx, cache, model.Timeframe1m, 50, false)
	require.NoError(t, err)
	assert.True(t, res.Plan.FullFetch)
	assert.Equal(t, "hist", res.Source)
	assert.Equal(t, 50, res.Upserted)
	assert.Equal(t, []int{50}, hist.limits)
	assert.Zero(t, runtime.candleCalls)

	n, err := cache.Count(ctx, model.Timeframe1m)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestSync_DeltaComesFromRuntime(t *testing.T) {
	ctx := context.Background()
	now := time.Now().Unix()
	end := now - now%60
	cache := openCache(t)

	// stored tail is three bars behind
	_, err := cache.Upsert(ctx, tailBars(end-180, 100)(model.Timeframe1m, 10))
	require.NoError(t, err)

	hist := &fakeProvider{name: "hist", bars: tailBars(end, 100)}
	runtime := &fakeProvider{name: "runtime", bars: tailBars(end, 101)}
	agg := NewAggregator(hist, runtime, nil, fastOptions())

	res, err := agg.Sync(ctx, cache, model.Timeframe1m, 10, false)
	require.NoError(t, err)
	assert.False(t, res.Plan.FullFetch)
	assert.Equal(t, "runtime", res.Source)
	assert.False(t, res.GapFill)
	assert.Equal(t, []int{res.Plan.CandlesNeeded + 1}, runtime.limits)
	assert.Zero(t, hist.candleCalls)

	latest, ok, err := cache.LatestTimestamp(ctx, model.Timeframe1m)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, end, latest)
}

func TestSync_RefillsGapFromHistory(t *testing.T) {
	ctx := context.Background()
	now := time.Now().Unix()
	end := now - now%60
	cache := openCache(t)

	// 200 stored, 10 required: only the bars behind are needed, but the
	// runtime provider returns a single bar that does not touch the stored tail.
	_, err := cache.Upsert(ctx, tailBars(end-600, 100)(model.Timeframe1m, 200))
	require.NoError(t, err)

	hist := &fakeProvider{name: "hist", bars: tailBars(end, 100)}
	runtime := &fakeProvider{name: "runtime", bars: func(tf model.Timeframe, _ int) []model.Candle {
		return tailBars(end, 101)(tf, 1)
	}}
	agg := NewAggregator(hist, runtime, nil, fastOptions())

	res, err := agg.Sync(ctx, cache, model.Timeframe1m, 10, false)
	require.NoError(t, err)
	assert.True(t, res.GapFill)
	assert.Equal(t, "hist", res.Source)
	assert.Equal(t, []int{11}, hist.limits)

	series, err := cache.Series(ctx, model.Timeframe1m, 12)
	require.NoError(t, err)
	for i := 1; i < len(series); i++ {
		assert.Equal(t, int64(60), series[i].Timestamp-series[i-1].Timestamp)
	}
}

func TestSync_RefillsHoleInsideRuntimeWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now().Unix()
	end := now - now%60
	cache := openCache(t)

	_, err := cache.Upsert(ctx, tailBars(end-180, 100)(model.Timeframe1m, 10))
	require.NoError(t, err)

	// the runtime window connects to the stored tail but has no bar at end-60
	hist := &fakeProvider{name: "hist", bars: tailBars(end, 100)}
	runtime := &fakeProvider{name: "runtime", bars: func(model.Timeframe, int) []model.Candle {
		return []model.Candle{
			{Timestamp: end - 120, Open: 101, High: 101, Low: 101, Close: 101},
			{Timestamp: end, Open: 101, High: 101, Low: 101, Close: 101},
		}
	}}
	agg := NewAggregator(hist, runtime, nil, fastOptions())

	res, err := agg.Sync(ctx, cache, model.Timeframe1m, 10, false)
	require.NoError(t, err)
	assert.True(t, res.GapFill)
	assert.Equal(t, "hist", res.Source)
	require.Len(t, hist.limits, 1)

	series, err := cache.Series(ctx, model.Timeframe1m, 13)
	require.NoError(t, err)
	require.Len(t, series, 13)
	assert.Equal(t, end, series[len(series)-1].Timestamp)
	for i := 1; i < len(series); i++ {
		assert.Equal(t, int64(60), series[i].Timestamp-series[i-1].Timestamp)
	}
}

func TestSync_StartupDeepensShallowStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now().Unix()
	end := now - now%60
	cache := openCache(t)
	_, err := cache.Upsert(ctx, tailBars(end, 100)(model.Timeframe1m, 5))
	require.NoError(t, err)

	hist := &fakeProvider{name: "hist", bars: tailBars(end, 100)}
	agg := NewAggregator(hist, &fakeProvider{name: "runtime", bars: tailBars(end, 100)}, nil, fastOptions())

	res, err := agg.Sync(ctx, cache, model.Timeframe1m, 40, true)
	require.NoError(t, err)
	assert.Equal(t, "hist", res.Source)

	n, err := cache.Count(ctx, model.Timeframe1m)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
}
