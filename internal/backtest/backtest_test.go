package backtest

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SwapSentinel/internal/collector"
	"SwapSentinel/internal/model"
	"SwapSentinel/internal/strategy"
)

// band buys under low and sells over high.
type band struct {
	strategy.Base
	low, high float64
}

func (b *band) Name() string                    { return "band" }
func (b *band) Update(strategy.Tick)            {}
func (b *band) ShouldBuy(t strategy.Tick) bool  { return t.Price < b.low }
func (b *band) ShouldSell(t strategy.Tick) bool { return t.Price > b.high }
func (b *band) State() map[string]any           { return map[string]any{} }
func (b *band) Restore(map[string]any)          {}

func series(closes ...float64) model.CandleSeries {
	bars := make([]model.Candle, len(closes))
	for i, c := range closes {
		bars[i] = model.Candle{
			Timeframe: model.Timeframe1m,
			Timestamp: 1_700_000_000 + int64(i)*60,
			Open:      c, High: c, Low: c, Close: c,
		}
	}
	return model.NewCandleSeries(bars)
}

func TestRun_RoundTrips(t *testing.T) {
	eng := strategy.NewEngine(&band{low: 100, high: 110})
	// buy 95, sell 115 (+), buy 90, sell 111 (+), buy 99 and stay open
	rep := Run(eng, series(105, 95, 100, 115, 90, 111, 99, 104), 100)

	require.Len(t, rep.Trades, 2)
	assert.Equal(t, 2, rep.Wins)
	assert.Equal(t, 1.0, rep.WinRate())

	first := rep.Trades[0]
	assert.Equal(t, 95.0, first.EntryPrice)
	assert.Equal(t, 115.0, first.ExitPrice)
	assert.InDelta(t, 100.0/95*20, first.PnL, 1e-9)

	want := 100.0/95*20 + 100.0/90*21
	assert.InDelta(t, want, rep.TotalPnL, 1e-9)

	assert.True(t, rep.Open.IsLong())
	assert.Equal(t, 99.0, rep.Open.EntryPrice)
	assert.InDelta(t, 100.0/99*5, rep.Unrealized, 1e-9)
}

func TestRun_LosingTrade(t *testing.T) {
	eng := strategy.NewEngine(&band{low: 100, high: 90})
	// buys at 95 and sells at 92
	rep := Run(eng, series(95, 92), 100)
	require.Len(t, rep.Trades, 1)
	assert.Equal(t, 0, rep.Wins)
	assert.Less(t, rep.TotalPnL, 0.0)
	assert.False(t, rep.Open.IsLong())
}

func TestRun_SkipsZeroCloseBars(t *testing.T) {
	eng := strategy.NewEngine(&band{low: 100, high: 110})
	var rep Report
	require.NotPanics(t, func() {
		rep = Run(eng, series(105, 0, 95, -1, 115), 100)
	})

	assert.Equal(t, 3, rep.Candles)
	assert.Equal(t, 2, rep.Skipped)
	require.Len(t, rep.Trades, 1)
	assert.Equal(t, 95.0, rep.Trades[0].EntryPrice)
	assert.Equal(t, 115.0, rep.Trades[0].ExitPrice)

	var buf bytes.Buffer
	rep.Write(&buf)
	assert.Contains(t, buf.String(), "Skipped 2 candles")
}

func TestRun_EmptySeries(t *testing.T) {
	rep := Run(strategy.NewEngine(strategy.NewSkeleton()), nil, 100)
	assert.Zero(t, rep.Candles)
	assert.Zero(t, rep.WinRate())
}

func TestRun_RegistryStrategyOnSyntheticData(t *testing.T) {
	cfg := strategy.DefaultConfig()
	cfg.Name = "mean_reversion"
	s, err := strategy.New(cfg)
	require.NoError(t, err)

	bars := collector.GenerateCandles(model.Timeframe1m, 600, 150, time.Unix(1_700_000_000, 0), 7)
	rep := Run(strategy.NewEngine(s), model.NewCandleSeries(bars), 100)

	assert.Equal(t, 600, rep.Candles)
	assert.LessOrEqual(t, rep.Wins, len(rep.Trades))

	var buf bytes.Buffer
	rep.Write(&buf)
	assert.Contains(t, buf.String(), "Backtest: mean_reversion over 600 candles")
	assert.Contains(t, buf.String(), "Win rate:")
}
