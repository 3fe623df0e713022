package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SwapSentinel/internal/model"
)

func series(closes ...float64) model.CandleSeries {
	out := make(model.CandleSeries, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{Timeframe: model.Timeframe1m, Timestamp: int64(i) * 60, Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestRSI_Signals(t *testing.T) {
	s, err := NewRSI(DefaultRSIParams())
	require.NoError(t, err)

	falling := Tick{Price: 41, Candles: series(ramp(60, 100, -1)...)}
	s.Update(falling)
	v, _ := s.Value()
	assert.True(t, s.ShouldBuy(falling), "buy on a falling series, rsi=%.2f", v)

	rising := Tick{Price: 160, Candles: series(ramp(60, 100, 1)...)}
	s.Update(rising)
	assert.False(t, s.ShouldBuy(rising))
	assert.True(t, s.ShouldSell(rising))
}

func TestRSI_HoldsWithTooFewCandles(t *testing.T) {
	s, _ := NewRSI(DefaultRSIParams())
	tick := Tick{Price: 41, Candles: series(ramp(49, 100, -1)...)}
	s.Update(tick)
	assert.False(t, s.ShouldBuy(tick))
	assert.False(t, s.ShouldSell(tick))
	_, ok := s.Value()
	assert.False(t, ok, "RSI not ready below min_candles")
}

func TestRSI_UsesTickHistoryWithoutCandles(t *testing.T) {
	s, _ := NewRSI(DefaultRSIParams())
	var tick Tick
	for _, p := range ramp(55, 200, -1) {
		tick = Tick{Price: p}
		s.Update(tick)
	}
	assert.True(t, s.ShouldBuy(tick))
}

func TestNewRSI_InvalidParams(t *testing.T) {
	_, err := NewRSI(RSIParams{Period: 14, Oversold: 70, Overbought: 30, MinCandles: 50})
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestMeanReversion_Signals(t *testing.T) {
	s, err := NewMeanReversion(DefaultMeanReversionParams())
	require.NoError(t, err)
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 100
	}
	candles := series(flat...)

	tests := []struct {
		price float64
		buy   bool
	}{
		{98.9, true},
		{99.2, false},
		{99.5, false},
		{101, false},
	}
	for _, tt := range tests {
		tick := Tick{Price: tt.price, Candles: candles}
		s.Update(tick)
		assert.Equal(t, tt.buy, s.ShouldBuy(tick), "price %.2f", tt.price)
	}

	s.OnBuy(98.9, time.Now())
	below := series(ramp(20, 110, -1)...) // SMA 100.5
	hold := Tick{Price: 99.5, Candles: below}
	s.Update(hold)
	assert.False(t, s.ShouldSell(hold), "hold below SMA and target")

	revert := Tick{Price: 100.5, Candles: below}
	s.Update(revert)
	assert.True(t, s.ShouldSell(revert), "sell once price reverts to the SMA")

	high := series(ramp(20, 130, -1)...) // SMA 120.5
	target := Tick{Price: 100.9, Candles: high}
	s.Update(target)
	assert.True(t, s.ShouldSell(target), "sell at the 2% profit target")
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{"skeleton", "rsi", "mean_reversion"} {
		cfg := DefaultConfig()
		cfg.Name = name
		s, err := New(cfg)
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name())
	}

	cfg := DefaultConfig()
	cfg.Name = "does_not_exist"
	_, err := New(cfg)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestRegistry_Composite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = "composite"
	cfg.Composite = CompositeConfig{
		Mode: "weighted",
		Children: []ChildConfig{
			{Name: "rsi", Weight: 0.6},
			{Name: "mean_reversion", Weight: 0.4},
		},
	}
	s, err := New(cfg)
	require.NoError(t, err)
	c, ok := s.(*Composite)
	require.True(t, ok, "got %T", s)
	assert.Equal(t, ModeWeighted, c.Mode())
	assert.Len(t, c.children, 2)

	cfg.Composite.Children[1].Weight = 0.3
	_, err = New(cfg)
	assert.ErrorIs(t, err, model.ErrConfiguration)

	cfg.Composite.Children = []ChildConfig{{Name: "composite"}}
	cfg.Composite.Mode = "ALL"
	_, err = New(cfg)
	assert.Error(t, err, "nested composite is rejected")
}
