package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"SwapSentinel/internal/model"
)

func TestSmallestUnitConversion(t *testing.T) {
	assert.Equal(t, uint64(100_000_000), ToSmallestUnit(100, model.USDCDecimals))
	assert.Equal(t, uint64(1_234_567), ToSmallestUnit(1.2345678, model.USDCDecimals))
	assert.Equal(t, uint64(500_000_000), ToSmallestUnit(0.5, model.SOLDecimals))
	assert.Equal(t, uint64(0), ToSmallestUnit(-1, model.SOLDecimals))
	assert.InDelta(t, 0.5, FromSmallestUnit(500_000_000, model.SOLDecimals), 1e-12)
}

func TestFillPrice(t *testing.T) {
	buy := model.SwapResult{InAmount: 100_000_000, OutAmount: 500_000_000} // 100 USDC -> 0.5 SOL
	assert.InDelta(t, 200.0, FillPrice(model.SignalBuy, buy, 1), 1e-9)

	sell := model.SwapResult{InAmount: 500_000_000, OutAmount: 110_000_000} // 0.5 SOL -> 110 USDC
	assert.InDelta(t, 220.0, FillPrice(model.SignalSell, sell, 1), 1e-9)

	assert.Equal(t, 150.0, FillPrice(model.SignalBuy, model.SwapResult{}, 150))
	assert.Equal(t, 150.0, FillPrice(model.SignalHold, buy, 150))
}
