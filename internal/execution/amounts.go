package execution

import (
	"github.com/shopspring/decimal"

	"SwapSentinel/internal/model"
)

// ToSmallestUnit converts a UI amount to integer base units, rounding down.
func ToSmallestUnit(amount float64, decimals int32) uint64 {
	if amount <= 0 {
		return 0
	}
	return uint64(decimal.NewFromFloat(amount).Shift(decimals).Floor().IntPart())
}

// FromSmallestUnit converts integer base units to a UI amount.
func FromSmallestUnit(amount uint64, decimals int32) float64 {
	v, _ := decimal.NewFromUint64(amount).Shift(-decimals).Float64()
	return v
}

// FillPrice derives the executed USDC-per-SOL price from a swap's amounts.
// It returns fallback when the amounts are missing.
func FillPrice(side model.Signal, res model.SwapResult, fallback float64) float64 {
	var usdc, sol uint64
	switch side {
	case model.SignalBuy:
		usdc, sol = res.InAmount, res.OutAmount
	case model.SignalSell:
		usdc, sol = res.OutAmount, res.InAmount
	default:
		return fallback
	}
	if usdc == 0 || sol == 0 {
		return fallback
	}
	price, _ := decimal.NewFromUint64(usdc).Shift(-model.USDCDecimals).
		Div(decimal.NewFromUint64(sol).Shift(-model.SOLDecimals)).
		Float64()
	return price
}
