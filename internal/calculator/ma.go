package calculator

import (
	"errors"

	"github.com/markcheno/go-talib"
)

var errNotEnoughData = errors.New("not enough data")

// CalculateSMA returns the latest simple moving average of prices over period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errNotEnoughData
	}
	out := talib.Sma(prices, period)
	return out[len(out)-1], nil
}

// CalculateEMA returns the latest exponential moving average of prices over period.
func CalculateEMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errNotEnoughData
	}
	out := talib.Ema(prices, period)
	return out[len(out)-1], nil
}
