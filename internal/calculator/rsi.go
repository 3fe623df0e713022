package calculator

import (
	"errors"

	"github.com/markcheno/go-talib"
)

// CalculateRSI computes the Wilder-smoothed RSI of closes over the given period.
// Requires at least period+1 values.
func CalculateRSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(closes) < period+1 {
		return 0, errNotEnoughData
	}
	out := talib.Rsi(closes, period)
	return out[len(out)-1], nil
}
