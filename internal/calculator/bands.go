package calculator

import (
	"github.com/markcheno/go-talib"
)

// MACD holds the latest MACD line, signal line and histogram.
type MACD struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD uses the standard 12/26/9 periods.
func CalculateMACD(closes []float64) (MACD, error) {
	const fast, slow, signal = 12, 26, 9
	if len(closes) < slow+signal {
		return MACD{}, errNotEnoughData
	}
	line, sig, hist := talib.Macd(closes, fast, slow, signal)
	n := len(closes) - 1
	return MACD{Line: line[n], Signal: sig[n], Histogram: hist[n]}, nil
}

// Bollinger holds the latest band values.
type Bollinger struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// CalculateBollinger uses an SMA middle band with symmetric deviation bands.
func CalculateBollinger(closes []float64, period int, stdDev float64) (Bollinger, error) {
	if len(closes) < period {
		return Bollinger{}, errNotEnoughData
	}
	upper, middle, lower := talib.BBands(closes, period, stdDev, stdDev, talib.SMA)
	n := len(closes) - 1
	return Bollinger{Upper: upper[n], Middle: middle[n], Lower: lower[n]}, nil
}
