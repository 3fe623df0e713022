package calculator

import "SwapSentinel/internal/model"

// Snapshot computes the reporting indicators over the candle closes. Each
// value is left at zero when the series is too short for it.
func Snapshot(series model.CandleSeries, price float64) model.Indicators {
	ind := model.Indicators{Price: price}
	closes := series.Closes()
	if v, err := CalculateRSI(closes, 14); err == nil {
		ind.RSI = v
	}
	if v, err := CalculateSMA(closes, 20); err == nil {
		ind.SMA = v
	}
	if v, err := CalculateEMA(closes, 20); err == nil {
		ind.EMA = v
	}
	if m, err := CalculateMACD(closes); err == nil {
		ind.MACDHistogram = m.Histogram
	}
	if b, err := CalculateBollinger(closes, 20, 2.0); err == nil {
		ind.BollingerUpper, ind.BollingerLower = b.Upper, b.Lower
	}
	return ind
}
