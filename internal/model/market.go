package model

import (
	"fmt"
	"sort"
	"time"
)

// Timeframe is the bucket width of a candle.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeSeconds = map[Timeframe]int64{
	Timeframe1m:  60,
	Timeframe5m:  300,
	Timeframe15m: 900,
	Timeframe1h:  3600,
	Timeframe4h:  14400,
	Timeframe1d:  86400,
}

// ParseTimeframe validates a timeframe label such as "1m" or "1h".
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeSeconds[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q: %w", s, ErrConfiguration)
	}
	return tf, nil
}

// Seconds returns the bucket width in seconds, or 0 for an unknown timeframe.
func (tf Timeframe) Seconds() int64 { return timeframeSeconds[tf] }

// Duration returns the bucket width as a time.Duration.
func (tf Timeframe) Duration() time.Duration { return time.Duration(tf.Seconds()) * time.Second }

// Candle represents a single OHLCV bar. Timestamp is the bucket open in unix seconds.
type Candle struct {
	Timeframe Timeframe
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Time returns the bucket open time.
func (c Candle) Time() time.Time { return time.Unix(c.Timestamp, 0).UTC() }

// CandleSeries is ordered by ascending timestamp without duplicates.
type CandleSeries []Candle

// NewCandleSeries sorts bars by timestamp and drops duplicate timestamps,
// keeping the bar that appears last in the input.
func NewCandleSeries(bars []Candle) CandleSeries {
	if len(bars) == 0 {
		return nil
	}
	byTS := make(map[int64]Candle, len(bars))
	for _, b := range bars {
		byTS[b.Timestamp] = b
	}
	out := make(CandleSeries, 0, len(byTS))
	for _, b := range byTS {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Closes extracts the closing prices in order.
func (s CandleSeries) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, c := range s {
		closes[i] = c.Close
	}
	return closes
}

// Last returns the most recent candle.
func (s CandleSeries) Last() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

// Tail returns at most the n most recent candles.
func (s CandleSeries) Tail(n int) CandleSeries {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}
