package strategy

import (
	"fmt"

	"SwapSentinel/internal/calculator"
	"SwapSentinel/internal/model"
)

// RSIParams configures the RSI strategy.
type RSIParams struct {
	Period     int     `yaml:"period"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
	MinCandles int     `yaml:"min_candles"`
}

func DefaultRSIParams() RSIParams {
	return RSIParams{Period: 14, Oversold: 30, Overbought: 70, MinCandles: 50}
}

func (p RSIParams) validate() error {
	if p.Period <= 0 {
		return fmt.Errorf("rsi period must be positive: %w", model.ErrConfiguration)
	}
	if p.Oversold <= 0 || p.Overbought >= 100 || p.Oversold >= p.Overbought {
		return fmt.Errorf("rsi thresholds %.1f/%.1f invalid: %w", p.Oversold, p.Overbought, model.ErrConfiguration)
	}
	if p.MinCandles < p.Period+1 {
		return fmt.Errorf("rsi min_candles must exceed period: %w", model.ErrConfiguration)
	}
	return nil
}

// RSI buys when oversold and sells when overbought.
type RSI struct {
	Base
	params  RSIParams
	history priceHistory
	rsi     float64
	ready   bool
}

func NewRSI(params RSIParams) (*RSI, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &RSI{params: params, history: priceHistory{limit: params.MinCandles * 4}}, nil
}

func (s *RSI) Name() string { return "rsi" }

func (s *RSI) Update(t Tick) {
	s.history.add(t.Price)
	closes := s.history.closes(t)
	s.ready = false
	if len(closes) < s.params.MinCandles {
		return
	}
	v, err := calculator.CalculateRSI(closes, s.params.Period)
	if err != nil {
		return
	}
	s.rsi, s.ready = v, true
}

// Value returns the last computed RSI and whether it is usable.
func (s *RSI) Value() (float64, bool) { return s.rsi, s.ready }

func (s *RSI) ShouldBuy(Tick) bool  { return s.ready && s.rsi < s.params.Oversold }
func (s *RSI) ShouldSell(Tick) bool { return s.ready && s.rsi > s.params.Overbought }

func (s *RSI) State() map[string]any {
	st := s.baseState()
	if s.ready {
		st["rsi"] = s.rsi
	}
	return st
}

func (s *RSI) Restore(st map[string]any) { s.restoreBase(st) }
