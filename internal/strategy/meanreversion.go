package strategy

import (
	"fmt"

	"SwapSentinel/internal/calculator"
	"SwapSentinel/internal/model"
)

// MeanReversionParams configures the mean-reversion strategy.
type MeanReversionParams struct {
	Window     int     `yaml:"window"`
	EntryBelow float64 `yaml:"entry_below"` // fraction below the SMA to buy at
	TakeProfit float64 `yaml:"take_profit"` // fraction above entry to sell at
}

func DefaultMeanReversionParams() MeanReversionParams {
	return MeanReversionParams{Window: 20, EntryBelow: 0.01, TakeProfit: 0.02}
}

// MeanReversion buys a dip below the moving average and sells on a profit
// target or once price has reverted to the average.
type MeanReversion struct {
	Base
	params  MeanReversionParams
	history priceHistory
	sma     float64
	ready   bool
}

func NewMeanReversion(params MeanReversionParams) (*MeanReversion, error) {
	if params.Window <= 1 {
		return nil, fmt.Errorf("mean reversion window must be > 1: %w", model.ErrConfiguration)
	}
	if params.EntryBelow <= 0 || params.TakeProfit <= 0 {
		return nil, fmt.Errorf("mean reversion thresholds must be positive: %w", model.ErrConfiguration)
	}
	return &MeanReversion{params: params, history: priceHistory{limit: params.Window * 4}}, nil
}

func (s *MeanReversion) Name() string { return "mean_reversion" }

func (s *MeanReversion) Update(t Tick) {
	s.history.add(t.Price)
	v, err := calculator.CalculateSMA(s.history.closes(t), s.params.Window)
	s.sma, s.ready = v, err == nil
}

func (s *MeanReversion) ShouldBuy(t Tick) bool {
	return s.ready && t.Price < s.sma*(1-s.params.EntryBelow)
}

func (s *MeanReversion) ShouldSell(t Tick) bool {
	if entry := s.position.EntryPrice; entry > 0 && t.Price >= entry*(1+s.params.TakeProfit) {
		return true
	}
	return s.ready && t.Price >= s.sma
}

func (s *MeanReversion) State() map[string]any {
	st := s.baseState()
	if s.ready {
		st["sma"] = s.sma
	}
	return st
}

func (s *MeanReversion) Restore(st map[string]any) { s.restoreBase(st) }
