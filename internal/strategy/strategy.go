package strategy

import (
	"time"

	"SwapSentinel/internal/model"
)

// Tick is the market view handed to a strategy on every iteration.
// Candles is empty when candle data is disabled or unavailable.
type Tick struct {
	Time    time.Time
	Price   float64
	Candles model.CandleSeries
}

// Strategy is a pluggable signal source. ShouldBuy is only asked while flat
// and ShouldSell only while long; Update is called every tick regardless.
type Strategy interface {
	Name() string
	Update(t Tick)
	ShouldBuy(t Tick) bool
	ShouldSell(t Tick) bool
	OnBuy(price float64, at time.Time)
	OnSell(price float64, at time.Time)
	Position() model.Position
	State() map[string]any
	Restore(state map[string]any)
}

// Base tracks the strategy's own view of the position. Strategies embed it.
type Base struct {
	position model.Position
}

func (b *Base) OnBuy(price float64, at time.Time) { b.position = model.LongPosition(price, at) }
func (b *Base) OnSell(float64, time.Time) { b.position = model.FlatPosition() }
func (b *Base) Position() model.Position { return b.position }

func (b *Base) baseState() map[string]any {
	st := map[string]any{"position": b.position.Side.String()}
	if b.position.IsLong() {
		st["entry_price"] = b.position.EntryPrice
		st["entry_time"] = b.position.EntryTime.UTC().Format(time.RFC3339)
	}
	return st
}

func (b *Base) restoreBase(st map[string]any) {
	side, err := model.ParseSide(stringOf(st["position"]))
	if err != nil || side != model.SideLong {
		b.position = model.FlatPosition()
		return
	}
	at, _ := time.Parse(time.RFC3339, stringOf(st["entry_time"]))
	b.position = model.LongPosition(floatOf(st["entry_price"]), at)
}

// priceHistory keeps a bounded window of tick prices for strategies running
// without candle data.
type priceHistory struct {
	prices []float64
	limit  int
}

func (h *priceHistory) add(p float64) {
	if p <= 0 {
		return
	}
	h.prices = append(h.prices, p)
	if h.limit > 0 && len(h.prices) > h.limit {
		h.prices = h.prices[len(h.prices)-h.limit:]
	}
}

// closes prefers candle closes and falls back to the tick history.
func (h *priceHistory) closes(t Tick) []float64 {
	if len(t.Candles) > 0 {
		return t.Candles.Closes()
	}
	return h.prices
}

func floatOf(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
