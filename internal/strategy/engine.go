package strategy

import (
	"fmt"
	"time"

	"SwapSentinel/internal/model"
)

// Engine is the FLAT/LONG position state machine around a strategy. Its
// position is authoritative; the strategy's own copy is kept in step by
// forwarding every fill.
type Engine struct {
	strategy Strategy
	position model.Position
}

func NewEngine(s Strategy) *Engine {
	return &Engine{strategy: s, position: model.FlatPosition()}
}

func (e *Engine) Strategy() Strategy { return e.strategy }
func (e *Engine) Position() model.Position { return e.position }

// Update lets the strategy refresh its indicators. Called every tick.
func (e *Engine) Update(t Tick) { e.strategy.Update(t) }

// Evaluate asks only the predicate that applies to the current position.
func (e *Engine) Evaluate(t Tick) model.Signal {
	switch e.position.Side {
	case model.SideFlat:
		if e.strategy.ShouldBuy(t) {
			return model.SignalBuy
		}
	case model.SideLong:
		if e.strategy.ShouldSell(t) {
			return model.SignalSell
		}
	}
	return model.SignalHold
}

// OnFill applies a confirmed fill. A BUY while long or a SELL while flat is
// rejected so the at-most-one-position invariant cannot be broken.
func (e *Engine) OnFill(sig model.Signal, price float64, at time.Time) error {
	switch sig {
	case model.SignalBuy:
		if e.position.IsLong() {
			return fmt.Errorf("buy fill while already long")
		}
		e.position = model.LongPosition(price, at)
		e.strategy.OnBuy(price, at)
	case model.SignalSell:
		if !e.position.IsLong() {
			return fmt.Errorf("sell fill while flat")
		}
		e.position = model.FlatPosition()
		e.strategy.OnSell(price, at)
	default:
		return fmt.Errorf("no fill for signal %s", sig)
	}
	return nil
}

// Snapshot produces the persistable state.
func (e *Engine) Snapshot() model.BotState {
	return model.BotState{
		Position:      e.position,
		StrategyState: e.strategy.State(),
	}
}

// Restore loads persisted state. The persisted position wins over whatever
// the strategy state says.
func (e *Engine) Restore(st model.BotState) {
	e.position = st.Position
	if st.StrategyState != nil {
		e.strategy.Restore(st.StrategyState)
	}
	sp := e.strategy.Position()
	switch {
	case e.position.IsLong() && !sp.IsLong():
		e.strategy.OnBuy(e.position.EntryPrice, e.position.EntryTime)
	case !e.position.IsLong() && sp.IsLong():
		e.strategy.OnSell(0, time.Time{})
	}
}
