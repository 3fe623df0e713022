package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"SwapSentinel/internal/model"
)

// Mode is the voting rule of a composite strategy.
type Mode string

const (
	ModeAll      Mode = "ALL"
	ModeAny      Mode = "ANY"
	ModeMajority Mode = "MAJORITY"
	ModeWeighted Mode = "WEIGHTED"
)

// ParseMode accepts the mode case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeAll, ModeAny, ModeMajority, ModeWeighted:
		return m, nil
	default:
		return "", fmt.Errorf("unknown composite mode %q: %w", s, model.ErrConfiguration)
	}
}

const weightTolerance = 0.001

// Composite combines sub-strategies under one voting rule.
type Composite struct {
	Base
	mode     Mode
	children []Strategy
	weights  []float64

	lastVotes []model.StrategyVote
}

// NewComposite validates the configuration up front: at least one child, and
// for WEIGHTED (or whenever weights are given) one weight per child summing
// to 1.0.
func NewComposite(mode Mode, children []Strategy, weights []float64) (*Composite, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("composite needs at least one strategy: %w", model.ErrConfiguration)
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == ModeWeighted || len(weights) > 0 {
		if len(weights) != len(children) {
			return nil, fmt.Errorf("composite has %d strategies but %d weights: %w",
				len(children), len(weights), model.ErrConfiguration)
		}
		sum := 0.0
		for _, w := range weights {
			if w < 0 {
				return nil, fmt.Errorf("negative composite weight %f: %w", w, model.ErrConfiguration)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > weightTolerance {
			return nil, fmt.Errorf("composite weights sum to %.4f, want 1.0: %w", sum, model.ErrConfiguration)
		}
	}
	return &Composite{mode: mode, children: children, weights: weights}, nil
}

func (c *Composite) Name() string {
	names := make([]string, len(c.children))
	for i, ch := range c.children {
		names[i] = ch.Name()
	}
	return fmt.Sprintf("composite(%s: %s)", c.mode, strings.Join(names, ", "))
}

func (c *Composite) Mode() Mode { return c.mode }

// LastVotes returns the votes of the most recent decision.
func (c *Composite) LastVotes() []model.StrategyVote { return c.lastVotes }

func (c *Composite) Update(t Tick) {
	for _, ch := range c.children {
		ch.Update(t)
	}
}

func (c *Composite) ShouldBuy(t Tick) bool {
	return c.decide(func(s Strategy) bool { return s.ShouldBuy(t) })
}

func (c *Composite) ShouldSell(t Tick) bool {
	return c.decide(func(s Strategy) bool { return s.ShouldSell(t) })
}

func (c *Composite) decide(ask func(Strategy) bool) bool {
	votes := make([]model.StrategyVote, len(c.children))
	for i, ch := range c.children {
		votes[i] = model.StrategyVote{Name: ch.Name(), Vote: ask(ch)}
		if i < len(c.weights) {
			votes[i].Weight = c.weights[i]
		}
	}
	c.lastVotes = votes
	return Tally(c.mode, votes)
}

// Tally applies the voting rule. WEIGHTED requires a score strictly above 0.5.
func Tally(mode Mode, votes []model.StrategyVote) bool {
	if len(votes) == 0 {
		return false
	}
	yes := 0
	score := 0.0
	for _, v := range votes {
		if v.Vote {
			yes++
			score += v.Weight
		}
	}
	switch mode {
	case ModeAll:
		return yes == len(votes)
	case ModeAny:
		return yes > 0
	case ModeMajority:
		return yes*2 > len(votes)
	case ModeWeighted:
		return score > 0.5
	default:
		return false
	}
}

// OnBuy records the fill and forwards it to every child.
func (c *Composite) OnBuy(price float64, at time.Time) {
	c.Base.OnBuy(price, at)
	for _, ch := range c.children {
		ch.OnBuy(price, at)
	}
}

// OnSell records the fill and forwards it to every child.
func (c *Composite) OnSell(price float64, at time.Time) {
	c.Base.OnSell(price, at)
	for _, ch := range c.children {
		ch.OnSell(price, at)
	}
}

func (c *Composite) State() map[string]any {
	st := c.baseState()
	st["mode"] = string(c.mode)
	children := make([]any, len(c.children))
	for i, ch := range c.children {
		children[i] = map[string]any{"name": ch.Name(), "state": ch.State()}
	}
	st["strategies"] = children
	return st
}

// Restore matches child states by position and name; unknown entries are ignored.
func (c *Composite) Restore(st map[string]any) {
	c.restoreBase(st)
	saved, _ := st["strategies"].([]any)
	for i, ch := range c.children {
		if i >= len(saved) {
			break
		}
		entry, _ := saved[i].(map[string]any)
		if entry == nil || stringOf(entry["name"]) != ch.Name() {
			continue
		}
		if childState, ok := entry["state"].(map[string]any); ok {
			ch.Restore(childState)
		}
	}
}
