package model

import (
	"fmt"
	"time"
)

// Side is the position state of the bot.
type Side int

const (
	SideFlat Side = iota
	SideLong
)

func (s Side) String() string {
	switch s {
	case SideFlat:
		return "flat"
	case SideLong:
		return "long"
	default:
		return "unknown"
	}
}

// ParseSide accepts the persisted lowercase form.
func ParseSide(s string) (Side, error) {
	switch s {
	case "flat", "":
		return SideFlat, nil
	case "long":
		return SideLong, nil
	default:
		return SideFlat, fmt.Errorf("unknown position %q", s)
	}
}

// Position is FLAT, or LONG with the entry price and time of the fill that opened it.
type Position struct {
	Side       Side
	EntryPrice float64
	EntryTime  time.Time
}

// FlatPosition returns the initial position.
func FlatPosition() Position { return Position{Side: SideFlat} }

// LongPosition opens a position at the given fill.
func LongPosition(price float64, at time.Time) Position {
	return Position{Side: SideLong, EntryPrice: price, EntryTime: at}
}

func (p Position) IsLong() bool { return p.Side == SideLong }

// BotState is the unit of persistence.
type BotState struct {
	Position      Position
	StrategyState map[string]any
	LastUpdated   time.Time
}

// DefaultBotState is the first-run state.
func DefaultBotState() BotState {
	return BotState{Position: FlatPosition(), StrategyState: map[string]any{}}
}
