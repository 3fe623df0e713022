package recorder

import (
	"context"
	"time"
)

// Trade is one executed (or attempted) order.
type Trade struct {
	ID        string
	TickID    string
	Side      string // "buy" or "sell"
	InAmount  float64
	OutAmount float64
	Price     float64
	Signature string
	Confirmed bool
	Error     string
	Timestamp time.Time
}

// Decision is the strategy outcome of one tick.
type Decision struct {
	TickID    string
	Price     float64
	RSI       float64
	SMA       float64
	Signal    string
	Position  string
	Timestamp time.Time
}

// Recorder journals trading activity for later analysis.
type Recorder interface {
	RecordTrade(ctx context.Context, t *Trade) error
	RecordDecision(ctx context.Context, d *Decision) error
	RecentTrades(ctx context.Context, limit int) ([]Trade, error)
	Close() error
}
