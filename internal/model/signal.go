package model

// Signal is the decision produced by the strategy engine for one tick.
type Signal int

const (
	SignalHold Signal = iota
	SignalBuy
	SignalSell
)

func (s Signal) String() string {
	switch s {
	case SignalHold:
		return "HOLD"
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// StrategyVote is one sub-strategy's opinion, consumed by the composite aggregator.
type StrategyVote struct {
	Name   string
	Vote   bool
	Weight float64
}

// Indicators is a snapshot of the values a strategy last computed, for reporting.
// Zero means not enough data.
type Indicators struct {
	Price          float64
	RSI            float64
	SMA            float64
	EMA            float64
	MACDHistogram  float64
	BollingerUpper float64
	BollingerLower float64
}
