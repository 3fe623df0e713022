package collector

import (
	"time"

	"github.com/sony/gobreaker"
)

// BreakerState is the runtime leg's circuit breaker state as exported on the
// breaker gauge: 0 closed, 1 open, 2 half-open.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned without calling the provider while the breaker is open.
var ErrBreakerOpen = gobreaker.ErrOpenState

func breakerState(s gobreaker.State) BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return BreakerOpen
	case gobreaker.StateHalfOpen:
		return BreakerHalfOpen
	default:
		return BreakerClosed
	}
}

// newBreaker opens after maxFailures consecutive failures, rejects calls for
// reset, then lets a single trial call through.
func newBreaker(name string, maxFailures int, reset time.Duration, onChange func(from, to BreakerState)) *gobreaker.CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if reset <= 0 {
		reset = time.Minute
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     reset,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			onChange(breakerState(from), breakerState(to))
		},
	})
}
