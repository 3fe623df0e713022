package model

import "errors"

var (
	// ErrTransientNetwork marks a retryable provider, aggregator, or RPC failure.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrStaleQuote marks an execution failure attributable to quote decay.
	ErrStaleQuote = errors.New("stale quote")
	// ErrInsufficientBalance aborts an order before any network call.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrCorruptState is logged by the state store and never propagated.
	ErrCorruptState = errors.New("corrupt state file")
	// ErrConfiguration is fatal at startup.
	ErrConfiguration = errors.New("configuration error")
)
