package model

import "encoding/json"

// Well-known mints and decimals for the traded pair.
const (
	SOLMint      = "So11111111111111111111111111111111111111112"
	USDCMint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	SOLDecimals  = 9
	USDCDecimals = 6
)

// Quote is a priced, time-limited swap proposal. Raw carries the aggregator's
// response verbatim so it can be handed back when building the transaction.
// A quote is consumed by at most one execution attempt.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	SlippageBps    int
	PriceImpactPct string
	RouteHops      int
	Raw            json.RawMessage
}

// SwapResult is the outcome of a submitted swap.
type SwapResult struct {
	Signature string
	Confirmed bool
	InAmount  uint64
	OutAmount uint64
}

// Filled reports whether the swap reached the network.
func (r *SwapResult) Filled() bool { return r != nil && r.Signature != "" }

// TxStatus is the network-reported state of a submitted transaction.
type TxStatus int

const (
	TxPending TxStatus = iota
	TxConfirmed
	TxFinalized
	TxFailed
)

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxConfirmed:
		return "confirmed"
	case TxFinalized:
		return "finalized"
	case TxFailed:
		return "failed"
	default:
		return "unknown"
	}
}
