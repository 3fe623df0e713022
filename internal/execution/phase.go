package execution

// Phase is a step of a single order attempt.
type Phase int

const (
	PhaseQuoteRequested Phase = iota
	PhaseQuoteReceived
	PhaseTxBuilt
	PhaseAlreadySigned
	PhaseNeedsSigning
	PhaseSigned
	PhaseSubmitted
	PhaseConfirmed
	PhaseFailed
	PhaseTimedOut
)

var phaseNames = [...]string{
	PhaseQuoteRequested: "QUOTE_REQUESTED",
	PhaseQuoteReceived:  "QUOTE_RECEIVED",
	PhaseTxBuilt:        "TX_BUILT",
	PhaseAlreadySigned:  "ALREADY_SIGNED",
	PhaseNeedsSigning:   "NEEDS_SIGNING",
	PhaseSigned:         "SIGNED",
	PhaseSubmitted:      "SUBMITTED",
	PhaseConfirmed:      "CONFIRMED",
	PhaseFailed:         "FAILED",
	PhaseTimedOut:       "TIMED_OUT",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "UNKNOWN"
	}
	return phaseNames[p]
}

// Terminal reports whether p ends an attempt.
func (p Phase) Terminal() bool {
	return p == PhaseConfirmed || p == PhaseFailed || p == PhaseTimedOut
}
