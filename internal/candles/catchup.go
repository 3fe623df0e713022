package candles

import (
	"time"

	"SwapSentinel/internal/model"
)

// FullFetchThreshold is the number of bars behind beyond which a delta fetch
// is abandoned in favour of a full refetch.
const FullFetchThreshold = 10000

// CatchUp describes how much history a timeframe is missing.
type CatchUp struct {
	Timeframe       model.Timeframe
	Required        int
	ExistingCount   int
	HasData         bool
	LatestTimestamp int64
	BarsBehind      int64
	CandlesNeeded   int
	FullFetch       bool
}

// PlanCatchUp is the pure catch-up computation.
//
// With stored data, CandlesNeeded is min(required-existing, bars behind). Once
// the store already holds the required depth only the bars behind are needed,
// so the tail keeps advancing without holes.
func PlanCatchUp(tf model.Timeframe, required, existing int, latest int64, hasData bool, now time.Time) CatchUp {
	p := CatchUp{
		Timeframe:       tf,
		Required:        required,
		ExistingCount:   existing,
		HasData:         hasData,
		LatestTimestamp: latest,
	}
	if !hasData {
		p.CandlesNeeded = required
		p.FullFetch = true
		return p
	}

	secs := tf.Seconds()
	if secs > 0 {
		p.BarsBehind = (now.Unix() - latest) / secs
	}
	if p.BarsBehind < 0 {
		p.BarsBehind = 0
	}

	missing := int64(required - existing)
	if missing > 0 {
		p.CandlesNeeded = int(min(missing, p.BarsBehind))
	} else {
		p.CandlesNeeded = int(p.BarsBehind)
	}
	p.FullFetch = p.BarsBehind > FullFetchThreshold
	return p
}
