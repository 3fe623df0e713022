package collector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"SwapSentinel/internal/candles"
	"SwapSentinel/internal/logger"
	"SwapSentinel/internal/model"
)

// CandleStore is the part of the candle cache the sync step needs.
type CandleStore interface {
	Plan(ctx context.Context, tf model.Timeframe, required int) (candles.CatchUp, error)
	Upsert(ctx context.Context, bars []model.Candle) (int, error)
}

// SyncResult reports what one sync did.
type SyncResult struct {
	Plan     candles.CatchUp
	Source   string
	Fetched  int
	GapFill  bool
	Upserted int
}

// Sync brings the cache for tf up to date.
//
// A full refetch comes from the historical provider. Otherwise the missing
// tail plus the still-forming bar comes from the runtime leg. If the fetched
// tail does not connect to the stored tail, or skips a bar inside the window
// (a minute without trades on a thin pool), the same window is refetched from
// the historical provider so the cache never holds a hole of its own making.
// On startup a store shallower than required is deepened from history.
func (a *Aggregator) Sync(ctx context.Context, store CandleStore, tf model.Timeframe, required int, startup bool) (SyncResult, error) {
	plan, err := store.Plan(ctx, tf, required)
	if err != nil {
		return SyncResult{}, fmt.Errorf("plan catch-up: %w", err)
	}
	res := SyncResult{Plan: plan}

	var bars model.CandleSeries
	switch {
	case plan.FullFetch, startup && plan.ExistingCount < required:
		res.Source = a.historical.Name()
		bars, err = a.FetchStartupHistorical(ctx, tf, required)
	default:
		limit := plan.CandlesNeeded + 1
		res.Source = a.runtime.Name()
		bars, err = a.FetchRuntimeCandles(ctx, tf, limit)
		if err == nil && hasGap(plan, bars) {
			logger.Info("runtime candles leave a gap, refilling from history",
				zap.String("timeframe", string(tf)),
				zap.Int64("latest", plan.LatestTimestamp),
				zap.Int64("first_fetched", bars[0].Timestamp))
			res.GapFill = true
			res.Source = a.historical.Name()
			bars, err = a.FetchStartupHistorical(ctx, tf, int(min(plan.BarsBehind, candles.FullFetchThreshold))+1)
		}
	}
	if err != nil {
		return res, err
	}

	res.Fetched = len(bars)
	n, err := store.Upsert(ctx, bars)
	if err != nil {
		return res, fmt.Errorf("upsert candles: %w", err)
	}
	res.Upserted = n
	a.opts.Metrics.CandlesUpserted.WithLabelValues(string(tf)).Add(float64(n))

	logger.Debug("candles synced",
		zap.String("timeframe", string(tf)),
		zap.String("source", res.Source),
		zap.Int("existing", plan.ExistingCount),
		zap.Int64("bars_behind", plan.BarsBehind),
		zap.Int("needed", plan.CandlesNeeded),
		zap.Bool("full_fetch", plan.FullFetch),
		zap.Int("upserted", n))
	return res, nil
}

// hasGap reports whether bars fail to connect to the stored tail or skip a
// bar inside the fetched window. bars is sorted ascending.
func hasGap(plan candles.CatchUp, bars model.CandleSeries) bool {
	step := plan.Timeframe.Seconds()
	if len(bars) == 0 || step <= 0 {
		return false
	}
	if plan.HasData && bars[0].Timestamp > plan.LatestTimestamp+step {
		return true
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp-bars[i-1].Timestamp > step {
			return true
		}
	}
	return false
}
