package collector

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"SwapSentinel/internal/model"
)

// SyntheticProvider generates a reproducible random walk with alternating
// trend and volatility regimes. It backs offline backtests and seeding.
type SyntheticProvider struct {
	BasePrice float64
	Seed      int64
	Now       func() time.Time

	mu   sync.Mutex
	last float64
}

func NewSyntheticProvider(basePrice float64, seed int64) *SyntheticProvider {
	return &SyntheticProvider{BasePrice: basePrice, Seed: seed, Now: time.Now}
}

func (s *SyntheticProvider) Name() string { return "synthetic" }

func (s *SyntheticProvider) FetchCandles(_ context.Context, tf model.Timeframe, limit int) ([]model.Candle, error) {
	bars := GenerateCandles(tf, limit, s.BasePrice, s.Now(), s.Seed)
	if len(bars) > 0 {
		s.mu.Lock()
		s.last = bars[len(bars)-1].Close
		s.mu.Unlock()
	}
	return bars, nil
}

func (s *SyntheticProvider) FetchCurrentPrice(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last > 0 {
		return s.last, nil
	}
	return s.BasePrice, nil
}

// GenerateCandles produces count consecutive bars ending at the bucket that contains end.
func GenerateCandles(tf model.Timeframe, count int, basePrice float64, end time.Time, seed int64) []model.Candle {
	if count <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(seed))
	step := tf.Seconds()
	lastTS := end.Unix() - end.Unix()%step
	firstTS := lastTS - int64(count-1)*step

	const regimeLen = 120
	var (
		trend, vol float64
		price      = basePrice
	)
	bars := make([]model.Candle, count)
	for i := 0; i < count; i++ {
		if i%regimeLen == 0 {
			trend = (rng.Float64() - 0.5) * 0.0008
			vol = 0.001 + rng.Float64()*0.004
		}
		open := price
		change := trend + rng.NormFloat64()*vol
		closePrice := math.Max(open*(1+change), 0.01)
		wick := math.Abs(rng.NormFloat64()) * vol * open
		bars[i] = model.Candle{
			Timeframe: tf,
			Timestamp: firstTS + int64(i)*step,
			Open:      open,
			High:      math.Max(open, closePrice) + wick,
			Low:       math.Max(math.Min(open, closePrice)-wick, 0.01),
			Close:     closePrice,
			Volume:    1000 + rng.Float64()*9000,
		}
		price = closePrice
	}
	return bars
}
