package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"SwapSentinel/internal/model"
)

// Provider is a source of candles and spot prices for the traded pair.
type Provider interface {
	Name() string
	FetchCandles(ctx context.Context, tf model.Timeframe, limit int) ([]model.Candle, error)
	FetchCurrentPrice(ctx context.Context) (float64, error)
}

// newHTTPClient builds a client with optional proxy support.
func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}

// normalize stamps the timeframe on every bar and restores the series invariants.
func normalize(tf model.Timeframe, bars []model.Candle) model.CandleSeries {
	for i := range bars {
		bars[i].Timeframe = tf
	}
	return model.NewCandleSeries(bars)
}
