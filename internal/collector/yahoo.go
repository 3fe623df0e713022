package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"SwapSentinel/internal/model"
)

// YahooFetcher implements Provider using the Yahoo Finance chart API. It is
// the fallback for the runtime provider.
type YahooFetcher struct {
	BaseURL string
	Ticker  string
	Client  *http.Client
}

// NewYahooFetcher creates a fetcher for a Yahoo ticker such as SOL-USD.
func NewYahooFetcher(ticker, proxyURL string) *YahooFetcher {
	return &YahooFetcher{
		BaseURL: "https://query1.finance.yahoo.com",
		Ticker:  ticker,
		Client:  newHTTPClient(proxyURL),
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// yahooIntervals maps timeframes onto chart intervals. 4h has no native interval.
var yahooIntervals = map[model.Timeframe]string{
	model.Timeframe1m:  "1m",
	model.Timeframe5m:  "5m",
	model.Timeframe15m: "15m",
	model.Timeframe1h:  "60m",
	model.Timeframe1d:  "1d",
}

// yahooRanges is ordered by span. Intraday data is only served for a recent window.
var yahooRanges = []struct {
	label string
	span  time.Duration
}{
	{"1d", 24 * time.Hour},
	{"5d", 5 * 24 * time.Hour},
	{"1mo", 30 * 24 * time.Hour},
	{"3mo", 90 * 24 * time.Hour},
	{"6mo", 180 * 24 * time.Hour},
	{"1y", 365 * 24 * time.Hour},
	{"2y", 730 * 24 * time.Hour},
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func deref(v []*float64, i int) float64 {
	if i >= len(v) || v[i] == nil {
		return 0
	}
	return *v[i]
}

func chartRange(tf model.Timeframe, limit int) string {
	want := time.Duration(limit) * tf.Duration()
	if tf == model.Timeframe1m && want > 5*24*time.Hour {
		return "5d"
	}
	for _, r := range yahooRanges {
		if want <= r.span {
			return r.label
		}
	}
	return yahooRanges[len(yahooRanges)-1].label
}

func (f *YahooFetcher) fetchChart(ctx context.Context, interval, rng string) (*yahooChart, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.BaseURL, url.PathEscape(f.Ticker), interval, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned")
	}
	return &chart, nil
}

func (f *YahooFetcher) FetchCandles(ctx context.Context, tf model.Timeframe, limit int) ([]model.Candle, error) {
	interval, ok := yahooIntervals[tf]
	if !ok {
		return nil, fmt.Errorf("yahoo: unsupported timeframe %s", tf)
	}
	chart, err := f.fetchChart(ctx, interval, chartRange(tf, limit))
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no quote data")
	}
	quote := result.Indicators.Quote[0]
	bars := make([]model.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c := deref(quote.Close, i)
		if c == 0 {
			continue // null bar
		}
		bars = append(bars, model.Candle{
			Timeframe: tf,
			Timestamp: ts - ts%tf.Seconds(),
			Open:      deref(quote.Open, i),
			High:      deref(quote.High, i),
			Low:       deref(quote.Low, i),
			Close:     c,
			Volume:    deref(quote.Volume, i),
		})
	}

	series := normalize(tf, bars)
	return series.Tail(limit), nil
}

func (f *YahooFetcher) FetchCurrentPrice(ctx context.Context) (float64, error) {
	chart, err := f.fetchChart(ctx, "1m", "1d")
	if err != nil {
		return 0, err
	}
	if p := chart.Chart.Result[0].Meta.RegularMarketPrice; p > 0 {
		return p, nil
	}
	return 0, fmt.Errorf("yahoo: no price data")
}
