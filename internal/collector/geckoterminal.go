package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"SwapSentinel/internal/model"
)

const geckoTerminalBaseURL = "https://api.geckoterminal.com/api/v2"

// GeckoTerminalProvider reads on-chain pool candles, close to what the DEX
// aggregator actually quotes. It is the low-latency runtime provider.
type GeckoTerminalProvider struct {
	BaseURL string
	Network string
	Pool    string
	Client  *http.Client
}

// NewGeckoTerminalProvider creates a provider for a Solana pool address.
func NewGeckoTerminalProvider(pool, proxyURL string) *GeckoTerminalProvider {
	return &GeckoTerminalProvider{
		BaseURL: geckoTerminalBaseURL,
		Network: "solana",
		Pool:    pool,
		Client:  newHTTPClient(proxyURL),
	}
}

func (f *GeckoTerminalProvider) Name() string { return "geckoterminal" }

// geckoTimeframes maps a timeframe onto the API's (bucket, aggregate) pair.
var geckoTimeframes = map[model.Timeframe]struct {
	bucket    string
	aggregate int
}{
	model.Timeframe1m:  {"minute", 1},
	model.Timeframe5m:  {"minute", 5},
	model.Timeframe15m: {"minute", 15},
	model.Timeframe1h:  {"hour", 1},
	model.Timeframe4h:  {"hour", 4},
	model.Timeframe1d:  {"day", 1},
}

type geckoOHLCV struct {
	Data struct {
		Attributes struct {
			OHLCVList [][6]float64 `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
}

type geckoPool struct {
	Data struct {
		Attributes struct {
			BaseTokenPriceUSD string `json:"base_token_price_usd"`
		} `json:"attributes"`
	} `json:"data"`
}

func (f *GeckoTerminalProvider) FetchCandles(ctx context.Context, tf model.Timeframe, limit int) ([]model.Candle, error) {
	gt, ok := geckoTimeframes[tf]
	if !ok {
		return nil, fmt.Errorf("geckoterminal: unsupported timeframe %s", tf)
	}
	if limit > 1000 {
		limit = 1000
	}
	endpoint := fmt.Sprintf("%s/networks/%s/pools/%s/ohlcv/%s?aggregate=%d&limit=%d&currency=usd",
		f.BaseURL, f.Network, f.Pool, gt.bucket, gt.aggregate, limit)

	var resp geckoOHLCV
	if err := f.get(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	bars := make([]model.Candle, 0, len(resp.Data.Attributes.OHLCVList))
	for _, row := range resp.Data.Attributes.OHLCVList {
		bars = append(bars, model.Candle{
			Timeframe: tf,
			Timestamp: int64(row[0]),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		})
	}
	return bars, nil
}

func (f *GeckoTerminalProvider) FetchCurrentPrice(ctx context.Context) (float64, error) {
	endpoint := fmt.Sprintf("%s/networks/%s/pools/%s", f.BaseURL, f.Network, f.Pool)
	var resp geckoPool
	if err := f.get(ctx, endpoint, &resp); err != nil {
		return 0, fmt.Errorf("fetch current price: %w", err)
	}
	price, err := strconv.ParseFloat(resp.Data.Attributes.BaseTokenPriceUSD, 64)
	if err != nil {
		return 0, fmt.Errorf("decode price: %w", err)
	}
	return price, nil
}

func (f *GeckoTerminalProvider) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
