package collector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2"

	"SwapSentinel/internal/model"
)

// binanceMaxKlines is the per-request kline cap of the Binance REST API.
const binanceMaxKlines = 1000

// BinanceProvider serves deep history from Binance spot klines.
type BinanceProvider struct {
	Client *binance.Client
	Symbol string
}

// NewBinanceProvider creates a provider for symbol (e.g. SOLUSDT). Public
// market data needs no credentials, so the keys may be empty.
func NewBinanceProvider(apiKey, secretKey, symbol, proxyURL string) *BinanceProvider {
	client := binance.NewClient(apiKey, secretKey)
	client.HTTPClient = newHTTPClient(proxyURL)
	return &BinanceProvider{Client: client, Symbol: symbol}
}

func (p *BinanceProvider) Name() string { return "binance" }

// FetchCandles pages backwards from now until limit bars are collected or
// the exchange runs out of history.
func (p *BinanceProvider) FetchCandles(ctx context.Context, tf model.Timeframe, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		return nil, nil
	}
	var (
		out     []model.Candle
		endTime int64
	)
	for len(out) < limit {
		batch := min(limit-len(out), binanceMaxKlines)
		svc := p.Client.NewKlinesService().
			Symbol(p.Symbol).
			Interval(string(tf)).
			Limit(batch)
		if endTime > 0 {
			svc = svc.EndTime(endTime)
		}
		klines, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance klines: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		page := make([]model.Candle, 0, len(klines))
		for _, k := range klines {
			c, err := klineToCandle(tf, k)
			if err != nil {
				return nil, err
			}
			page = append(page, c)
		}
		out = append(page, out...)
		endTime = klines[0].OpenTime - 1
		if len(klines) < batch {
			break
		}
	}
	return out, nil
}

func (p *BinanceProvider) FetchCurrentPrice(ctx context.Context) (float64, error) {
	prices, err := p.Client.NewListPricesService().Symbol(p.Symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance price: %w", err)
	}
	for _, sp := range prices {
		if sp.Symbol == p.Symbol {
			return strconv.ParseFloat(sp.Price, 64)
		}
	}
	return 0, fmt.Errorf("binance: no price for %s", p.Symbol)
}

func klineToCandle(tf model.Timeframe, k *binance.Kline) (model.Candle, error) {
	var vals [5]float64
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("binance kline %d: parse %q: %w", k.OpenTime, s, err)
		}
		vals[i] = v
	}
	return model.Candle{
		Timeframe: tf,
		Timestamp: k.OpenTime / 1000,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}
