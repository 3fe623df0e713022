package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"SwapSentinel/internal/model"
	"SwapSentinel/internal/retry"
)

const (
	DefaultQuoteURL = "https://public.jupiterapi.com/quote"
	DefaultSwapURL  = "https://public.jupiterapi.com/swap"
)

// Client talks to the Jupiter swap aggregator.
type Client struct {
	QuoteURL string
	SwapURL  string
	HTTP     *http.Client
}

// NewClient creates a client with optional proxy support.
func NewClient(quoteURL, swapURL, proxyURL string) *Client {
	if quoteURL == "" {
		quoteURL = DefaultQuoteURL
	}
	if swapURL == "" {
		swapURL = DefaultSwapURL
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &Client{
		QuoteURL: quoteURL,
		SwapURL:  swapURL,
		HTTP:     &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}
}

// QuoteRequest is an exact-in quote. Amount is in the input mint's smallest unit.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

type quoteResponse struct {
	InputMint      string            `json:"inputMint"`
	OutputMint     string            `json:"outputMint"`
	InAmount       string            `json:"inAmount"`
	OutAmount      string            `json:"outAmount"`
	SlippageBps    int               `json:"slippageBps"`
	PriceImpactPct string            `json:"priceImpactPct"`
	RoutePlan      []json.RawMessage `json:"routePlan"`
}

// Quote requests a fresh quote.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*model.Quote, error) {
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	q.Set("onlyDirectRoutes", "false")
	q.Set("asLegacyTransaction", "true")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.QuoteURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	body, err := c.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("quote decode: %w", err)
	}
	in, err := strconv.ParseUint(resp.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("quote inAmount %q: %w", resp.InAmount, err)
	}
	out, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("quote outAmount %q: %w", resp.OutAmount, err)
	}
	return &model.Quote{
		InputMint:      resp.InputMint,
		OutputMint:     resp.OutputMint,
		InAmount:       in,
		OutAmount:      out,
		SlippageBps:    resp.SlippageBps,
		PriceImpactPct: resp.PriceImpactPct,
		RouteHops:      len(resp.RoutePlan),
		Raw:            json.RawMessage(body),
	}, nil
}

// SwapTransaction is the aggregator-built transaction for a quote.
type SwapTransaction struct {
	Raw                  []byte
	LastValidBlockHeight uint64
	SimulationError      string
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports string          `json:"prioritizationFeeLamports"`
}

type swapResponse struct {
	SwapTransaction      string          `json:"swapTransaction"`
	LastValidBlockHeight uint64          `json:"lastValidBlockHeight"`
	SimulationError      json.RawMessage `json:"simulationError"`
}

// BuildSwap asks the aggregator to build the transaction for quote. A reported
// simulation error is returned as model.ErrStaleQuote.
func (c *Client) BuildSwap(ctx context.Context, quote *model.Quote, userPublicKey string) (*SwapTransaction, error) {
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:             quote.Raw,
		UserPublicKey:             userPublicKey,
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: "auto",
	})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal swap request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.SwapURL, bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	body, err := c.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("swap decode: %w", err)
	}
	tx := &SwapTransaction{
		LastValidBlockHeight: resp.LastValidBlockHeight,
		SimulationError:      simulationText(resp.SimulationError),
	}
	if tx.SimulationError != "" {
		return tx, retry.Permanent(fmt.Errorf("swap simulation: %s: %w", tx.SimulationError, model.ErrStaleQuote))
	}
	if resp.SwapTransaction == "" {
		return nil, retry.Permanent(fmt.Errorf("swap: empty transaction: %w", model.ErrStaleQuote))
	}
	tx.Raw, err = base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("swap transaction base64: %w", err))
	}
	return tx, nil
}

// do executes req. Network errors, 429 and 5xx are transient; other non-200
// statuses are permanent.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", model.ErrTransientNetwork, err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d, body: %s", model.ErrTransientNetwork, resp.StatusCode, string(body))
	default:
		return nil, retry.Permanent(fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body)))
	}
}

// simulationText renders simulationError, which is either a string or an object.
func simulationText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}
