package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"SwapSentinel/internal/jupiter"
	"SwapSentinel/internal/logger"
	"SwapSentinel/internal/metrics"
	"SwapSentinel/internal/model"
	"SwapSentinel/internal/retry"
	"SwapSentinel/internal/trace"
)

// QuoteAPI is the swap aggregator.
type QuoteAPI interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*model.Quote, error)
	BuildSwap(ctx context.Context, quote *model.Quote, userPublicKey string) (*jupiter.SwapTransaction, error)
}

// Signer prepares aggregator-built transactions for submission.
type Signer interface {
	Address() string
	PrepareTransaction(raw []byte) (signed []byte, alreadySigned bool, err error)
}

// Network submits transactions and reports their status.
type Network interface {
	SendTransaction(ctx context.Context, raw []byte) (string, error)
	SignatureStatus(ctx context.Context, signature string) (model.TxStatus, error)
}

var (
	ErrNoQuote  = errors.New("no quote")
	ErrTxFailed = errors.New("transaction failed on chain")
)

type Options struct {
	SOLMint         string
	USDCMint        string
	SlippageBps     int
	MaxQuoteRetries int
	Retry           retry.Policy

	Confirm         bool
	ConfirmInterval time.Duration
	ConfirmTimeout  time.Duration

	Metrics *metrics.Metrics
}

func DefaultOptions() Options {
	return Options{
		SOLMint:         model.SOLMint,
		USDCMint:        model.USDCMint,
		SlippageBps:     100,
		MaxQuoteRetries: 3,
		Retry:           retry.DefaultPolicy(),
		Confirm:         true,
		ConfirmInterval: 2 * time.Second,
		ConfirmTimeout:  30 * time.Second,
	}
}

// Engine executes swaps: quote, build, sign, submit, confirm. A failure that
// points at quote decay discards the quote and starts over with a fresh one.
type Engine struct {
	quotes QuoteAPI
	signer Signer
	net    Network
	opts   Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(quotes QuoteAPI, signer Signer, net Network, opts Options) *Engine {
	if opts.MaxQuoteRetries <= 0 {
		opts.MaxQuoteRetries = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	if opts.SOLMint == "" {
		opts.SOLMint = model.SOLMint
	}
	if opts.USDCMint == "" {
		opts.USDCMint = model.USDCMint
	}
	return &Engine{
		quotes: quotes,
		signer: signer,
		net:    net,
		opts:   opts,
		now:    time.Now,
		sleep:  retry.Sleep,
	}
}

// Buy spends usdc for SOL.
func (e *Engine) Buy(ctx context.Context, usdc float64) (model.SwapResult, error) {
	amount := ToSmallestUnit(usdc, model.USDCDecimals)
	if amount == 0 {
		return model.SwapResult{}, fmt.Errorf("buy %.6f USDC: %w", usdc, model.ErrInsufficientBalance)
	}
	return e.Swap(ctx, model.SignalBuy, jupiter.QuoteRequest{
		InputMint:   e.opts.USDCMint,
		OutputMint:  e.opts.SOLMint,
		Amount:      amount,
		SlippageBps: e.opts.SlippageBps,
	})
}

// Sell swaps sol back to USDC.
func (e *Engine) Sell(ctx context.Context, sol float64) (model.SwapResult, error) {
	amount := ToSmallestUnit(sol, model.SOLDecimals)
	if amount == 0 {
		return model.SwapResult{}, fmt.Errorf("sell %.9f SOL: %w", sol, model.ErrInsufficientBalance)
	}
	return e.Swap(ctx, model.SignalSell, jupiter.QuoteRequest{
		InputMint:   e.opts.SOLMint,
		OutputMint:  e.opts.USDCMint,
		Amount:      amount,
		SlippageBps: e.opts.SlippageBps,
	})
}

// Swap runs up to MaxQuoteRetries attempts, each with a fresh quote. When all
// attempts fail the result carries no signature and the last error is returned.
func (e *Engine) Swap(ctx context.Context, side model.Signal, req jupiter.QuoteRequest) (model.SwapResult, error) {
	label := strings.ToLower(side.String())
	ctx, span := trace.StartSpan(ctx, "execution.swap",
		attribute.String("side", label),
		attribute.Int64("amount", int64(req.Amount)),
	)
	e.opts.Metrics.SwapAttempts.WithLabelValues(label).Inc()

	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxQuoteRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		if attempt > 1 {
			e.opts.Metrics.QuoteRefreshes.Inc()
		}

		res, err := e.attempt(ctx, req, attempt)
		if err == nil {
			outcome := "confirmed"
			if !res.Confirmed {
				outcome = "unconfirmed"
			}
			e.opts.Metrics.SwapOutcomes.WithLabelValues(label, outcome).Inc()
			trace.End(span, nil)
			return res, nil
		}
		lastErr = err
		if !errors.Is(err, model.ErrStaleQuote) {
			break
		}
		logger.Warn("discarding quote",
			zap.String("side", label),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.opts.MaxQuoteRetries),
			zap.Error(err),
		)
	}

	e.opts.Metrics.SwapOutcomes.WithLabelValues(label, "failed").Inc()
	trace.End(span, lastErr)
	logger.Error("swap failed", zap.String("side", label), zap.Error(lastErr))
	return model.SwapResult{}, fmt.Errorf("%s swap: %w", label, lastErr)
}

func (e *Engine) attempt(ctx context.Context, req jupiter.QuoteRequest, n int) (model.SwapResult, error) {
	ctx, span := trace.StartSpan(ctx, "execution.attempt", attribute.Int("attempt", n))
	res, err := e.runAttempt(ctx, req, n)
	trace.End(span, err)
	return res, err
}

func (e *Engine) runAttempt(ctx context.Context, req jupiter.QuoteRequest, n int) (model.SwapResult, error) {
	enter := func(p Phase, fields ...zap.Field) {
		logger.Debug("swap phase", append(fields, zap.Int("attempt", n), zap.Stringer("phase", p))...)
	}

	enter(PhaseQuoteRequested, zap.Uint64("amount", req.Amount))
	quote, err := retry.Value(ctx, e.policy("quote"), "quote", func(ctx context.Context) (*model.Quote, error) {
		return e.quotes.Quote(ctx, req)
	})
	if err != nil {
		enter(PhaseFailed, zap.Error(err))
		return model.SwapResult{}, fmt.Errorf("%w: %w", ErrNoQuote, err)
	}
	enter(PhaseQuoteReceived, zap.Uint64("out_amount", quote.OutAmount), zap.Int("hops", quote.RouteHops))

	tx, err := retry.Value(ctx, e.policy("build"), "build", func(ctx context.Context) (*jupiter.SwapTransaction, error) {
		return e.quotes.BuildSwap(ctx, quote, e.signer.Address())
	})
	if err != nil {
		enter(PhaseFailed, zap.Error(err))
		return model.SwapResult{}, stale("build", err)
	}
	enter(PhaseTxBuilt, zap.Int("bytes", len(tx.Raw)))

	signed, already, err := e.signer.PrepareTransaction(tx.Raw)
	if err != nil {
		enter(PhaseFailed, zap.Error(err))
		return model.SwapResult{}, stale("sign", err)
	}
	if already {
		enter(PhaseAlreadySigned)
	} else {
		enter(PhaseNeedsSigning)
		enter(PhaseSigned)
	}

	sig, err := retry.Value(ctx, e.policy("submit"), "submit", func(ctx context.Context) (string, error) {
		return e.net.SendTransaction(ctx, signed)
	})
	if err != nil {
		enter(PhaseFailed, zap.Error(err))
		return model.SwapResult{}, stale("submit", err)
	}
	enter(PhaseSubmitted, zap.String("signature", sig))

	res := model.SwapResult{Signature: sig, InAmount: quote.InAmount, OutAmount: quote.OutAmount}
	if !e.opts.Confirm {
		return res, nil
	}

	switch final := e.confirm(ctx, sig); final {
	case PhaseConfirmed:
		res.Confirmed = true
		enter(final, zap.String("signature", sig))
	case PhaseTimedOut:
		enter(final, zap.String("signature", sig))
		logger.Warn("swap submitted but not confirmed in time",
			zap.String("signature", sig), zap.Duration("waited", e.opts.ConfirmTimeout))
	default:
		enter(final, zap.String("signature", sig))
		return model.SwapResult{}, stale("confirm", fmt.Errorf("%w: %s", ErrTxFailed, sig))
	}
	return res, nil
}

// WaitForConfirmation polls sig until it is confirmed or finalized (true), fails
// on chain (false) or the configured wait elapses (false).
func (e *Engine) WaitForConfirmation(ctx context.Context, sig string) bool {
	return e.confirm(ctx, sig) == PhaseConfirmed
}

func (e *Engine) confirm(ctx context.Context, sig string) Phase {
	deadline := e.now().Add(e.opts.ConfirmTimeout)
	for {
		status, err := e.net.SignatureStatus(ctx, sig)
		switch {
		case err != nil:
			logger.Debug("signature status unavailable", zap.String("signature", sig), zap.Error(err))
		case status == model.TxConfirmed || status == model.TxFinalized:
			return PhaseConfirmed
		case status == model.TxFailed:
			return PhaseFailed
		}
		if !e.now().Before(deadline) {
			return PhaseTimedOut
		}
		if err := e.sleep(ctx, e.opts.ConfirmInterval); err != nil {
			return PhaseTimedOut
		}
	}
}

func (e *Engine) policy(op string) retry.Policy {
	p := e.opts.Retry
	p.OnRetry = e.opts.Metrics.RetryHook(op)
	return p
}

// stale marks err as a quote-decay failure unless the context ended.
func stale(step string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", step, err)
	}
	if errors.Is(err, model.ErrStaleQuote) {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%s: %w: %w", step, model.ErrStaleQuote, err)
}
