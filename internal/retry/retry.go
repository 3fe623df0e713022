package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"SwapSentinel/internal/logger"
)

// Policy is a bounded exponential backoff: Initial, doubling, capped at Max.
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration

	// OnRetry, if set, is called before each sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy mirrors the bot defaults: 3 attempts, 1s initial delay, 60s cap.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Initial: time.Second, Max: 60 * time.Second}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that Do stops retrying immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs fn until it succeeds, returns a permanent error, the attempts run out,
// or ctx is cancelled.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := &backoff.Backoff{Min: p.Initial, Max: p.Max, Factor: 2}
	if b.Min <= 0 {
		b.Min = time.Second
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if IsPermanent(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		wait := b.Duration()
		logger.Warn("retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := Sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%s: all %d attempts failed: %w", op, attempts, lastErr)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
