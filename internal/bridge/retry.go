package bridge

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/Flashl3opard/structify/internal/llm"
)

// RetryPolicy is a caller-side policy. Bridge.Convert itself always makes
// a single attempt; wrap it with WithRetry to opt in.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	// MaxBackoff caps both computed backoff and honoured Retry-After.
	MaxBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = 100 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	return p
}

// Retryable reports whether another identical attempt could succeed:
// upstream 408/429/5xx or a transient network failure. Invalid input,
// configuration and parse errors are never retried.
func Retryable(err error) bool {
	be := AsError(err)
	if be == nil {
		return false
	}
	switch be.Kind {
	case KindUpstream:
		return llm.RetryableStatus(be.Status)
	case KindTransport:
		return llm.IsTransientNetError(be.Err)
	default:
		return false
	}
}

// WithRetry wraps next with p. With MaxRetries <= 0 it returns next unchanged.
func WithRetry(next Converter, p RetryPolicy, logger *zap.Logger) Converter {
	if p.MaxRetries <= 0 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retrying{next: next, policy: p.withDefaults(), logger: logger}
}

type retrying struct {
	next   Converter
	policy RetryPolicy
	logger *zap.Logger
}

func (r *retrying) Convert(ctx context.Context, prompt string) (Records, error) {
	maxAttempts := r.policy.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fromClientError(err)
		}

		records, err := r.next.Convert(ctx, prompt)
		if err == nil {
			return records, nil
		}
		lastErr = err

		if !Retryable(err) || attempt == maxAttempts-1 {
			break
		}

		wait := computeBackoff(r.policy.BaseBackoff, attempt)
		if be := AsError(err); be.RetryAfter > 0 {
			wait = be.RetryAfter
		}
		if wait > r.policy.MaxBackoff {
			wait = r.policy.MaxBackoff
		}

		r.logger.Debug("retrying conversion",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fromClientError(ctx.Err())
		case <-timer.C:
		}
	}

	return nil, lastErr
}

// computeBackoff returns a full-jitter delay in [0, base*2^attempt),
// capped at one minute.
func computeBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	const maxExponent = 10
	if attempt > maxExponent {
		attempt = maxExponent
	}

	maxBackoff := time.Duration(float64(base) * math.Pow(2, float64(attempt)))

	const maxAllowed = 60 * time.Second
	if maxBackoff > maxAllowed {
		maxBackoff = maxAllowed
	}

	return time.Duration(rand.Float64() * float64(maxBackoff))
}
