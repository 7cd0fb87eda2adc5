package tools

import (
	"context"
	"math"
	"time"
)

// Invoker runs a tool call. *Facade implements it.
type Invoker interface {
	Invoke(ctx context.Context, req Request) Response
}

// RetryInvoker retries calls that failed with lock_timeout, backing off
// exponentially. Every attempt is a separate logged call; nothing else is
// retried.
type RetryInvoker struct {
	inner      Invoker
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// WithRetry wraps inner so lock timeouts are retried up to maxRetries times.
func WithRetry(inner Invoker, maxRetries int) *RetryInvoker {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryInvoker{inner: inner, maxRetries: maxRetries, baseDelay: 250 * time.Millisecond, maxDelay: 10 * time.Second}
}

func (r *RetryInvoker) Invoke(ctx context.Context, req Request) Response {
	var resp Response
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		resp = r.inner.Invoke(ctx, req)
		if resp.OK || !resp.Error.Retryable() || attempt == r.maxRetries {
			break
		}
		if err := r.backoff(ctx, attempt); err != nil {
			break
		}
	}
	return resp
}

func (r *RetryInvoker) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(float64(r.baseDelay) * math.Pow(2, float64(attempt)))
	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
