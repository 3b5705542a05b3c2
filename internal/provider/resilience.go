package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

// rateLimited throttles outbound provider calls with a shared token bucket.
type rateLimited struct {
	next    Translator
	limiter *rate.Limiter
}

// WithRateLimit wraps next with an outbound token bucket of rps requests per
// second and the given burst. rps <= 0 disables limiting and returns next.
//
// A call whose ctx deadline would expire before a token is available fails
// fast with RATE_LIMIT instead of waiting.
func WithRateLimit(next Translator, rps float64, burst int) Translator {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *rateLimited) Name() string { return r.next.Name() }

func (r *rateLimited) Translate(ctx context.Context, text, targetLang string, opts Options) (*Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, NewError(KindRateLimit, "outbound provider rate limit", err)
	}
	return r.next.Translate(ctx, text, targetLang, opts)
}

// retrying retries retryable failures with exponential backoff.
type retrying struct {
	next     Translator
	maxTries uint
	initial  time.Duration
}

// WithRetry wraps next so TIMEOUT and RATE_LIMIT failures are retried up to
// maxRetries extra times. Other kinds fail immediately. maxRetries <= 0
// returns next unchanged.
func WithRetry(next Translator, maxRetries int, initial time.Duration) Translator {
	if maxRetries <= 0 {
		return next
	}
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	return &retrying{next: next, maxTries: uint(maxRetries) + 1, initial: initial}
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) Translate(ctx context.Context, text, targetLang string, opts Options) (*Result, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.initial

	res, err := backoff.Retry(ctx, func() (*Result, error) {
		res, err := r.next.Translate(ctx, text, targetLang, opts)
		if err == nil {
			return res, nil
		}
		pe := Classify(err)
		if !pe.Retryable {
			return nil, backoff.Permanent(pe)
		}
		return nil, pe
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(r.maxTries))
	if err != nil {
		return nil, Classify(err)
	}
	return res, nil
}
