package backend

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	next    Backend
	limiter *rate.Limiter
}

// RateLimited caps b at perSecond calls, with bursts of twice that. A
// non-positive rate returns b unchanged.
func RateLimited(b Backend, perSecond float64) Backend {
	if perSecond <= 0 {
		return b
	}
	burst := int(perSecond * 2)
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{next: b, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *rateLimited) Translate(ctx context.Context, text, targetLanguage, model string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Translate(ctx, text, targetLanguage, model)
}

func (r *rateLimited) Close() { Close(r.next) }
