package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// TokenLimiter throttles LLM usage measured in tokens per minute.
type TokenLimiter struct {
	limiter *rate.Limiter
	max     int
}

func NewTokenLimiter(maxTokensPerMinute int) *TokenLimiter {
	return &TokenLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(maxTokensPerMinute)/60.0), maxTokensPerMinute),
		max:     maxTokensPerMinute,
	}
}

// Wait blocks until n tokens are available. Requests larger than the
// per-minute budget are clamped so they can still proceed once the bucket is full.
func (t *TokenLimiter) Wait(ctx context.Context, n int) error {
	if n > t.max {
		n = t.max
	}
	if n <= 0 {
		return nil
	}
	return t.limiter.WaitN(ctx, n)
}

// GetRemaining reports the tokens currently available.
func (t *TokenLimiter) GetRemaining() int {
	return int(t.limiter.Tokens())
}
