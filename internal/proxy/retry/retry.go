// Package retry bounds outbound proxy calls with a fixed-delay retry
// loop over transient failures.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
	"github.com/lk2023060901/chat-bridge/internal/proxy/types"
)

// Policy retries a call up to maxRetries times after the first attempt,
// so a call makes at most maxRetries+1 attempts. Only transient failures
// (rate limit, server error, unavailable) are retried; everything else
// propagates immediately.
type Policy struct {
	maxRetries int
	delay      time.Duration
	log        *logger.Logger
}

// New builds a policy. A nil logger falls back to the global one.
func New(maxRetries int, delay time.Duration, log *logger.Logger) *Policy {
	if log == nil {
		log = logger.L()
	}
	return &Policy{maxRetries: maxRetries, delay: delay, log: log}
}

// Do runs fn under the policy. The last error is returned as-is once
// attempts are exhausted.
func (p *Policy) Do(ctx context.Context, model string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries+1; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !types.IsTransient(err) {
			return err
		}
		p.log.Warn("transient proxy failure",
			zap.String("model", model),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.maxRetries+1),
			zap.Error(err))
	}
	return lastErr
}

// Do runs fn under the policy and returns its value. The zero value of
// T accompanies any error.
func Do[T any](ctx context.Context, p *Policy, model string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, model, func(ctx context.Context) error {
		var ferr error
		out, ferr = fn(ctx)
		return ferr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
