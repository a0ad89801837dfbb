package resilience

import (
	"context"

	"go.uber.org/zap"
)

// Policy combines retries and a circuit breaker for one named store.
type Policy struct {
	Service string
	Retry   RetryConfig
	Breaker *CircuitBreaker
}

// NewPolicy builds a Policy whose breaker logs its state changes.
func NewPolicy(service string, retry RetryConfig, breaker CircuitBreakerConfig) *Policy {
	if breaker.OnStateChange == nil {
		breaker.OnStateChange = func(from, to CircuitState) {
			zap.L().Warn("store circuit state changed",
				zap.String("service", service),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	return &Policy{Service: service, Retry: retry, Breaker: NewCircuitBreaker(breaker)}
}

// Call runs fn under p. Each attempt passes through the breaker; an open
// circuit is not retried. A nil policy calls fn once.
func Call[T any](ctx context.Context, p *Policy, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	if p == nil {
		return fn(ctx)
	}
	retry := p.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = RetryLogger(p.Service, operation)
	}
	return DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		if p.Breaker == nil {
			return fn(ctx)
		}
		return ExecuteVal(ctx, p.Breaker, fn)
	})
}
