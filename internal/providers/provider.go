// Package providers wraps the three external language-processing calls
// the pipeline depends on — OCR, embedding, and structured extraction —
// behind a uniform client shape: rate limited per configured RPM and
// circuit broken against sustained failure, via the shared
// guardedClient every client in this package embeds.
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"legal-doc-intelligence/internal/logger"
	"legal-doc-intelligence/internal/pipelineerr"
)

// guardedClient is the shared rate-limit + circuit-breaker scaffolding
// every provider client embeds; the HTTP specifics live in each
// provider's own file.
type guardedClient struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newGuardedClient(name string, rpm int, minDelay time.Duration) *guardedClient {
	limit := rate.Limit(float64(rpm) / 60.0)
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit breaker state change", "provider", name, "from", from.String(), "to", to.String())
		},
	})

	return &guardedClient{name: name, limiter: limiter, breaker: breaker}
}

// IsHealthy reports whether the circuit breaker is currently closed, a
// cheap pre-flight check a stage can make before committing a batch of
// calls to a provider that's already tripped open, rather than letting
// every call in the batch fail one at a time.
func (g *guardedClient) IsHealthy() bool {
	return g.breaker.State() == gobreaker.StateClosed
}

// call runs fn through the rate limiter then the circuit breaker,
// translating breaker-open and context-cancellation into the pipeline's
// own retryable error taxonomy so callers never special-case gobreaker.
func (g *guardedClient) call(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, pipelineerr.Cancelled("PROVIDER_WAIT_CANCELLED", fmt.Sprintf("%s: rate limiter wait cancelled: %v", g.name, err))
	}

	result, err := g.breaker.Execute(fn)
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, pipelineerr.Transient(pipelineerr.CodeExternalService, fmt.Sprintf("%s: circuit breaker open", g.name), err)
		}
		return nil, err
	}
	return result, nil
}
