package nasdaq

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"optionsflow/pkg/errors"
)

// guard throttles upstream calls and fails fast while the upstream keeps failing
type guard struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newGuard(name string, requestsPerMinute int, maxFailures uint32, cooldown time.Duration) *guard {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if maxFailures == 0 {
		maxFailures = 5
	}

	// Allow burst of 10% of per-minute limit
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	settings := gobreaker.Settings{
		Name:    name,
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Caller cancellation says nothing about upstream health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerCanceled)
		},
	}

	return &guard{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// do waits for a rate-limit token and runs fn through the breaker.
// Every failure comes back marked as errors.ErrSourceUnavailable.
func (g *guard) do(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrapf(errors.ErrSourceUnavailable, "rate limiter %s: %v", g.name, err)
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	switch {
	case err == nil:
		return out.([]byte), nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, errors.Wrapf(errors.ErrSourceUnavailable, "circuit %s: %v", g.name, err)
	case errors.Is(err, errors.ErrSourceUnavailable):
		return nil, err
	default:
		return nil, errors.Wrapf(errors.ErrSourceUnavailable, "%v", err)
	}
}

// state exposes the breaker state for health reporting
func (g *guard) state() gobreaker.State {
	return g.breaker.State()
}
