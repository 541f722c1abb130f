/*

This file defines the contract every protocol adapter satisfies, the guarded
wrapper that enforces per-adapter rate limiting and circuit breaking, and the
default registry consumed by the aggregator.

*/

package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/stacksfoundry/yra/internal/config"
	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/types"
)

var adapterLogger = logger.GetForComponent("adapters")

const (
	FETCH_TIMEOUT       = 15 * time.Second
	REQUESTS_PER_MINUTE = 30
	BREAKER_TRIP_AFTER  = 3
	BREAKER_COOLDOWN    = 60 * time.Second
)

// Adapter is one protocol-specific source of yield opportunities. Every
// implementation fetches from its upstream API, validates the raw response,
// and normalizes surviving entries into []types.Opportunity. Name() is the
// protocol identifier stamped on every opportunity the adapter emits.
type Adapter interface {
	Name() string
	FetchOpportunities(ctx context.Context) ([]types.Opportunity, error)
}

// GuardedAdapter wraps a raw adapter with a token-bucket rate limiter and a
// circuit breaker so a misbehaving upstream cannot stall the whole sync cycle
// or hammer a failing API. The limiter is applied before the breaker: a request
// that never leaves the process must not count against the breaker window.
type GuardedAdapter struct {
	inner   Adapter
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]types.Opportunity]
}

// NewGuardedAdapter wires the standard guard settings around an adapter.
// The breaker opens after BREAKER_TRIP_AFTER consecutive failures and allows
// a single probe request after BREAKER_COOLDOWN.
func NewGuardedAdapter(inner Adapter) *GuardedAdapter {
	rps := float64(REQUESTS_PER_MINUTE) / 60.0
	burst := REQUESTS_PER_MINUTE / 10
	if burst < 1 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker[[]types.Opportunity](gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Timeout:     BREAKER_COOLDOWN,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= BREAKER_TRIP_AFTER
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			adapterLogger.Warn().
				Str("adapter", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Adapter circuit breaker state changed")
		},
	})

	return &GuardedAdapter{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: breaker,
	}
}

func (g *GuardedAdapter) Name() string {
	return g.inner.Name()
}

func (g *GuardedAdapter) FetchOpportunities(ctx context.Context) ([]types.Opportunity, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed for %s: %w", g.inner.Name(), err)
	}

	opps, err := g.breaker.Execute(func() ([]types.Opportunity, error) {
		return g.inner.FetchOpportunities(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("guarded fetch failed for %s: %w", g.inner.Name(), err)
	}

	return opps, nil
}

// DefaultAdapters returns the full guarded adapter set. Registration order is
// stable: the aggregator merges results in this order, which keeps downstream
// tie-breaking deterministic across cycles.
func DefaultAdapters() []Adapter {
	return []Adapter{
		NewGuardedAdapter(NewAlexAdapter(config.AlexAPI)),
		NewGuardedAdapter(NewArkadikoAdapter(config.ArkadikoAPI)),
		NewGuardedAdapter(NewBitflowAdapter(config.BitflowAPI)),
		NewGuardedAdapter(NewZestAdapter(config.ZestAPI)),
	}
}

// validateAPIResponse performs strict validation on an upstream HTTP response
// before any adapter attempts to read the body.
func validateAPIResponse(resp *http.Response) error {
	if resp == nil {
		return errors.New("HTTP response is nil")
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned non-200 status: %d", resp.StatusCode)
	}

	if resp.Body == nil {
		return errors.New("response body is nil")
	}

	return nil
}
