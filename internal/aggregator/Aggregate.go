/*

This file contains the aggregation service. One Aggregate pass fans out to
every registered protocol adapter concurrently, joins the results, and merges
them in registration order into a single immutable snapshot. A failing adapter
degrades the snapshot; only a total failure aborts it.

*/

package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stacksfoundry/yra/internal/adapters"
	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/metrics"
	"github.com/stacksfoundry/yra/internal/types"
)

var ErrAllAdaptersFailed = errors.New("all adapters failed")

// AdapterStatus records one adapter's outcome within a single pass.
type AdapterStatus struct {
	Protocol string `json:"protocol"`
	Count    int    `json:"count"`
	Err      string `json:"err,omitempty"`
}

// AggregationResult is the merged snapshot produced by one pass. Opportunities
// appear in adapter registration order, each adapter's batch in upstream
// order. The snapshot is never mutated after construction.
type AggregationResult struct {
	Opportunities   []types.Opportunity `json:"opportunities"`
	TotalTVLUSD     float64             `json:"total_tvl_usd"`
	HighestAPY      float64             `json:"highest_apy"`
	AdapterStatuses []AdapterStatus     `json:"adapter_statuses"`
	FetchedAt       time.Time           `json:"fetched_at"`
}

// Succeeded returns how many adapters produced a usable batch.
func (r *AggregationResult) Succeeded() int {
	count := 0
	for _, status := range r.AdapterStatuses {
		if status.Err == "" {
			count++
		}
	}
	return count
}

type Service struct {
	adapters []adapters.Adapter
	logger   zerolog.Logger
}

// NewService validates the adapter set and constructs the aggregation service.
func NewService(set []adapters.Adapter) (*Service, error) {
	if len(set) == 0 {
		return nil, errors.New("adapter set cannot be empty")
	}

	seen := make(map[string]bool, len(set))
	for i, adapter := range set {
		if adapter == nil {
			return nil, fmt.Errorf("adapter at index %d is nil", i)
		}
		name := adapter.Name()
		if name == "" {
			return nil, fmt.Errorf("adapter at index %d has empty name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate adapter name %q", name)
		}
		seen[name] = true
	}

	return &Service{
		adapters: set,
		logger:   logger.GetForComponent("aggregator"),
	}, nil
}

// Aggregate runs one full fan-out pass. Adapter failures are recorded in the
// result's AdapterStatuses and do not abort the pass; an error is returned
// only when every adapter fails.
func (s *Service) Aggregate(ctx context.Context) (*AggregationResult, error) {
	s.logger.Debug().
		Int("adapterCount", len(s.adapters)).
		Msg("Starting aggregation pass")

	type fetchOutcome struct {
		opps    []types.Opportunity
		err     error
		elapsed time.Duration
	}

	// Fan out one goroutine per adapter; outcomes land in a slice indexed by
	// registration position so the merge order is deterministic.
	outcomes := make([]fetchOutcome, len(s.adapters))
	var wg sync.WaitGroup

	for i, adapter := range s.adapters {
		wg.Add(1)
		go func(idx int, a adapters.Adapter) {
			defer wg.Done()
			started := time.Now()
			opps, err := a.FetchOpportunities(ctx)
			outcomes[idx] = fetchOutcome{opps: opps, err: err, elapsed: time.Since(started)}
		}(i, adapter)
	}

	wg.Wait()

	result := &AggregationResult{
		AdapterStatuses: make([]AdapterStatus, 0, len(s.adapters)),
		FetchedAt:       time.Now(),
	}
	failures := 0

	for i, adapter := range s.adapters {
		outcome := outcomes[i]
		status := AdapterStatus{Protocol: adapter.Name()}

		if outcome.err != nil {
			status.Err = outcome.err.Error()
			failures++
			metrics.AdapterFetches.WithLabelValues(adapter.Name(), "error").Inc()
			s.logger.Warn().
				Err(outcome.err).
				Str("adapter", adapter.Name()).
				Dur("elapsed", outcome.elapsed).
				Msg("Adapter fetch failed, continuing with remaining adapters")
		} else {
			status.Count = len(outcome.opps)
			metrics.AdapterFetches.WithLabelValues(adapter.Name(), "ok").Inc()
			result.Opportunities = append(result.Opportunities, outcome.opps...)
			s.logger.Debug().
				Str("adapter", adapter.Name()).
				Int("count", len(outcome.opps)).
				Dur("elapsed", outcome.elapsed).
				Msg("Adapter fetch succeeded")
		}

		result.AdapterStatuses = append(result.AdapterStatuses, status)
	}

	if failures == len(s.adapters) {
		s.logger.Error().
			Int("adapterCount", len(s.adapters)).
			Msg("Every adapter failed, aggregation pass aborted")
		return nil, ErrAllAdaptersFailed
	}

	for _, opp := range result.Opportunities {
		result.TotalTVLUSD += opp.TVLUSD
		if opp.APY > result.HighestAPY {
			result.HighestAPY = opp.APY
		}
	}

	metrics.OpportunitiesAggregated.Set(float64(len(result.Opportunities)))

	s.logger.Info().
		Int("opportunities", len(result.Opportunities)).
		Int("adaptersSucceeded", result.Succeeded()).
		Int("adaptersFailed", failures).
		Float64("totalTVLUSD", result.TotalTVLUSD).
		Float64("highestAPY", result.HighestAPY).
		Msg("Aggregation pass complete")

	return result, nil
}
