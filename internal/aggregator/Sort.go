/*

This file contains the ordering operations for aggregated opportunities.
Sorting is stable and non-destructive: equal keys keep their aggregation
order and the input slice is never rearranged.

*/

package aggregator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/stacksfoundry/yra/internal/config"
	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/scoring"
	"github.com/stacksfoundry/yra/internal/types"
)

var ErrInvalidSortRequest = errors.New("invalid sort request")

var sortLogger = logger.GetForComponent("aggregator_sort")

// SortKey selects the attribute opportunities are ordered by.
type SortKey string

const (
	SortByAPY   SortKey = "apy"
	SortByTVL   SortKey = "tvl"
	SortByScore SortKey = "score"
)

func (k SortKey) Valid() bool {
	switch k {
	case SortByAPY, SortByTVL, SortByScore:
		return true
	}
	return false
}

// SortDirection selects ascending or descending order.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

func (d SortDirection) Valid() bool {
	return d == SortAscending || d == SortDescending
}

// Sort returns a new slice ordered by the given key and direction. Sorting by
// score uses the given profile; a nil profile falls back to a neutral moderate
// profile so listings without a depositor in scope still rank sensibly. Score
// ordering uses the baseline engine parameters, keys are computed once per
// entry, and entries that fail scoring sort as zero rather than aborting the
// whole listing.
func Sort(opps []types.Opportunity, key SortKey, direction SortDirection, profile *types.UserProfile) ([]types.Opportunity, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidSortRequest, key)
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidSortRequest, direction)
	}

	keyOf := attributeKeyFunc(key, profile)

	type entry struct {
		opp types.Opportunity
		key float64
	}
	entries := make([]entry, len(opps))
	for i, opp := range opps {
		entries[i] = entry{opp: opp, key: keyOf(opp)}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if direction == SortAscending {
			return entries[i].key < entries[j].key
		}
		return entries[i].key > entries[j].key
	})

	sorted := make([]types.Opportunity, len(entries))
	for i, e := range entries {
		sorted[i] = e.opp
	}

	return sorted, nil
}

// attributeKeyFunc builds the key extractor for one sort key.
func attributeKeyFunc(key SortKey, profile *types.UserProfile) func(types.Opportunity) float64 {
	switch key {
	case SortByAPY:
		return func(opp types.Opportunity) float64 { return opp.APY }
	case SortByTVL:
		return func(opp types.Opportunity) float64 { return opp.TVLUSD }
	default:
		effective := NeutralProfile()
		if profile != nil {
			effective = *profile
		}
		return func(opp types.Opportunity) float64 {
			score, err := scoring.CalculateOpportunityScore(opp, effective, config.DefaultEngineParameters)
			if err != nil {
				sortLogger.Warn().
					Err(err).
					Str("protocol", opp.Protocol).
					Str("pool_id", opp.PoolID).
					Msg("Failed to score opportunity for sorting, treating as zero")
				return 0
			}
			return score
		}
	}
}

// NeutralProfile is the stand-in used when no depositor is in scope: moderate
// tolerance, no preferences, so the ranking carries no personal bias.
func NeutralProfile() types.UserProfile {
	return types.UserProfile{RiskTolerance: types.ToleranceModerate}
}
