/*

This file contains the shortlist selection used by the status surface and the
rule-based recommender: restrict to the risk levels a tolerance admits, score
with a tolerance-only profile, and keep the best n by score.

*/

package aggregator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/stacksfoundry/yra/internal/scoring"
	"github.com/stacksfoundry/yra/internal/types"
)

var ErrInvalidTopNRequest = errors.New("invalid top-n request")

// TopN returns the n best-scoring opportunities the tolerance admits, in
// descending score order. Ties keep their aggregation order. Returns an empty
// slice when n is zero or negative, or when nothing passes the risk cap.
func TopN(opps []types.Opportunity, n int, tolerance types.RiskTolerance, params types.EngineParameters) ([]types.ScoredOpportunity, error) {
	if !tolerance.Valid() {
		return nil, fmt.Errorf("%w: unknown risk tolerance %q", ErrInvalidTopNRequest, tolerance)
	}
	if n <= 0 {
		return []types.ScoredOpportunity{}, nil
	}

	admitted := make([]types.Opportunity, 0, len(opps))
	for _, opp := range opps {
		if tolerance.Allows(opp.RiskLevel) {
			admitted = append(admitted, opp)
		}
	}
	if len(admitted) == 0 {
		return []types.ScoredOpportunity{}, nil
	}

	profile := types.UserProfile{RiskTolerance: tolerance}
	scored, err := scoring.CalculateOpportunityScores(admitted, profile, params)
	if err != nil {
		return nil, fmt.Errorf("failed to score shortlist candidates: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if n > len(scored) {
		n = len(scored)
	}
	return scored[:n], nil
}
