/*

This file contains the rule-based recommendation stage, the path every
request can fall back to. It is fully deterministic: filter the aggregated
set by the depositor's own constraints, score the survivors, take the top
score as the primary pick and the next few as alternatives. No I/O, no
randomness, no model.

*/

package recommender

import (
	"fmt"
	"math"
	"sort"

	"github.com/stacksfoundry/yra/internal/aggregator"
	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/scoring"
	"github.com/stacksfoundry/yra/internal/types"
)

var rulesLogger = logger.GetForComponent("rule_recommender")

// recommendByRules produces the deterministic recommendation. Returns
// ErrNoSuitableOpportunities when profile filtering leaves nothing to rank.
func recommendByRules(opps []types.Opportunity, profile types.UserProfile, params types.EngineParameters) (*types.Recommendation, error) {
	candidates, err := aggregator.FilterByProfile(opps, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to filter candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %d opportunities were aggregated but none pass this profile's constraints",
			ErrNoSuitableOpportunities, len(opps))
	}

	rulesLogger.Debug().
		Int("aggregated", len(opps)).
		Int("candidates", len(candidates)).
		Str("tolerance", string(profile.RiskTolerance)).
		Msg("Scoring rule-based candidates")

	scored, err := scoring.CalculateOpportunityScores(candidates, profile, params)
	if err != nil {
		return nil, fmt.Errorf("failed to score candidates: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	primary := scored[0]

	limit := params.MaxAlternatives
	if limit > len(scored)-1 {
		limit = len(scored) - 1
	}
	alternatives := make([]types.Alternative, 0, limit)
	for _, runnerUp := range scored[1 : 1+limit] {
		pros, cons := buildProsCons(runnerUp.Opportunity, primary.Opportunity)
		alternatives = append(alternatives, types.Alternative{
			RecommendedPool: poolRef(runnerUp.Opportunity),
			Pros:            pros,
			Cons:            cons,
		})
	}

	rulesLogger.Debug().
		Str("primary", primary.Opportunity.Key()).
		Float64("score", primary.Score).
		Int("alternatives", len(alternatives)).
		Msg("Rule-based recommendation assembled")

	return &types.Recommendation{
		Primary:         poolRef(primary.Opportunity),
		Alternatives:    alternatives,
		Reasoning:       buildReasoning(primary, len(scored), profile),
		RiskAssessment:  buildRiskAssessment(primary.Opportunity),
		Warnings:        buildWarnings(primary.Opportunity, profile),
		ConfidenceScore: confidenceScore(primary.Opportunity, profile),
		Source:          types.SourceRuleBased,
	}, nil
}

// confidenceScore rates how defensible the rule-based pick is, from a 0.5
// base: deep TVL and a clean audit raise it, an implausible APY lowers it.
// Clamped to [0.3, 0.9] so the rule path never claims certainty in either
// direction.
func confidenceScore(opp types.Opportunity, profile types.UserProfile) float64 {
	confidence := 0.5

	if opp.TVLUSD > 10_000_000 {
		confidence += 0.2
	} else if opp.TVLUSD > 5_000_000 {
		confidence += 0.1
	}
	if opp.AuditStatus == types.AuditAudited {
		confidence += 0.1
	}
	if mirroredRiskLevel(profile.RiskTolerance) == opp.RiskLevel {
		confidence += 0.1
	}
	if opp.APY > 100 {
		confidence -= 0.2
	}

	return math.Min(0.9, math.Max(0.3, confidence))
}

// mirroredRiskLevel is the risk level a tolerance most directly asks for.
func mirroredRiskLevel(tolerance types.RiskTolerance) types.RiskLevel {
	switch tolerance {
	case types.ToleranceConservative:
		return types.RiskLow
	case types.ToleranceModerate:
		return types.RiskMedium
	default:
		return types.RiskHigh
	}
}

// poolRef is the echoed subset of an opportunity used in recommendations.
func poolRef(opp types.Opportunity) types.RecommendedPool {
	return types.RecommendedPool{
		Protocol:  opp.Protocol,
		PoolID:    opp.PoolID,
		PoolName:  opp.PoolName,
		APY:       opp.APY,
		RiskLevel: opp.RiskLevel,
	}
}
