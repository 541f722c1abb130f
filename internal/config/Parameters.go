/*

This file contains the default engine parameters: the scoring factors applied
to every opportunity and the significance thresholds governing oracle pushes.
These values are used if no active parameter set is found in the database
during initialization.

*/

package config

import (
	"github.com/stacksfoundry/yra/internal/types"
)

// DefaultEngineParameters provides the baseline parameter set for scoring and
// oracle-sync policy.
var DefaultEngineParameters = types.EngineParameters{
	// --- Scoring Factors ---
	TVLLogFloorUSD: 1000, // TVL below $1k is treated as $1k so log10 never goes negative.

	PreferredProtocolBonus: 1.2, // Pools on the depositor's preferred list score 20% higher.

	LockPenaltyFactor: 0.95, // Any lock period costs a flat 5% of the score.

	MinFeeFactor: 0.7, // Fee penalty floor: combined fees can cost at most 30% of the score.

	// RiskFactors: conservative tolerates only low risk, moderate discounts
	// medium and high, aggressive mildly rewards risk-taking.
	RiskFactors: map[types.RiskTolerance]map[types.RiskLevel]float64{
		types.ToleranceConservative: {
			types.RiskLow:    1.0,
			types.RiskMedium: 0.5,
			types.RiskHigh:   0.1,
		},
		types.ToleranceModerate: {
			types.RiskLow:    1.0,
			types.RiskMedium: 0.8,
			types.RiskHigh:   0.5,
		},
		types.ToleranceAggressive: {
			types.RiskLow:    0.8,
			types.RiskMedium: 1.0,
			types.RiskHigh:   1.2,
		},
	},

	// --- Recommendation ---
	MaxAlternatives: 3, // Runner-ups attached to each recommendation (2-3 in practice).

	// --- Oracle-Sync Policy ---
	APYPushThresholdBps: 50, // Push when APY moved at least 0.5%.

	TVLPushThresholdRatio: 0.05, // Push when TVL moved at least 5% of baseline.

	RepresentativePattern: "STX", // Representative pools must carry the chain's native pair.

	DustTVLFloorUSD: 10000, // Pools under $10k TVL are never representative.

	TrackedProtocols: []string{"alex", "arkadiko"}, // Submission order matches the contract signature.
}
