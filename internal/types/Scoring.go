/*

This file contains the tunable parameters for scoring and oracle-sync policy,
plus the scored-opportunity pair produced by batch scoring. Parameter sets are
persisted so every sync cycle records which set produced its readings.

*/

package types

import (
	"errors"
	"fmt"
	"math"
)

// EngineParameters holds all tunable weights, coefficients, and thresholds
// used for opportunity scoring and for the oracle-sync significance policy.
// Different sets of these parameters can exist for different market regimes.
type EngineParameters struct {
	// --- Scoring Factors ---
	TVLLogFloorUSD         float64 `json:"tvl_log_floor_usd"`        // TVL is floored here before log10 so near-empty pools cannot go negative (e.g., 1000).
	PreferredProtocolBonus float64 `json:"preferred_protocol_bonus"` // Multiplier applied when the pool's protocol is on the depositor's preferred list (e.g., 1.2).
	LockPenaltyFactor      float64 `json:"lock_penalty_factor"`      // Multiplier applied when the pool has any lock period (e.g., 0.95).
	MinFeeFactor           float64 `json:"min_fee_factor"`           // Floor of the fee penalty so extreme fees cannot zero a score (e.g., 0.7).

	// RiskFactors maps tolerance -> risk level -> multiplier. Conservative
	// profiles punish high risk hard; aggressive profiles reward it mildly.
	RiskFactors map[RiskTolerance]map[RiskLevel]float64 `json:"risk_factors"`

	// --- Recommendation ---
	MaxAlternatives int `json:"max_alternatives"` // Runner-ups attached to a recommendation (e.g., 3).

	// --- Oracle-Sync Policy ---
	APYPushThresholdBps   int64    `json:"apy_push_threshold_bps"`   // Push when any tracked protocol's APY moved at least this many basis points (e.g., 50).
	TVLPushThresholdRatio float64  `json:"tvl_push_threshold_ratio"` // Push when any tracked protocol's TVL moved at least this fraction of baseline (e.g., 0.05).
	RepresentativePattern string   `json:"representative_pattern"`   // Case-insensitive substring a representative pool's name must contain (e.g., "STX").
	DustTVLFloorUSD       float64  `json:"dust_tvl_floor_usd"`       // Pools below this TVL are never representative (e.g., 10000).
	TrackedProtocols      []string `json:"tracked_protocols"`        // Protocols the oracle reports on, in submission order.
}

var ErrInvalidParameters = errors.New("engine parameters are invalid")

// Validate rejects parameter sets that would produce nonsensical scores or a
// sync policy that can never fire. Called at load time, before any cycle runs.
func (p *EngineParameters) Validate() error {
	for _, v := range []struct {
		value float64
		name  string
	}{
		{p.TVLLogFloorUSD, "tvl_log_floor_usd"},
		{p.PreferredProtocolBonus, "preferred_protocol_bonus"},
		{p.LockPenaltyFactor, "lock_penalty_factor"},
		{p.MinFeeFactor, "min_fee_factor"},
		{p.TVLPushThresholdRatio, "tvl_push_threshold_ratio"},
		{p.DustTVLFloorUSD, "dust_tvl_floor_usd"},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) || v.value <= 0 {
			return fmt.Errorf("%w: %s must be positive and finite, got %f", ErrInvalidParameters, v.name, v.value)
		}
	}

	if p.TVLLogFloorUSD < 1 {
		return fmt.Errorf("%w: tvl_log_floor_usd below 1 breaks log scaling", ErrInvalidParameters)
	}
	if p.LockPenaltyFactor > 1 {
		return fmt.Errorf("%w: lock_penalty_factor must not exceed 1", ErrInvalidParameters)
	}
	if p.MinFeeFactor > 1 {
		return fmt.Errorf("%w: min_fee_factor must not exceed 1", ErrInvalidParameters)
	}
	if p.MaxAlternatives < 1 {
		return fmt.Errorf("%w: max_alternatives must be at least 1", ErrInvalidParameters)
	}
	if p.APYPushThresholdBps <= 0 {
		return fmt.Errorf("%w: apy_push_threshold_bps must be positive", ErrInvalidParameters)
	}
	if p.RepresentativePattern == "" {
		return fmt.Errorf("%w: representative_pattern is empty", ErrInvalidParameters)
	}
	if len(p.TrackedProtocols) == 0 {
		return fmt.Errorf("%w: no tracked protocols", ErrInvalidParameters)
	}

	for _, tolerance := range []RiskTolerance{ToleranceConservative, ToleranceModerate, ToleranceAggressive} {
		row, ok := p.RiskFactors[tolerance]
		if !ok {
			return fmt.Errorf("%w: risk factor row missing for %s", ErrInvalidParameters, tolerance)
		}
		for _, level := range []RiskLevel{RiskLow, RiskMedium, RiskHigh} {
			factor, ok := row[level]
			if !ok {
				return fmt.Errorf("%w: risk factor missing for %s/%s", ErrInvalidParameters, tolerance, level)
			}
			if math.IsNaN(factor) || math.IsInf(factor, 0) || factor < 0 {
				return fmt.Errorf("%w: risk factor %s/%s is %f", ErrInvalidParameters, tolerance, level, factor)
			}
		}
	}

	return nil
}

// RiskFactor looks up the multiplier for a tolerance/level pair. Returns an
// error rather than defaulting: a miss means the parameter set is corrupt.
func (p *EngineParameters) RiskFactor(tolerance RiskTolerance, level RiskLevel) (float64, error) {
	row, ok := p.RiskFactors[tolerance]
	if !ok {
		return 0, fmt.Errorf("%w: no risk factors for tolerance %q", ErrInvalidParameters, tolerance)
	}
	factor, ok := row[level]
	if !ok {
		return 0, fmt.Errorf("%w: no risk factor for %q/%q", ErrInvalidParameters, tolerance, level)
	}
	return factor, nil
}

// ScoredOpportunity pairs an opportunity with its desirability score for one
// specific profile.
type ScoredOpportunity struct {
	Opportunity Opportunity `json:"opportunity"`
	Score       float64     `json:"score"`
}
