/*

This file contains the main function for scoring a yield opportunity.

The model is multiplicative: the headline APY is scaled by pool depth,
the depositor's risk posture, protocol preference, lock-up friction, and
fee drag. Higher is better, and a zero-APY pool always scores zero.

*/

package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/types"
)

var ErrInvalidOpportunityData = errors.New("invalid opportunity data")
var ErrInvalidEngineParameters = errors.New("invalid engine parameters")
var ErrInvalidRiskTolerance = errors.New("invalid risk tolerance")
var scoreLogger = logger.GetForComponent("opportunity_scorer")

// CalculateOpportunityScore calculates the final score for an opportunity by
// orchestrating calls to modular component calculation functions and taking
// their product. It requires a fully populated Opportunity struct and the
// EngineParameters.
// Inputs:
//   - opp: The normalized opportunity as produced by a protocol adapter.
//   - profile: The depositor profile supplying risk tolerance and preferences.
//   - params: The engine parameters defining multipliers, floors, and the risk table.
//
// Output:
//   - The final score (non-negative, dimensionless).
//   - An error if essential calculations cannot be performed or validation fails.
func CalculateOpportunityScore(opp types.Opportunity, profile types.UserProfile, params types.EngineParameters) (float64, error) {
	// Validate input data before performing calculations
	if err := opp.Validate(); err != nil {
		scoreLogger.Error().
			Str("protocol", opp.Protocol).
			Str("poolID", opp.PoolID).
			Err(err).
			Msg("Opportunity data validation failed")
		return 0, errors.Join(ErrInvalidOpportunityData, err)
	}

	if err := params.Validate(); err != nil {
		scoreLogger.Error().
			Str("protocol", opp.Protocol).
			Str("poolID", opp.PoolID).
			Err(err).
			Msg("Engine parameters validation failed")
		return 0, errors.Join(ErrInvalidEngineParameters, err)
	}

	if !profile.RiskTolerance.Valid() {
		scoreLogger.Error().
			Str("protocol", opp.Protocol).
			Str("poolID", opp.PoolID).
			Str("riskTolerance", string(profile.RiskTolerance)).
			Msg("Profile risk tolerance validation failed")
		return 0, fmt.Errorf("%w: %q", ErrInvalidRiskTolerance, profile.RiskTolerance)
	}

	scoreLogger.Debug().
		Str("protocol", opp.Protocol).
		Str("poolID", opp.PoolID).
		Str("poolName", opp.PoolName).
		Msg("Opportunity and parameter validation passed, proceeding with score calculation")

	// A pool paying nothing scores nothing, regardless of every other factor.
	if opp.APY == 0 {
		scoreLogger.Debug().
			Str("protocol", opp.Protocol).
			Str("poolID", opp.PoolID).
			Msg("Opportunity has zero APY, score is 0")
		return 0, nil
	}

	//  Calculate Liquidity Component
	liquidityMultiplier, err := CalculateLiquidityMultiplier(opp, params)
	if err != nil {
		return 0, errors.Join(errors.New("liquidity multiplier calculation failed"), err)
	}

	//  Calculate Risk Component
	riskMultiplier, err := CalculateRiskMultiplier(opp, profile, params)
	if err != nil {
		return 0, errors.Join(errors.New("risk multiplier calculation failed"), err)
	}

	//  Calculate Preference Component
	preferenceBonus, err := CalculatePreferenceBonus(opp, profile, params)
	if err != nil {
		return 0, errors.Join(errors.New("preference bonus calculation failed"), err)
	}

	//  Calculate Friction Components
	lockPenalty, err := CalculateLockPenalty(opp, params)
	if err != nil {
		return 0, errors.Join(errors.New("lock penalty calculation failed"), err)
	}

	feePenalty, err := CalculateFeePenalty(opp, params)
	if err != nil {
		return 0, errors.Join(errors.New("fee penalty calculation failed"), err)
	}

	//  Calculate Final Score
	finalScore := opp.APY * liquidityMultiplier * riskMultiplier * preferenceBonus * lockPenalty * feePenalty

	// Validate final score is reasonable - CRITICAL for financial safety
	if math.IsNaN(finalScore) || math.IsInf(finalScore, 0) {
		scoreLogger.Error().
			Str("protocol", opp.Protocol).
			Str("poolID", opp.PoolID).
			Float64("finalScore", finalScore).
			Msg("Final score calculation resulted in invalid value")
		return 0, errors.New("final score calculation resulted in NaN or Inf")
	}
	if finalScore < 0 {
		scoreLogger.Error().
			Str("protocol", opp.Protocol).
			Str("poolID", opp.PoolID).
			Float64("finalScore", finalScore).
			Msg("Final score calculation resulted in negative value")
		return 0, errors.New("final score calculation resulted in negative value")
	}

	// Additional safety check - ensure all components are finite
	components := []struct {
		value float64
		name  string
	}{
		{liquidityMultiplier, "liquidity multiplier"},
		{riskMultiplier, "risk multiplier"},
		{preferenceBonus, "preference bonus"},
		{lockPenalty, "lock penalty"},
		{feePenalty, "fee penalty"},
	}

	for _, comp := range components {
		if math.IsNaN(comp.value) || math.IsInf(comp.value, 0) {
			scoreLogger.Error().
				Str("protocol", opp.Protocol).
				Str("poolID", opp.PoolID).
				Float64("componentValue", comp.value).
				Str("componentName", comp.name).
				Msg("Score component calculation resulted in invalid value")
			return 0, errors.New(comp.name + " calculation resulted in NaN or Inf")
		}
	}

	scoreLogger.Debug().
		Str("protocol", opp.Protocol).
		Str("poolID", opp.PoolID).
		Float64("finalScore", finalScore).
		Float64("apy", opp.APY).
		Float64("liquidityMultiplier", liquidityMultiplier).
		Float64("riskMultiplier", riskMultiplier).
		Float64("preferenceBonus", preferenceBonus).
		Float64("lockPenalty", lockPenalty).
		Float64("feePenalty", feePenalty).
		Msg("Opportunity score calculated")

	return finalScore, nil
}

// CalculateLiquidityMultiplier computes the pool-depth component of the score.
// Deep pools are rewarded logarithmically so that a $100M pool does not drown
// out every other signal, and the floor keeps tiny or zero TVL values from
// producing a negative or unbounded logarithm.
// Inputs:
//   - opp: The opportunity containing TVL information.
//   - params: The engine parameters containing the TVL log floor.
//
// Output:
//   - The calculated liquidity multiplier (positive).
func CalculateLiquidityMultiplier(opp types.Opportunity, params types.EngineParameters) (float64, error) {
	// Validate parameters
	if math.IsNaN(params.TVLLogFloorUSD) || math.IsInf(params.TVLLogFloorUSD, 0) {
		return 0, errors.New("TVLLogFloorUSD is not finite")
	}
	if params.TVLLogFloorUSD < 1 {
		return 0, errors.New("TVLLogFloorUSD must be at least 1")
	}
	if math.IsNaN(opp.TVLUSD) || math.IsInf(opp.TVLUSD, 0) {
		return 0, errors.New("opportunity TVL is not finite")
	}
	if opp.TVLUSD < 0 {
		return 0, errors.New("opportunity TVL cannot be negative")
	}

	// Use the larger of floor or actual TVL
	logInput := math.Max(params.TVLLogFloorUSD, opp.TVLUSD)

	logTVL := math.Log10(logInput)
	if math.IsNaN(logTVL) || math.IsInf(logTVL, 0) {
		return 0, errors.New("log TVL calculation resulted in non-finite value")
	}

	scoreLogger.Debug().
		Str("protocol", opp.Protocol).
		Str("poolID", opp.PoolID).
		Float64("rawTvlUSD", opp.TVLUSD).
		Float64("tvlLogFloorUSD", params.TVLLogFloorUSD).
		Float64("log10InputForTvl", logInput).
		Float64("liquidityMultiplier", logTVL).
		Msg("Liquidity multiplier calculated")

	return logTVL, nil
}

// CalculateRiskMultiplier looks up how the depositor's tolerance weights the
// opportunity's risk level. Conservative depositors discount medium and high
// risk pools hard; aggressive depositors actually reward risk taken.
// Inputs:
//   - opp: The opportunity carrying the adapter-assigned risk level.
//   - profile: The depositor profile carrying the stated risk tolerance.
//   - params: The engine parameters containing the tolerance/level factor table.
//
// Output:
//   - The calculated risk multiplier (non-negative).
func CalculateRiskMultiplier(opp types.Opportunity, profile types.UserProfile, params types.EngineParameters) (float64, error) {
	factor, err := params.RiskFactor(profile.RiskTolerance, opp.RiskLevel)
	if err != nil {
		return 0, err
	}

	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return 0, errors.New("risk factor is not finite")
	}
	if factor < 0 {
		return 0, errors.New("risk factor cannot be negative")
	}

	scoreLogger.Debug().
		Str("protocol", opp.Protocol).
		Str("poolID", opp.PoolID).
		Str("riskLevel", string(opp.RiskLevel)).
		Str("riskTolerance", string(profile.RiskTolerance)).
		Float64("riskMultiplier", factor).
		Msg("Risk multiplier calculated")

	return factor, nil
}

// CalculatePreferenceBonus determines the bonus multiplier for opportunities
// on protocols the depositor has explicitly preferred.
// Returns error for any invalid conditions rather than making assumptions.
func CalculatePreferenceBonus(opp types.Opportunity, profile types.UserProfile, params types.EngineParameters) (float64, error) {
	// Validate bonus parameter is finite
	if math.IsNaN(params.PreferredProtocolBonus) || math.IsInf(params.PreferredProtocolBonus, 0) {
		return 0, errors.New("PreferredProtocolBonus parameter is not finite")
	}
	if params.PreferredProtocolBonus < 1 {
		return 0, errors.New("PreferredProtocolBonus must be at least 1")
	}

	if profile.Prefers(opp.Protocol) {
		scoreLogger.Debug().
			Str("protocol", opp.Protocol).
			Str("poolID", opp.PoolID).
			Bool("isPreferred", true).
			Float64("bonus", params.PreferredProtocolBonus).
			Msg("Preference bonus applied")
		return params.PreferredProtocolBonus, nil
	}

	scoreLogger.Debug().
		Str("protocol", opp.Protocol).
		Str("poolID", opp.PoolID).
		Bool("isPreferred", false).
		Msg("No preference bonus applied")
	return 1.0, nil
}

// CalculateLockPenalty determines the multiplier applied to opportunities with
// a withdrawal lock. The penalty is flat: a 1-day lock and a 365-day lock
// discount the same, because either one breaks instant exit.
// Returns error for any invalid conditions rather than making assumptions.
func CalculateLockPenalty(opp types.Opportunity, params types.EngineParameters) (float64, error) {
	// Validate penalty parameter is finite and usable as a multiplier
	if math.IsNaN(params.LockPenaltyFactor) || math.IsInf(params.LockPenaltyFactor, 0) {
		return 0, errors.New("LockPenaltyFactor parameter is not finite")
	}
	if params.LockPenaltyFactor <= 0 || params.LockPenaltyFactor > 1 {
		return 0, errors.New("LockPenaltyFactor must be within (0, 1]")
	}

	if opp.LockPeriodDays < 0 {
		return 0, errors.New("lock period cannot be negative")
	}

	if opp.LockPeriodDays > 0 {
		scoreLogger.Debug().
			Str("protocol", opp.Protocol).
			Str("poolID", opp.PoolID).
			Int("lockPeriodDays", opp.LockPeriodDays).
			Float64("penalty", params.LockPenaltyFactor).
			Msg("Lock penalty applied")
		return params.LockPenaltyFactor, nil
	}

	scoreLogger.Debug().
		Str("protocol", opp.Protocol).
		Str("poolID", opp.PoolID).
		Msg("No lock period, no lock penalty applied")
	return 1.0, nil
}

// CalculateFeePenalty computes the multiplier that discounts an opportunity by
// its total fee load. Each percentage point of fees shaves one percent off the
// score, floored so that a pathological fee schedule cannot zero out or invert
// an otherwise valid score.
// Inputs:
//   - opp: The opportunity containing the fee schedule.
//   - params: The engine parameters containing the fee penalty floor.
//
// Output:
//   - The calculated fee penalty multiplier (within [MinFeeFactor, 1]).
func CalculateFeePenalty(opp types.Opportunity, params types.EngineParameters) (float64, error) {
	// Validate parameters
	if math.IsNaN(params.MinFeeFactor) || math.IsInf(params.MinFeeFactor, 0) {
		return 0, errors.New("MinFeeFactor is not finite")
	}
	if params.MinFeeFactor <= 0 || params.MinFeeFactor > 1 {
		return 0, errors.New("MinFeeFactor must be within (0, 1]")
	}

	totalFees := opp.Fees.Total()
	if math.IsNaN(totalFees) || math.IsInf(totalFees, 0) {
		return 0, errors.New("total fees are not finite")
	}
	if totalFees < 0 {
		return 0, errors.New("total fees cannot be negative")
	}

	feePenalty := math.Max(params.MinFeeFactor, 1.0-totalFees/100.0)
	if math.IsNaN(feePenalty) || math.IsInf(feePenalty, 0) {
		return 0, errors.New("fee penalty calculation resulted in non-finite value")
	}

	scoreLogger.Debug().
		Str("protocol", opp.Protocol).
		Str("poolID", opp.PoolID).
		Float64("totalFeesPct", totalFees).
		Float64("minFeeFactor", params.MinFeeFactor).
		Float64("feePenalty", feePenalty).
		Msg("Fee penalty calculated")

	return feePenalty, nil
}

// CalculateOpportunityScores scores a batch of opportunities against a single
// profile. Parameters are validated once for the whole batch. Opportunities
// that fail scoring are skipped with a warning so that one malformed record
// from an adapter cannot sink the rest of the batch.
// Inputs:
//   - opps: The opportunities to be scored.
//   - profile: The depositor profile supplying risk tolerance and preferences.
//   - params: The engine parameters defining multipliers, floors, and the risk table.
//
// Output:
//   - The scored opportunities in input order, invalid entries omitted.
//   - An error if no opportunities were provided or none survived scoring.
func CalculateOpportunityScores(opps []types.Opportunity, profile types.UserProfile, params types.EngineParameters) ([]types.ScoredOpportunity, error) {
	if len(opps) == 0 {
		scoreLogger.Error().Msg("No opportunities provided for scoring")
		return nil, errors.New("no opportunities provided for scoring")
	}

	// Validate engine parameters once for all opportunities
	if err := params.Validate(); err != nil {
		scoreLogger.Error().
			Err(err).
			Msg("Engine parameters validation failed")
		return nil, errors.Join(ErrInvalidEngineParameters, err)
	}

	if !profile.RiskTolerance.Valid() {
		scoreLogger.Error().
			Str("riskTolerance", string(profile.RiskTolerance)).
			Msg("Profile risk tolerance validation failed")
		return nil, fmt.Errorf("%w: %q", ErrInvalidRiskTolerance, profile.RiskTolerance)
	}

	scoreLogger.Debug().
		Int("opportunityCount", len(opps)).
		Str("riskTolerance", string(profile.RiskTolerance)).
		Msg("Starting batch opportunity scoring")

	results := make([]types.ScoredOpportunity, 0, len(opps))

	for i, opp := range opps {
		score, err := CalculateOpportunityScore(opp, profile, params)
		if err != nil {
			scoreLogger.Warn().
				Err(err).
				Int("opportunityIndex", i).
				Str("protocol", opp.Protocol).
				Str("poolID", opp.PoolID).
				Msg("Opportunity scoring failed, skipping entry in batch")
			continue
		}

		results = append(results, types.ScoredOpportunity{
			Opportunity: opp,
			Score:       score,
		})
	}

	if len(results) == 0 {
		scoreLogger.Error().
			Int("opportunityCount", len(opps)).
			Msg("All opportunities failed scoring")
		return nil, errors.New("all opportunities failed scoring")
	}

	scoreLogger.Debug().
		Int("opportunityCount", len(opps)).
		Int("successfullyScored", len(results)).
		Msg("Batch opportunity scoring completed")

	return results, nil
}
