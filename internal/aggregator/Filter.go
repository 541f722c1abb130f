/*

This file contains the filtering operations applied to aggregated
opportunities. Filters intersect, preserve input order, never mutate the
input slice, and are idempotent: filtering an already-filtered slice with the
same criteria returns an equal slice.

*/

package aggregator

import (
	"errors"
	"fmt"
	"math"

	"github.com/stacksfoundry/yra/internal/types"
)

var ErrInvalidFilterCriteria = errors.New("invalid filter criteria")

// FilterCriteria is the optional set of constraints intersected by Filter.
// Zero values mean "no constraint".
type FilterCriteria struct {
	MinAPY            float64         // keep opportunities with APY >= MinAPY
	MinTVLUSD         float64         // keep opportunities with TVL >= MinTVLUSD
	MaxRiskLevel      types.RiskLevel // keep opportunities at or below this level; "" = no cap
	NoImpermanentLoss bool            // drop opportunities flagged with IL risk
}

func (c FilterCriteria) validate() error {
	if math.IsNaN(c.MinAPY) || math.IsInf(c.MinAPY, 0) || c.MinAPY < 0 {
		return fmt.Errorf("%w: min apy %f", ErrInvalidFilterCriteria, c.MinAPY)
	}
	if math.IsNaN(c.MinTVLUSD) || math.IsInf(c.MinTVLUSD, 0) || c.MinTVLUSD < 0 {
		return fmt.Errorf("%w: min tvl %f", ErrInvalidFilterCriteria, c.MinTVLUSD)
	}
	if c.MaxRiskLevel != "" && !c.MaxRiskLevel.Valid() {
		return fmt.Errorf("%w: unknown max risk level %q", ErrInvalidFilterCriteria, c.MaxRiskLevel)
	}
	return nil
}

// matches reports whether a single opportunity passes every set constraint.
func (c FilterCriteria) matches(opp types.Opportunity) bool {
	if opp.APY < c.MinAPY {
		return false
	}
	if opp.TVLUSD < c.MinTVLUSD {
		return false
	}
	if c.MaxRiskLevel != "" && opp.RiskLevel.Ordinal() > c.MaxRiskLevel.Ordinal() {
		return false
	}
	if c.NoImpermanentLoss && opp.ImpermanentLossRisk {
		return false
	}
	return true
}

// Filter returns the opportunities passing every set criterion, in input
// order. The input slice is never modified.
func Filter(opps []types.Opportunity, criteria FilterCriteria) ([]types.Opportunity, error) {
	if err := criteria.validate(); err != nil {
		return nil, err
	}

	filtered := make([]types.Opportunity, 0, len(opps))
	for _, opp := range opps {
		if criteria.matches(opp) {
			filtered = append(filtered, opp)
		}
	}

	return filtered, nil
}

// FilterByProfile applies the depositor's own constraints: minimum APY, the
// risk cap implied by their tolerance, impermanent-loss avoidance, the lock
// period cap, and the pool's minimum deposit against their deposit size.
// This is the candidate-selection step of the rule-based recommendation path.
func FilterByProfile(opps []types.Opportunity, profile types.UserProfile) ([]types.Opportunity, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	criteria := FilterCriteria{
		MinAPY:            profile.MinAPY,
		MaxRiskLevel:      maxLevelForTolerance(profile.RiskTolerance),
		NoImpermanentLoss: profile.AvoidImpermanentLoss,
	}

	filtered, err := Filter(opps, criteria)
	if err != nil {
		return nil, err
	}

	result := make([]types.Opportunity, 0, len(filtered))
	for _, opp := range filtered {
		if profile.MaxLockPeriodDays != nil && opp.LockPeriodDays > *profile.MaxLockPeriodDays {
			continue
		}
		if opp.MinDepositSats > 0 && opp.MinDepositSats > profile.DepositAmountSats {
			continue
		}
		result = append(result, opp)
	}

	return result, nil
}

// maxLevelForTolerance maps a tolerance onto the highest admissible risk
// level: conservative caps at low, moderate at medium, aggressive at high.
func maxLevelForTolerance(tolerance types.RiskTolerance) types.RiskLevel {
	switch tolerance {
	case types.ToleranceConservative:
		return types.RiskLow
	case types.ToleranceModerate:
		return types.RiskMedium
	default:
		return types.RiskHigh
	}
}
