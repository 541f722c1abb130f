package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksfoundry/yra/internal/config"
	"github.com/stacksfoundry/yra/internal/types"
)

func topNFixture() []types.Opportunity {
	return []types.Opportunity{
		makeOpp("alex", "degen-lp", 90, 5_000_000, types.RiskHigh),
		makeOpp("arkadiko", "staked-stx", 8, 2_000_000, types.RiskLow),
		makeOpp("bitflow", "stable-lp", 5, 8_000_000, types.RiskLow),
		makeOpp("zest", "stx-lending", 12, 4_000_000, types.RiskMedium),
	}
}

func TestTopN_ConservativeAdmitsOnlyLowRisk(t *testing.T) {
	top, err := TopN(topNFixture(), 10, types.ToleranceConservative, config.DefaultEngineParameters)
	require.NoError(t, err)

	require.Len(t, top, 2)
	for _, scored := range top {
		assert.Equal(t, types.RiskLow, scored.Opportunity.RiskLevel)
	}
}

func TestTopN_OrdersByScoreDescending(t *testing.T) {
	top, err := TopN(topNFixture(), 10, types.ToleranceAggressive, config.DefaultEngineParameters)
	require.NoError(t, err)

	require.Len(t, top, 4)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].Score, top[i].Score)
	}
	// The high-APY high-risk pool dominates under an aggressive tolerance.
	assert.Equal(t, "degen-lp", top[0].Opportunity.PoolID)
}

func TestTopN_TruncatesToN(t *testing.T) {
	top, err := TopN(topNFixture(), 1, types.ToleranceModerate, config.DefaultEngineParameters)
	require.NoError(t, err)

	require.Len(t, top, 1)
	// Moderate admits low and medium; lending has the best APY-liquidity mix.
	assert.Equal(t, "stx-lending", top[0].Opportunity.PoolID)
}

func TestTopN_NonPositiveN(t *testing.T) {
	top, err := TopN(topNFixture(), 0, types.ToleranceModerate, config.DefaultEngineParameters)
	require.NoError(t, err)
	assert.Empty(t, top)

	top, err = TopN(topNFixture(), -3, types.ToleranceModerate, config.DefaultEngineParameters)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestTopN_NothingPassesTheRiskCap(t *testing.T) {
	input := []types.Opportunity{
		makeOpp("alex", "degen-lp", 90, 5_000_000, types.RiskHigh),
	}

	top, err := TopN(input, 5, types.ToleranceConservative, config.DefaultEngineParameters)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestTopN_AggressiveRewardsRisk(t *testing.T) {
	// Identical APY and TVL: the aggressive risk factor table scores high
	// risk above low risk, so the risky pool leads.
	input := []types.Opportunity{
		makeOpp("alex", "safe", 10, 1_000_000, types.RiskLow),
		makeOpp("alex", "risky", 10, 1_000_000, types.RiskHigh),
	}

	top, err := TopN(input, 2, types.ToleranceAggressive, config.DefaultEngineParameters)
	require.NoError(t, err)

	require.Len(t, top, 2)
	assert.Equal(t, "risky", top[0].Opportunity.PoolID)
	assert.Equal(t, "safe", top[1].Opportunity.PoolID)
}

func TestTopN_InvalidTolerance(t *testing.T) {
	_, err := TopN(topNFixture(), 3, "reckless", config.DefaultEngineParameters)
	require.ErrorIs(t, err, ErrInvalidTopNRequest)
}
