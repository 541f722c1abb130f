package aggregator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksfoundry/yra/internal/types"
)

func filterFixture() []types.Opportunity {
	ilPool := makeOpp("alex", "stx-sbtc", 15, 5_000_000, types.RiskMedium)
	ilPool.ImpermanentLossRisk = true

	lockedPool := makeOpp("arkadiko", "staked-stx", 9, 2_000_000, types.RiskLow)
	lockedPool.LockPeriodDays = 14

	wealthyPool := makeOpp("zest", "sbtc-lending", 4, 20_000_000, types.RiskLow)
	wealthyPool.MinDepositSats = 50_000_000

	degenPool := makeOpp("bitflow", "meme-lp", 80, 150_000, types.RiskHigh)
	degenPool.ImpermanentLossRisk = true

	return []types.Opportunity{ilPool, lockedPool, wealthyPool, degenPool}
}

// --- Filter ---

func TestFilter_NoCriteriaReturnsAllInOrder(t *testing.T) {
	input := filterFixture()

	filtered, err := Filter(input, FilterCriteria{})
	require.NoError(t, err)

	assert.Equal(t, input, filtered)
}

func TestFilter_MinAPY(t *testing.T) {
	filtered, err := Filter(filterFixture(), FilterCriteria{MinAPY: 10})
	require.NoError(t, err)

	require.Len(t, filtered, 2)
	assert.Equal(t, "stx-sbtc", filtered[0].PoolID)
	assert.Equal(t, "meme-lp", filtered[1].PoolID)
}

func TestFilter_MinTVL(t *testing.T) {
	filtered, err := Filter(filterFixture(), FilterCriteria{MinTVLUSD: 5_000_000})
	require.NoError(t, err)

	require.Len(t, filtered, 2)
	assert.Equal(t, "stx-sbtc", filtered[0].PoolID)
	assert.Equal(t, "sbtc-lending", filtered[1].PoolID)
}

func TestFilter_RiskCap(t *testing.T) {
	filtered, err := Filter(filterFixture(), FilterCriteria{MaxRiskLevel: types.RiskLow})
	require.NoError(t, err)

	require.Len(t, filtered, 2)
	for _, opp := range filtered {
		assert.Equal(t, types.RiskLow, opp.RiskLevel)
	}
}

func TestFilter_NoImpermanentLoss(t *testing.T) {
	filtered, err := Filter(filterFixture(), FilterCriteria{NoImpermanentLoss: true})
	require.NoError(t, err)

	require.Len(t, filtered, 2)
	for _, opp := range filtered {
		assert.False(t, opp.ImpermanentLossRisk)
	}
}

func TestFilter_IntersectsCriteria(t *testing.T) {
	filtered, err := Filter(filterFixture(), FilterCriteria{
		MinAPY:       5,
		MinTVLUSD:    1_000_000,
		MaxRiskLevel: types.RiskMedium,
	})
	require.NoError(t, err)

	require.Len(t, filtered, 2)
	assert.Equal(t, "stx-sbtc", filtered[0].PoolID)
	assert.Equal(t, "staked-stx", filtered[1].PoolID)
}

func TestFilter_Idempotent(t *testing.T) {
	criteria := FilterCriteria{MinAPY: 5, NoImpermanentLoss: true}

	once, err := Filter(filterFixture(), criteria)
	require.NoError(t, err)

	twice, err := Filter(once, criteria)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	input := filterFixture()
	snapshot := make([]types.Opportunity, len(input))
	copy(snapshot, input)

	_, err := Filter(input, FilterCriteria{MinAPY: 10, MaxRiskLevel: types.RiskLow})
	require.NoError(t, err)

	assert.Equal(t, snapshot, input)
}

func TestFilter_InvalidCriteria(t *testing.T) {
	cases := []struct {
		name     string
		criteria FilterCriteria
	}{
		{"nan min apy", FilterCriteria{MinAPY: math.NaN()}},
		{"negative min apy", FilterCriteria{MinAPY: -1}},
		{"infinite min tvl", FilterCriteria{MinTVLUSD: math.Inf(1)}},
		{"negative min tvl", FilterCriteria{MinTVLUSD: -100}},
		{"unknown risk level", FilterCriteria{MaxRiskLevel: "extreme"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Filter(filterFixture(), tc.criteria)
			require.ErrorIs(t, err, ErrInvalidFilterCriteria)
		})
	}
}

// --- FilterByProfile ---

func TestFilterByProfile_ToleranceCapsRisk(t *testing.T) {
	profile := types.UserProfile{
		DepositAmountSats: 100_000_000,
		RiskTolerance:     types.ToleranceConservative,
	}

	filtered, err := FilterByProfile(filterFixture(), profile)
	require.NoError(t, err)

	require.Len(t, filtered, 2)
	for _, opp := range filtered {
		assert.Equal(t, types.RiskLow, opp.RiskLevel)
	}
}

func TestFilterByProfile_MinAPY(t *testing.T) {
	profile := types.UserProfile{
		DepositAmountSats: 100_000_000,
		RiskTolerance:     types.ToleranceAggressive,
		MinAPY:            10,
	}

	filtered, err := FilterByProfile(filterFixture(), profile)
	require.NoError(t, err)

	require.Len(t, filtered, 2)
	assert.Equal(t, "stx-sbtc", filtered[0].PoolID)
	assert.Equal(t, "meme-lp", filtered[1].PoolID)
}

func TestFilterByProfile_AvoidImpermanentLoss(t *testing.T) {
	profile := types.UserProfile{
		DepositAmountSats:    100_000_000,
		RiskTolerance:        types.ToleranceAggressive,
		AvoidImpermanentLoss: true,
	}

	filtered, err := FilterByProfile(filterFixture(), profile)
	require.NoError(t, err)

	require.Len(t, filtered, 2)
	for _, opp := range filtered {
		assert.False(t, opp.ImpermanentLossRisk)
	}
}

func TestFilterByProfile_LockCap(t *testing.T) {
	base := types.UserProfile{
		DepositAmountSats: 100_000_000,
		RiskTolerance:     types.ToleranceModerate,
	}

	// Nil cap admits locked pools.
	filtered, err := FilterByProfile(filterFixture(), base)
	require.NoError(t, err)
	assert.True(t, containsPool(filtered, "staked-stx"))

	// A zero cap refuses any lock at all.
	zero := 0
	base.MaxLockPeriodDays = &zero
	filtered, err = FilterByProfile(filterFixture(), base)
	require.NoError(t, err)
	assert.False(t, containsPool(filtered, "staked-stx"))

	// A cap below the pool's lock refuses it, a cap at the lock admits it.
	week := 7
	base.MaxLockPeriodDays = &week
	filtered, err = FilterByProfile(filterFixture(), base)
	require.NoError(t, err)
	assert.False(t, containsPool(filtered, "staked-stx"))

	fortnight := 14
	base.MaxLockPeriodDays = &fortnight
	filtered, err = FilterByProfile(filterFixture(), base)
	require.NoError(t, err)
	assert.True(t, containsPool(filtered, "staked-stx"))
}

func TestFilterByProfile_MinDepositExcludesSmallDepositors(t *testing.T) {
	small := types.UserProfile{
		DepositAmountSats: 10_000_000,
		RiskTolerance:     types.ToleranceModerate,
	}
	filtered, err := FilterByProfile(filterFixture(), small)
	require.NoError(t, err)
	assert.False(t, containsPool(filtered, "sbtc-lending"))

	// A deposit exactly at the pool minimum qualifies.
	exact := types.UserProfile{
		DepositAmountSats: 50_000_000,
		RiskTolerance:     types.ToleranceModerate,
	}
	filtered, err = FilterByProfile(filterFixture(), exact)
	require.NoError(t, err)
	assert.True(t, containsPool(filtered, "sbtc-lending"))
}

func TestFilterByProfile_InvalidProfile(t *testing.T) {
	profile := types.UserProfile{
		DepositAmountSats: 0,
		RiskTolerance:     types.ToleranceModerate,
	}

	_, err := FilterByProfile(filterFixture(), profile)
	require.ErrorIs(t, err, types.ErrInvalidProfile)
}

func containsPool(opps []types.Opportunity, poolID string) bool {
	for _, opp := range opps {
		if opp.PoolID == poolID {
			return true
		}
	}
	return false
}
