package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksfoundry/yra/internal/types"
)

func poolIDs(opps []types.Opportunity) []string {
	ids := make([]string, 0, len(opps))
	for _, opp := range opps {
		ids = append(ids, opp.PoolID)
	}
	return ids
}

func TestSort_ByAPY(t *testing.T) {
	input := []types.Opportunity{
		makeOpp("alex", "mid", 10, 1_000_000, types.RiskLow),
		makeOpp("alex", "low", 4, 1_000_000, types.RiskLow),
		makeOpp("alex", "top", 25, 1_000_000, types.RiskLow),
	}

	asc, err := Sort(input, SortByAPY, SortAscending, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"low", "mid", "top"}, poolIDs(asc))

	desc, err := Sort(input, SortByAPY, SortDescending, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"top", "mid", "low"}, poolIDs(desc))
}

func TestSort_ByTVL(t *testing.T) {
	input := []types.Opportunity{
		makeOpp("alex", "small", 10, 100_000, types.RiskLow),
		makeOpp("alex", "big", 10, 50_000_000, types.RiskLow),
		makeOpp("alex", "mid", 10, 2_000_000, types.RiskLow),
	}

	desc, err := Sort(input, SortByTVL, SortDescending, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"big", "mid", "small"}, poolIDs(desc))
}

func TestSort_StableOnTies(t *testing.T) {
	// Identical APY everywhere: sorting must return the aggregation order
	// untouched, in both directions.
	input := []types.Opportunity{
		makeOpp("alex", "first", 10, 1_000_000, types.RiskLow),
		makeOpp("bitflow", "second", 10, 2_000_000, types.RiskLow),
		makeOpp("zest", "third", 10, 3_000_000, types.RiskLow),
	}

	asc, err := Sort(input, SortByAPY, SortAscending, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, poolIDs(asc))

	desc, err := Sort(input, SortByAPY, SortDescending, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, poolIDs(desc))
}

func TestSort_ByScoreWithoutProfileUsesNeutralModerate(t *testing.T) {
	// "deep" has a lower APY but far more liquidity, so its score beats
	// "shallow" even though an APY sort would order them the other way.
	input := []types.Opportunity{
		makeOpp("alex", "shallow", 10, 1_000, types.RiskLow),
		makeOpp("alex", "deep", 6, 100_000_000, types.RiskLow),
	}

	byScore, err := Sort(input, SortByScore, SortDescending, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"deep", "shallow"}, poolIDs(byScore))

	byAPY, err := Sort(input, SortByAPY, SortDescending, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"shallow", "deep"}, poolIDs(byAPY))
}

func TestSort_ByScoreRespectsProfileTolerance(t *testing.T) {
	// At moderate tolerance the risky pool's APY carries it; a conservative
	// profile crushes its risk multiplier and the safe pool wins.
	input := []types.Opportunity{
		makeOpp("alex", "risky", 30, 1_000_000, types.RiskHigh),
		makeOpp("alex", "safe", 10, 10_000_000, types.RiskLow),
	}

	neutral, err := Sort(input, SortByScore, SortDescending, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"risky", "safe"}, poolIDs(neutral))

	conservative := &types.UserProfile{
		DepositAmountSats: 100_000_000,
		RiskTolerance:     types.ToleranceConservative,
	}
	careful, err := Sort(input, SortByScore, SortDescending, conservative)
	require.NoError(t, err)
	assert.Equal(t, []string{"safe", "risky"}, poolIDs(careful))
}

func TestSort_InvalidRequests(t *testing.T) {
	input := []types.Opportunity{
		makeOpp("alex", "pool-1", 10, 1_000_000, types.RiskLow),
	}

	_, err := Sort(input, "volume", SortAscending, nil)
	require.ErrorIs(t, err, ErrInvalidSortRequest)

	_, err = Sort(input, SortByAPY, "sideways", nil)
	require.ErrorIs(t, err, ErrInvalidSortRequest)
}

func TestSort_DoesNotMutateInput(t *testing.T) {
	input := []types.Opportunity{
		makeOpp("alex", "b", 20, 1_000_000, types.RiskLow),
		makeOpp("alex", "a", 10, 1_000_000, types.RiskLow),
	}

	sorted, err := Sort(input, SortByAPY, SortAscending, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, poolIDs(sorted))
	assert.Equal(t, []string{"b", "a"}, poolIDs(input))
}
