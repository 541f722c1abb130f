package recommender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksfoundry/yra/internal/types"
)

// --- TVL bands ---

func TestTvlBand(t *testing.T) {
	assert.Equal(t, "deep liquidity ($25.0M TVL)", tvlBand(25_000_000))
	assert.Equal(t, "deep liquidity ($10.0M TVL)", tvlBand(10_000_000))
	assert.Equal(t, "moderate liquidity ($2.5M TVL)", tvlBand(2_500_000))
	assert.Equal(t, "shallow liquidity ($400K TVL)", tvlBand(400_000))
}

// --- Warnings ---

func TestBuildWarnings_CleanPoolHasNone(t *testing.T) {
	opp := types.Opportunity{
		APY: 8, TVLUSD: 5_000_000,
		RiskLevel: types.RiskLow, AuditStatus: types.AuditAudited,
	}

	assert.Empty(t, buildWarnings(opp, moderateProfile()))
}

func TestBuildWarnings_EveryThresholdFires(t *testing.T) {
	opp := types.Opportunity{
		APY: 120, TVLUSD: 250_000,
		Fees:                types.FeeSchedule{DepositPct: 0.5, WithdrawalPct: 0.5, PerformancePct: 1.5},
		ImpermanentLossRisk: true,
		LockPeriodDays:      30,
		RiskLevel:           types.RiskHigh,
		AuditStatus:         types.AuditUnaudited,
	}

	warnings := buildWarnings(opp, moderateProfile())
	require.Len(t, warnings, 5)
	assert.Contains(t, warnings[0], "Low liquidity")
	assert.Contains(t, warnings[1], "locked for 30 days")
	assert.Contains(t, warnings[2], "impermanent loss")
	assert.Contains(t, warnings[3], "Combined fees of 2.50%")
	assert.Contains(t, warnings[4], "120.0%")
}

func TestBuildWarnings_ImpermanentLossSkippedWhenProfileAvoidsIt(t *testing.T) {
	opp := types.Opportunity{
		APY: 10, TVLUSD: 5_000_000,
		ImpermanentLossRisk: true,
	}
	profile := moderateProfile()
	profile.AvoidImpermanentLoss = true

	// The profile filter already removed IL pools; repeating the constraint
	// as a warning would be noise.
	assert.Empty(t, buildWarnings(opp, profile))
}

func TestBuildWarnings_ThresholdsAreExclusive(t *testing.T) {
	opp := types.Opportunity{
		APY:    WARN_APY_OUTLIER_PCT,
		TVLUSD: WARN_TVL_FLOOR_USD,
		Fees:   types.FeeSchedule{DepositPct: WARN_FEE_TOTAL_PCT},
	}

	assert.Empty(t, buildWarnings(opp, moderateProfile()))
}

// --- Risk assessment ---

func TestBuildRiskAssessment(t *testing.T) {
	opp := types.Opportunity{
		PoolName:            "MEME-STX LP",
		RiskLevel:           types.RiskHigh,
		AuditStatus:         types.AuditUnaudited,
		ImpermanentLossRisk: true,
		RiskFactors:         []string{"unaudited contract", "thin liquidity"},
	}

	text := buildRiskAssessment(opp)
	assert.Contains(t, text, "MEME-STX LP is classified as high risk.")
	assert.Contains(t, text, "has not been audited")
	assert.Contains(t, text, "impermanent loss")
	assert.Contains(t, text, "unaudited contract, thin liquidity")
}

func TestBuildRiskAssessment_AuditInProgress(t *testing.T) {
	opp := types.Opportunity{
		PoolName:    "New Pool",
		RiskLevel:   types.RiskMedium,
		AuditStatus: types.AuditInProgress,
	}

	assert.Contains(t, buildRiskAssessment(opp), "audit is currently in progress")
}

// --- Pros and cons ---

func TestBuildProsCons_ContrastsAgainstPrimary(t *testing.T) {
	primary := types.Opportunity{
		APY: 10.5, TVLUSD: 12_000_000,
		RiskLevel: types.RiskLow, AuditStatus: types.AuditAudited,
	}
	alt := types.Opportunity{
		APY: 95, TVLUSD: 400_000,
		RiskLevel: types.RiskHigh, AuditStatus: types.AuditUnaudited,
		ImpermanentLossRisk: true, LockPeriodDays: 7,
	}

	pros, cons := buildProsCons(alt, primary)

	require.Len(t, pros, 1)
	assert.Contains(t, pros[0], "Higher APY")
	assert.Contains(t, cons, "Shallower liquidity than the primary pick")
	assert.Contains(t, cons, "Higher risk level (high vs low)")
	assert.Contains(t, cons, "7-day lock period")
	assert.Contains(t, cons, "Adds impermanent loss exposure")
}

func TestBuildProsCons_LowerRiskReadsAsPro(t *testing.T) {
	primary := types.Opportunity{
		APY: 95, TVLUSD: 400_000,
		RiskLevel: types.RiskHigh, AuditStatus: types.AuditUnaudited,
		LockPeriodDays: 7,
	}
	alt := types.Opportunity{
		APY: 10.5, TVLUSD: 12_000_000,
		RiskLevel: types.RiskLow, AuditStatus: types.AuditAudited,
	}

	pros, cons := buildProsCons(alt, primary)

	assert.Contains(t, pros, "Deeper liquidity than the primary pick")
	assert.Contains(t, pros, "Lower risk level (low vs high)")
	assert.Contains(t, pros, "Audited while the primary pick is not")
	assert.Contains(t, pros, "No lock period")
	require.Len(t, cons, 1)
	assert.Contains(t, cons[0], "Lower APY")
}

func TestBuildProsCons_NeverEmpty(t *testing.T) {
	pool := types.Opportunity{
		APY: 10, TVLUSD: 1_000_000,
		RiskLevel: types.RiskMedium, AuditStatus: types.AuditAudited,
	}

	// Identical pools fall through every comparison; the fallback texts
	// keep both sides non-empty for the response shape.
	pros, cons := buildProsCons(pool, pool)
	assert.Equal(t, []string{"Scored close behind the primary pick"}, pros)
	assert.Equal(t, []string{"Ranked below the primary on overall score"}, cons)
}

// --- Disclaimers ---

func TestDisclaimers_FixedSet(t *testing.T) {
	first := disclaimers()
	require.Len(t, first, 3)
	assert.Contains(t, first[0], "Yields are variable")
	assert.Contains(t, first[2], "not financial advice")

	// Each call returns a fresh slice with the same contents, so callers
	// can mutate their copy safely.
	second := disclaimers()
	assert.Equal(t, first, second)
}
