package recommender

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksfoundry/yra/internal/config"
	"github.com/stacksfoundry/yra/internal/types"
)

// recommenderFixture is the shared aggregated set for this package's tests:
// five pools spanning every risk level, with one deliberate outlier.
func recommenderFixture() []types.Opportunity {
	now := time.Now()
	return []types.Opportunity{
		{
			Protocol: "alex", PoolID: "stx-sbtc", PoolName: "STX-sBTC LP",
			APY: 14.0, TVLUSD: 8_000_000,
			Fees:      types.FeeSchedule{PerformancePct: 0.3},
			RiskLevel: types.RiskMedium, ImpermanentLossRisk: true,
			AuditStatus: types.AuditAudited,
			UpdatedAt:   now.Add(-30 * time.Second),
		},
		{
			Protocol: "arkadiko", PoolID: "staked-stx", PoolName: "Staked STX",
			APY: 8.0, TVLUSD: 3_000_000,
			RiskLevel: types.RiskLow, AuditStatus: types.AuditAudited,
			LockPeriodDays: 14,
			UpdatedAt:      now.Add(-90 * time.Second),
		},
		{
			Protocol: "zest", PoolID: "stx-lending", PoolName: "STX Lending Pool",
			APY: 10.5, TVLUSD: 12_000_000,
			RiskLevel: types.RiskLow, AuditStatus: types.AuditAudited,
			UpdatedAt: now.Add(-10 * time.Second),
		},
		{
			Protocol: "bitflow", PoolID: "meme-lp", PoolName: "MEME-STX LP",
			APY: 95.0, TVLUSD: 400_000,
			RiskLevel: types.RiskHigh, ImpermanentLossRisk: true,
			AuditStatus: types.AuditUnaudited,
			RiskFactors: []string{"unaudited contract", "thin liquidity"},
			UpdatedAt:   now.Add(-30 * time.Second),
		},
		{
			Protocol: "alex", PoolID: "alex-stx", PoolName: "ALEX-STX LP",
			APY: 6.0, TVLUSD: 1_500_000,
			Fees:      types.FeeSchedule{PerformancePct: 0.3},
			RiskLevel: types.RiskMedium, ImpermanentLossRisk: true,
			AuditStatus: types.AuditAudited,
			UpdatedAt:   now.Add(-30 * time.Second),
		},
	}
}

func moderateProfile() types.UserProfile {
	return types.UserProfile{
		DepositAmountSats: 100_000_000,
		RiskTolerance:     types.ToleranceModerate,
	}
}

func conservativeProfile() types.UserProfile {
	return types.UserProfile{
		DepositAmountSats: 50_000_000,
		RiskTolerance:     types.ToleranceConservative,
	}
}

// newTestModel points the model stage at a local stand-in for the messages API.
func newTestModel(baseURL string) *ModelRecommender {
	return &ModelRecommender{
		client: anthropic.NewClient(
			option.WithAPIKey("sk-ant-test"),
			option.WithBaseURL(baseURL),
			option.WithMaxRetries(0),
		),
		model:   "claude-sonnet-4-20250514",
		timeout: 5 * time.Second,
		enabled: true,
	}
}

// modelServer serves the given answer wrapped in a messages-API response body.
func modelServer(t *testing.T, answer modelAnswer) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text, err := json.Marshal(answer)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		err = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-sonnet-4-20250514",
			"stop_reason": "end_turn",
			"content":     []map[string]any{{"type": "text", "text": string(text)}},
			"usage":       map[string]any{"input_tokens": 64, "output_tokens": 128},
		})
		require.NoError(t, err)
	}))
}

func disabledEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(NewModelRecommender(false, "", "", 0), config.DefaultEngineParameters)
	require.NoError(t, err)
	return engine
}

// --- Construction ---

func TestNewEngine_RequiresModelStage(t *testing.T) {
	_, err := NewEngine(nil, config.DefaultEngineParameters)
	require.ErrorContains(t, err, "disabled one")
}

func TestNewEngine_RejectsInvalidParameters(t *testing.T) {
	params := config.DefaultEngineParameters
	params.MaxAlternatives = 0

	_, err := NewEngine(NewModelRecommender(false, "", "", 0), params)
	require.ErrorIs(t, err, types.ErrInvalidParameters)
}

// --- Orchestration ---

func TestGetRecommendation_RuleBasedWhenModelDisabled(t *testing.T) {
	rec, err := disabledEngine(t).GetRecommendation(context.Background(), recommenderFixture(), moderateProfile())
	require.NoError(t, err)

	assert.Equal(t, types.SourceRuleBased, rec.Source)
	assert.Equal(t, "meme-lp", rec.Primary.PoolID)

	_, err = uuid.Parse(rec.ID)
	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now(), rec.GeneratedAt, 5*time.Second)
	assert.Len(t, rec.Disclaimers, 3)
	assert.InDelta(t, 90, float64(rec.DataFreshnessSeconds), 5)

	// 1 BTC at 95% APY.
	assert.Equal(t, int64(95_000_000), rec.ProjectedEarnings.YearlySats)
	assert.Equal(t, int64(7_916_667), rec.ProjectedEarnings.MonthlySats)
	assert.Equal(t, int64(260_274), rec.ProjectedEarnings.DailySats)
}

func TestGetRecommendation_UsesModelAnswer(t *testing.T) {
	server := modelServer(t, modelAnswer{
		Primary: modelPoolRef{Protocol: "zest", PoolID: "stx-lending"},
		Alternatives: []modelPoolRef{
			{Protocol: "alex", PoolID: "stx-sbtc"},
			{Protocol: "arkadiko", PoolID: "staked-stx"},
			{Protocol: "bitflow", PoolID: "meme-lp"},
			{Protocol: "alex", PoolID: "alex-stx"},
		},
		Reasoning:      "Deep lending pool with audited contracts fits a moderate profile.",
		RiskAssessment: "Low risk overall, contract risk remains.",
		Warnings:       []string{"Rates float with utilization."},
		Confidence:     0.82,
	})
	defer server.Close()

	engine, err := NewEngine(newTestModel(server.URL), config.DefaultEngineParameters)
	require.NoError(t, err)

	rec, err := engine.GetRecommendation(context.Background(), recommenderFixture(), moderateProfile())
	require.NoError(t, err)

	assert.Equal(t, types.SourceModel, rec.Source)
	assert.Equal(t, "Deep lending pool with audited contracts fits a moderate profile.", rec.Reasoning)
	assert.InDelta(t, 0.82, rec.ConfidenceScore, 0.0001)

	// Pool data is echoed from the aggregated set, not from the answer.
	assert.Equal(t, "STX Lending Pool", rec.Primary.PoolName)
	assert.InDelta(t, 10.5, rec.Primary.APY, 0.0001)

	// Four suggested alternatives, capped to MaxAlternatives.
	require.Len(t, rec.Alternatives, config.DefaultEngineParameters.MaxAlternatives)
	assert.Equal(t, "stx-sbtc", rec.Alternatives[0].PoolID)

	assert.NotEmpty(t, rec.ID)
	assert.Len(t, rec.Disclaimers, 3)

	// 1 BTC at the pool's 10.5% APY.
	assert.Equal(t, int64(10_500_000), rec.ProjectedEarnings.YearlySats)
}

func TestGetRecommendation_FallsBackOnFabricatedPool(t *testing.T) {
	server := modelServer(t, modelAnswer{
		Primary:        modelPoolRef{Protocol: "alex", PoolID: "ghost-pool"},
		Reasoning:      "This pool does not exist.",
		RiskAssessment: "None.",
		Confidence:     0.9,
	})
	defer server.Close()

	engine, err := NewEngine(newTestModel(server.URL), config.DefaultEngineParameters)
	require.NoError(t, err)

	rec, err := engine.GetRecommendation(context.Background(), recommenderFixture(), moderateProfile())
	require.NoError(t, err)
	assert.Equal(t, types.SourceRuleBased, rec.Source)
	assert.Equal(t, "meme-lp", rec.Primary.PoolID)
}

func TestGetRecommendation_FallsBackWhenModelUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	engine, err := NewEngine(newTestModel(server.URL), config.DefaultEngineParameters)
	require.NoError(t, err)

	rec, err := engine.GetRecommendation(context.Background(), recommenderFixture(), conservativeProfile())
	require.NoError(t, err)
	assert.Equal(t, types.SourceRuleBased, rec.Source)
	assert.Equal(t, "stx-lending", rec.Primary.PoolID)
}

func TestGetRecommendation_PrimaryAlwaysFromInputSet(t *testing.T) {
	opps := recommenderFixture()
	keys := make(map[string]bool, len(opps))
	for _, opp := range opps {
		keys[opp.Key()] = true
	}

	rec, err := disabledEngine(t).GetRecommendation(context.Background(), opps, moderateProfile())
	require.NoError(t, err)

	assert.True(t, keys[rec.Primary.Protocol+"/"+rec.Primary.PoolID])
	for _, alt := range rec.Alternatives {
		assert.True(t, keys[alt.Protocol+"/"+alt.PoolID])
	}
}

func TestGetRecommendation_EmptyInput(t *testing.T) {
	_, err := disabledEngine(t).GetRecommendation(context.Background(), nil, moderateProfile())
	require.ErrorIs(t, err, ErrNoSuitableOpportunities)
}

func TestGetRecommendation_NothingPassesProfile(t *testing.T) {
	profile := moderateProfile()
	profile.MinAPY = 500

	_, err := disabledEngine(t).GetRecommendation(context.Background(), recommenderFixture(), profile)
	require.ErrorIs(t, err, ErrNoSuitableOpportunities)
}

func TestGetRecommendation_InvalidProfile(t *testing.T) {
	profile := moderateProfile()
	profile.DepositAmountSats = 0

	_, err := disabledEngine(t).GetRecommendation(context.Background(), recommenderFixture(), profile)
	require.ErrorIs(t, err, types.ErrInvalidProfile)
}

// --- Earnings projection ---

func TestProjectEarnings(t *testing.T) {
	earnings, err := projectEarnings(100_000_000, 12.61)
	require.NoError(t, err)

	assert.Equal(t, int64(12_610_000), earnings.YearlySats)
	assert.Equal(t, int64(1_050_833), earnings.MonthlySats)
	assert.Equal(t, int64(34_548), earnings.DailySats)
}

func TestProjectEarnings_ZeroAPY(t *testing.T) {
	earnings, err := projectEarnings(100_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, types.ProjectedEarnings{}, earnings)
}

func TestProjectEarnings_RejectsBadInput(t *testing.T) {
	cases := []struct {
		name    string
		deposit int64
		apy     float64
	}{
		{"zero deposit", 0, 10},
		{"negative deposit", -5, 10},
		{"negative apy", 100, -1},
		{"nan apy", 100, math.NaN()},
		{"infinite apy", 100, math.Inf(1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := projectEarnings(tc.deposit, tc.apy)
			require.ErrorIs(t, err, ErrInvalidEarningsInput)
		})
	}
}

// --- Freshness ---

func TestFreshnessSeconds_OldestDrives(t *testing.T) {
	now := time.Now()
	opps := []types.Opportunity{
		{UpdatedAt: now.Add(-10 * time.Second)},
		{UpdatedAt: now.Add(-90 * time.Second)},
		{UpdatedAt: now.Add(-30 * time.Second)},
	}

	assert.Equal(t, int64(90), freshnessSeconds(opps, now))
}

func TestFreshnessSeconds_FutureTimestampClampsToZero(t *testing.T) {
	now := time.Now()
	opps := []types.Opportunity{{UpdatedAt: now.Add(time.Minute)}}

	assert.Equal(t, int64(0), freshnessSeconds(opps, now))
}
