package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/stacksfoundry/yra/internal/types"
)

// --- ALEX ---

func TestAlexAdapter_FetchOpportunities(t *testing.T) {
	payload := alexPoolsResponse{
		Data: []alexPoolEntry{
			{PoolID: 1, PoolName: "STX-sBTC LP", TokenX: "STX", TokenY: "sBTC", APR7d: 12.5, LiquidityUSD: 8_000_000, Volume24hUSD: 450_000, PlatformFee: 0.3},
			{PoolID: 2, PoolName: "aUSD-sUSDT", TokenX: "aUSD", TokenY: "sUSDT", APR7d: 4.2, LiquidityUSD: 3_000_000, IsStablePair: true},
			{PoolID: 3, PoolName: "ALEX-APOWER Farm", TokenX: "ALEX", TokenY: "APOWER", APR7d: 95.0, LiquidityUSD: 400_000},
			{PoolID: 4, PoolName: "", TokenX: "STX", TokenY: "WELSH", APR7d: 30.0, LiquidityUSD: 100_000},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ALEX_POOLS_ROUTE, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	adapter := NewAlexAdapter(server.URL)
	opps, err := adapter.FetchOpportunities(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 3) // entry with empty name is skipped

	assert.Equal(t, "alex", opps[0].Protocol)
	assert.Equal(t, "1", opps[0].PoolID)
	assert.Equal(t, "STX-sBTC LP", opps[0].PoolName)
	assert.Equal(t, types.RiskMedium, opps[0].RiskLevel)
	assert.True(t, opps[0].ImpermanentLossRisk)
	assert.Equal(t, 0.3, opps[0].Fees.PerformancePct)
	assert.False(t, opps[0].UpdatedAt.IsZero())

	// stable pair classifies low with no impermanent loss
	assert.Equal(t, types.RiskLow, opps[1].RiskLevel)
	assert.False(t, opps[1].ImpermanentLossRisk)

	// 95% APR farm classifies high regardless of pair shape
	assert.Equal(t, types.RiskHigh, opps[2].RiskLevel)
	assert.True(t, opps[2].ImpermanentLossRisk)
}

func TestAlexAdapter_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := NewAlexAdapter(server.URL)
	_, err := adapter.FetchOpportunities(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlexResponseInvalid)
}

func TestAlexAdapter_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	adapter := NewAlexAdapter(server.URL)
	_, err := adapter.FetchOpportunities(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlexResponseInvalid)
}

// --- Arkadiko ---

func TestArkadikoAdapter_FetchOpportunities(t *testing.T) {
	payload := arkadikoPoolsResponse{
		Pools: []arkadikoPoolEntry{
			{ID: "wstx-usda", Name: "wSTX/USDA", Type: "swap", TokenXName: "wSTX", TokenYName: "USDA", APR: "18.4", TVLInUSD: "2500000", Volume24h: "120000", SwapFee: "0.3"},
			{ID: "diko-staking", Name: "DIKO Staking", Type: "stake", APR: "9.1", TVLInUSD: "1200000", LockDays: 14},
			{ID: "mystery", Name: "Mystery Pool", Type: "vault", APR: "5.0", TVLInUSD: "100000"},
			{ID: "broken", Name: "Broken Pool", Type: "swap", APR: "not-a-number", TVLInUSD: "100000"},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ARKADIKO_POOLS_ROUTE, r.URL.Path)
		json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	adapter := NewArkadikoAdapter(server.URL)
	opps, err := adapter.FetchOpportunities(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 2) // unknown type and unparseable APR are skipped

	swap := opps[0]
	assert.Equal(t, "arkadiko", swap.Protocol)
	assert.Equal(t, "wstx-usda", swap.PoolID)
	assert.InDelta(t, 18.4, swap.APY, 0.0001)
	assert.InDelta(t, 2_500_000.0, swap.TVLUSD, 0.0001)
	assert.Equal(t, types.RiskMedium, swap.RiskLevel)
	assert.True(t, swap.ImpermanentLossRisk)
	assert.Equal(t, 0, swap.LockPeriodDays)

	stake := opps[1]
	assert.Equal(t, types.RiskLow, stake.RiskLevel)
	assert.False(t, stake.ImpermanentLossRisk)
	assert.Equal(t, 14, stake.LockPeriodDays)
}

// --- Bitflow ---

func TestBitflowAdapter_FetchOpportunities(t *testing.T) {
	payload := []bitflowPoolEntry{
		{Identifier: "stx-aeusdc", Name: "STX-aeUSDC", PoolType: "xyk", Tokens: []string{"STX", "aeUSDC"}, APY: 14.0, TVLUSD: 1_800_000, VolumeUSD24h: 95_000, WithdrawFeePct: 0.1},
		{Identifier: "usda-aeusdc", Name: "USDA-aeUSDC", PoolType: "stable", Tokens: []string{"USDA", "aeUSDC"}, APY: 6.5, TVLUSD: 4_200_000},
		{Identifier: "lonely", Name: "Lonely", PoolType: "stable", Tokens: []string{"USDA"}, APY: 3.0, TVLUSD: 50_000},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, BITFLOW_POOLS_ROUTE, r.URL.Path)
		json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	adapter := NewBitflowAdapter(server.URL)
	opps, err := adapter.FetchOpportunities(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 2) // single-token entry is skipped

	assert.Equal(t, types.RiskMedium, opps[0].RiskLevel)
	assert.True(t, opps[0].ImpermanentLossRisk)
	assert.Equal(t, 0.1, opps[0].Fees.WithdrawalPct)
	assert.Equal(t, types.AuditInProgress, opps[0].AuditStatus)

	assert.Equal(t, types.RiskLow, opps[1].RiskLevel)
	assert.False(t, opps[1].ImpermanentLossRisk)
}

// --- Zest ---

func TestZestAdapter_UtilizationBanding(t *testing.T) {
	payload := zestMarketsResponse{
		Markets: []zestMarketEntry{
			{MarketID: "sbtc", AssetSymbol: "sBTC", MarketName: "sBTC Market", SupplyAPY: 3.2, TotalSuppliedUSD: 22_000_000, Utilization: 0.45, MinDepositSats: 10_000},
			{MarketID: "stx", AssetSymbol: "STX", SupplyAPY: 7.8, TotalSuppliedUSD: 9_000_000, Utilization: 0.75, ReserveFactorPct: 10},
			{MarketID: "aeusdc", AssetSymbol: "aeUSDC", SupplyAPY: 15.0, TotalSuppliedUSD: 4_000_000, Utilization: 0.95},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ZEST_MARKETS_ROUTE, r.URL.Path)
		json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	adapter := NewZestAdapter(server.URL)
	opps, err := adapter.FetchOpportunities(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 3)

	assert.Equal(t, types.RiskLow, opps[0].RiskLevel)
	assert.Equal(t, "sBTC Market", opps[0].PoolName)
	assert.Equal(t, int64(10_000), opps[0].MinDepositSats)

	assert.Equal(t, types.RiskMedium, opps[1].RiskLevel)
	assert.Equal(t, "STX Lending", opps[1].PoolName) // name synthesized from asset symbol

	assert.Equal(t, types.RiskHigh, opps[2].RiskLevel)
	assert.False(t, opps[2].ImpermanentLossRisk)
}

func TestZestAdapter_RejectsBadUtilization(t *testing.T) {
	payload := zestMarketsResponse{
		Markets: []zestMarketEntry{
			{MarketID: "weird", AssetSymbol: "WEIRD", SupplyAPY: 5.0, TotalSuppliedUSD: 1_000_000, Utilization: 1.4},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	adapter := NewZestAdapter(server.URL)
	_, err := adapter.FetchOpportunities(context.Background())
	assert.Error(t, err) // only entry invalid, nothing survives
}

// --- GuardedAdapter ---

type staticAdapter struct {
	name  string
	opps  []types.Opportunity
	err   error
	calls int
}

func (s *staticAdapter) Name() string { return s.name }

func (s *staticAdapter) FetchOpportunities(ctx context.Context) ([]types.Opportunity, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.opps, nil
}

func unlimited(g *GuardedAdapter) *GuardedAdapter {
	g.limiter = rate.NewLimiter(rate.Inf, 0)
	return g
}

func TestGuardedAdapter_Passthrough(t *testing.T) {
	inner := &staticAdapter{name: "static", opps: []types.Opportunity{{Protocol: "static", PoolID: "p1"}}}
	guarded := unlimited(NewGuardedAdapter(inner))

	assert.Equal(t, "static", guarded.Name())

	opps, err := guarded.FetchOpportunities(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "p1", opps[0].PoolID)
}

func TestGuardedAdapter_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &staticAdapter{name: "flaky", err: errors.New("upstream down")}
	guarded := unlimited(NewGuardedAdapter(inner))

	for i := 0; i < BREAKER_TRIP_AFTER; i++ {
		_, err := guarded.FetchOpportunities(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, BREAKER_TRIP_AFTER, inner.calls)

	// Breaker is now open: the next call fails fast without reaching upstream.
	_, err := guarded.FetchOpportunities(context.Background())
	require.Error(t, err)
	assert.Equal(t, BREAKER_TRIP_AFTER, inner.calls)
}

func TestDefaultAdapters_RegistrationOrder(t *testing.T) {
	set := DefaultAdapters()
	require.Len(t, set, 4)

	names := make([]string, 0, len(set))
	for _, adapter := range set {
		names = append(names, adapter.Name())
	}
	assert.Equal(t, []string{"alex", "arkadiko", "bitflow", "zest"}, names)
}
