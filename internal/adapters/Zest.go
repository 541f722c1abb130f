/*

This file contains the Zest adapter. Zest is a Bitcoin lending protocol on
Stacks; suppliers earn the market's supply APY and the main solvency signal is
pool utilization.

Risk rule for Zest entries: risk follows utilization alone. A market above 90%
utilization classifies as high risk (withdrawals may queue), above 60% as
medium, and at or below 60% as low. Lending positions carry no impermanent
loss.

*/

package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/types"
)

var zestLogger = logger.GetForComponent("zest_adapter")
var ErrZestResponseInvalid = errors.New("zest API response validation failed")

const (
	ZEST_MARKETS_ROUTE = "/v1/markets"

	ZEST_UTILIZATION_HIGH   = 0.9
	ZEST_UTILIZATION_MEDIUM = 0.6
)

// zestMarketEntry mirrors one element of the Zest markets payload.
type zestMarketEntry struct {
	MarketID         string  `json:"market_id"`
	AssetSymbol      string  `json:"asset_symbol"`
	MarketName       string  `json:"market_name"`
	SupplyAPY        float64 `json:"supply_apy"`
	TotalSuppliedUSD float64 `json:"total_supplied_usd"`
	Utilization      float64 `json:"utilization"`
	ReserveFactorPct float64 `json:"reserve_factor_pct"`
	MinDepositSats   int64   `json:"min_deposit_sats"`
}

type zestMarketsResponse struct {
	Markets []zestMarketEntry `json:"markets"`
}

type ZestAdapter struct {
	baseURL string
	client  *http.Client
}

func NewZestAdapter(baseURL string) *ZestAdapter {
	return &ZestAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: FETCH_TIMEOUT},
	}
}

func (z *ZestAdapter) Name() string {
	return "zest"
}

// FetchOpportunities retrieves and normalizes the Zest lending markets.
// Malformed entries are skipped with a warning; the fetch fails only when the
// response itself is unusable or no entry survives.
func (z *ZestAdapter) FetchOpportunities(ctx context.Context) ([]types.Opportunity, error) {
	url := z.baseURL + ZEST_MARKETS_ROUTE

	zestLogger.Debug().
		Str("url", url).
		Dur("timeout", FETCH_TIMEOUT).
		Msg("Making API request for Zest markets")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building Zest markets request failed: %w", err)
	}

	resp, err := z.client.Do(req)
	if err != nil {
		zestLogger.Error().Err(err).Str("url", url).Msg("HTTP request failed for Zest markets")
		return nil, fmt.Errorf("Zest markets API request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := validateAPIResponse(resp); err != nil {
		zestLogger.Error().Err(err).Int("statusCode", resp.StatusCode).Msg("Zest API response validation failed")
		return nil, errors.Join(ErrZestResponseInvalid, err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		zestLogger.Error().Err(err).Msg("Failed to read Zest response body")
		return nil, fmt.Errorf("failed to read Zest markets response: %w", err)
	}

	if len(body) == 0 {
		zestLogger.Error().Msg("Empty response body from Zest markets API")
		return nil, errors.Join(ErrZestResponseInvalid, errors.New("empty response body"))
	}

	var parsed zestMarketsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		zestLogger.Error().Err(err).Int("bodyLength", len(body)).Msg("Failed to parse Zest markets JSON")
		return nil, errors.Join(ErrZestResponseInvalid, err)
	}

	if len(parsed.Markets) == 0 {
		zestLogger.Error().Msg("No markets returned from Zest API")
		return nil, errors.Join(ErrZestResponseInvalid, errors.New("no markets in response"))
	}

	fetchedAt := time.Now()
	opportunities := make([]types.Opportunity, 0, len(parsed.Markets))
	skippedCount := 0

	for i, entry := range parsed.Markets {
		opp, err := normalizeZestMarket(entry, fetchedAt)
		if err != nil {
			zestLogger.Warn().
				Err(err).
				Int("entryIndex", i).
				Str("marketID", entry.MarketID).
				Str("asset", entry.AssetSymbol).
				Msg("Skipping invalid Zest market entry")
			skippedCount++
			continue
		}
		opportunities = append(opportunities, opp)
	}

	if len(opportunities) == 0 {
		zestLogger.Error().
			Int("totalEntries", len(parsed.Markets)).
			Int("skippedEntries", skippedCount).
			Msg("No valid Zest market entries found")
		return nil, errors.New("no valid Zest market entries found")
	}

	zestLogger.Info().
		Int("totalEntries", len(parsed.Markets)).
		Int("validEntries", len(opportunities)).
		Int("skippedEntries", skippedCount).
		Msg("Zest market retrieval complete")

	return opportunities, nil
}

// normalizeZestMarket converts one raw Zest market into the canonical shape
// and validates the result.
func normalizeZestMarket(entry zestMarketEntry, fetchedAt time.Time) (types.Opportunity, error) {
	if strings.TrimSpace(entry.MarketID) == "" {
		return types.Opportunity{}, errors.New("market id cannot be empty")
	}
	if strings.TrimSpace(entry.AssetSymbol) == "" {
		return types.Opportunity{}, fmt.Errorf("market %s has empty asset symbol", entry.MarketID)
	}
	if entry.Utilization < 0 || entry.Utilization > 1 {
		return types.Opportunity{}, fmt.Errorf("market %s has utilization outside [0,1]: %f", entry.MarketID, entry.Utilization)
	}

	riskLevel, riskFactors := classifyZestUtilization(entry.Utilization)

	name := entry.MarketName
	if strings.TrimSpace(name) == "" {
		name = entry.AssetSymbol + " Lending"
	}

	opp := types.Opportunity{
		Protocol:     "zest",
		PoolID:       entry.MarketID,
		PoolName:     name,
		APY:          entry.SupplyAPY,
		TVLUSD:       entry.TotalSuppliedUSD,
		Volume24hUSD: 0,
		Fees: types.FeeSchedule{
			PerformancePct: entry.ReserveFactorPct,
		},
		RiskLevel:           riskLevel,
		ImpermanentLossRisk: false,
		RiskFactors:         riskFactors,
		AuditStatus:         types.AuditAudited,
		LockPeriodDays:      0,
		MinDepositSats:      entry.MinDepositSats,
		UpdatedAt:           fetchedAt,
	}

	if err := opp.Validate(); err != nil {
		return types.Opportunity{}, err
	}

	return opp, nil
}

// classifyZestUtilization applies the utilization banding documented at the
// top of this file.
func classifyZestUtilization(utilization float64) (types.RiskLevel, []string) {
	switch {
	case utilization > ZEST_UTILIZATION_HIGH:
		return types.RiskHigh, []string{"smart contract risk", "borrower default risk", "high utilization, withdrawals may queue"}
	case utilization > ZEST_UTILIZATION_MEDIUM:
		return types.RiskMedium, []string{"smart contract risk", "borrower default risk", "elevated utilization"}
	default:
		return types.RiskLow, []string{"smart contract risk", "borrower default risk"}
	}
}
