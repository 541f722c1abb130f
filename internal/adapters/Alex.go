/*

This file contains the ALEX adapter. ALEX is the largest AMM on Stacks; its
public pool stats endpoint reports APR, liquidity, and volume per pool.

Risk rule for ALEX entries: constant-product pools carry impermanent loss and
classify as medium risk; stable-pair pools carry no impermanent loss and
classify as low risk; any pool paying over 50% APR classifies as high risk
regardless of pair shape.

*/

package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/types"
)

var alexLogger = logger.GetForComponent("alex_adapter")
var ErrAlexResponseInvalid = errors.New("alex API response validation failed")

const (
	ALEX_POOLS_ROUTE   = "/v1/public/pools"
	ALEX_HIGH_APR_BAND = 50.0
)

// alexPoolEntry mirrors one element of the ALEX pool stats payload.
type alexPoolEntry struct {
	PoolID       int64   `json:"pool_id"`
	PoolName     string  `json:"pool_name"`
	TokenX       string  `json:"token_x"`
	TokenY       string  `json:"token_y"`
	APR7d        float64 `json:"apr_7d"`
	LiquidityUSD float64 `json:"liquidity_usd"`
	Volume24hUSD float64 `json:"volume_24h_usd"`
	PlatformFee  float64 `json:"platform_fee_pct"`
	IsStablePair bool    `json:"is_stable_pair"`
}

type alexPoolsResponse struct {
	Data []alexPoolEntry `json:"data"`
}

type AlexAdapter struct {
	baseURL string
	client  *http.Client
}

func NewAlexAdapter(baseURL string) *AlexAdapter {
	return &AlexAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: FETCH_TIMEOUT},
	}
}

func (a *AlexAdapter) Name() string {
	return "alex"
}

// FetchOpportunities retrieves and normalizes the ALEX pool set with strict
// validation. Malformed entries are skipped with a warning; the fetch fails
// only when the response itself is unusable or no entry survives.
func (a *AlexAdapter) FetchOpportunities(ctx context.Context) ([]types.Opportunity, error) {
	url := a.baseURL + ALEX_POOLS_ROUTE

	alexLogger.Debug().
		Str("url", url).
		Dur("timeout", FETCH_TIMEOUT).
		Msg("Making API request for ALEX pools")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building ALEX pools request failed: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		alexLogger.Error().Err(err).Str("url", url).Msg("HTTP request failed for ALEX pools")
		return nil, fmt.Errorf("ALEX pools API request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := validateAPIResponse(resp); err != nil {
		alexLogger.Error().Err(err).Int("statusCode", resp.StatusCode).Msg("ALEX API response validation failed")
		return nil, errors.Join(ErrAlexResponseInvalid, err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		alexLogger.Error().Err(err).Msg("Failed to read ALEX response body")
		return nil, fmt.Errorf("failed to read ALEX pools response: %w", err)
	}

	if len(body) == 0 {
		alexLogger.Error().Msg("Empty response body from ALEX pools API")
		return nil, errors.Join(ErrAlexResponseInvalid, errors.New("empty response body"))
	}

	var parsed alexPoolsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		alexLogger.Error().Err(err).Int("bodyLength", len(body)).Msg("Failed to parse ALEX pools JSON")
		return nil, errors.Join(ErrAlexResponseInvalid, err)
	}

	if len(parsed.Data) == 0 {
		alexLogger.Error().Msg("No pools returned from ALEX API")
		return nil, errors.Join(ErrAlexResponseInvalid, errors.New("no pools in response"))
	}

	fetchedAt := time.Now()
	opportunities := make([]types.Opportunity, 0, len(parsed.Data))
	skippedCount := 0

	for i, entry := range parsed.Data {
		opp, err := normalizeAlexPool(entry, fetchedAt)
		if err != nil {
			alexLogger.Warn().
				Err(err).
				Int("entryIndex", i).
				Int64("poolID", entry.PoolID).
				Str("poolName", entry.PoolName).
				Msg("Skipping invalid ALEX pool entry")
			skippedCount++
			continue
		}
		opportunities = append(opportunities, opp)
	}

	if len(opportunities) == 0 {
		alexLogger.Error().
			Int("totalEntries", len(parsed.Data)).
			Int("skippedEntries", skippedCount).
			Msg("No valid ALEX pool entries found")
		return nil, errors.New("no valid ALEX pool entries found")
	}

	alexLogger.Info().
		Int("totalEntries", len(parsed.Data)).
		Int("validEntries", len(opportunities)).
		Int("skippedEntries", skippedCount).
		Msg("ALEX pool retrieval complete")

	return opportunities, nil
}

// normalizeAlexPool converts one raw ALEX entry into the canonical shape and
// validates the result.
func normalizeAlexPool(entry alexPoolEntry, fetchedAt time.Time) (types.Opportunity, error) {
	if entry.PoolID <= 0 {
		return types.Opportunity{}, fmt.Errorf("pool ID must be positive, got %d", entry.PoolID)
	}
	if strings.TrimSpace(entry.PoolName) == "" {
		return types.Opportunity{}, errors.New("pool name cannot be empty")
	}
	if strings.TrimSpace(entry.TokenX) == "" || strings.TrimSpace(entry.TokenY) == "" {
		return types.Opportunity{}, fmt.Errorf("pool %d has empty token symbols", entry.PoolID)
	}

	riskLevel, ilRisk, riskFactors := classifyAlexPool(entry)

	opp := types.Opportunity{
		Protocol:     "alex",
		PoolID:       strconv.FormatInt(entry.PoolID, 10),
		PoolName:     entry.PoolName,
		APY:          entry.APR7d,
		TVLUSD:       entry.LiquidityUSD,
		Volume24hUSD: entry.Volume24hUSD,
		Fees: types.FeeSchedule{
			PerformancePct: entry.PlatformFee,
		},
		RiskLevel:           riskLevel,
		ImpermanentLossRisk: ilRisk,
		RiskFactors:         riskFactors,
		AuditStatus:         types.AuditAudited,
		LockPeriodDays:      0,
		MinDepositSats:      0,
		UpdatedAt:           fetchedAt,
	}

	if err := opp.Validate(); err != nil {
		return types.Opportunity{}, err
	}

	return opp, nil
}

// classifyAlexPool applies the ALEX risk rule documented at the top of this
// file and derives the ordered risk-factor list shown to depositors.
func classifyAlexPool(entry alexPoolEntry) (types.RiskLevel, bool, []string) {
	riskFactors := []string{"smart contract risk"}

	if entry.APR7d > ALEX_HIGH_APR_BAND {
		riskFactors = append(riskFactors, "unusually high yield", "reward token price exposure")
		if !entry.IsStablePair {
			riskFactors = append(riskFactors, "impermanent loss exposure")
		}
		return types.RiskHigh, !entry.IsStablePair, riskFactors
	}

	if entry.IsStablePair {
		riskFactors = append(riskFactors, "stablecoin peg risk")
		return types.RiskLow, false, riskFactors
	}

	riskFactors = append(riskFactors, "impermanent loss exposure", "token price volatility")
	return types.RiskMedium, true, riskFactors
}
