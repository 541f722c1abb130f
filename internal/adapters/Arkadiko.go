/*

This file contains the Arkadiko adapter. Arkadiko runs a swap AMM and DIKO
staking on Stacks; its API reports numeric fields as decimal strings, so every
figure is parsed and validated before normalization.

Risk rule for Arkadiko entries: swap pools carry impermanent loss and classify
as medium risk; staking entries carry no impermanent loss and classify as low
risk. Entries with any other type are rejected.

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

var arkadikoLogger = logger.GetForComponent("arkadiko_adapter")
var ErrArkadikoResponseInvalid = errors.New("arkadiko API response validation failed")

const (
	ARKADIKO_POOLS_ROUTE = "/api/v1/pools"

	arkadikoTypeSwap  = "swap"
	arkadikoTypeStake = "stake"
)

// arkadikoPoolEntry mirrors one element of the Arkadiko pools payload.
// Numeric values arrive as decimal strings.
type arkadikoPoolEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	TokenXName string `json:"token_x_name"`
	TokenYName string `json:"token_y_name"`
	APR        string `json:"apr"`
	TVLInUSD   string `json:"tvl_in_usd"`
	Volume24h  string `json:"volume_24h"`
	SwapFee    string `json:"swap_fee"`
	LockDays   int    `json:"lock_days"`
}

type arkadikoPoolsResponse struct {
	Pools []arkadikoPoolEntry `json:"pools"`
}

type ArkadikoAdapter struct {
	baseURL string
	client  *http.Client
}

func NewArkadikoAdapter(baseURL string) *ArkadikoAdapter {
	return &ArkadikoAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: FETCH_TIMEOUT},
	}
}

func (a *ArkadikoAdapter) Name() string {
	return "arkadiko"
}

// FetchOpportunities retrieves and normalizes Arkadiko swap pools and staking
// entries. Malformed entries are skipped with a warning; the fetch fails only
// when the response itself is unusable or no entry survives.
func (a *ArkadikoAdapter) FetchOpportunities(ctx context.Context) ([]types.Opportunity, error) {
	url := a.baseURL + ARKADIKO_POOLS_ROUTE

	arkadikoLogger.Debug().
		Str("url", url).
		Dur("timeout", FETCH_TIMEOUT).
		Msg("Making API request for Arkadiko pools")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building Arkadiko pools request failed: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		arkadikoLogger.Error().Err(err).Str("url", url).Msg("HTTP request failed for Arkadiko pools")
		return nil, fmt.Errorf("Arkadiko pools API request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := validateAPIResponse(resp); err != nil {
		arkadikoLogger.Error().Err(err).Int("statusCode", resp.StatusCode).Msg("Arkadiko API response validation failed")
		return nil, errors.Join(ErrArkadikoResponseInvalid, err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		arkadikoLogger.Error().Err(err).Msg("Failed to read Arkadiko response body")
		return nil, fmt.Errorf("failed to read Arkadiko pools response: %w", err)
	}

	if len(body) == 0 {
		arkadikoLogger.Error().Msg("Empty response body from Arkadiko pools API")
		return nil, errors.Join(ErrArkadikoResponseInvalid, errors.New("empty response body"))
	}

	var parsed arkadikoPoolsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		arkadikoLogger.Error().Err(err).Int("bodyLength", len(body)).Msg("Failed to parse Arkadiko pools JSON")
		return nil, errors.Join(ErrArkadikoResponseInvalid, err)
	}

	if len(parsed.Pools) == 0 {
		arkadikoLogger.Error().Msg("No pools returned from Arkadiko API")
		return nil, errors.Join(ErrArkadikoResponseInvalid, errors.New("no pools in response"))
	}

	fetchedAt := time.Now()
	opportunities := make([]types.Opportunity, 0, len(parsed.Pools))
	skippedCount := 0

	for i, entry := range parsed.Pools {
		opp, err := normalizeArkadikoPool(entry, fetchedAt)
		if err != nil {
			arkadikoLogger.Warn().
				Err(err).
				Int("entryIndex", i).
				Str("poolID", entry.ID).
				Str("poolName", entry.Name).
				Msg("Skipping invalid Arkadiko pool entry")
			skippedCount++
			continue
		}
		opportunities = append(opportunities, opp)
	}

	if len(opportunities) == 0 {
		arkadikoLogger.Error().
			Int("totalEntries", len(parsed.Pools)).
			Int("skippedEntries", skippedCount).
			Msg("No valid Arkadiko pool entries found")
		return nil, errors.New("no valid Arkadiko pool entries found")
	}

	arkadikoLogger.Info().
		Int("totalEntries", len(parsed.Pools)).
		Int("validEntries", len(opportunities)).
		Int("skippedEntries", skippedCount).
		Msg("Arkadiko pool retrieval complete")

	return opportunities, nil
}

// normalizeArkadikoPool converts one raw Arkadiko entry into the canonical
// shape, parsing its string-encoded numerics, and validates the result.
func normalizeArkadikoPool(entry arkadikoPoolEntry, fetchedAt time.Time) (types.Opportunity, error) {
	if strings.TrimSpace(entry.ID) == "" {
		return types.Opportunity{}, errors.New("pool id cannot be empty")
	}
	if strings.TrimSpace(entry.Name) == "" {
		return types.Opportunity{}, fmt.Errorf("pool %s has empty name", entry.ID)
	}

	apr, err := parseArkadikoDecimal(entry.APR, "apr")
	if err != nil {
		return types.Opportunity{}, err
	}

	tvl, err := parseArkadikoDecimal(entry.TVLInUSD, "tvl_in_usd")
	if err != nil {
		return types.Opportunity{}, err
	}

	// Volume is optional in the Arkadiko payload; empty means unreported.
	volume := 0.0
	if strings.TrimSpace(entry.Volume24h) != "" {
		volume, err = parseArkadikoDecimal(entry.Volume24h, "volume_24h")
		if err != nil {
			return types.Opportunity{}, err
		}
	}

	swapFee := 0.0
	if strings.TrimSpace(entry.SwapFee) != "" {
		swapFee, err = parseArkadikoDecimal(entry.SwapFee, "swap_fee")
		if err != nil {
			return types.Opportunity{}, err
		}
	}

	var riskLevel types.RiskLevel
	var ilRisk bool
	var riskFactors []string
	var lockDays int

	switch entry.Type {
	case arkadikoTypeSwap:
		riskLevel = types.RiskMedium
		ilRisk = true
		riskFactors = []string{"smart contract risk", "impermanent loss exposure", "token price volatility"}
	case arkadikoTypeStake:
		riskLevel = types.RiskLow
		ilRisk = false
		riskFactors = []string{"smart contract risk", "reward token price exposure"}
		lockDays = entry.LockDays
	default:
		return types.Opportunity{}, fmt.Errorf("pool %s has unknown type %q", entry.ID, entry.Type)
	}

	opp := types.Opportunity{
		Protocol:     "arkadiko",
		PoolID:       entry.ID,
		PoolName:     entry.Name,
		APY:          apr,
		TVLUSD:       tvl,
		Volume24hUSD: volume,
		Fees: types.FeeSchedule{
			PerformancePct: swapFee,
		},
		RiskLevel:           riskLevel,
		ImpermanentLossRisk: ilRisk,
		RiskFactors:         riskFactors,
		AuditStatus:         types.AuditAudited,
		LockPeriodDays:      lockDays,
		MinDepositSats:      0,
		UpdatedAt:           fetchedAt,
	}

	if err := opp.Validate(); err != nil {
		return types.Opportunity{}, err
	}

	return opp, nil
}

// parseArkadikoDecimal parses one of Arkadiko's string-encoded numeric fields.
func parseArkadikoDecimal(raw string, field string) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("%s cannot be empty", field)
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}

	return value, nil
}
