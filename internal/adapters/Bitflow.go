/*

This file contains the Bitflow adapter. Bitflow runs stableswap and
constant-product pools on Stacks and returns its pool list as a bare JSON
array.

Risk rule for Bitflow entries: stableswap pools carry no impermanent loss and
classify as low risk; constant-product ("xyk") pools carry impermanent loss
and classify as medium risk. Bitflow's audits are still in progress, which the
audit status reflects. Entries with any other pool type are rejected.

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

var bitflowLogger = logger.GetForComponent("bitflow_adapter")
var ErrBitflowResponseInvalid = errors.New("bitflow API response validation failed")

const (
	BITFLOW_POOLS_ROUTE = "/pools"

	bitflowTypeStable = "stable"
	bitflowTypeXYK    = "xyk"
)

// bitflowPoolEntry mirrors one element of the Bitflow pool list.
type bitflowPoolEntry struct {
	Identifier     string   `json:"identifier"`
	Name           string   `json:"name"`
	PoolType       string   `json:"pool_type"`
	Tokens         []string `json:"tokens"`
	APY            float64  `json:"apy"`
	TVLUSD         float64  `json:"tvl_usd"`
	VolumeUSD24h   float64  `json:"volume_usd_24h"`
	WithdrawFeePct float64  `json:"withdraw_fee_pct"`
}

type BitflowAdapter struct {
	baseURL string
	client  *http.Client
}

func NewBitflowAdapter(baseURL string) *BitflowAdapter {
	return &BitflowAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: FETCH_TIMEOUT},
	}
}

func (b *BitflowAdapter) Name() string {
	return "bitflow"
}

// FetchOpportunities retrieves and normalizes the Bitflow pool set. Malformed
// entries are skipped with a warning; the fetch fails only when the response
// itself is unusable or no entry survives.
func (b *BitflowAdapter) FetchOpportunities(ctx context.Context) ([]types.Opportunity, error) {
	url := b.baseURL + BITFLOW_POOLS_ROUTE

	bitflowLogger.Debug().
		Str("url", url).
		Dur("timeout", FETCH_TIMEOUT).
		Msg("Making API request for Bitflow pools")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building Bitflow pools request failed: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		bitflowLogger.Error().Err(err).Str("url", url).Msg("HTTP request failed for Bitflow pools")
		return nil, fmt.Errorf("Bitflow pools API request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := validateAPIResponse(resp); err != nil {
		bitflowLogger.Error().Err(err).Int("statusCode", resp.StatusCode).Msg("Bitflow API response validation failed")
		return nil, errors.Join(ErrBitflowResponseInvalid, err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		bitflowLogger.Error().Err(err).Msg("Failed to read Bitflow response body")
		return nil, fmt.Errorf("failed to read Bitflow pools response: %w", err)
	}

	if len(body) == 0 {
		bitflowLogger.Error().Msg("Empty response body from Bitflow pools API")
		return nil, errors.Join(ErrBitflowResponseInvalid, errors.New("empty response body"))
	}

	var parsed []bitflowPoolEntry
	if err := json.Unmarshal(body, &parsed); err != nil {
		bitflowLogger.Error().Err(err).Int("bodyLength", len(body)).Msg("Failed to parse Bitflow pools JSON")
		return nil, errors.Join(ErrBitflowResponseInvalid, err)
	}

	if len(parsed) == 0 {
		bitflowLogger.Error().Msg("No pools returned from Bitflow API")
		return nil, errors.Join(ErrBitflowResponseInvalid, errors.New("no pools in response"))
	}

	fetchedAt := time.Now()
	opportunities := make([]types.Opportunity, 0, len(parsed))
	skippedCount := 0

	for i, entry := range parsed {
		opp, err := normalizeBitflowPool(entry, fetchedAt)
		if err != nil {
			bitflowLogger.Warn().
				Err(err).
				Int("entryIndex", i).
				Str("poolID", entry.Identifier).
				Str("poolName", entry.Name).
				Msg("Skipping invalid Bitflow pool entry")
			skippedCount++
			continue
		}
		opportunities = append(opportunities, opp)
	}

	if len(opportunities) == 0 {
		bitflowLogger.Error().
			Int("totalEntries", len(parsed)).
			Int("skippedEntries", skippedCount).
			Msg("No valid Bitflow pool entries found")
		return nil, errors.New("no valid Bitflow pool entries found")
	}

	bitflowLogger.Info().
		Int("totalEntries", len(parsed)).
		Int("validEntries", len(opportunities)).
		Int("skippedEntries", skippedCount).
		Msg("Bitflow pool retrieval complete")

	return opportunities, nil
}

// normalizeBitflowPool converts one raw Bitflow entry into the canonical shape
// and validates the result.
func normalizeBitflowPool(entry bitflowPoolEntry, fetchedAt time.Time) (types.Opportunity, error) {
	if strings.TrimSpace(entry.Identifier) == "" {
		return types.Opportunity{}, errors.New("pool identifier cannot be empty")
	}
	if strings.TrimSpace(entry.Name) == "" {
		return types.Opportunity{}, fmt.Errorf("pool %s has empty name", entry.Identifier)
	}
	if len(entry.Tokens) < 2 {
		return types.Opportunity{}, fmt.Errorf("pool %s must list at least 2 tokens, found %d", entry.Identifier, len(entry.Tokens))
	}

	var riskLevel types.RiskLevel
	var ilRisk bool
	var riskFactors []string

	switch entry.PoolType {
	case bitflowTypeStable:
		riskLevel = types.RiskLow
		ilRisk = false
		riskFactors = []string{"smart contract risk", "stablecoin peg risk", "audit in progress"}
	case bitflowTypeXYK:
		riskLevel = types.RiskMedium
		ilRisk = true
		riskFactors = []string{"smart contract risk", "impermanent loss exposure", "audit in progress"}
	default:
		return types.Opportunity{}, fmt.Errorf("pool %s has unknown pool type %q", entry.Identifier, entry.PoolType)
	}

	opp := types.Opportunity{
		Protocol:     "bitflow",
		PoolID:       entry.Identifier,
		PoolName:     entry.Name,
		APY:          entry.APY,
		TVLUSD:       entry.TVLUSD,
		Volume24hUSD: entry.VolumeUSD24h,
		Fees: types.FeeSchedule{
			WithdrawalPct: entry.WithdrawFeePct,
		},
		RiskLevel:           riskLevel,
		ImpermanentLossRisk: ilRisk,
		RiskFactors:         riskFactors,
		AuditStatus:         types.AuditInProgress,
		LockPeriodDays:      0,
		MinDepositSats:      0,
		UpdatedAt:           fetchedAt,
	}

	if err := opp.Validate(); err != nil {
		return types.Opportunity{}, err
	}

	return opp, nil
}
