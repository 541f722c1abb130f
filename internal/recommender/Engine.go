/*

This file contains the recommendation orchestrator: a two-stage pipeline that
attempts the model first and falls back to the deterministic rule path on any
model sentinel. The caller never sees a model failure as an error; the Source
field on the result is the only trace of which stage answered. Projected
earnings, data freshness, and disclaimers are computed here, identically for
both stages, because neither stage is trusted to do its own money math.

*/

package recommender

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/metrics"
	"github.com/stacksfoundry/yra/internal/types"
)

var engineLogger = logger.GetForComponent("recommendation_engine")

var ErrNoSuitableOpportunities = errors.New("no suitable opportunities for this profile")
var ErrInvalidEarningsInput = errors.New("invalid projected-earnings input")

type Engine struct {
	model  *ModelRecommender
	params types.EngineParameters
}

// NewEngine wires the two stages together. The model stage is always present;
// a disabled one is constructed via NewModelRecommender with a false flag.
func NewEngine(model *ModelRecommender, params types.EngineParameters) (*Engine, error) {
	if model == nil {
		return nil, errors.New("model stage cannot be nil, construct a disabled one instead")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("failed to construct recommendation engine: %w", err)
	}
	return &Engine{model: model, params: params}, nil
}

// GetRecommendation answers one depositor request from the given aggregated
// set. The model stage is attempted first; any of its sentinels routes the
// request silently to the rule-based stage. ErrNoSuitableOpportunities comes
// back when the set is empty or when no candidate passes the profile.
func (e *Engine) GetRecommendation(ctx context.Context, opps []types.Opportunity, profile types.UserProfile) (*types.Recommendation, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if len(opps) == 0 {
		return nil, fmt.Errorf("%w: the aggregated set is empty", ErrNoSuitableOpportunities)
	}

	rec, modelErr := e.model.Recommend(ctx, opps, profile)
	if modelErr == nil {
		if err := e.finalize(rec, opps, profile); err == nil {
			metrics.Recommendations.WithLabelValues(string(types.SourceModel)).Inc()
			return rec, nil
		} else {
			modelErr = err
		}
	}

	switch {
	case errors.Is(modelErr, ErrModelDisabled):
		engineLogger.Debug().Msg("Model stage disabled, using rule-based path")
	case errors.Is(modelErr, ErrModelUnavailable):
		engineLogger.Debug().Err(modelErr).Msg("Model stage unavailable, falling back to rule-based path")
		metrics.ModelFailovers.Inc()
	case errors.Is(modelErr, ErrModelInvalid):
		engineLogger.Debug().Err(modelErr).Msg("Model answer rejected, falling back to rule-based path")
		metrics.ModelFailovers.Inc()
	default:
		engineLogger.Warn().Err(modelErr).Msg("Model stage failed unexpectedly, falling back to rule-based path")
		metrics.ModelFailovers.Inc()
	}

	rec, err := recommendByRules(opps, profile, e.params)
	if err != nil {
		return nil, err
	}
	if err := e.finalize(rec, opps, profile); err != nil {
		return nil, err
	}

	metrics.Recommendations.WithLabelValues(string(types.SourceRuleBased)).Inc()
	return rec, nil
}

// finalize fills the fields neither stage is allowed to produce itself:
// identity, timestamps, freshness, earnings, disclaimers, and the
// alternatives cap.
func (e *Engine) finalize(rec *types.Recommendation, opps []types.Opportunity, profile types.UserProfile) error {
	earnings, err := projectEarnings(profile.DepositAmountSats, rec.Primary.APY)
	if err != nil {
		return err
	}

	rec.ID = uuid.New().String()
	rec.GeneratedAt = time.Now()
	rec.DataFreshnessSeconds = freshnessSeconds(opps, rec.GeneratedAt)
	rec.Disclaimers = disclaimers()
	rec.ProjectedEarnings = earnings
	if len(rec.Alternatives) > e.params.MaxAlternatives {
		rec.Alternatives = rec.Alternatives[:e.params.MaxAlternatives]
	}

	return nil
}

// projectEarnings converts an APY into sat-denominated daily, monthly, and
// yearly projections. Decimal arithmetic, rounded to whole sats; the yearly
// figure is the anchor and the shorter horizons divide it down.
func projectEarnings(depositSats int64, apy float64) (types.ProjectedEarnings, error) {
	if depositSats <= 0 {
		return types.ProjectedEarnings{}, fmt.Errorf("%w: deposit %d sats", ErrInvalidEarningsInput, depositSats)
	}
	if math.IsNaN(apy) || math.IsInf(apy, 0) || apy < 0 {
		return types.ProjectedEarnings{}, fmt.Errorf("%w: apy %f", ErrInvalidEarningsInput, apy)
	}

	yearly := decimal.NewFromInt(depositSats).
		Mul(decimal.NewFromFloat(apy)).
		Div(decimal.NewFromInt(100))

	return types.ProjectedEarnings{
		YearlySats:  yearly.Round(0).IntPart(),
		MonthlySats: yearly.Div(decimal.NewFromInt(12)).Round(0).IntPart(),
		DailySats:   yearly.Div(decimal.NewFromInt(365)).Round(0).IntPart(),
	}, nil
}

// freshnessSeconds is the age of the oldest opportunity in the input set.
// Both stages report it, so a caller can tell how stale the data behind a
// recommendation was.
func freshnessSeconds(opps []types.Opportunity, now time.Time) int64 {
	oldest := opps[0].UpdatedAt
	for _, opp := range opps[1:] {
		if opp.UpdatedAt.Before(oldest) {
			oldest = opp.UpdatedAt
		}
	}

	age := now.Sub(oldest)
	if age < 0 {
		return 0
	}
	return int64(age.Seconds())
}
