/*

This file contains the model-backed recommendation stage. The model is shown
the aggregated opportunity set and the depositor profile, and must answer with
a JSON object referencing pools by protocol and pool_id. Every reference is
resolved against the input set before anything reaches the caller: pool names,
APYs, and risk levels in the final recommendation always come from our own
data, never from model output. Failures map onto three sentinels so the
orchestrator can distinguish "switched off" from "broken" from "talking
nonsense", and fall back on all of them.

*/

package recommender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/types"
)

var modelLogger = logger.GetForComponent("model_recommender")

var ErrModelDisabled = errors.New("model recommendation stage is disabled")
var ErrModelUnavailable = errors.New("model recommendation stage is unavailable")
var ErrModelInvalid = errors.New("model returned an invalid recommendation")

const MODEL_MAX_TOKENS = 1024

const RECOMMENDER_SYSTEM_PROMPT = `You are a yield analyst for a Bitcoin-denominated savings product built on the Stacks ecosystem.
You will receive a JSON document with a list of yield opportunities and a depositor profile.
Pick the single best opportunity for this depositor, plus two or three ranked alternatives.

Rules:
- Only reference pools from the provided list, by their exact protocol and pool_id values.
- Respect the depositor's risk tolerance and every stated constraint.
- Confidence is your honest estimate between 0 and 1, not a sales pitch.
- Respond with a single JSON object and nothing else, matching this schema:
{
  "primary": {"protocol": "...", "pool_id": "..."},
  "alternatives": [{"protocol": "...", "pool_id": "..."}],
  "reasoning": "two or three sentences on why the primary fits this depositor",
  "risk_assessment": "one or two sentences on the primary's risk picture",
  "warnings": ["short warning strings, empty list if none apply"],
  "confidence": 0.0
}`

// modelPoolRef is how the model names a pool: the same protocol-qualified
// identity the prompt presented.
type modelPoolRef struct {
	Protocol string `json:"protocol"`
	PoolID   string `json:"pool_id"`
}

func (r modelPoolRef) key() string {
	return r.Protocol + "/" + r.PoolID
}

type modelAnswer struct {
	Primary        modelPoolRef   `json:"primary"`
	Alternatives   []modelPoolRef `json:"alternatives"`
	Reasoning      string         `json:"reasoning"`
	RiskAssessment string         `json:"risk_assessment"`
	Warnings       []string       `json:"warnings"`
	Confidence     float64        `json:"confidence"`
}

// modelRequest is the user-message payload, serialized as indented JSON.
type modelRequest struct {
	Opportunities []types.Opportunity `json:"opportunities"`
	Profile       types.UserProfile   `json:"profile"`
}

type ModelRecommender struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	enabled bool
}

// NewModelRecommender builds the model stage. A false flag or an empty API
// key produces a permanently disabled stage whose Recommend always returns
// ErrModelDisabled; the orchestrator treats that as "go straight to rules".
func NewModelRecommender(enabled bool, apiKey, model string, timeout time.Duration) *ModelRecommender {
	if !enabled || apiKey == "" {
		modelLogger.Info().
			Bool("flagEnabled", enabled).
			Bool("hasAPIKey", apiKey != "").
			Msg("Model recommendation stage is disabled")
		return &ModelRecommender{enabled: false}
	}

	modelLogger.Info().
		Str("model", model).
		Dur("timeout", timeout).
		Msg("Model recommendation stage is enabled")

	return &ModelRecommender{
		// A single attempt per recommendation. Failover to the rule stage is
		// the retry strategy, not SDK-level request retries.
		client:  anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0)),
		model:   model,
		timeout: timeout,
		enabled: true,
	}
}

// Recommend runs one bounded model attempt and returns a recommendation built
// entirely from resolved input opportunities. There is no retry: a failed
// attempt is the orchestrator's cue to use the rule-based path.
func (m *ModelRecommender) Recommend(ctx context.Context, opps []types.Opportunity, profile types.UserProfile) (*types.Recommendation, error) {
	if !m.enabled {
		return nil, ErrModelDisabled
	}
	if len(opps) == 0 {
		return nil, fmt.Errorf("%w: no opportunities to choose from", ErrModelInvalid)
	}

	payload, err := json.MarshalIndent(modelRequest{Opportunities: opps, Profile: profile}, "", "  ")
	if err != nil {
		return nil, errors.Join(ErrModelUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	modelLogger.Debug().
		Str("model", m.model).
		Int("candidateCount", len(opps)).
		Msg("Requesting model recommendation")

	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: MODEL_MAX_TOKENS,
		System: []anthropic.TextBlockParam{
			{Text: RECOMMENDER_SYSTEM_PROMPT},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(string(payload))),
		},
	})
	if err != nil {
		return nil, errors.Join(ErrModelUnavailable, err)
	}

	answer, err := parseModelAnswer(resp)
	if err != nil {
		return nil, err
	}

	index := indexByKey(opps)
	if err := validateModelAnswer(answer, index); err != nil {
		return nil, err
	}

	modelLogger.Debug().
		Str("primary", answer.Primary.key()).
		Int("alternatives", len(answer.Alternatives)).
		Float64("confidence", answer.Confidence).
		Msg("Model answer accepted")

	return assembleModelRecommendation(answer, index), nil
}

// parseModelAnswer extracts and decodes the JSON object from the first text
// block of the response.
func parseModelAnswer(resp *anthropic.Message) (*modelAnswer, error) {
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("%w: response contains no text block", ErrModelInvalid)
	}

	// Models occasionally wrap the object in a code fence despite
	// instructions; take the outermost braces and nothing else.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response text", ErrModelInvalid)
	}

	var answer modelAnswer
	if err := json.Unmarshal([]byte(text[start:end+1]), &answer); err != nil {
		return nil, errors.Join(ErrModelInvalid, err)
	}

	return &answer, nil
}

// validateModelAnswer enforces the schema: every referenced pool must exist
// in the input set, references must not repeat, prose fields must be present,
// and confidence must land in [0,1].
func validateModelAnswer(answer *modelAnswer, index map[string]types.Opportunity) error {
	if _, ok := index[answer.Primary.key()]; !ok {
		return fmt.Errorf("%w: primary %q is not in the input set", ErrModelInvalid, answer.Primary.key())
	}

	seen := map[string]bool{answer.Primary.key(): true}
	for _, alt := range answer.Alternatives {
		if _, ok := index[alt.key()]; !ok {
			return fmt.Errorf("%w: alternative %q is not in the input set", ErrModelInvalid, alt.key())
		}
		if seen[alt.key()] {
			return fmt.Errorf("%w: pool %q referenced twice", ErrModelInvalid, alt.key())
		}
		seen[alt.key()] = true
	}

	if strings.TrimSpace(answer.Reasoning) == "" {
		return fmt.Errorf("%w: reasoning is empty", ErrModelInvalid)
	}
	if strings.TrimSpace(answer.RiskAssessment) == "" {
		return fmt.Errorf("%w: risk assessment is empty", ErrModelInvalid)
	}
	if answer.Confidence < 0 || answer.Confidence > 1 {
		return fmt.Errorf("%w: confidence %f outside [0,1]", ErrModelInvalid, answer.Confidence)
	}

	return nil
}

// assembleModelRecommendation resolves the validated answer against the input
// set. Pros and cons for alternatives are composed locally from pool data.
func assembleModelRecommendation(answer *modelAnswer, index map[string]types.Opportunity) *types.Recommendation {
	primary := index[answer.Primary.key()]

	alternatives := make([]types.Alternative, 0, len(answer.Alternatives))
	for _, ref := range answer.Alternatives {
		opp := index[ref.key()]
		pros, cons := buildProsCons(opp, primary)
		alternatives = append(alternatives, types.Alternative{
			RecommendedPool: poolRef(opp),
			Pros:            pros,
			Cons:            cons,
		})
	}

	warnings := answer.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	return &types.Recommendation{
		Primary:         poolRef(primary),
		Alternatives:    alternatives,
		Reasoning:       strings.TrimSpace(answer.Reasoning),
		RiskAssessment:  strings.TrimSpace(answer.RiskAssessment),
		Warnings:        warnings,
		ConfidenceScore: answer.Confidence,
		Source:          types.SourceModel,
	}
}

// indexByKey maps protocol-qualified pool keys to their opportunities.
func indexByKey(opps []types.Opportunity) map[string]types.Opportunity {
	index := make(map[string]types.Opportunity, len(opps))
	for _, opp := range opps {
		index[opp.Key()] = opp
	}
	return index
}
