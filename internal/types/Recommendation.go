/*

This file contains the recommendation output type. Both the model-backed path
and the rule-based path construct this exact shape directly; the Source field
is the only place the two paths are distinguishable to a caller.

*/

package types

import "time"

// RecommendationSource records which path produced the answer.
type RecommendationSource string

const (
	SourceModel     RecommendationSource = "model"
	SourceRuleBased RecommendationSource = "rule_based"
)

// RecommendedPool is the subset of Opportunity fields echoed in a
// recommendation. It must always reference a pool from the input set.
type RecommendedPool struct {
	Protocol  string    `json:"protocol"`
	PoolID    string    `json:"pool_id"`
	PoolName  string    `json:"pool_name"`
	APY       float64   `json:"apy"`
	RiskLevel RiskLevel `json:"risk_level"`
}

// Alternative is a runner-up pool with generated pros/cons text.
type Alternative struct {
	RecommendedPool
	Pros []string `json:"pros"`
	Cons []string `json:"cons"`
}

// ProjectedEarnings are denominated in sats, matching the deposit.
type ProjectedEarnings struct {
	DailySats   int64 `json:"daily_sats"`
	MonthlySats int64 `json:"monthly_sats"`
	YearlySats  int64 `json:"yearly_sats"`
}

type Recommendation struct {
	ID                   string               `json:"id"` // uuid, assigned by the engine
	Primary              RecommendedPool      `json:"primary"`
	Alternatives         []Alternative        `json:"alternatives"` // 2-3 when enough candidates exist
	Reasoning            string               `json:"reasoning"`
	RiskAssessment       string               `json:"risk_assessment"`
	Warnings             []string             `json:"warnings"`
	Disclaimers          []string             `json:"disclaimers"`
	ProjectedEarnings    ProjectedEarnings    `json:"projected_earnings"`
	ConfidenceScore      float64              `json:"confidence_score"` // [0,1]
	Source               RecommendationSource `json:"source"`
	DataFreshnessSeconds int64                `json:"data_freshness_seconds"` // age of the oldest input opportunity
	GeneratedAt          time.Time            `json:"generated_at"`
}
