/*

This is the canonical type for yield opportunities. Every protocol adapter
normalizes its raw API response into this shape before anything downstream
(scoring, recommendation, oracle sync) sees it.

*/

package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// RiskLevel classifies an opportunity by how likely the depositor is to lose
// principal. Levels are ordered: low < medium < high.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Ordinal returns the rank used for "at most this risky" comparisons.
// Unknown levels return -1.
func (r RiskLevel) Ordinal() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	}
	return -1
}

func (r RiskLevel) Valid() bool {
	return r.Ordinal() >= 0
}

// AuditStatus records whether the pool's contracts have been audited.
type AuditStatus string

const (
	AuditAudited    AuditStatus = "audited"
	AuditUnaudited  AuditStatus = "unaudited"
	AuditInProgress AuditStatus = "in_progress"
)

func (a AuditStatus) Valid() bool {
	switch a {
	case AuditAudited, AuditUnaudited, AuditInProgress:
		return true
	}
	return false
}

// FeeSchedule is the fee triple charged by the pool, each as a percentage.
type FeeSchedule struct {
	DepositPct     float64 `json:"deposit_pct"`     // e.g., 0.3 for 0.3%
	WithdrawalPct  float64 `json:"withdrawal_pct"`  // e.g., 0.1 for 0.1%
	PerformancePct float64 `json:"performance_pct"` // cut of earned yield
}

// Total returns the summed fee percentage used by the scoring fee penalty.
func (f FeeSchedule) Total() float64 {
	return f.DepositPct + f.WithdrawalPct + f.PerformancePct
}

type Opportunity struct {
	Protocol            string      `json:"protocol"`       // e.g., "alex"
	PoolID              string      `json:"pool_id"`        // unique within the protocol
	PoolName            string      `json:"pool_name"`      // e.g., "STX-sBTC LP"
	APY                 float64     `json:"apy"`            // annualized, percent
	TVLUSD              float64     `json:"tvl_usd"`        // Total Value Locked in USD
	Volume24hUSD        float64     `json:"volume_24h_usd"` // 0 when the source omits it
	Fees                FeeSchedule `json:"fees"`
	RiskLevel           RiskLevel   `json:"risk_level"`
	ImpermanentLossRisk bool        `json:"impermanent_loss_risk"`
	RiskFactors         []string    `json:"risk_factors"` // ordered, human-readable
	AuditStatus         AuditStatus `json:"audit_status"`
	LockPeriodDays      int         `json:"lock_period_days"`
	MinDepositSats      int64       `json:"min_deposit_sats"`
	UpdatedAt           time.Time   `json:"updated_at"` // set at construction, freshness anchor
}

// Key returns the protocol-qualified identifier used for set membership
// checks (a pool id alone is only unique within its protocol).
func (o *Opportunity) Key() string {
	return o.Protocol + "/" + o.PoolID
}

var (
	ErrMissingIdentity  = errors.New("opportunity identity fields are incomplete")
	ErrInvalidEconomics = errors.New("opportunity economics are invalid")
	ErrInvalidRisk      = errors.New("opportunity risk classification is invalid")
)

// Validate rejects opportunities that would poison downstream math.
// Adapters call this before handing a normalized record to the aggregator.
func (o *Opportunity) Validate() error {
	if o.Protocol == "" || o.PoolID == "" || o.PoolName == "" {
		return fmt.Errorf("%w: protocol=%q pool_id=%q pool_name=%q",
			ErrMissingIdentity, o.Protocol, o.PoolID, o.PoolName)
	}

	for _, v := range []struct {
		value float64
		name  string
	}{
		{o.APY, "apy"},
		{o.TVLUSD, "tvl_usd"},
		{o.Volume24hUSD, "volume_24h_usd"},
		{o.Fees.DepositPct, "deposit_fee"},
		{o.Fees.WithdrawalPct, "withdrawal_fee"},
		{o.Fees.PerformancePct, "performance_fee"},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return fmt.Errorf("%w: %s is not finite: %f", ErrInvalidEconomics, v.name, v.value)
		}
		if v.value < 0 {
			return fmt.Errorf("%w: %s is negative: %f", ErrInvalidEconomics, v.name, v.value)
		}
	}

	if !o.RiskLevel.Valid() {
		return fmt.Errorf("%w: unknown risk level %q", ErrInvalidRisk, o.RiskLevel)
	}
	if !o.AuditStatus.Valid() {
		return fmt.Errorf("%w: unknown audit status %q", ErrInvalidRisk, o.AuditStatus)
	}
	if o.LockPeriodDays < 0 {
		return fmt.Errorf("%w: lock period is negative: %d", ErrInvalidEconomics, o.LockPeriodDays)
	}
	if o.MinDepositSats < 0 {
		return fmt.Errorf("%w: min deposit is negative: %d", ErrInvalidEconomics, o.MinDepositSats)
	}
	if o.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: updated_at is unset", ErrInvalidEconomics)
	}

	return nil
}
