/*

This file contains the depositor profile attached to every recommendation
request. Profiles are immutable and live only for the duration of one call.

*/

package types

import (
	"errors"
	"fmt"
	"math"
)

// RiskTolerance is the depositor's stated appetite for risk.
type RiskTolerance string

const (
	ToleranceConservative RiskTolerance = "conservative"
	ToleranceModerate     RiskTolerance = "moderate"
	ToleranceAggressive   RiskTolerance = "aggressive"
)

func (t RiskTolerance) Valid() bool {
	switch t {
	case ToleranceConservative, ToleranceModerate, ToleranceAggressive:
		return true
	}
	return false
}

// Allows reports whether the tolerance permits entering a pool at the given
// risk level: conservative admits only low, moderate admits low and medium,
// aggressive admits everything.
func (t RiskTolerance) Allows(level RiskLevel) bool {
	switch t {
	case ToleranceConservative:
		return level == RiskLow
	case ToleranceModerate:
		return level == RiskLow || level == RiskMedium
	case ToleranceAggressive:
		return level.Valid()
	}
	return false
}

type UserProfile struct {
	DepositAmountSats    int64         `json:"deposit_amount_sats"`              // must be > 0
	RiskTolerance        RiskTolerance `json:"risk_tolerance"`                   // conservative | moderate | aggressive
	MinAPY               float64       `json:"min_apy,omitempty"`                // 0 = no minimum
	MaxLockPeriodDays    *int          `json:"max_lock_period_days,omitempty"`   // nil = no cap; 0 = refuse any lock
	AvoidImpermanentLoss bool          `json:"avoid_impermanent_loss,omitempty"` // exclude IL-exposed pools
	PreferredProtocols   []string      `json:"preferred_protocols,omitempty"`    // scoring bonus, not a filter
}

var ErrInvalidProfile = errors.New("user profile is invalid")

func (p *UserProfile) Validate() error {
	if p.DepositAmountSats <= 0 {
		return fmt.Errorf("%w: deposit must be positive, got %d", ErrInvalidProfile, p.DepositAmountSats)
	}
	if !p.RiskTolerance.Valid() {
		return fmt.Errorf("%w: unknown risk tolerance %q", ErrInvalidProfile, p.RiskTolerance)
	}
	if math.IsNaN(p.MinAPY) || math.IsInf(p.MinAPY, 0) || p.MinAPY < 0 {
		return fmt.Errorf("%w: min apy %f", ErrInvalidProfile, p.MinAPY)
	}
	if p.MaxLockPeriodDays != nil && *p.MaxLockPeriodDays < 0 {
		return fmt.Errorf("%w: max lock period %d", ErrInvalidProfile, *p.MaxLockPeriodDays)
	}
	return nil
}

// Prefers reports whether the protocol is on the depositor's preferred list.
func (p *UserProfile) Prefers(protocol string) bool {
	for _, pref := range p.PreferredProtocols {
		if pref == protocol {
			return true
		}
	}
	return false
}
