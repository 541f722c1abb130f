/*

This file contains the deterministic prose assembly for recommendations:
reasoning, risk assessment, warnings, pros and cons, and the fixed disclaimer
list. Same inputs, same words. The rule-based path uses all of it; the
model-backed path uses only the pros/cons builder and the disclaimers.

*/

package recommender

import (
	"fmt"
	"strings"

	"github.com/stacksfoundry/yra/internal/types"
)

const (
	WARN_TVL_FLOOR_USD   = 1_000_000
	WARN_FEE_TOTAL_PCT   = 2.0
	WARN_APY_OUTLIER_PCT = 50.0
)

func buildReasoning(primary types.ScoredOpportunity, candidateCount int, profile types.UserProfile) string {
	opp := primary.Opportunity

	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s ranked first of %d candidates for a %s profile with a score of %.1f.",
		opp.PoolName, opp.Protocol, candidateCount, profile.RiskTolerance, primary.Score)
	fmt.Fprintf(&b, " It pays %.2f%% APY with %s.", opp.APY, tvlBand(opp.TVLUSD))
	if profile.Prefers(opp.Protocol) {
		b.WriteString(" The protocol is on your preferred list.")
	}
	fmt.Fprintf(&b, " Its %s risk level sits within your %s tolerance.", opp.RiskLevel, profile.RiskTolerance)

	return b.String()
}

func tvlBand(tvlUSD float64) string {
	switch {
	case tvlUSD >= 10_000_000:
		return fmt.Sprintf("deep liquidity ($%.1fM TVL)", tvlUSD/1_000_000)
	case tvlUSD >= 1_000_000:
		return fmt.Sprintf("moderate liquidity ($%.1fM TVL)", tvlUSD/1_000_000)
	default:
		return fmt.Sprintf("shallow liquidity ($%.0fK TVL)", tvlUSD/1_000)
	}
}

func buildRiskAssessment(opp types.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is classified as %s risk.", opp.PoolName, opp.RiskLevel)

	switch opp.AuditStatus {
	case types.AuditAudited:
		b.WriteString(" The protocol has been audited.")
	case types.AuditInProgress:
		b.WriteString(" An audit is currently in progress.")
	default:
		b.WriteString(" The protocol has not been audited.")
	}

	if opp.ImpermanentLossRisk {
		b.WriteString(" Providing liquidity here exposes the deposit to impermanent loss.")
	}
	if len(opp.RiskFactors) > 0 {
		fmt.Fprintf(&b, " Known risk factors: %s.", strings.Join(opp.RiskFactors, ", "))
	}

	return b.String()
}

// buildWarnings flags the facts a depositor should read before anything
// else. The impermanent-loss warning is skipped when the profile already
// avoids IL pools, because such pools never reach this point.
func buildWarnings(opp types.Opportunity, profile types.UserProfile) []string {
	warnings := make([]string, 0, 4)

	if opp.TVLUSD < WARN_TVL_FLOOR_USD {
		warnings = append(warnings, fmt.Sprintf("Low liquidity: only $%.0f TVL. Large deposits may move this pool.", opp.TVLUSD))
	}
	if opp.LockPeriodDays > 0 {
		warnings = append(warnings, fmt.Sprintf("Funds are locked for %d days after deposit.", opp.LockPeriodDays))
	}
	if opp.ImpermanentLossRisk && !profile.AvoidImpermanentLoss {
		warnings = append(warnings, "This pool carries impermanent loss risk.")
	}
	if total := opp.Fees.Total(); total > WARN_FEE_TOTAL_PCT {
		warnings = append(warnings, fmt.Sprintf("Combined fees of %.2f%% will eat into returns.", total))
	}
	if opp.APY > WARN_APY_OUTLIER_PCT {
		warnings = append(warnings, fmt.Sprintf("An APY of %.1f%% is an outlier and unlikely to be sustainable.", opp.APY))
	}

	return warnings
}

// buildProsCons compares an alternative against the chosen primary. Both
// lists always come back non-empty so the rendered output never shows a
// blank column.
func buildProsCons(opp, primary types.Opportunity) ([]string, []string) {
	var pros, cons []string

	if opp.APY > primary.APY {
		pros = append(pros, fmt.Sprintf("Higher APY than the primary pick (%.2f%% vs %.2f%%)", opp.APY, primary.APY))
	} else if opp.APY < primary.APY {
		cons = append(cons, fmt.Sprintf("Lower APY than the primary pick (%.2f%% vs %.2f%%)", opp.APY, primary.APY))
	}

	if opp.TVLUSD > primary.TVLUSD {
		pros = append(pros, "Deeper liquidity than the primary pick")
	} else if opp.TVLUSD < primary.TVLUSD {
		cons = append(cons, "Shallower liquidity than the primary pick")
	}

	if opp.RiskLevel.Ordinal() < primary.RiskLevel.Ordinal() {
		pros = append(pros, fmt.Sprintf("Lower risk level (%s vs %s)", opp.RiskLevel, primary.RiskLevel))
	} else if opp.RiskLevel.Ordinal() > primary.RiskLevel.Ordinal() {
		cons = append(cons, fmt.Sprintf("Higher risk level (%s vs %s)", opp.RiskLevel, primary.RiskLevel))
	}

	if opp.AuditStatus == types.AuditAudited && primary.AuditStatus != types.AuditAudited {
		pros = append(pros, "Audited while the primary pick is not")
	}

	if opp.LockPeriodDays == 0 && primary.LockPeriodDays > 0 {
		pros = append(pros, "No lock period")
	} else if opp.LockPeriodDays > 0 {
		cons = append(cons, fmt.Sprintf("%d-day lock period", opp.LockPeriodDays))
	}

	if opp.ImpermanentLossRisk && !primary.ImpermanentLossRisk {
		cons = append(cons, "Adds impermanent loss exposure")
	}

	if len(pros) == 0 {
		pros = append(pros, "Scored close behind the primary pick")
	}
	if len(cons) == 0 {
		cons = append(cons, "Ranked below the primary on overall score")
	}

	return pros, cons
}

// disclaimers returns the fixed list attached to every recommendation.
func disclaimers() []string {
	return []string{
		"Yields are variable and can change without notice. Past performance does not guarantee future returns.",
		"DeFi protocols carry smart contract risk, up to and including total loss of deposited funds.",
		"This is automated analysis, not financial advice. Do your own research before depositing.",
	}
}
