// Package prevention runs the full threat evaluation pipeline over a
// proposed transaction: simulation, threat intelligence, static analysis,
// behavioral anomaly detection, attack pattern scanning, and contract
// validation, aggregated into one weighted risk score and a hard
// allow/block verdict.
//
// The pipeline fails closed. If any stage errors or panics, the
// transaction is blocked rather than waved through unanalyzed.
package prevention

import (
	"context"
	"time"

	"github.com/mbd888/walletguard/internal/simulator"
	"github.com/mbd888/walletguard/internal/threat"
)

// Score contributions per detection source.
const (
	ScoreSimulationFailure = 40
	ScoreStateChange       = 15

	ScoreIntelCritical = 50
	ScoreIntelHigh     = 35
	ScoreIntelOther    = 20

	ScoreStaticHighRisk = 30

	ScoreAnomalyConfident = 25
	ScoreAnomalyWeak      = 15

	ScoreAttackPattern      = 20
	ScoreContractValidation = 15
)

// ErrorBlockedScore is the fixed score assigned when the pipeline itself
// fails. The normal accumulation has no upper clamp; the classification
// thresholds handle saturation.
const ErrorBlockedScore = 100

// Aggregate score thresholds for the overall risk level.
const (
	ThresholdCritical = 80
	ThresholdHigh     = 60
	ThresholdMedium   = 40
	ThresholdLow      = 20
)

// AnomalyConfidenceBar separates a confident behavioral anomaly from a
// weak one for scoring purposes.
const AnomalyConfidenceBar = 0.7

// StaticRiskBar is the static analyzer's internal score above which its
// finding contributes to the pipeline.
const StaticRiskBar = 70

// HighDetectionsToBlock blocks a transaction on accumulation of high
// severity findings even when no single one is critical.
const HighDetectionsToBlock = 2

// Result is the pipeline's verdict on a single transaction.
type Result struct {
	Allowed         bool               `json:"allowed"`
	RiskLevel       threat.RiskLevel   `json:"riskLevel"`
	RiskScore       int                `json:"riskScore"`
	Threats         []threat.Detection `json:"threats"`
	Recommendations []string           `json:"recommendations"`
	Simulation      *simulator.Result  `json:"simulationResult,omitempty"`
	BlockedReasons  []string           `json:"blockedReasons,omitempty"`
}

// Evaluation is the audit record persisted for each pipeline run.
type Evaluation struct {
	ID          string           `json:"id"`
	Wallet      string           `json:"wallet"`
	To          string           `json:"to"`
	Allowed     bool             `json:"allowed"`
	RiskLevel   threat.RiskLevel `json:"riskLevel"`
	RiskScore   int              `json:"riskScore"`
	Threats     int              `json:"threats"`
	EvaluatedAt time.Time        `json:"evaluatedAt"`
}

// Store persists evaluations for audit trail.
type Store interface {
	Record(ctx context.Context, eval *Evaluation) error
	ListByWallet(ctx context.Context, wallet string, limit int) ([]*Evaluation, error)
}

// levelFor maps an aggregate score to a risk level.
func levelFor(score int) threat.RiskLevel {
	switch {
	case score >= ThresholdCritical:
		return threat.RiskCritical
	case score >= ThresholdHigh:
		return threat.RiskHigh
	case score >= ThresholdMedium:
		return threat.RiskMedium
	case score >= ThresholdLow:
		return threat.RiskLow
	default:
		return threat.RiskSafe
	}
}

// shouldBlock applies the hard decision rules: a critical overall level,
// any single critical finding, or an accumulation of high severity
// findings all block.
func shouldBlock(level threat.RiskLevel, threats []threat.Detection) bool {
	if level == threat.RiskCritical {
		return true
	}
	highs := 0
	for _, d := range threats {
		switch d.Severity {
		case threat.SeverityCritical:
			return true
		case threat.SeverityHigh:
			highs++
		}
	}
	return highs >= HighDetectionsToBlock
}

func blockedReasons(threats []threat.Detection) []string {
	var reasons []string
	for _, d := range threats {
		if d.Severity == threat.SeverityCritical || d.Severity == threat.SeverityHigh {
			reasons = append(reasons, d.Description)
		}
	}
	return reasons
}

func recommendationsFor(allowed bool, level threat.RiskLevel, reasons, collected []string) []string {
	if !allowed {
		recs := []string{"🛑 TRANSACTION BLOCKED FOR YOUR SAFETY"}
		recs = append(recs, reasons...)
		return append(recs, collected...)
	}
	var banner string
	switch level {
	case threat.RiskHigh, threat.RiskMedium:
		banner = "⚠️ Proceed with caution - review all details carefully"
	case threat.RiskLow:
		banner = "✅ Transaction appears safe, but always verify details"
	default:
		banner = "✅ No significant threats detected"
	}
	return append([]string{banner}, collected...)
}
