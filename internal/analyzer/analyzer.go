// Package analyzer performs stateless pre-signature risk analysis of a
// single transaction's static shape: recipient, value, and calldata.
// No I/O, no shared state — a pure function over the transaction.
package analyzer

import (
	"fmt"
	"strings"

	"github.com/mbd888/walletguard/internal/threat"
)

// Risk is the analyzer's verdict for one transaction.
type Risk struct {
	RiskLevel       Level    `json:"riskLevel"`
	RiskScore       int      `json:"riskScore"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
	Explanation     string   `json:"explanation"`
	ShouldProceed   bool     `json:"shouldProceed"`
}

// Level is the analyzer's internal classification. It intentionally uses
// the uppercase convention (distinct from the pipeline's overall risk
// level): the analyzer predates the pipeline and its levels feed user-
// facing warning text, not the allow/block decision.
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelHigh     Level = "HIGH"
	LevelMedium   Level = "MEDIUM"
	LevelLow      Level = "LOW"
)

// Score contributions. Named so scoring is auditable per check.
const (
	ScoreDenylistedRecipient = 50
	ScoreContractInteraction = 10
	ScoreSensitiveSelector   = 15
	ScoreLargeValue          = 20

	// LargeValueETH is the unit-normalized value above which a transfer
	// is called out as large.
	LargeValueETH = 1.0
)

// Classification thresholds over the accumulated score.
const (
	ThresholdCritical = 70
	ThresholdHigh     = 50
	ThresholdMedium   = 25
)

// denylist is the analyzer's own fixed list of never-send-here addresses.
// Broader threat intelligence lives in the intel package; this exists so
// the analyzer stays a pure function with no collaborators.
var denylist = map[string]bool{
	"0x0000000000000000000000000000000000000000": true,
}

// Analyze inspects the transaction's static shape and returns a risk
// verdict. Malformed optional fields (value, data) are treated as absent
// rather than failing the analysis.
func Analyze(tx *threat.Transaction) *Risk {
	var warnings, recommendations []string
	score := 0

	if denylist[strings.ToLower(strings.TrimSpace(tx.To))] {
		warnings = append(warnings, "⚠️ Sending to known burn/scam address")
		score += ScoreDenylistedRecipient
	}

	if tx.HasCallData() {
		warnings = append(warnings, "📜 Interacting with smart contract")
		score += ScoreContractInteraction

		if threat.IsSensitiveSelector(tx.Selector()) {
			warnings = append(warnings, "🔐 Token approval or transfer detected")
			score += ScoreSensitiveSelector
			recommendations = append(recommendations, "Verify the contract address and amount carefully")
		}
	}

	if value := tx.ValueETH(); value > LargeValueETH {
		warnings = append(warnings, fmt.Sprintf("💰 Large transaction: %.4f ETH", value))
		score += ScoreLargeValue
		recommendations = append(recommendations, "Double-check the recipient address")
	}

	level := classify(score)
	return &Risk{
		RiskLevel:       level,
		RiskScore:       score,
		Warnings:        warnings,
		Recommendations: recommendations,
		Explanation:     explain(level),
		ShouldProceed:   level != LevelCritical,
	}
}

func classify(score int) Level {
	switch {
	case score >= ThresholdCritical:
		return LevelCritical
	case score >= ThresholdHigh:
		return LevelHigh
	case score >= ThresholdMedium:
		return LevelMedium
	default:
		return LevelLow
	}
}

func explain(level Level) string {
	switch level {
	case LevelCritical:
		return "🚨 CRITICAL RISK: This transaction has multiple red flags. Do not proceed unless you are absolutely certain."
	case LevelHigh:
		return "⚠️ HIGH RISK: This transaction shows concerning patterns. Verify all details carefully before proceeding."
	case LevelMedium:
		return "⚡ MODERATE RISK: This transaction requires attention. Review the warnings and proceed with caution."
	default:
		return "✅ LOW RISK: This transaction appears safe, but always verify the recipient address."
	}
}
