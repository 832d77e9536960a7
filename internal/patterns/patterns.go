// Package patterns scans a transaction and its simulated execution trace
// for signature attack shapes: approval-stealing phishing, reentrancy-like
// call fan-out, and front-running exposure.
//
// This is heuristic triage, not formal verification. False positives are
// acceptable; each rule fires independently and all may fire together.
package patterns

import (
	"strings"

	"github.com/mbd888/walletguard/internal/simulator"
	"github.com/mbd888/walletguard/internal/threat"
)

const source = "pattern_detection"

// Rule thresholds.
const (
	// MaxCallDepth is the nested-call count above which the trace looks
	// reentrancy-shaped.
	MaxCallDepth = 10

	// FrontrunValueETH is the unit-normalized value above which a
	// transaction is worth front-running.
	FrontrunValueETH = 0.1
)

// Detect scans tx and its simulation (which may be nil) and returns every
// attack shape found. Pure and stateless.
func Detect(tx *threat.Transaction, sim *simulator.Result) []threat.Detection {
	var detections []threat.Detection

	// transferFrom anywhere in the calldata, not just the leading
	// selector: phishing contracts bury the drain call behind a wrapper.
	if containsTransferFrom(tx.Data) {
		detections = append(detections, threat.Detection{
			Type:        "potential_phishing",
			Severity:    threat.SeverityHigh,
			Description: "Transaction may be attempting to transfer your tokens",
			Confidence:  0.75,
			Source:      source,
		})
	}

	if sim != nil && len(sim.Calls) > MaxCallDepth {
		detections = append(detections, threat.Detection{
			Type:        "potential_reentrancy",
			Severity:    threat.SeverityMedium,
			Description: "Multiple nested calls detected - possible reentrancy",
			Confidence:  0.65,
			Source:      source,
		})
	}

	if tx.ValueETH() > FrontrunValueETH {
		detections = append(detections, threat.Detection{
			Type:        "frontrun_risk",
			Severity:    threat.SeverityLow,
			Description: "High-value transaction may be vulnerable to front-running",
			Confidence:  0.5,
			Source:      source,
		})
	}

	return detections
}

func containsTransferFrom(data string) bool {
	d := strings.ToLower(strings.TrimSpace(data))
	if d == "" || d == "0x" {
		return false
	}
	return strings.Contains(d, strings.TrimPrefix(threat.SelectorTransferFrom, "0x"))
}
