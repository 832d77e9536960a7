// Package threat defines the shared data model for the threat prevention
// pipeline: the transaction under evaluation, individual threat detections
// emitted by the scoring layers, and the severity/risk-level enums.
package threat

// Severity classifies how dangerous a single detection is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RiskLevel is the overall classification of an evaluated transaction.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Detection is a single threat signal from one analysis layer.
// Detections are accumulated across layers and never deduplicated:
// two layers flagging the same thing is two independent judgments,
// and both matter for the audit trail.
type Detection struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Confidence  float64  `json:"confidence"` // [0, 1]
	Source      string   `json:"source"`     // which layer emitted it
}
