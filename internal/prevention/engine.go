package prevention

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mbd888/walletguard/internal/analyzer"
	"github.com/mbd888/walletguard/internal/behavior"
	"github.com/mbd888/walletguard/internal/contractcheck"
	"github.com/mbd888/walletguard/internal/idgen"
	"github.com/mbd888/walletguard/internal/intel"
	"github.com/mbd888/walletguard/internal/logging"
	"github.com/mbd888/walletguard/internal/metrics"
	"github.com/mbd888/walletguard/internal/patterns"
	"github.com/mbd888/walletguard/internal/simulator"
	"github.com/mbd888/walletguard/internal/threat"
	"github.com/mbd888/walletguard/internal/traces"
)

// Detection sources the engine tags findings with.
const (
	sourceIntel    = "threat_intelligence"
	sourceStatic   = "transaction_analyzer"
	sourceBehavior = "pattern_learner"
	sourceSystem   = "system"
)

// Engine runs the threat prevention pipeline.
type Engine struct {
	sim       simulator.Simulator
	feed      intel.Feed
	validator *contractcheck.Validator
	learner   *behavior.Learner
	store     Store

	largeTransfer float64
}

// NewEngine creates a pipeline over the given simulator and intel feed.
// The contract validator and behavioral learner default to fresh instances;
// override them when sharing state with other components.
func NewEngine(sim simulator.Simulator, feed intel.Feed) *Engine {
	return &Engine{
		sim:           sim,
		feed:          feed,
		validator:     contractcheck.New(),
		learner:       behavior.New(),
		largeTransfer: DefaultLargeTransferThreshold,
	}
}

// WithStore attaches an audit store. Records are written asynchronously.
func (e *Engine) WithStore(s Store) *Engine {
	e.store = s
	return e
}

// WithValidator overrides the contract validator.
func (e *Engine) WithValidator(v *contractcheck.Validator) *Engine {
	e.validator = v
	return e
}

// WithLearner overrides the behavioral learner.
func (e *Engine) WithLearner(l *behavior.Learner) *Engine {
	e.learner = l
	return e
}

// WithLargeTransferThreshold overrides the simulated balance change above
// which a transfer is flagged.
func (e *Engine) WithLargeTransferThreshold(t float64) *Engine {
	if t > 0 {
		e.largeTransfer = t
	}
	return e
}

// Learner exposes the engine's behavioral learner for profile queries and
// explicit history ingestion.
func (e *Engine) Learner() *behavior.Learner {
	return e.learner
}

// layerTimer opens a span and a latency observation for one pipeline layer.
// The returned func closes both.
func layerTimer(ctx context.Context, name string) func() {
	_, span := traces.StartSpan(ctx, "prevention.layer."+name)
	start := time.Now()
	return func() {
		metrics.ObserveLayer(name, time.Since(start))
		span.End()
	}
}

type simOutcome struct {
	result *simulator.Result
	err    error
}

type intelOutcome struct {
	records []intel.Record
	err     error
}

// Evaluate runs the full pipeline over tx. It never returns an error: any
// failure inside the pipeline produces a blocked result instead, so a
// broken collaborator can never wave a transaction through.
func (e *Engine) Evaluate(ctx context.Context, tx *threat.Transaction) (result *Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logging.L(ctx).Error("evaluation panicked", "from", tx.From, "panic", r)
			metrics.CollaboratorError("pipeline")
			result = errorBlocked("internal failure during analysis")
		}
		metrics.ObserveEvaluation(string(result.RiskLevel), result.Allowed, time.Since(start))
	}()

	// Callers validate address shape at the HTTP boundary, but a caller
	// that slips through still gets a structured verdict, not a panic.
	if !validAddress(tx.From) || !validAddress(tx.To) {
		return errorBlocked("malformed transaction addresses")
	}

	// Simulation and intel lookup are independent remote calls; run them
	// concurrently. Goroutine panics are converted to errors so the
	// fail-closed path still applies.
	simCh := make(chan simOutcome, 1)
	go func() {
		done := layerTimer(ctx, "simulate")
		defer done()
		defer func() {
			if r := recover(); r != nil {
				simCh <- simOutcome{err: fmt.Errorf("simulator panicked: %v", r)}
			}
		}()
		res, err := e.sim.Simulate(ctx, simRequest(tx))
		simCh <- simOutcome{result: res, err: err}
	}()

	intelCh := make(chan intelOutcome, 1)
	go func() {
		done := layerTimer(ctx, "intel_check")
		defer done()
		defer func() {
			if r := recover(); r != nil {
				intelCh <- intelOutcome{err: fmt.Errorf("intel feed panicked: %v", r)}
			}
		}()
		records, err := e.feed.LookupThreats(ctx, tx.To, nil, nil)
		intelCh <- intelOutcome{records: records, err: err}
	}()

	sim := <-simCh
	lookup := <-intelCh

	if sim.err != nil {
		logging.L(ctx).Error("simulation unavailable", "from", tx.From, "error", sim.err)
		metrics.CollaboratorError("simulator")
		return errorBlocked("transaction simulation unavailable")
	}
	if lookup.err != nil {
		logging.L(ctx).Error("intel lookup failed", "to", tx.To, "error", lookup.err)
		metrics.CollaboratorError("intel")
		return errorBlocked("threat intelligence unavailable")
	}

	// Aggregation runs in a fixed order so the same inputs always produce
	// the same score and threat list.
	var (
		score     int
		threats   []threat.Detection
		collected []string
	)
	add := func(points int, d threat.Detection) {
		score += points
		threats = append(threats, d)
		metrics.ThreatDetected(d.Source, string(d.Severity))
	}

	if !sim.result.Success {
		add(ScoreSimulationFailure, threat.Detection{
			Type:        "simulation_failure",
			Severity:    threat.SeverityHigh,
			Description: simFailureDescription(sim.result),
			Confidence:  0.95,
			Source:      sourceSimulator,
		})
		collected = append(collected, "❌ Do not proceed - transaction will fail")
	}
	for _, d := range flagStateChanges(sim.result, e.largeTransfer) {
		add(ScoreStateChange, d)
	}

	for _, rec := range lookup.records {
		points := ScoreIntelOther
		severity := threat.SeverityMedium
		switch rec.Severity {
		case intel.SeverityCritical:
			points = ScoreIntelCritical
			severity = threat.SeverityCritical
		case intel.SeverityHigh:
			points = ScoreIntelHigh
			severity = threat.SeverityHigh
		}
		add(points, threat.Detection{
			Type:        "known_threat",
			Severity:    severity,
			Description: rec.Description,
			Confidence:  0.9,
			Source:      sourceIntel,
		})
	}
	if len(lookup.records) > 0 {
		collected = append(collected, "⚠️ Address flagged in threat intelligence database")
	}

	done := layerTimer(ctx, "static_analysis")
	static := analyzer.Analyze(tx)
	done()
	collected = append(collected, static.Recommendations...)
	if static.RiskScore > StaticRiskBar {
		add(ScoreStaticHighRisk, threat.Detection{
			Type:        "high_risk_transaction",
			Severity:    threat.SeverityHigh,
			Description: fmt.Sprintf("Static analysis scored %d: %s", static.RiskScore, strings.Join(static.Warnings, "; ")),
			Confidence:  0.85,
			Source:      sourceStatic,
		})
	}

	done = layerTimer(ctx, "anomaly_check")
	anomaly := e.learner.DetectAnomaly(tx)
	done()
	if anomaly.IsAnomaly {
		points := ScoreAnomalyWeak
		severity := threat.SeverityMedium
		if anomaly.Confidence > AnomalyConfidenceBar {
			points = ScoreAnomalyConfident
			severity = threat.SeverityHigh
		}
		add(points, threat.Detection{
			Type:        "behavioral_anomaly",
			Severity:    severity,
			Description: "Unusual for this wallet: " + strings.Join(anomaly.Reasons, "; "),
			Confidence:  anomaly.Confidence,
			Source:      sourceBehavior,
		})
		collected = append(collected, "⚠️ Transaction pattern differs from your normal behavior")
	}

	done = layerTimer(ctx, "attack_pattern_scan")
	for _, d := range patterns.Detect(tx, sim.result) {
		add(ScoreAttackPattern, d)
	}
	done()

	done = layerTimer(ctx, "contract_validation")
	contractFindings, err := e.validator.Validate(ctx, tx)
	done()
	if err != nil {
		logging.L(ctx).Error("contract validation failed", "to", tx.To, "error", err)
		metrics.CollaboratorError("contractcheck")
		return errorBlocked("contract validation unavailable")
	}
	for _, d := range contractFindings {
		add(ScoreContractValidation, d)
	}

	level := levelFor(score)
	blocked := shouldBlock(level, threats)

	result = &Result{
		Allowed:    !blocked,
		RiskLevel:  level,
		RiskScore:  score,
		Threats:    threats,
		Simulation: sim.result,
	}
	if blocked {
		result.BlockedReasons = blockedReasons(threats)
	}
	result.Recommendations = recommendationsFor(result.Allowed, level, result.BlockedReasons, collected)

	if result.Allowed {
		e.learner.Learn(tx)
	}
	e.recordAsync(tx, result)

	logging.L(ctx).Info("transaction evaluated",
		"from", tx.From,
		"to", tx.To,
		"allowed", result.Allowed,
		"risk_level", result.RiskLevel,
		"risk_score", result.RiskScore,
		"threats", len(threats),
	)
	return result
}

// recordAsync persists a best-effort audit record.
func (e *Engine) recordAsync(tx *threat.Transaction, result *Result) {
	if e.store == nil {
		return
	}
	eval := &Evaluation{
		ID:          idgen.WithPrefix("eval_"),
		Wallet:      threat.NormalizeAddress(tx.From),
		To:          threat.NormalizeAddress(tx.To),
		Allowed:     result.Allowed,
		RiskLevel:   result.RiskLevel,
		RiskScore:   result.RiskScore,
		Threats:     len(result.Threats),
		EvaluatedAt: time.Now(),
	}
	go func() {
		_ = e.store.Record(context.Background(), eval)
	}()
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

func validAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

// simRequest applies the simulator's wire defaults for absent fields.
func simRequest(tx *threat.Transaction) simulator.Request {
	req := simulator.Request{
		From:    tx.From,
		To:      tx.To,
		Value:   tx.Value,
		Data:    tx.Data,
		ChainID: tx.ChainID,
	}
	if req.Value == "" {
		req.Value = "0"
	}
	if req.Data == "" {
		req.Data = "0x"
	}
	if req.ChainID == 0 {
		req.ChainID = 1
	}
	return req
}

func simFailureDescription(res *simulator.Result) string {
	if res.Error != "" {
		return "Transaction simulation failed: " + res.Error
	}
	return "Transaction simulation failed"
}

func errorBlocked(msg string) *Result {
	return &Result{
		Allowed:   false,
		RiskLevel: threat.RiskCritical,
		RiskScore: ErrorBlockedScore,
		Threats: []threat.Detection{{
			Type:        "analysis_error",
			Severity:    threat.SeverityCritical,
			Description: msg,
			Confidence:  1,
			Source:      sourceSystem,
		}},
		Recommendations: []string{
			"🛑 TRANSACTION BLOCKED",
			"Security analysis failed - do not proceed",
			"Try again or contact support",
		},
		BlockedReasons: []string{msg},
	}
}
