// Package contractcheck inspects the contract call a transaction is about
// to make. It flags calls into sensitive token functions and leaves room
// for source-verification backends (block explorers) to contribute more.
package contractcheck

import (
	"context"
	"fmt"

	"github.com/mbd888/walletguard/internal/threat"
)

const Source = "contract_validation"

// Verifier answers whether a contract's source is published and verified.
// Implementations may call out to a block explorer.
type Verifier interface {
	IsVerified(ctx context.Context, address string) (bool, error)
}

// NoopVerifier treats every contract as verified. Used when no explorer
// is configured.
type NoopVerifier struct{}

func (NoopVerifier) IsVerified(ctx context.Context, address string) (bool, error) {
	return true, nil
}

var _ Verifier = NoopVerifier{}

// Validator checks the shape of a contract interaction.
type Validator struct {
	verifier Verifier
}

type Option func(*Validator)

// WithVerifier plugs in a source-verification backend.
func WithVerifier(v Verifier) Option {
	return func(val *Validator) {
		if v != nil {
			val.verifier = v
		}
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{verifier: NoopVerifier{}}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns detections for the call described by tx. A plain ETH
// transfer with no calldata never produces any.
func (v *Validator) Validate(ctx context.Context, tx *threat.Transaction) ([]threat.Detection, error) {
	if !tx.HasCallData() {
		return nil, nil
	}

	var detections []threat.Detection

	sel := tx.Selector()
	if threat.IsSensitiveSelector(sel) {
		detections = append(detections, threat.Detection{
			Type:        "sensitive_function",
			Severity:    threat.SeverityMedium,
			Description: fmt.Sprintf("Calls sensitive function %s (%s)", threat.SelectorName(sel), sel),
			Confidence:  0.8,
			Source:      Source,
		})
	}

	verified, err := v.verifier.IsVerified(ctx, tx.To)
	if err != nil {
		return nil, fmt.Errorf("contractcheck: verify %s: %w", tx.To, err)
	}
	if !verified {
		detections = append(detections, threat.Detection{
			Type:        "unverified_contract",
			Severity:    threat.SeverityMedium,
			Description: fmt.Sprintf("Contract %s has no verified source code", tx.To),
			Confidence:  0.7,
			Source:      Source,
		})
	}

	return detections, nil
}
