package contractcheck

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mbd888/walletguard/internal/threat"
)

type stubVerifier struct {
	verified bool
	err      error
}

func (s stubVerifier) IsVerified(ctx context.Context, address string) (bool, error) {
	return s.verified, s.err
}

func TestPlainTransferSkipsChecks(t *testing.T) {
	v := New(WithVerifier(stubVerifier{err: errors.New("explorer down")}))

	got, err := v.Validate(context.Background(), &threat.Transaction{To: "0xabc", Value: "1"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no detections for plain transfer, got %v", got)
	}
}

func TestSensitiveSelectors(t *testing.T) {
	v := New()

	for _, sel := range []string{threat.SelectorTransfer, threat.SelectorApprove, threat.SelectorTransferFrom} {
		tx := &threat.Transaction{To: "0xabc", Data: sel + strings.Repeat("0", 64)}
		got, err := v.Validate(context.Background(), tx)
		if err != nil {
			t.Fatalf("Validate(%s): %v", sel, err)
		}
		d := got[0]
		if d.Type != "sensitive_function" || d.Severity != threat.SeverityMedium || d.Confidence != 0.8 {
			t.Errorf("selector %s: unexpected detection %+v", sel, d)
		}
		if !strings.Contains(d.Description, sel) {
			t.Errorf("description should name the selector, got %q", d.Description)
		}
	}
}

func TestUnknownSelectorIsClean(t *testing.T) {
	v := New()
	tx := &threat.Transaction{To: "0xabc", Data: "0xdeadbeef"}

	got, err := v.Validate(context.Background(), tx)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no detections, got %v", got)
	}
}

func TestUnverifiedContract(t *testing.T) {
	v := New(WithVerifier(stubVerifier{verified: false}))
	tx := &threat.Transaction{To: "0xabc", Data: "0xdeadbeef"}

	got, err := v.Validate(context.Background(), tx)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(got) != 1 || got[0].Type != "unverified_contract" {
		t.Errorf("expected unverified_contract, got %v", got)
	}
}

func TestVerifierFailure(t *testing.T) {
	v := New(WithVerifier(stubVerifier{err: errors.New("rate limited")}))
	tx := &threat.Transaction{To: "0xabc", Data: "0xdeadbeef"}

	if _, err := v.Validate(context.Background(), tx); err == nil {
		t.Fatal("expected error when verifier fails")
	}
}
