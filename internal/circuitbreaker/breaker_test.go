package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func TestClosedByDefault(t *testing.T) {
	b := New(3, time.Minute)

	if !b.Allow("simulator") {
		t.Error("unknown key should be allowed")
	}
	if b.State("simulator") != StateClosed {
		t.Errorf("expected closed, got %s", b.State("simulator"))
	}
}

func TestTripsOpenAfterThreshold(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure("simulator")
	b.RecordFailure("simulator")
	if b.State("simulator") != StateClosed {
		t.Fatalf("should still be closed after 2 failures")
	}

	b.RecordFailure("simulator")
	if b.State("simulator") != StateOpen {
		t.Fatalf("should be open after 3 failures")
	}
	if b.Allow("simulator") {
		t.Error("open circuit should reject requests")
	}
}

func TestSuccessResetsFailures(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure("intel")
	b.RecordFailure("intel")
	b.RecordSuccess("intel")
	b.RecordFailure("intel")
	b.RecordFailure("intel")

	if b.State("intel") != StateClosed {
		t.Error("success should have reset the failure count")
	}
}

func TestHalfOpenProbe(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure("simulator")
	if b.Allow("simulator") {
		t.Fatal("should be open")
	}

	time.Sleep(15 * time.Millisecond)

	// First request after openFor is the probe.
	if !b.Allow("simulator") {
		t.Fatal("expected half-open probe to be allowed")
	}
	if b.State("simulator") != StateHalfOpen {
		t.Fatalf("expected half_open, got %s", b.State("simulator"))
	}
	// Second request while probing is rejected.
	if b.Allow("simulator") {
		t.Error("second request during probe should be rejected")
	}

	// Probe success closes the circuit.
	b.RecordSuccess("simulator")
	if b.State("simulator") != StateClosed {
		t.Errorf("expected closed after probe success, got %s", b.State("simulator"))
	}
}

func TestProbeFailureReopens(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure("intel")
	time.Sleep(15 * time.Millisecond)
	if !b.Allow("intel") {
		t.Fatal("probe should be allowed")
	}

	b.RecordFailure("intel")
	if b.State("intel") != StateOpen {
		t.Errorf("expected open after probe failure, got %s", b.State("intel"))
	}
}

func TestDo(t *testing.T) {
	b := New(1, time.Minute)
	boom := errors.New("boom")

	if err := b.Do("sim", func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	// Circuit tripped: fn must not run again.
	ran := false
	err := b.Do("sim", func() error { ran = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if ran {
		t.Error("fn should not run while circuit is open")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	b := New(1, time.Minute)

	b.RecordFailure("simulator")
	if !b.Allow("intel") {
		t.Error("failure on one key must not trip another")
	}
}
