package intel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestStaticFeedBuiltinDenylist(t *testing.T) {
	f := NewStaticFeed()

	records, err := f.LookupThreats(context.Background(), "0x0000000000000000000000000000000000000000", nil, nil)
	if err != nil {
		t.Fatalf("LookupThreats: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record for zero address, got %d", len(records))
	}
	if records[0].Severity != SeverityHigh {
		t.Errorf("expected HIGH severity, got %s", records[0].Severity)
	}
}

func TestStaticFeedCaseInsensitive(t *testing.T) {
	f := NewStaticFeed()
	f.AddRules([]RuleEntry{{
		Address:     "0xABCDEF0123456789abcdef0123456789ABCDEF01",
		Severity:    "critical",
		Description: "known drainer",
		Category:    "drainer",
	}})

	records, err := f.LookupThreats(context.Background(), "0xabcdef0123456789ABCDEF0123456789abcdef01", nil, nil)
	if err != nil {
		t.Fatalf("LookupThreats: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Severity != SeverityCritical {
		t.Errorf("severity should be normalized to CRITICAL, got %s", records[0].Severity)
	}
}

func TestStaticFeedCleanAddress(t *testing.T) {
	f := NewStaticFeed()

	records, err := f.LookupThreats(context.Background(), "0x1111111111111111111111111111111111111111", nil, nil)
	if err != nil {
		t.Fatalf("clean lookup must not error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestStaticFeedUnknownSeverityDefaultsMedium(t *testing.T) {
	f := NewStaticFeed()
	f.AddRules([]RuleEntry{{Address: "0x2222222222222222222222222222222222222222", Severity: "whatever", Description: "x"}})

	records, _ := f.LookupThreats(context.Background(), "0x2222222222222222222222222222222222222222", nil, nil)
	if len(records) != 1 || records[0].Severity != SeverityMedium {
		t.Errorf("unknown severity should default to MEDIUM, got %+v", records)
	}
}

func TestStaticFeedFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	rules := `entries:
  - address: "0x3333333333333333333333333333333333333333"
    severity: HIGH
    description: "phishing contract"
    category: phishing
  - address: "0x4444444444444444444444444444444444444444"
    severity: LOW
    description: "dust attacker"
`
	if err := os.WriteFile(path, []byte(rules), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := NewStaticFeedFromFile(path)
	if err != nil {
		t.Fatalf("NewStaticFeedFromFile: %v", err)
	}

	records, _ := f.LookupThreats(context.Background(), "0x3333333333333333333333333333333333333333", nil, nil)
	if len(records) != 1 || records[0].Category != "phishing" {
		t.Errorf("unexpected records: %+v", records)
	}
	// Built-ins still present alongside file rules.
	records, _ = f.LookupThreats(context.Background(), "0x000000000000000000000000000000000000dEaD", nil, nil)
	if len(records) != 1 {
		t.Errorf("builtin dEaD entry missing")
	}
}

func TestHTTPFeedLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing auth header")
		}
		switch r.URL.Path {
		case "/v1/address/0x5555555555555555555555555555555555555555":
			_, _ = w.Write([]byte(`{"records": [{"severity": "CRITICAL", "description": "wallet drainer", "category": "drainer"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewHTTPFeed(srv.URL, "tok")

	records, err := f.LookupThreats(context.Background(), "0x5555555555555555555555555555555555555555", nil, nil)
	if err != nil {
		t.Fatalf("LookupThreats: %v", err)
	}
	if len(records) != 1 || records[0].Severity != SeverityCritical {
		t.Errorf("unexpected records: %+v", records)
	}

	// 404 means clean, not broken.
	records, err = f.LookupThreats(context.Background(), "0x6666666666666666666666666666666666666666", nil, nil)
	if err != nil {
		t.Fatalf("404 should be a clean result: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records on 404")
	}
}

func TestHTTPFeedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFeed(srv.URL, "")
	_, err := f.LookupThreats(context.Background(), "0x7777777777777777777777777777777777777777", nil, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

type stubFeed struct {
	records []Record
	err     error
	calls   int
}

func (s *stubFeed) LookupThreats(ctx context.Context, address string, recentTxs []string, approvals []string) ([]Record, error) {
	s.calls++
	return s.records, s.err
}

func TestChainFallsThrough(t *testing.T) {
	broken := &stubFeed{err: ErrUnavailable}
	working := &stubFeed{records: []Record{{Severity: SeverityHigh, Description: "hit"}}}

	chain := NewChain(broken, working)
	records, err := chain.LookupThreats(context.Background(), "0xaa", nil, nil)
	if err != nil {
		t.Fatalf("chain should have fallen through to the working feed: %v", err)
	}
	if len(records) != 1 || broken.calls != 1 || working.calls != 1 {
		t.Errorf("unexpected fallback behavior: records=%v broken=%d working=%d", records, broken.calls, working.calls)
	}
}

func TestChainConsultsEveryFeed(t *testing.T) {
	// A local denylist answering "clean" must not mask a remote feed
	// that knows the address.
	local := NewStaticFeed()
	remote := &stubFeed{records: []Record{{Severity: SeverityCritical, Description: "known drainer"}}}

	chain := NewChain(local, remote)
	records, err := chain.LookupThreats(context.Background(), "0x4444444444444444444444444444444444444444", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if remote.calls != 1 {
		t.Fatal("remote feed was never consulted")
	}
	if len(records) != 1 || records[0].Description != "known drainer" {
		t.Errorf("remote records dropped, got %v", records)
	}
}

func TestChainMergesRecords(t *testing.T) {
	first := &stubFeed{records: []Record{{Severity: SeverityHigh, Description: "local rule"}}}
	second := &stubFeed{records: []Record{{Severity: SeverityCritical, Description: "remote hit"}}}

	chain := NewChain(first, second)
	records, err := chain.LookupThreats(context.Background(), "0xbb", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %v, want both feeds' hits", records)
	}
	if records[0].Description != "local rule" || records[1].Description != "remote hit" {
		t.Errorf("records out of feed order: %v", records)
	}
}

func TestChainAllFail(t *testing.T) {
	chain := NewChain(&stubFeed{err: ErrUnavailable}, &stubFeed{err: ErrUnavailable})
	_, err := chain.LookupThreats(context.Background(), "0xcc", nil, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable when every feed fails, got %v", err)
	}
}
