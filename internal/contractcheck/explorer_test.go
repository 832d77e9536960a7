package contractcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestExplorerVerifierVerified(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("address"); got != "0xabc" {
			t.Errorf("address = %q, want 0xabc", got)
		}
		if got := r.URL.Query().Get("apikey"); got != "key123" {
			t.Errorf("apikey = %q, want key123", got)
		}
		w.Write([]byte(`{"status":"1","result":"[{\"type\":\"function\"}]"}`))
	}))
	defer ts.Close()

	v := NewExplorerVerifier(ts.URL, "key123")
	verified, err := v.IsVerified(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("IsVerified: %v", err)
	}
	if !verified {
		t.Error("expected verified")
	}
}

func TestExplorerVerifierUnverified(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","result":"Contract source code not verified"}`))
	}))
	defer ts.Close()

	v := NewExplorerVerifier(ts.URL, "")
	verified, err := v.IsVerified(context.Background(), "0xdef")
	if err != nil {
		t.Fatalf("IsVerified: %v", err)
	}
	if verified {
		t.Error("expected unverified")
	}
}

func TestExplorerVerifierAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","result":"Max rate limit reached"}`))
	}))
	defer ts.Close()

	v := NewExplorerVerifier(ts.URL, "")
	if _, err := v.IsVerified(context.Background(), "0xabc"); err == nil {
		t.Fatal("expected error for explorer-side failure")
	}
}

func TestExplorerVerifierHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	v := NewExplorerVerifier(ts.URL, "")
	if _, err := v.IsVerified(context.Background(), "0xabc"); err == nil {
		t.Fatal("expected error for HTTP 503")
	}
}

func TestExplorerVerifierCaches(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"status":"1","result":"[]"}`))
	}))
	defer ts.Close()

	v := NewExplorerVerifier(ts.URL, "")
	for i := 0; i < 3; i++ {
		// Mixed case should hit the same cache entry.
		addr := "0xAbC"
		if i > 0 {
			addr = "0xabc"
		}
		if _, err := v.IsVerified(context.Background(), addr); err != nil {
			t.Fatalf("IsVerified #%d: %v", i, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("explorer called %d times, want 1", n)
	}
}
