package contractcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ExplorerVerifier asks an Etherscan-compatible block explorer whether a
// contract's source code is published. Results are cached for the life of
// the verifier since verification status almost never changes.
type ExplorerVerifier struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu    sync.RWMutex
	cache map[string]bool
}

// ExplorerOption configures an ExplorerVerifier.
type ExplorerOption func(*ExplorerVerifier)

// WithExplorerHTTPClient sets a custom HTTP client (useful for testing).
func WithExplorerHTTPClient(hc *http.Client) ExplorerOption {
	return func(v *ExplorerVerifier) { v.httpClient = hc }
}

// NewExplorerVerifier creates a verifier backed by an explorer API at
// baseURL (e.g. "https://api.etherscan.io").
func NewExplorerVerifier(baseURL, apiKey string, opts ...ExplorerOption) *ExplorerVerifier {
	v := &ExplorerVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		cache: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var _ Verifier = (*ExplorerVerifier)(nil)

// IsVerified reports whether the explorer has verified source for address.
func (v *ExplorerVerifier) IsVerified(ctx context.Context, address string) (bool, error) {
	key := strings.ToLower(address)

	v.mu.RLock()
	verified, ok := v.cache[key]
	v.mu.RUnlock()
	if ok {
		return verified, nil
	}

	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getabi")
	q.Set("address", address)
	if v.apiKey != "" {
		q.Set("apikey", v.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/api?"+q.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("contractcheck: build explorer request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("contractcheck: explorer request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("contractcheck: read explorer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("contractcheck: explorer status %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return false, fmt.Errorf("contractcheck: decode explorer response: %w", err)
	}

	// Etherscan signals unverified source with status "0" and a sentinel
	// result string rather than an HTTP error.
	verified = body.Status == "1"
	if body.Status == "0" && !strings.Contains(body.Result, "not verified") {
		return false, fmt.Errorf("contractcheck: explorer error: %s", body.Result)
	}

	v.mu.Lock()
	v.cache[key] = verified
	v.mu.Unlock()

	return verified, nil
}
