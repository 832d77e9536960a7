package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mbd888/walletguard/internal/circuitbreaker"
)

const (
	// DefaultTimeout bounds a single feed lookup.
	DefaultTimeout = 5 * time.Second

	breakerKey = "intel"
)

// HTTPFeed queries a remote threat-intelligence API.
type HTTPFeed struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// HTTPOption configures an HTTPFeed.
type HTTPOption func(*HTTPFeed)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(f *HTTPFeed) { f.httpClient = hc }
}

// WithBreaker sets a shared circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) HTTPOption {
	return func(f *HTTPFeed) { f.breaker = b }
}

// NewHTTPFeed creates a feed client for a remote intel service.
func NewHTTPFeed(baseURL, apiKey string, opts ...HTTPOption) *HTTPFeed {
	f := &HTTPFeed{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.breaker == nil {
		f.breaker = circuitbreaker.New(5, 30*time.Second)
	}
	return f
}

var _ Feed = (*HTTPFeed)(nil)

type lookupResponse struct {
	Records []Record `json:"records"`
}

func (f *HTTPFeed) LookupThreats(ctx context.Context, address string, recentTxs []string, approvals []string) ([]Record, error) {
	var records []Record
	err := f.breaker.Do(breakerKey, func() error {
		r, err := f.lookup(ctx, address)
		if err != nil {
			return err
		}
		records = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (f *HTTPFeed) lookup(ctx context.Context, address string) ([]Record, error) {
	u := f.baseURL + "/v1/address/" + url.PathEscape(normalize(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	// An unknown address is a clean result, not a failure.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var out lookupResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}
	return out.Records, nil
}
