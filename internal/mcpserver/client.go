package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds the configuration for connecting to the WalletGuard API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Optional API key
}

// GuardClient is a pure HTTP client for the WalletGuard API.
type GuardClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewGuardClient creates a new client for the WalletGuard API.
func NewGuardClient(cfg Config) *GuardClient {
	return &GuardClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *GuardClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// transactionBody mirrors the evaluate/analyze request body.
type transactionBody struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Value   string `json:"value,omitempty"`
	Data    string `json:"data,omitempty"`
	ChainID int64  `json:"chainId,omitempty"`
}

// EvaluateTransaction runs the full prevention pipeline over a transaction.
func (c *GuardClient) EvaluateTransaction(ctx context.Context, from, to, value, data string, chainID int64) (json.RawMessage, error) {
	body := transactionBody{From: from, To: to, Value: value, Data: data, ChainID: chainID}
	return c.doRequest(ctx, http.MethodPost, "/v1/evaluate", nil, body)
}

// AnalyzeTransaction runs only the static analyzer over a transaction.
func (c *GuardClient) AnalyzeTransaction(ctx context.Context, from, to, value, data string) (json.RawMessage, error) {
	body := transactionBody{From: from, To: to, Value: value, Data: data}
	return c.doRequest(ctx, http.MethodPost, "/v1/analyze", nil, body)
}

// CheckAddress looks up an address in the threat intelligence feeds.
func (c *GuardClient) CheckAddress(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/intel/"+address, nil, nil)
}

// WalletProfile returns the learned behavioral profile for a wallet.
func (c *GuardClient) WalletProfile(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/wallets/"+address+"/profile", nil, nil)
}
