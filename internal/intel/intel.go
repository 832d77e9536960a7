// Package intel looks up wallet addresses against threat intelligence:
// a built-in denylist, operator-maintained rules, and remote feeds.
//
// A lookup that finds nothing returns an empty slice, never an error —
// "not found" is the common, clean case. An error means the feed itself
// could not be consulted, which callers treat as fail-closed.
package intel

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("intel: feed unavailable")

// Feed severities use the feed-native uppercase convention; the pipeline
// maps them onto detection severities when scoring.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// Record is one threat-intelligence hit for an address.
type Record struct {
	Severity    string `json:"severity" yaml:"severity"`
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"` // e.g. "phishing", "drainer", "burn"
}

// Feed answers threat lookups for an address, optionally informed by the
// wallet's recent transactions and token approvals.
type Feed interface {
	LookupThreats(ctx context.Context, address string, recentTxs []string, approvals []string) ([]Record, error)
}

// Chain consults every feed in an ordered list and merges their records,
// so a local denylist and a remote provider both get a say. A feed error
// degrades the chain to the feeds that answered; only all feeds failing
// is a feed failure.
type Chain struct {
	feeds []Feed
}

// NewChain builds a merging chain over the given feeds, queried in order.
func NewChain(feeds ...Feed) *Chain {
	return &Chain{feeds: feeds}
}

var _ Feed = (*Chain)(nil)

func (c *Chain) LookupThreats(ctx context.Context, address string, recentTxs []string, approvals []string) ([]Record, error) {
	if len(c.feeds) == 0 {
		return nil, ErrUnavailable
	}
	var (
		merged    []Record
		lastErr   error
		succeeded bool
	)
	for _, f := range c.feeds {
		records, err := f.LookupThreats(ctx, address, recentTxs, approvals)
		if err != nil {
			lastErr = err
			continue
		}
		succeeded = true
		merged = append(merged, records...)
	}
	if !succeeded {
		return nil, lastErr
	}
	return merged, nil
}
