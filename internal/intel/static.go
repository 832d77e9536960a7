package intel

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// builtin are addresses every deployment flags regardless of operator rules.
var builtin = map[string][]Record{
	// Zero address: funds sent here are unrecoverable.
	"0x0000000000000000000000000000000000000000": {{
		Severity:    SeverityHigh,
		Description: "Recipient is the zero (burn) address - funds sent here are unrecoverable",
		Category:    "burn",
	}},
	// 0x...dEaD, the conventional burn sink.
	"0x000000000000000000000000000000000000dead": {{
		Severity:    SeverityHigh,
		Description: "Recipient is the dEaD burn address - funds sent here are unrecoverable",
		Category:    "burn",
	}},
}

// RulesFile is the on-disk shape of an operator-maintained denylist.
type RulesFile struct {
	Entries []RuleEntry `yaml:"entries"`
}

// RuleEntry flags one address with one record.
type RuleEntry struct {
	Address     string `yaml:"address"`
	Severity    string `yaml:"severity"`
	Description string `yaml:"description"`
	Category    string `yaml:"category,omitempty"`
}

// StaticFeed is an in-process denylist: the built-in entries plus any
// loaded rules. Lookups never fail.
type StaticFeed struct {
	records map[string][]Record
}

// NewStaticFeed creates a feed with only the built-in denylist.
func NewStaticFeed() *StaticFeed {
	f := &StaticFeed{records: make(map[string][]Record)}
	for addr, recs := range builtin {
		f.records[addr] = append([]Record(nil), recs...)
	}
	return f
}

// NewStaticFeedFromFile creates a feed with the built-in denylist plus
// rules loaded from a YAML file.
func NewStaticFeedFromFile(path string) (*StaticFeed, error) {
	f := NewStaticFeed()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("intel: read rules file: %w", err)
	}
	var rules RulesFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("intel: parse rules file: %w", err)
	}
	f.AddRules(rules.Entries)
	return f, nil
}

// AddRules merges rule entries into the feed. Severity defaults to MEDIUM
// when unset or unknown.
func (f *StaticFeed) AddRules(entries []RuleEntry) {
	for _, e := range entries {
		addr := normalize(e.Address)
		if addr == "" {
			continue
		}
		sev := strings.ToUpper(strings.TrimSpace(e.Severity))
		switch sev {
		case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		default:
			sev = SeverityMedium
		}
		f.records[addr] = append(f.records[addr], Record{
			Severity:    sev,
			Description: e.Description,
			Category:    e.Category,
		})
	}
}

var _ Feed = (*StaticFeed)(nil)

// LookupThreats returns the records for address, or nil when clean.
func (f *StaticFeed) LookupThreats(ctx context.Context, address string, recentTxs []string, approvals []string) ([]Record, error) {
	recs := f.records[normalize(address)]
	if len(recs) == 0 {
		return nil, nil
	}
	return append([]Record(nil), recs...), nil
}

// Size returns the number of flagged addresses.
func (f *StaticFeed) Size() int {
	return len(f.records)
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
