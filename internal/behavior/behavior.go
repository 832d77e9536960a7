// Package behavior builds per-wallet transaction profiles and scores new
// transactions against them. A wallet that suddenly sends far more than it
// ever has, to an address it has never touched, looks different from one
// repeating an established pattern, and the learner quantifies that.
package behavior

import (
	"fmt"
	"sync"
	"time"

	"github.com/mbd888/walletguard/internal/threat"
)

const Source = "pattern_learner"

const (
	// DefaultHistorySize is how many recent transactions a profile keeps.
	DefaultHistorySize = 50

	// DefaultMaxWallets caps the number of tracked profiles. The least
	// recently touched profile is evicted when the cap is hit.
	DefaultMaxWallets = 10000

	// MinObservations is the history depth required before anomaly
	// detection activates. Below it every transaction reads as normal.
	MinObservations = 3

	// AnomalyThreshold is the confidence at which a transaction is
	// reported as anomalous.
	AnomalyThreshold = 0.5

	weightValueSpike    = 0.4
	weightNovelRecipient = 0.3
	weightNovelSelector  = 0.3

	valueSpikeFactor = 3.0
)

type txRecord struct {
	to       string
	valueETH float64
	selector string
}

type profile struct {
	mu sync.Mutex

	history []txRecord
	next    int
	full    bool

	recipients map[string]int
	selectors  map[string]int

	maxValueETH float64
	sumValueETH float64

	lastTouch time.Time
}

func (p *profile) size() int {
	if p.full {
		return len(p.history)
	}
	return p.next
}

// record appends tx to the ring, displacing the oldest entry once full.
func (p *profile) record(rec txRecord, now time.Time) {
	if p.full {
		old := p.history[p.next]
		p.history[p.next] = rec
		p.discount(old)
	} else {
		p.history[p.next] = rec
	}
	p.next++
	if p.next == len(p.history) {
		p.next = 0
		p.full = true
	}

	p.recipients[rec.to]++
	if rec.selector != "" {
		p.selectors[rec.selector]++
	}
	p.sumValueETH += rec.valueETH
	if rec.valueETH > p.maxValueETH {
		p.maxValueETH = rec.valueETH
	}
	p.lastTouch = now
}

func (p *profile) discount(old txRecord) {
	if p.recipients[old.to] <= 1 {
		delete(p.recipients, old.to)
	} else {
		p.recipients[old.to]--
	}
	if old.selector != "" {
		if p.selectors[old.selector] <= 1 {
			delete(p.selectors, old.selector)
		} else {
			p.selectors[old.selector]--
		}
	}
	p.sumValueETH -= old.valueETH
	if old.valueETH >= p.maxValueETH {
		p.recomputeMax()
	}
}

func (p *profile) recomputeMax() {
	p.maxValueETH = 0
	for i := 0; i < p.size(); i++ {
		if p.history[i].valueETH > p.maxValueETH {
			p.maxValueETH = p.history[i].valueETH
		}
	}
}

// Anomaly is the outcome of scoring a transaction against a profile.
// Confidence is deterministic: the same profile state and transaction
// always produce the same value.
type Anomaly struct {
	IsAnomaly  bool     `json:"isAnomaly"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
}

// Profile is the externally visible summary of a wallet's learned history.
type Profile struct {
	Address      string    `json:"address"`
	Transactions int       `json:"transactions"`
	Recipients   int       `json:"recipients"`
	MaxValueETH  float64   `json:"maxValueEth"`
	AvgValueETH  float64   `json:"avgValueEth"`
	Selectors    []string  `json:"selectors,omitempty"`
	LastActivity time.Time `json:"lastActivity"`
}

// Learner tracks wallet profiles in memory. Safe for concurrent use; each
// wallet's profile serializes its own updates so two transactions for the
// same address never interleave.
type Learner struct {
	mu       sync.RWMutex
	profiles map[string]*profile

	historySize int
	maxWallets  int
	now         func() time.Time
}

type Option func(*Learner)

// WithHistorySize overrides the per-wallet ring size.
func WithHistorySize(n int) Option {
	return func(l *Learner) {
		if n > 0 {
			l.historySize = n
		}
	}
}

// WithMaxWallets overrides the profile cap.
func WithMaxWallets(n int) Option {
	return func(l *Learner) {
		if n > 0 {
			l.maxWallets = n
		}
	}
}

// WithClock overrides the time source. Tests use it to drive eviction.
func WithClock(now func() time.Time) Option {
	return func(l *Learner) {
		if now != nil {
			l.now = now
		}
	}
}

func New(opts ...Option) *Learner {
	l := &Learner{
		profiles:    make(map[string]*profile),
		historySize: DefaultHistorySize,
		maxWallets:  DefaultMaxWallets,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Learn folds tx into the profile for its sending wallet.
func (l *Learner) Learn(tx *threat.Transaction) {
	addr := threat.NormalizeAddress(tx.From)
	if addr == "" {
		return
	}

	p := l.profileFor(addr)

	rec := txRecord{
		to:       threat.NormalizeAddress(tx.To),
		valueETH: tx.ValueETH(),
		selector: tx.Selector(),
	}

	p.mu.Lock()
	p.record(rec, l.now())
	p.mu.Unlock()
}

// DetectAnomaly scores tx against the sender's profile without updating
// it. A wallet with fewer than MinObservations recorded transactions is
// never anomalous.
func (l *Learner) DetectAnomaly(tx *threat.Transaction) Anomaly {
	addr := threat.NormalizeAddress(tx.From)

	l.mu.RLock()
	p := l.profiles[addr]
	l.mu.RUnlock()
	if p == nil {
		return Anomaly{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.size()
	if n < MinObservations {
		return Anomaly{}
	}

	value := tx.ValueETH()
	avg := p.sumValueETH / float64(n)

	var a Anomaly
	if p.maxValueETH > 0 && value > p.maxValueETH*valueSpikeFactor {
		a.Confidence += weightValueSpike
		a.Reasons = append(a.Reasons, fmt.Sprintf("value %.4f ETH exceeds %.0fx historical maximum %.4f ETH", value, valueSpikeFactor, p.maxValueETH))
	}
	to := threat.NormalizeAddress(tx.To)
	if _, known := p.recipients[to]; !known && value > avg {
		a.Confidence += weightNovelRecipient
		a.Reasons = append(a.Reasons, fmt.Sprintf("first transfer to %s at above-average value", tx.To))
	}
	if sel := tx.Selector(); sel != "" {
		if _, known := p.selectors[sel]; !known {
			a.Confidence += weightNovelSelector
			a.Reasons = append(a.Reasons, fmt.Sprintf("function %s never called by this wallet before", sel))
		}
	}

	if a.Confidence > 1 {
		a.Confidence = 1
	}
	a.IsAnomaly = a.Confidence >= AnomalyThreshold
	return a
}

// Profile reports the learned summary for a wallet, or false if the
// wallet has never been seen.
func (l *Learner) Profile(address string) (Profile, bool) {
	addr := threat.NormalizeAddress(address)

	l.mu.RLock()
	p := l.profiles[addr]
	l.mu.RUnlock()
	if p == nil {
		return Profile{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.size()
	out := Profile{
		Address:      addr,
		Transactions: n,
		Recipients:   len(p.recipients),
		MaxValueETH:  p.maxValueETH,
		LastActivity: p.lastTouch,
	}
	if n > 0 {
		out.AvgValueETH = p.sumValueETH / float64(n)
	}
	for sel := range p.selectors {
		out.Selectors = append(out.Selectors, sel)
	}
	return out, true
}

// Len reports how many wallets currently have profiles.
func (l *Learner) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.profiles)
}

func (l *Learner) profileFor(addr string) *profile {
	l.mu.RLock()
	p := l.profiles[addr]
	l.mu.RUnlock()
	if p != nil {
		return p
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if p = l.profiles[addr]; p != nil {
		return p
	}
	if len(l.profiles) >= l.maxWallets {
		l.evictOldest()
	}
	p = &profile{
		history:    make([]txRecord, l.historySize),
		recipients: make(map[string]int),
		selectors:  make(map[string]int),
		lastTouch:  l.now(),
	}
	l.profiles[addr] = p
	return p
}

// evictOldest drops the least recently touched profile. Caller holds the
// write lock. lastTouch is guarded by each profile's own mutex, so the
// scan locks every profile it inspects; concurrent Learn calls may update
// a profile between the scan and the delete, which only costs an
// occasional slightly-stale eviction choice.
func (l *Learner) evictOldest() {
	var (
		oldest     string
		oldestSeen time.Time
		first      = true
	)
	for addr, p := range l.profiles {
		p.mu.Lock()
		touch := p.lastTouch
		p.mu.Unlock()
		if first || touch.Before(oldestSeen) {
			oldest = addr
			oldestSeen = touch
			first = false
		}
	}
	if oldest != "" {
		delete(l.profiles, oldest)
	}
}
