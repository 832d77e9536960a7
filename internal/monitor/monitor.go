// Package monitor watches the chain for activity involving protected
// wallets: token transfers touching them and approvals granted by them.
//
// Approvals for an unlimited amount, and counterparties present in threat
// intelligence, raise alerts even though no evaluation was requested —
// the wallet may be interacting through another frontend entirely.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/walletguard/internal/intel"
	"github.com/mbd888/walletguard/internal/retry"
	"github.com/mbd888/walletguard/internal/threat"
)

// ERC20 event signatures
var (
	transferEventSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	approvalEventSig = common.HexToHash("0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925")
)

// maxUint256 is the canonical unlimited approval amount.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Alert is one noteworthy on-chain observation about a watched wallet.
type Alert struct {
	Wallet       string          `json:"wallet"`
	Counterparty string          `json:"counterparty"`
	Token        string          `json:"token"`
	TxHash       string          `json:"txHash"`
	Type         string          `json:"type"`
	Severity     threat.Severity `json:"severity"`
	Description  string          `json:"description"`
}

func (a Alert) WalletAddrs() []string { return []string{a.Wallet} }

// Sink receives alerts as the monitor raises them.
type Sink interface {
	Alert(ctx context.Context, alert Alert)
}

// Config for the wallet monitor
type Config struct {
	RPCURL       string
	PollInterval time.Duration
	StartBlock   uint64 // 0 = latest
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PollInterval: 15 * time.Second,
		StartBlock:   0,
	}
}

// Monitor polls for logs involving watched wallets.
type Monitor struct {
	client *ethclient.Client
	config Config
	feed   intel.Feed
	sink   Sink
	logger *slog.Logger

	watched map[common.Address]bool
	wmu     sync.RWMutex

	// Processed log entries keyed to the block they were seen in, so
	// old entries can be pruned once the poll window moves past them.
	processed map[string]uint64
	mu        sync.Mutex

	// Last processed block
	lastBlock uint64

	// Shutdown
	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a wallet monitor.
func New(cfg Config, feed intel.Feed, sink Sink, logger *slog.Logger) (*Monitor, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	return &Monitor{
		client:    client,
		config:    cfg,
		feed:      feed,
		sink:      sink,
		logger:    logger,
		watched:   make(map[common.Address]bool),
		processed: make(map[string]uint64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Watch adds a wallet to the watch set.
func (m *Monitor) Watch(address string) {
	m.wmu.Lock()
	m.watched[common.HexToAddress(address)] = true
	m.wmu.Unlock()
	m.logger.Info("wallet watched", "wallet", strings.ToLower(address))
}

// Unwatch removes a wallet from the watch set.
func (m *Monitor) Unwatch(address string) {
	m.wmu.Lock()
	delete(m.watched, common.HexToAddress(address))
	m.wmu.Unlock()
}

// Watched lists the currently watched wallets.
func (m *Monitor) Watched() []string {
	m.wmu.RLock()
	defer m.wmu.RUnlock()
	out := make([]string, 0, len(m.watched))
	for addr := range m.watched {
		out = append(out, strings.ToLower(addr.Hex()))
	}
	return out
}

// Start begins polling. The initial block fetch is retried; RPC nodes are
// routinely briefly unavailable at startup.
func (m *Monitor) Start(ctx context.Context) error {
	if m.config.StartBlock == 0 {
		err := retry.Do(ctx, 5, 500*time.Millisecond, func() error {
			block, err := m.client.BlockNumber(ctx)
			if err != nil {
				return err
			}
			m.lastBlock = block
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to get block number: %w", err)
		}
	} else {
		m.lastBlock = m.config.StartBlock
	}

	m.logger.Info("wallet monitor started", "startBlock", m.lastBlock)

	m.started.Store(true)
	go m.pollLoop(ctx)
	return nil
}

// Stop stops the monitor. Safe to call when Start failed or never ran.
func (m *Monitor) Stop() {
	close(m.stop)
	if m.started.Load() {
		<-m.done
	}
}

func (m *Monitor) pollLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			if err := m.checkActivity(ctx); err != nil {
				m.logger.Error("activity check failed", "error", err)
			}
		}
	}
}

func (m *Monitor) checkActivity(ctx context.Context) error {
	m.wmu.RLock()
	topics := make([]common.Hash, 0, len(m.watched))
	for addr := range m.watched {
		topics = append(topics, common.BytesToHash(addr.Bytes()))
	}
	m.wmu.RUnlock()
	if len(topics) == 0 {
		return nil
	}

	currentBlock, err := m.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}

	// Nothing new
	if currentBlock <= m.lastBlock {
		return nil
	}

	from := big.NewInt(int64(m.lastBlock + 1))
	to := big.NewInt(int64(currentBlock))

	// A wallet appears either as the first indexed topic (sender/owner)
	// or the second (recipient/spender); one filter cannot express that
	// disjunction, so run both.
	queries := []ethereum.FilterQuery{
		{
			FromBlock: from,
			ToBlock:   to,
			Topics:    [][]common.Hash{{transferEventSig, approvalEventSig}, topics},
		},
		{
			FromBlock: from,
			ToBlock:   to,
			Topics:    [][]common.Hash{{transferEventSig, approvalEventSig}, nil, topics},
		},
	}

	for _, query := range queries {
		logs, err := m.client.FilterLogs(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to filter logs: %w", err)
		}
		for _, vLog := range logs {
			if err := m.processLog(ctx, vLog); err != nil {
				m.logger.Error("failed to process log", "tx", vLog.TxHash.Hex(), "error", err)
			}
		}
	}

	m.lastBlock = currentBlock
	m.pruneProcessed()
	return nil
}

// dedupeRetentionBlocks is how far behind lastBlock dedupe entries are
// kept. Filter ranges never reach back further, so entries past it
// cannot recur.
const dedupeRetentionBlocks = 128

func (m *Monitor) pruneProcessed() {
	if m.lastBlock < dedupeRetentionBlocks {
		return
	}
	cutoff := m.lastBlock - dedupeRetentionBlocks
	m.mu.Lock()
	for key, block := range m.processed {
		if block < cutoff {
			delete(m.processed, key)
		}
	}
	m.mu.Unlock()
}

func (m *Monitor) processLog(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return fmt.Errorf("invalid event shape")
	}

	key := fmt.Sprintf("%s:%d", vLog.TxHash.Hex(), vLog.Index)
	m.mu.Lock()
	if _, seen := m.processed[key]; seen {
		m.mu.Unlock()
		return nil
	}
	m.processed[key] = vLog.BlockNumber
	m.mu.Unlock()

	first := common.HexToAddress(vLog.Topics[1].Hex())
	second := common.HexToAddress(vLog.Topics[2].Hex())

	switch vLog.Topics[0] {
	case approvalEventSig:
		return m.processApproval(ctx, vLog, first, second)
	case transferEventSig:
		return m.processTransfer(ctx, vLog, first, second)
	}
	return nil
}

// processApproval inspects an Approval(owner, spender, amount) granted by
// a watched wallet.
func (m *Monitor) processApproval(ctx context.Context, vLog types.Log, owner, spender common.Address) error {
	if !m.isWatched(owner) {
		return nil
	}
	wallet := strings.ToLower(owner.Hex())
	spenderAddr := strings.ToLower(spender.Hex())
	amount := new(big.Int).SetBytes(vLog.Data)

	if amount.Cmp(maxUint256) == 0 {
		m.emit(ctx, Alert{
			Wallet:       wallet,
			Counterparty: spenderAddr,
			Token:        strings.ToLower(vLog.Address.Hex()),
			TxHash:       vLog.TxHash.Hex(),
			Type:         "unlimited_approval",
			Severity:     threat.SeverityCritical,
			Description:  fmt.Sprintf("Wallet granted unlimited approval to %s", spenderAddr),
		})
	}

	return m.checkCounterparty(ctx, wallet, spenderAddr, vLog)
}

// processTransfer inspects a Transfer(from, to, amount) touching a
// watched wallet.
func (m *Monitor) processTransfer(ctx context.Context, vLog types.Log, from, to common.Address) error {
	var wallet, counterparty string
	switch {
	case m.isWatched(from):
		wallet = strings.ToLower(from.Hex())
		counterparty = strings.ToLower(to.Hex())
	case m.isWatched(to):
		wallet = strings.ToLower(to.Hex())
		counterparty = strings.ToLower(from.Hex())
	default:
		return nil
	}

	return m.checkCounterparty(ctx, wallet, counterparty, vLog)
}

// checkCounterparty raises an alert when the other side of an observed
// event is known to threat intelligence. A feed failure here is logged
// and dropped: background monitoring is best-effort, unlike the
// evaluation pipeline.
func (m *Monitor) checkCounterparty(ctx context.Context, wallet, counterparty string, vLog types.Log) error {
	records, err := m.feed.LookupThreats(ctx, counterparty, nil, nil)
	if err != nil {
		m.logger.Warn("intel lookup failed", "counterparty", counterparty, "error", err)
		return nil
	}

	for _, rec := range records {
		severity := threat.SeverityMedium
		switch rec.Severity {
		case intel.SeverityCritical:
			severity = threat.SeverityCritical
		case intel.SeverityHigh:
			severity = threat.SeverityHigh
		}
		m.emit(ctx, Alert{
			Wallet:       wallet,
			Counterparty: counterparty,
			Token:        strings.ToLower(vLog.Address.Hex()),
			TxHash:       vLog.TxHash.Hex(),
			Type:         "known_threat_counterparty",
			Severity:     severity,
			Description:  fmt.Sprintf("Wallet interacted with flagged address %s: %s", counterparty, rec.Description),
		})
	}
	return nil
}

func (m *Monitor) isWatched(addr common.Address) bool {
	m.wmu.RLock()
	defer m.wmu.RUnlock()
	return m.watched[addr]
}

func (m *Monitor) emit(ctx context.Context, alert Alert) {
	m.logger.Info("alert raised",
		"wallet", alert.Wallet,
		"type", alert.Type,
		"severity", alert.Severity,
		"tx", alert.TxHash,
	)
	if m.sink != nil {
		m.sink.Alert(ctx, alert)
	}
}
