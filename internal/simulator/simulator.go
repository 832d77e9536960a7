// Package simulator defines the contract with the external transaction
// simulation service: a dry-run of an unsigned transaction against forked
// chain state, returning its observed effects without broadcasting it.
package simulator

import (
	"context"
	"errors"
)

var (
	ErrUnavailable = errors.New("simulator: service unavailable")
	ErrBadPayload  = errors.New("simulator: malformed response")
)

// StateChangeType tags a single observed effect of the simulated execution.
type StateChangeType string

const (
	ChangeApproval          StateChangeType = "approval"
	ChangeOwnershipTransfer StateChangeType = "ownership_transfer"
	ChangeBalance           StateChangeType = "balance_change"
)

// UnlimitedApproval is the value a simulator reports for an uncapped
// token approval.
const UnlimitedApproval = "unlimited"

// StateChange is one effect observed during simulation.
type StateChange struct {
	Type    StateChangeType `json:"type"`
	Value   string          `json:"value"`
	Token   string          `json:"token,omitempty"`
	Address string          `json:"address,omitempty"`
}

// Call is one entry in the nested call trace of the simulated execution.
type Call struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Input string `json:"input,omitempty"`
	Depth int    `json:"depth,omitempty"`
}

// Request carries the fields sent to the simulation service.
type Request struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Value   string `json:"value"`
	Data    string `json:"data"`
	ChainID int64  `json:"chainId"`
}

// Result is the simulator's read-only verdict. The pipeline treats it as
// evidence and never mutates it.
type Result struct {
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
	BalanceChanges []StateChange `json:"balanceChanges,omitempty"`
	Calls          []Call        `json:"calls,omitempty"`
	GasUsed        uint64        `json:"gasUsed,omitempty"`
}

// Simulator dry-runs a transaction. A returned error means the service
// itself could not be consulted; the caller treats that as fatal to the
// evaluation (fail-closed), distinct from Success=false which means the
// transaction would revert on chain.
type Simulator interface {
	Simulate(ctx context.Context, req Request) (*Result, error)
}
