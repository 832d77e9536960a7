package analyzer

import (
	"fmt"
	"strings"

	"github.com/mbd888/walletguard/internal/threat"
)

// Explain renders a transaction in plain English: who, to whom, how much,
// and what the calldata does. Intended for user-facing confirmations.
func Explain(tx *threat.Transaction) string {
	var parts []string

	parts = append(parts, "**From:** "+shortAddr(tx.From))
	if strings.TrimSpace(tx.To) == "" {
		parts = append(parts, "**To:** Contract Creation")
	} else {
		parts = append(parts, "**To:** "+shortAddr(tx.To))
	}

	if value := tx.ValueETH(); value > 0 {
		parts = append(parts, fmt.Sprintf("**Amount:** %.6f ETH", value))
	}

	parts = append(parts, "**Action:** "+describeAction(tx))
	return strings.Join(parts, "\n")
}

func describeAction(tx *threat.Transaction) string {
	if !tx.HasCallData() {
		return "Simple ETH transfer"
	}
	switch tx.Selector() {
	case threat.SelectorTransfer:
		return "Transfer tokens"
	case threat.SelectorApprove:
		return "Approve token spending"
	case threat.SelectorTransferFrom:
		return "Transfer tokens from another address"
	default:
		return "Unknown contract interaction"
	}
}

func shortAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) < 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
