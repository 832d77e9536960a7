package threat

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"
)

// Canonical ERC-20 mutating function selectors. Computed from the
// signatures rather than hardcoded so a typo can't silently ship.
var (
	SelectorTransfer     = selector("transfer(address,uint256)")              // 0xa9059cbb
	SelectorApprove      = selector("approve(address,uint256)")               // 0x095ea7b3
	SelectorTransferFrom = selector("transferFrom(address,address,uint256)") // 0x23b872dd
)

// SensitiveSelectors are the token-moving selectors every layer treats as
// sensitive: they move funds or grant someone else the right to.
func SensitiveSelectors() []string {
	return []string{SelectorTransfer, SelectorApprove, SelectorTransferFrom}
}

// IsSensitiveSelector reports whether sel is a token-moving selector.
func IsSensitiveSelector(sel string) bool {
	switch sel {
	case SelectorTransfer, SelectorApprove, SelectorTransferFrom:
		return true
	}
	return false
}

// SelectorName returns a human-readable label for known selectors.
func SelectorName(sel string) string {
	switch sel {
	case SelectorTransfer:
		return "transfer"
	case SelectorApprove:
		return "approve"
	case SelectorTransferFrom:
		return "transferFrom"
	default:
		return ""
	}
}

func selector(signature string) string {
	sum := crypto.Keccak256([]byte(signature))
	return "0x" + hex.EncodeToString(sum[:4])
}
