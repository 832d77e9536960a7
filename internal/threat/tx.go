package threat

import (
	"math/big"
	"strconv"
	"strings"
)

// Transaction is a proposed, unsigned transaction submitted for evaluation.
// Immutable input: the pipeline never mutates it.
type Transaction struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Value   string `json:"value,omitempty"` // hex wei ("0x...") or decimal ETH
	Data    string `json:"data,omitempty"`  // hex calldata, leading 4-byte selector
	ChainID int64  `json:"chainId,omitempty"`
}

var weiPerEth = new(big.Float).SetFloat64(1e18)

// NormalizeAddress lowercases and trims an address for use as a map or
// cache key. Addresses compare case-insensitively everywhere.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ValueETH returns the transaction value normalized to ETH units.
// Hex-encoded values are interpreted as wei; plain decimal strings as ETH.
// Malformed values parse as 0 — a bad optional field must never abort an
// evaluation.
func (t *Transaction) ValueETH() float64 {
	v := strings.TrimSpace(t.Value)
	if v == "" {
		return 0
	}
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		wei, ok := new(big.Int).SetString(v[2:], 16)
		if !ok {
			return 0
		}
		eth, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEth).Float64()
		return eth
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

// Selector returns the leading 4-byte function selector of the calldata
// as "0x" + 8 lowercase hex chars, or "" when there is no calldata.
func (t *Transaction) Selector() string {
	d := strings.ToLower(strings.TrimSpace(t.Data))
	if !t.HasCallData() || len(d) < 10 {
		return ""
	}
	return d[:10]
}

// HasCallData reports whether the transaction carries non-trivial calldata.
func (t *Transaction) HasCallData() bool {
	d := strings.TrimSpace(t.Data)
	return d != "" && d != "0x"
}
