// internal/filter/holders.go
package filter

import (
	"context"
	"sort"
)

// Holder is one token account among the largest holders of a mint.
type Holder struct {
	Account string
	Owner   string
	Amount  float64
}

// Holders is the top of the holder distribution plus the mint supply.
type Holders struct {
	Supply   float64
	Accounts []Holder
}

// HolderInfo answers the on-chain questions behind the extended checks.
type HolderInfo interface {
	TopHolders(ctx context.Context, mint string, n int) (Holders, error)
	IsMutable(ctx context.Context, mint string) (bool, error)
}

// BurnAddresses are owners whose balances count as burned.
var BurnAddresses = map[string]struct{}{
	"11111111111111111111111111111111":            {},
	"1nc1nerator11111111111111111111111111111111": {},
	"So11111111111111111111111111111111111111112": {},
}

// BurnedPercent returns the share of supply held by burn addresses.
func BurnedPercent(holders []Holder, supply float64) float64 {
	if supply <= 0 {
		return 0
	}
	var burned float64
	for _, h := range holders {
		if _, ok := BurnAddresses[h.Owner]; ok {
			burned += h.Amount
		}
	}
	return burned / supply * 100
}

// TopHoldersPercent returns the share of supply held by the n largest holders.
func TopHoldersPercent(holders []Holder, supply float64, n int) float64 {
	if supply <= 0 {
		return 0
	}
	sorted := make([]Holder, len(holders))
	copy(sorted, holders)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Amount > sorted[j].Amount })
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	var total float64
	for _, h := range sorted {
		total += h.Amount
	}
	return total / supply * 100
}

// HasRiskyWallet reports the first holder owned by a listed wallet.
func HasRiskyWallet(holders []Holder, risky []string) (string, bool) {
	if len(risky) == 0 {
		return "", false
	}
	set := make(map[string]struct{}, len(risky))
	for _, w := range risky {
		set[w] = struct{}{}
	}
	for _, h := range holders {
		if _, ok := set[h.Owner]; ok {
			return h.Owner, true
		}
	}
	return "", false
}
