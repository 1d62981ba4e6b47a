// internal/marketdata/types.go
package marketdata

import (
	"encoding/json"
	"strconv"
	"time"
)

// TokenSnapshot is the normalized view of a token's main pool at one moment.
type TokenSnapshot struct {
	Mint          string
	Name          string
	Symbol        string
	Description   string
	PriceUSD      float64
	LiquidityUSD  float64
	Volume5mUSD   float64
	Buys5m        int
	Sells5m       int
	PairCreatedAt time.Time
	PairAddress   string
	BaseMint      string
	QuoteMint     string
	DexID         string
	TotalSupply   float64
	Socials       []string
	FetchedAt     time.Time
}

// PairAge returns how long the pair has existed at now. Zero creation time yields zero.
func (s *TokenSnapshot) PairAge(now time.Time) time.Duration {
	if s == nil || s.PairCreatedAt.IsZero() {
		return 0
	}
	return now.Sub(s.PairCreatedAt)
}

// DisplayName returns "name (symbol)" falling back to the mint.
func (s *TokenSnapshot) DisplayName() string {
	name, symbol := s.Name, s.Symbol
	if name == "" {
		name = s.Mint
	}
	if symbol == "" {
		symbol = "?"
	}
	return name + " (" + symbol + ")"
}

// TokenProfile is an entry of the latest-profiles discovery feed.
type TokenProfile struct {
	URL          string        `json:"url"`
	ChainID      string        `json:"chainId"`
	TokenAddress string        `json:"tokenAddress"`
	Icon         string        `json:"icon"`
	Description  string        `json:"description"`
	Symbol       string        `json:"symbol"`
	Links        []ProfileLink `json:"links"`
}

// ProfileLink is one social/website link of a token profile.
type ProfileLink struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Socials returns the social link kinds advertised by the profile.
func (p TokenProfile) Socials() []string {
	var out []string
	for _, l := range p.Links {
		kind := l.Type
		if kind == "" {
			kind = l.Label
		}
		if kind != "" && l.URL != "" {
			out = append(out, kind)
		}
	}
	return out
}

// PairInfo mirrors the DexScreener pair object.
type PairInfo struct {
	ChainID       string        `json:"chainId"`
	DexID         string        `json:"dexId"`
	PairAddress   string        `json:"pairAddress"`
	BaseToken     TokenInfo     `json:"baseToken"`
	QuoteToken    TokenInfo     `json:"quoteToken"`
	PriceNative   string        `json:"priceNative"`
	PriceUsd      string        `json:"priceUsd"`
	Txns          TxnsInfo      `json:"txns"`
	Volume        VolumeInfo    `json:"volume"`
	Liquidity     LiquidityInfo `json:"liquidity"`
	FDV           float64       `json:"fdv"`
	PairCreatedAt int64         `json:"pairCreatedAt"`
	Info          *PairMeta     `json:"info,omitempty"`
}

// TokenInfo describes one side of a pair.
type TokenInfo struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// TxnsInfo holds transaction counters per window.
type TxnsInfo struct {
	M5 TxnCount `json:"m5"`
	H1 TxnCount `json:"h1"`
}

// TxnCount holds buy/sell counters.
type TxnCount struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

// VolumeInfo holds USD volume per window.
type VolumeInfo struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H24 float64 `json:"h24"`
}

// LiquidityInfo holds pool liquidity.
type LiquidityInfo struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

// PairMeta carries optional socials attached to a pair.
type PairMeta struct {
	Websites []ProfileLink `json:"websites"`
	Socials  []ProfileLink `json:"socials"`
}

// pairsEnvelope accepts {"pairs": [...]} and {"pair": {...}}.
type pairsEnvelope struct {
	Pairs []PairInfo `json:"pairs"`
	Pair  *PairInfo  `json:"pair"`
}

// decodePairs normalizes every response shape the pairs endpoints are known to return.
func decodePairs(body []byte) ([]PairInfo, error) {
	var list []PairInfo
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var env pairsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if len(env.Pairs) > 0 {
		return env.Pairs, nil
	}
	if env.Pair != nil {
		return []PairInfo{*env.Pair}, nil
	}
	return nil, nil
}

// toSnapshot converts a pair into a snapshot for mint.
func (p PairInfo) toSnapshot(mint string, now time.Time) *TokenSnapshot {
	price, _ := strconv.ParseFloat(p.PriceUsd, 64)

	token := p.BaseToken
	if p.QuoteToken.Address == mint {
		token = p.QuoteToken
	}

	snap := &TokenSnapshot{
		Mint:         mint,
		Name:         token.Name,
		Symbol:       token.Symbol,
		PriceUSD:     price,
		LiquidityUSD: p.Liquidity.USD,
		Volume5mUSD:  p.Volume.M5,
		Buys5m:       p.Txns.M5.Buys,
		Sells5m:      p.Txns.M5.Sells,
		PairAddress:  p.PairAddress,
		BaseMint:     p.BaseToken.Address,
		QuoteMint:    p.QuoteToken.Address,
		DexID:        p.DexID,
		FetchedAt:    now,
	}
	if p.PairCreatedAt > 0 {
		snap.PairCreatedAt = time.UnixMilli(p.PairCreatedAt)
	}
	if p.Info != nil {
		for _, s := range p.Info.Socials {
			snap.Socials = append(snap.Socials, s.Type)
		}
		if len(p.Info.Websites) > 0 {
			snap.Socials = append(snap.Socials, "website")
		}
	}
	return snap
}
