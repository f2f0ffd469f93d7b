// Package blend turns untrusted external market snapshots into bounded,
// smoothed simulation inputs. The blender never mutates the simulation
// itself: it proposes sentiment values, yield multipliers, event trigger
// candidates, and ticker text for the orchestrator and scheduler to use.
package blend

import "time"

// RealWorldSnapshot is an externally supplied, possibly partial, possibly
// stale bag of market data. Every field may be absent; each blend
// computation falls back to the pure-simulated value for missing signals.
type RealWorldSnapshot struct {
	Prices    []PricePoint    `json:"prices,omitempty"`
	DeFi      []ProtocolYield `json:"defi,omitempty"`
	FearGreed *FearGreed      `json:"fear_greed,omitempty"`
	News      []NewsItem      `json:"news,omitempty"`
	Tweets    []Tweet         `json:"tweets,omitempty"`
	FetchedAt time.Time       `json:"fetched_at,omitempty"`
}

// PricePoint is one asset's spot price and 24h change.
type PricePoint struct {
	Symbol    string  `json:"symbol"`
	PriceUSD  float64 `json:"price_usd"`
	Change24h float64 `json:"change_24h"` // Percent
}

// ProtocolYield is one DeFi protocol's observed yield and size.
type ProtocolYield struct {
	Protocol     string  `json:"protocol"`
	Chain        string  `json:"chain"`
	APY          float64 `json:"apy"` // Percent
	TVL          float64 `json:"tvl"` // USD
	TVLChange24h float64 `json:"tvl_change_24h"` // Percent
}

// FearGreed is the external 0–100 sentiment index.
type FearGreed struct {
	Value int    `json:"value"`
	Label string `json:"label,omitempty"`
}

// NewsItem is a headline scanned for trigger keywords.
type NewsItem struct {
	Title  string `json:"title"`
	Source string `json:"source,omitempty"`
}

// Tweet is a social post fed into the ticker.
type Tweet struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// Data is the blender's output: derived, bounded and smoothed. Always
// recomputed from the latest snapshot plus the persisted smoothing state,
// never mutated in place.
type Data struct {
	Sentiment       float64            `json:"sentiment"`        // Canonical [-100, 100]
	GlobalYieldMult float64            `json:"global_yield_mult"`
	ChainMults      map[string]float64 `json:"chain_mults"`
	ProtocolMults   map[string]float64 `json:"protocol_mults"`
	HasRealData     bool               `json:"has_real_data"`
}
