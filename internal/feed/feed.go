// Package feed synthesizes market snapshots from smooth noise so the
// blender pipeline runs end to end without a live data layer attached.
// Curves are deterministic from the seed.
package feed

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"cryptopolis/internal/blend"
)

// asset is one synthetic market line.
type asset struct {
	symbol string
	base   float64
}

// protocol is one synthetic DeFi line.
type protocol struct {
	name    string
	chain   string
	baseAPY float64
	baseTVL float64
}

var headlines = []string{
	"Analysts puzzled as market does the exact opposite of their predictions",
	"New L2 promises 1M TPS, ships testnet faucet",
	"Exchange reserves hit yearly low",
	"Major fund quietly accumulating, on-chain data shows",
	"Retail is back: wallet creation spikes",
	"Regulation hearing scheduled for next quarter",
	"Surprise airdrop rumored for early users",
	"Bridge audit finds nothing, community suspicious",
}

// Generator produces one snapshot per tick from layered noise fields.
type Generator struct {
	price opensimplex.Noise
	tvl   opensimplex.Noise
	mood  opensimplex.Noise

	assets    []asset
	protocols []protocol
}

// New creates a Generator seeded deterministically.
func New(seed int64) *Generator {
	return &Generator{
		price: opensimplex.NewNormalized(seed),
		tvl:   opensimplex.NewNormalized(seed + 1),
		mood:  opensimplex.NewNormalized(seed + 2),
		assets: []asset{
			{symbol: "btc", base: 95_000},
			{symbol: "eth", base: 3_200},
			{symbol: "sol", base: 180},
			{symbol: "doge", base: 0.31},
		},
		protocols: []protocol{
			{name: "aave", chain: "ethereum", baseAPY: 4.5, baseTVL: 12e9},
			{name: "uniswap", chain: "ethereum", baseAPY: 6.0, baseTVL: 5e9},
			{name: "raydium", chain: "solana", baseAPY: 8.5, baseTVL: 2e9},
			{name: "marinade", chain: "solana", baseAPY: 7.0, baseTVL: 1.5e9},
		},
	}
}

// Snapshot renders the synthetic market state at a tick. The same
// (seed, tick) pair always produces the same snapshot.
func (g *Generator) Snapshot(tick uint64) *blend.RealWorldSnapshot {
	t := float64(tick) * 0.01

	snap := &blend.RealWorldSnapshot{}
	for i, a := range g.assets {
		ch := i * 10
		// Price wanders ±20% around base; 24h change spans ±15%.
		level := g.price.Eval2(t, float64(ch))
		change := (g.price.Eval2(t, float64(ch)+0.5) - 0.5) * 30
		snap.Prices = append(snap.Prices, blend.PricePoint{
			Symbol:    a.symbol,
			PriceUSD:  round2(a.base * (0.8 + level*0.4)),
			Change24h: round2(change),
		})
	}
	for i, p := range g.protocols {
		ch := float64(i * 10)
		snap.DeFi = append(snap.DeFi, blend.ProtocolYield{
			Protocol:     p.name,
			Chain:        p.chain,
			APY:          round2(p.baseAPY * (0.5 + g.tvl.Eval2(t, ch))),
			TVL:          math.Round(p.baseTVL * (0.7 + g.tvl.Eval2(t, ch+0.5)*0.6)),
			TVLChange24h: round2((g.tvl.Eval2(t, ch+0.25) - 0.5) * 20),
		})
	}
	fg := int(math.Round(g.mood.Eval2(t, 0) * 100))
	snap.FearGreed = &blend.FearGreed{Value: clampInt(fg, 0, 100), Label: "Fear & Greed"}

	// Rotate one headline per snapshot so news triggers stay sparse.
	snap.News = []blend.NewsItem{{Title: headlines[tick%uint64(len(headlines))], Source: "synthetic"}}
	return snap
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
