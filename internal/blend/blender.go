package blend

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"cryptopolis/internal/events"
)

// Options holds the blending constants.
type Options struct {
	RealSentimentWeight float64 // Share of the external signal in the combine
	SentimentSmoothing  float64 // Lerp factor per blend toward the target
	YieldClampMin       float64
	YieldClampMax       float64
	YieldSmoothing      float64
	ExpectedBaseAPY     float64 // Baseline APY mapping to multiplier 1.0
	TVLDeltaScale       float64 // Percent TVL delta → multiplier shaping
	TriggerCooldown     uint64  // Ticks a proposed type stays suppressed
	PriceMoveThreshold  float64 // 24h % move that proposes an event
	SentimentExtreme    float64 // Distance from 50 on the fear/greed index
	ReversalThreshold   float64 // Blend-over-blend sentiment swing
}

// Blender carries the smoothing state between blends. Everything else is
// a pure function of (snapshot, simulated sentiment). Safe for use from
// the feed loop and HTTP handlers at once.
type Blender struct {
	opts Options

	mu            sync.Mutex
	hasPrev       bool
	prevSentiment float64
	prevYieldMult float64
	lastSwing     float64 // Blend-over-blend sentiment delta of the last Blend

	// Recently proposed trigger types, suppressed until the recorded tick.
	recent map[events.Type]uint64
}

// NewBlender creates a Blender with neutral smoothing state.
func NewBlender(opts Options) *Blender {
	return &Blender{
		opts:   opts,
		recent: make(map[events.Type]uint64),
	}
}

// Blend computes the bounded signal set for one snapshot. A nil snapshot
// or missing sub-data falls back to the pure-simulated values.
func (b *Blender) Blend(snap *RealWorldSnapshot, simSentiment float64) Data {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := Data{
		Sentiment:       simSentiment,
		GlobalYieldMult: 1.0,
		ChainMults:      map[string]float64{},
		ProtocolMults:   map[string]float64{},
	}
	if snap == nil {
		b.hasPrev = false
		b.lastSwing = 0
		return out
	}

	out.Sentiment = b.blendSentiment(snap, simSentiment)
	out.GlobalYieldMult = b.blendGlobalYield(snap)
	b.blendTVLMults(snap, &out)
	out.HasRealData = snap.FearGreed != nil || len(snap.Prices) > 0 || len(snap.DeFi) > 0

	// The swing must be taken against the previous blend's output before
	// it is overwritten; Triggers reads it afterwards.
	if b.hasPrev {
		b.lastSwing = out.Sentiment - b.prevSentiment
	} else {
		b.lastSwing = 0
	}
	b.hasPrev = true
	b.prevSentiment = out.Sentiment
	b.prevYieldMult = out.GlobalYieldMult
	return out
}

// blendSentiment converts fear/greed (0–100) to the canonical [-100, 100]
// scale, combines it with the simulated value, and smooths the result so a
// single noisy reading cannot cause a visible jump.
func (b *Blender) blendSentiment(snap *RealWorldSnapshot, sim float64) float64 {
	if snap.FearGreed == nil {
		return sim
	}
	real := (float64(snap.FearGreed.Value) - 50) * 2
	target := b.opts.RealSentimentWeight*real + (1-b.opts.RealSentimentWeight)*sim

	prev := sim
	if b.hasPrev {
		prev = b.prevSentiment
	}
	return clamp(lerp(prev, target, b.opts.SentimentSmoothing), -100, 100)
}

// blendGlobalYield derives a global multiplier from the ratio of observed
// average APY to the expected baseline, clamped then smoothed.
func (b *Blender) blendGlobalYield(snap *RealWorldSnapshot) float64 {
	if len(snap.DeFi) == 0 {
		return 1.0
	}
	sum := 0.0
	for _, p := range snap.DeFi {
		sum += p.APY
	}
	avg := sum / float64(len(snap.DeFi))

	target := 1.0
	if b.opts.ExpectedBaseAPY > 0 {
		target = avg / b.opts.ExpectedBaseAPY
	}
	target = clamp(target, b.opts.YieldClampMin, b.opts.YieldClampMax)

	prev := 1.0
	if b.hasPrev {
		prev = b.prevYieldMult
	}
	return clamp(lerp(prev, target, b.opts.YieldSmoothing), b.opts.YieldClampMin, b.opts.YieldClampMax)
}

// blendTVLMults derives per-chain and per-protocol multipliers from 24h
// TVL deltas, each independently clamped.
func (b *Blender) blendTVLMults(snap *RealWorldSnapshot, out *Data) {
	if len(snap.DeFi) == 0 {
		return
	}
	chainSum := map[string]float64{}
	chainN := map[string]int{}
	for _, p := range snap.DeFi {
		mult := 1 + p.TVLChange24h/100*b.opts.TVLDeltaScale
		out.ProtocolMults[p.Protocol] = clamp(mult, b.opts.YieldClampMin, b.opts.YieldClampMax)
		chainSum[p.Chain] += p.TVLChange24h
		chainN[p.Chain]++
	}
	for chain, sum := range chainSum {
		avg := sum / float64(chainN[chain])
		mult := 1 + avg/100*b.opts.TVLDeltaScale
		out.ChainMults[chain] = clamp(mult, b.opts.YieldClampMin, b.opts.YieldClampMax)
	}
}

// Triggers scans the snapshot for event candidates: large price moves,
// news keyword matches, and fear/greed extremes or reversals. Candidates
// for a recently proposed type are filtered out. The blender never
// activates events; the scheduler applies its own rules to these.
func (b *Blender) Triggers(snap *RealWorldSnapshot, blended Data, tick uint64) []events.Trigger {
	if snap == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Trigger
	propose := func(t events.Trigger) {
		if until, ok := b.recent[t.Type]; ok && tick < until {
			return
		}
		b.recent[t.Type] = tick + b.opts.TriggerCooldown
		out = append(out, t)
	}

	for _, p := range snap.Prices {
		switch {
		case p.Change24h >= b.opts.PriceMoveThreshold:
			propose(events.Trigger{
				Type:        events.TypeWhaleBuy,
				Probability: 0.6,
				Source:      "real_data",
				CustomName:  fmt.Sprintf("%s Pump", strings.ToUpper(p.Symbol)),
				CustomDesc:  fmt.Sprintf("%s is up %.1f%% in 24h.", strings.ToUpper(p.Symbol), p.Change24h),
			})
		case p.Change24h <= -b.opts.PriceMoveThreshold:
			propose(events.Trigger{
				Type:        events.TypeRugPull,
				Probability: 0.5,
				Source:      "real_data",
				CustomName:  fmt.Sprintf("%s Dump", strings.ToUpper(p.Symbol)),
				CustomDesc:  fmt.Sprintf("%s is down %.1f%% in 24h.", strings.ToUpper(p.Symbol), p.Change24h),
			})
		}
	}

	for _, n := range snap.News {
		title := strings.ToLower(n.Title)
		switch {
		case containsAny(title, "hack", "exploit", "drained", "stolen"):
			propose(events.Trigger{
				Type: events.TypeHack, Probability: 0.7, Source: "real_data",
				CustomName: "Breaking: " + n.Title,
			})
		case containsAny(title, "sec", "regulation", "ban", "lawsuit"):
			propose(events.Trigger{
				Type: events.TypeRegulation, Probability: 0.5, Source: "real_data",
				CustomName: "Breaking: " + n.Title,
			})
		case containsAny(title, "rally", "surge", "all-time high", "ath"):
			propose(events.Trigger{
				Type: events.TypeBullRun, Probability: 0.4, Source: "real_data",
				CustomName: "Breaking: " + n.Title,
			})
		case containsAny(title, "airdrop"):
			propose(events.Trigger{
				Type: events.TypeAirdrop, Probability: 0.6, Source: "real_data",
				CustomName: "Breaking: " + n.Title,
			})
		}
	}

	if snap.FearGreed != nil {
		fg := float64(snap.FearGreed.Value)
		if fg >= 50+b.opts.SentimentExtreme {
			propose(events.Trigger{
				Type: events.TypeBullRun, Probability: 0.35, Source: "real_data",
				CustomDesc: fmt.Sprintf("Fear & Greed at %d: pure greed.", snap.FearGreed.Value),
			})
		} else if fg <= 50-b.opts.SentimentExtreme {
			propose(events.Trigger{
				Type: events.TypeBearMarket, Probability: 0.35, Source: "real_data",
				CustomDesc: fmt.Sprintf("Fear & Greed at %d: panic in the streets.", snap.FearGreed.Value),
			})
		}
	}

	// Reversal: a large swing recorded by the last Blend.
	if b.hasPrev {
		swing := b.lastSwing
		if math.Abs(swing) >= b.opts.ReversalThreshold {
			t := events.TypeWhaleBuy
			if swing < 0 {
				t = events.TypeRugPull
			}
			propose(events.Trigger{Type: t, Probability: 0.3, Source: "real_data",
				CustomDesc: "Sentiment just whipsawed."})
		}
	}

	return out
}

// Ticker renders ticker-tape lines from the snapshot.
func (b *Blender) Ticker(snap *RealWorldSnapshot) []string {
	if snap == nil {
		return nil
	}
	var items []string
	for _, p := range snap.Prices {
		items = append(items, fmt.Sprintf("%s $%s (%+.1f%%)",
			strings.ToUpper(p.Symbol), humanize.Commaf(p.PriceUSD), p.Change24h))
	}
	for _, d := range snap.DeFi {
		items = append(items, fmt.Sprintf("%s %.1f%% APY · $%s TVL",
			d.Protocol, d.APY, humanize.Comma(int64(d.TVL))))
	}
	if snap.FearGreed != nil {
		label := snap.FearGreed.Label
		if label == "" {
			label = "Fear & Greed"
		}
		items = append(items, fmt.Sprintf("%s: %d/100", label, snap.FearGreed.Value))
	}
	for _, t := range snap.Tweets {
		items = append(items, fmt.Sprintf("@%s: %s", t.Author, t.Text))
	}
	return items
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
