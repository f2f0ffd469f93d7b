// Package events schedules randomized market events (rug pulls, bull
// runs, hacks) with bounded concurrency and per-type exclusivity.
package events

// Type identifies an event kind.
type Type string

const (
	TypeBullRun    Type = "bull_run"
	TypeBearMarket Type = "bear_market"
	TypeRugPull    Type = "rug_pull"
	TypeHack       Type = "hack"
	TypeAirdrop    Type = "airdrop"
	TypeRegulation Type = "regulation"
	TypeWhaleBuy   Type = "whale_buy"
)

// Effect is the closed set of one-shot payloads applied at activation.
// The orchestrator matches each variant exhaustively.
type Effect interface{ isEffect() }

// SentimentShift nudges simulated sentiment by Amount.
type SentimentShift struct {
	Amount float64
}

// TreasuryDelta credits (or debits, when negative) the treasury.
type TreasuryDelta struct {
	Amount float64
}

// TreasuryScale multiplies the current balance by Factor.
type TreasuryScale struct {
	Factor float64
}

// RugBuilding damages one random building; Contagion lets the damage
// cascade to nearby same-tier buildings.
type RugBuilding struct {
	Contagion bool
}

func (SentimentShift) isEffect() {}
func (TreasuryDelta) isEffect()  {}
func (TreasuryScale) isEffect()  {}
func (RugBuilding) isEffect()    {}

// Definition is the static description of an event type.
type Definition struct {
	Type        Type
	Name        string
	Description string
	Icon        string
	Rarity      float64 // Base probability per day, scaled per check
	Duration    uint64  // Active lifetime in ticks
	Magnitude   float64

	// Multipliers read from the active set during yield computation,
	// for the event's whole duration.
	YieldMult      float64
	VolatilityMult float64

	// One-shot payloads applied exactly once at activation.
	OnActivate []Effect

	// Types that may not be active at the same time as this one.
	Excludes []Type
}

// Active is one live (or historical) event instance.
type Active struct {
	ID          string  `json:"id"`
	Type        Type    `json:"type"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Magnitude   float64 `json:"magnitude"`
	StartTick   uint64  `json:"start_tick"`
	EndTick     uint64  `json:"end_tick"`
	Source      string  `json:"source"` // "simulated" or "real_data"
}

// Trigger is an externally proposed event candidate (from the reality
// blender). The scheduler still applies probability, cooldown,
// exclusivity, and capacity rules.
type Trigger struct {
	Type        Type    `json:"type"`
	Probability float64 `json:"probability"`
	Source      string  `json:"source"`
	CustomName  string  `json:"custom_name,omitempty"`
	CustomDesc  string  `json:"custom_description,omitempty"`
	Magnitude   float64 `json:"magnitude,omitempty"`
}

// DefaultDefinitions returns the built-in event catalog.
func DefaultDefinitions() map[Type]*Definition {
	defs := []*Definition{
		{
			Type: TypeBullRun, Name: "Bull Run", Icon: "🐂",
			Description: "Green candles as far as the eye can see.",
			Rarity:      0.10, Duration: 60, Magnitude: 1,
			YieldMult: 1.5, VolatilityMult: 1.2,
			OnActivate: []Effect{SentimentShift{Amount: 25}},
			Excludes:   []Type{TypeBearMarket},
		},
		{
			Type: TypeBearMarket, Name: "Bear Market", Icon: "🐻",
			Description: "Everything is down. Everything.",
			Rarity:      0.10, Duration: 60, Magnitude: 1,
			YieldMult: 0.6, VolatilityMult: 1.3,
			OnActivate: []Effect{SentimentShift{Amount: -25}},
			Excludes:   []Type{TypeBullRun},
		},
		{
			Type: TypeRugPull, Name: "Rug Pull", Icon: "🧹",
			Description: "The devs have left the building. Literally.",
			Rarity:      0.06, Duration: 20, Magnitude: 1,
			YieldMult: 0.9, VolatilityMult: 1.5,
			OnActivate: []Effect{SentimentShift{Amount: -15}, RugBuilding{Contagion: true}},
		},
		{
			Type: TypeHack, Name: "Protocol Hack", Icon: "💀",
			Description: "A bridge got drained. Again.",
			Rarity:      0.05, Duration: 30, Magnitude: 1,
			YieldMult: 0.8, VolatilityMult: 1.4,
			OnActivate: []Effect{SentimentShift{Amount: -20}, TreasuryScale{Factor: 0.95}},
		},
		{
			Type: TypeAirdrop, Name: "Surprise Airdrop", Icon: "🪂",
			Description: "Free tokens rain from the sky.",
			Rarity:      0.08, Duration: 15, Magnitude: 1,
			YieldMult: 1.1, VolatilityMult: 1.0,
			OnActivate: []Effect{SentimentShift{Amount: 10}, TreasuryDelta{Amount: 2500}},
		},
		{
			Type: TypeRegulation, Name: "Regulatory Crackdown", Icon: "⚖️",
			Description: "New rules. Nobody has read them yet.",
			Rarity:      0.05, Duration: 45, Magnitude: 1,
			YieldMult: 0.85, VolatilityMult: 1.1,
			OnActivate: []Effect{SentimentShift{Amount: -10}},
			Excludes:   []Type{TypeAirdrop},
		},
		{
			Type: TypeWhaleBuy, Name: "Whale Buy-In", Icon: "🐋",
			Description: "Someone just market-bought the entire district.",
			Rarity:      0.07, Duration: 25, Magnitude: 1,
			YieldMult: 1.25, VolatilityMult: 1.2,
			OnActivate: []Effect{SentimentShift{Amount: 15}},
		},
	}
	out := make(map[Type]*Definition, len(defs))
	for _, d := range defs {
		out[d.Type] = d
	}
	return out
}
