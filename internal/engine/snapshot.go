package engine

import (
	"cryptopolis/internal/buildings"
	"cryptopolis/internal/events"
)

// SentimentView is the mood section of a snapshot.
type SentimentView struct {
	Value          float64   `json:"value"`
	Phase          string    `json:"phase"`
	YieldMult      float64   `json:"yield_multiplier"`
	VolatilityMult float64   `json:"volatility_multiplier"`
	History        []float64 `json:"history"`
}

// TreasuryView is the balance section of a snapshot.
type TreasuryView struct {
	Balance   float64   `json:"balance"`
	Change24h float64   `json:"change_24h_pct"`
	History   []float64 `json:"history"`
}

// BuildingTrouble points at a building in a damaged or decaying state.
type BuildingTrouble struct {
	Handle buildings.Handle `json:"handle"`
	TypeID string           `json:"type"`
	X      int              `json:"x"`
	Y      int              `json:"y"`
}

// Snapshot is a read-only view of the whole economy, safe to serialize
// and hand to the API layer. Slices and maps are copies.
type Snapshot struct {
	Tick uint64 `json:"tick"`
	Day  uint64 `json:"day"`

	Treasury  TreasuryView  `json:"treasury"`
	Sentiment SentimentView `json:"sentiment"`

	DailyYield float64 `json:"daily_yield"`
	TotalYield float64 `json:"total_yield"`
	TVL        float64 `json:"tvl"`

	Buildings buildings.Counts  `json:"buildings"`
	Damaged   []BuildingTrouble `json:"damaged,omitempty"`
	Decaying  []BuildingTrouble `json:"decaying,omitempty"`

	ActiveEvents []*events.Active `json:"active_events"`

	Services map[string]int `json:"services"`
	Bankrupt bool           `json:"bankrupt"`

	HasRealData bool     `json:"has_real_data"`
	Ticker      []string `json:"ticker,omitempty"`
}

// Snapshot renders the current state under the orchestrator lock.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		Tick: o.tick,
		Treasury: TreasuryView{
			Balance:   o.treas.Balance(),
			Change24h: o.treas.PercentageChange(o.cfg.TicksPerDay),
			History:   o.treas.History(),
		},
		Sentiment: SentimentView{
			Value:          o.sent.Value(),
			Phase:          o.sent.Phase(),
			YieldMult:      o.sent.YieldMultiplier(),
			VolatilityMult: o.sent.VolatilityMultiplier(),
			History:        o.sent.History(),
		},
		DailyYield:   o.dailyYield,
		TotalYield:   o.totalYield,
		TVL:          o.reg.TVL(),
		Buildings:    o.reg.Counts(),
		ActiveEvents: o.sched.Active(),
		Services:     make(map[string]int, len(o.services)),
		Bankrupt:     o.bankrupt,
		HasRealData:  o.hasReal,
		Ticker:       append([]string(nil), o.ticker...),
	}
	if o.cfg.TicksPerDay > 0 {
		snap.Day = o.tick / uint64(o.cfg.TicksPerDay)
	}
	for k, v := range o.services {
		snap.Services[k] = v
	}
	for _, b := range o.reg.All() {
		t := BuildingTrouble{Handle: b.Handle, TypeID: b.TypeID, X: b.Pos.X, Y: b.Pos.Y}
		if b.Damaged {
			snap.Damaged = append(snap.Damaged, t)
		}
		if b.Decaying {
			snap.Decaying = append(snap.Decaying, t)
		}
	}
	return snap
}
