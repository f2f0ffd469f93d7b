package engine

import (
	"cryptopolis/internal/buildings"
	"cryptopolis/internal/events"
)

// TreasuryState is the saved balance ledger.
type TreasuryState struct {
	Balance float64   `json:"balance"`
	History []float64 `json:"history"`
}

// SentimentState is the saved mood process.
type SentimentState struct {
	Value   float64   `json:"value"`
	Tick    uint64    `json:"tick"`
	History []float64 `json:"history"`
}

// State is the full serializable simulation state.
type State struct {
	CurrentTick uint64 `json:"current_tick"`

	Treasury  TreasuryState  `json:"treasury"`
	Sentiment SentimentState `json:"sentiment"`

	Buildings []*buildings.Placed `json:"buildings"`

	ActiveEvents []*events.Active `json:"active_events"`
	EventHistory []*events.Active `json:"event_history"`

	Services   map[string]int `json:"services"`
	TotalYield float64        `json:"total_yield"`
	Bankrupt   bool           `json:"bankrupt"`
}

// Export captures the current state for persistence.
func (o *Orchestrator) Export() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := State{
		CurrentTick: o.tick,
		Treasury: TreasuryState{
			Balance: o.treas.Balance(),
			History: o.treas.History(),
		},
		Sentiment: SentimentState{
			Value:   o.sent.Value(),
			Tick:    o.sent.CurrentTick(),
			History: o.sent.History(),
		},
		Buildings:    o.reg.All(),
		ActiveEvents: o.sched.Active(),
		EventHistory: o.sched.History(),
		Services:     make(map[string]int, len(o.services)),
		TotalYield:   o.totalYield,
		Bankrupt:     o.bankrupt,
	}
	for k, v := range o.services {
		st.Services[k] = v
	}
	return st
}

// Import restores a saved state, replacing all current contents. Derived
// caches rebuild from the restored registry; event effects are not
// re-applied.
func (o *Orchestrator) Import(st State) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.tick = st.CurrentTick
	o.treas.Set(st.Treasury.Balance)
	o.treas.RestoreHistory(st.Treasury.History)
	o.sent.Restore(st.Sentiment.Value, st.Sentiment.Tick, st.Sentiment.History)

	o.reg.Import(st.Buildings)
	o.zones.Invalidate()
	o.zones.Recalculate()

	o.sched.Restore(st.ActiveEvents, st.EventHistory)

	o.services = make(map[string]int, len(st.Services))
	for k, v := range st.Services {
		o.services[k] = v
	}
	o.totalYield = st.TotalYield
	o.bankrupt = st.Bankrupt
	o.bankruptTicks = 0
	o.dailyYield = 0
}
