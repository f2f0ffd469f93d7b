// Package engine owns the per-tick simulation sequence: sentiment, yield,
// money sinks, bankruptcy, contagion, history, and listener notification.
package engine

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"cryptopolis/internal/blend"
	"cryptopolis/internal/buildings"
	"cryptopolis/internal/config"
	"cryptopolis/internal/entropy"
	"cryptopolis/internal/events"
	"cryptopolis/internal/notify"
	"cryptopolis/internal/sentiment"
	"cryptopolis/internal/spatial"
	"cryptopolis/internal/synergy"
	"cryptopolis/internal/treasury"
)

// CityInputs are multiplicative yield modifiers supplied by the base city
// simulation. The economy core never mutates them.
type CityInputs struct {
	Population int
	Power      bool
	Water      bool
	Happiness  float64 // 0..1
}

// TickSummary is published to listeners after every completed tick.
type TickSummary struct {
	Tick      uint64  `json:"tick"`
	NetYield  float64 `json:"net_yield"`
	Balance   float64 `json:"balance"`
	Sentiment float64 `json:"sentiment"`
	Bankrupt  bool    `json:"bankrupt"`
}

// Orchestrator wires the subsystems together and drives one tick of
// simulation. All core state is owned here; only the orchestrator issues
// mutating calls into subsystems during a tick.
type Orchestrator struct {
	mu  sync.Mutex
	cfg config.Config
	rng entropy.Source

	reg   *buildings.Registry
	treas *treasury.Manager
	sent  *sentiment.Engine
	syn   *synergy.Calculator
	idx   *spatial.Index
	zones *spatial.ZoneCache
	sched *events.Scheduler

	tick     uint64
	lastTick time.Time

	real      blend.Data
	hasReal   bool
	ticker    []string

	city     CityInputs
	services map[string]int

	bankruptTicks int
	bankrupt      bool

	dailyYield float64
	totalYield float64

	listeners notify.List[TickSummary]
}

// New builds an orchestrator and its subsystems over the given catalog.
func New(cfg config.Config, catalog *buildings.Catalog, rng entropy.Source) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		rng:      rng,
		city:     CityInputs{Power: true, Water: true, Happiness: 0.5},
		services: make(map[string]int),
	}
	o.reg = buildings.NewRegistry(catalog)
	o.treas = treasury.New(cfg.TreasuryMin, cfg.TreasuryMax, cfg.TreasuryStart, cfg.TreasuryHistoryCap)
	o.sent = sentiment.New(sentiment.Options{
		Min:            cfg.SentimentMin,
		Max:            cfg.SentimentMax,
		CyclePeriod:    cfg.CyclePeriod,
		CycleAmplitude: cfg.CycleAmplitude,
		DecayRate:      cfg.SentimentDecayRate,
		NoiseAmplitude: cfg.NoiseAmplitude,
		Impact:         cfg.SentimentImpact,
		HistoryCap:     cfg.SentimentHistoryCap,
	}, rng)
	o.syn = synergy.New(o.reg, synergy.Options{
		Radius:        cfg.SynergyRadius,
		ChainBonus:    cfg.SynergyChainBonus,
		CategoryBonus: cfg.SynergyCatBonus,
		Cap:           cfg.SynergyCap,
	})
	o.idx = spatial.NewIndex(cfg.MaxZoneRadius)
	o.zones = spatial.NewZoneCache(o.reg, o.idx)
	o.sched = events.NewScheduler(events.Options{
		MaxSimultaneous: cfg.MaxSimultaneousEvents,
		CooldownTicks:   cfg.EventCooldownTicks,
		HistoryCap:      cfg.EventHistoryCap,
		RarityScale:     cfg.EventRarityScale,
	}, events.DefaultDefinitions(), rng, o)
	return o
}

// Registry exposes the building registry. It is not synchronized; callers
// running concurrently with the tick loop must use the locked wrappers
// (Buildings, UpgradeBuilding and friends) instead.
func (o *Orchestrator) Registry() *buildings.Registry { return o.reg }

// Treasury exposes the balance ledger.
func (o *Orchestrator) Treasury() *treasury.Manager { return o.treas }

// Sentiment exposes the mood engine.
func (o *Orchestrator) Sentiment() *sentiment.Engine { return o.sent }

// Scheduler exposes the event scheduler.
func (o *Orchestrator) Scheduler() *events.Scheduler { return o.sched }

// OnTick subscribes to per-tick summaries. Panic-isolated per listener.
func (o *Orchestrator) OnTick(fn func(TickSummary)) { o.listeners.Subscribe(fn) }

// CurrentTick returns the last processed tick number.
func (o *Orchestrator) CurrentTick() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tick
}

// Place buys and places a building, charging its catalog cost. Returns
// nil when the type is unknown, the cell is occupied by a different
// building, or the treasury cannot cover the cost.
func (o *Orchestrator) Place(typeID string, x, y int) *buildings.Placed {
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing := o.reg.At(x, y); existing != nil {
		return nil
	}
	t := o.reg.Catalog().Get(typeID)
	if t == nil {
		slog.Warn("place: unknown building type", "type", typeID)
		return nil
	}
	if _, ok := o.treas.TryRemove(t.Cost); !ok {
		return nil
	}
	return o.reg.Register(typeID, x, y, o.tick)
}

// Demolish removes a building without refund.
func (o *Orchestrator) Demolish(h buildings.Handle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reg.Unregister(h)
}

// Buildings returns a copy of every placed building, ordered by handle,
// taken under the tick lock so readers never observe a mid-tick registry.
func (o *Orchestrator) Buildings() []buildings.Placed {
	o.mu.Lock()
	defer o.mu.Unlock()
	all := o.reg.All()
	out := make([]buildings.Placed, 0, len(all))
	for _, b := range all {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// UpgradeBuilding raises a building's level. Returns the new level and
// whether the handle exists.
func (o *Orchestrator) UpgradeBuilding(h buildings.Handle) (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.reg.Get(h) == nil {
		return 0, false
	}
	return o.reg.Upgrade(h), true
}

// SetBuildingStaked marks or clears the staking flag.
func (o *Orchestrator) SetBuildingStaked(h buildings.Handle, staked bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.reg.Get(h) == nil {
		return false
	}
	o.reg.SetStaked(h, staked)
	return true
}

// RepairBuilding clears both the damaged and decaying flags.
func (o *Orchestrator) RepairBuilding(h buildings.Handle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.reg.Get(h) == nil {
		return false
	}
	o.reg.SetDamaged(h, false)
	o.reg.SetDecaying(h, false)
	return true
}

// SetBuildingActive enables or disables a building.
func (o *Orchestrator) SetBuildingActive(h buildings.Handle, active bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.reg.Get(h) == nil {
		return false
	}
	if active {
		o.reg.Enable(h)
	} else {
		o.reg.Disable(h)
	}
	return true
}

// SentimentValue reads the current sentiment under the tick lock.
func (o *Orchestrator) SentimentValue() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent.Value()
}

// ActiveEvents returns the live events under the tick lock.
func (o *Orchestrator) ActiveEvents() []*events.Active {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sched.Active()
}

// EventHistory returns up to limit of the most recent event activations,
// oldest first.
func (o *Orchestrator) EventHistory(limit int) []*events.Active {
	o.mu.Lock()
	defer o.mu.Unlock()
	h := o.sched.History()
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return h
}

// SetCityInputs replaces the base-city modifiers.
func (o *Orchestrator) SetCityInputs(ci CityInputs) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.city = ci
}

// SetServiceFunding sets one service's funding level, clamped to 0–100.
func (o *Orchestrator) SetServiceFunding(service string, level int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	o.services[service] = level
}

// SetRealWorldData pushes the latest blended signal set. One-way push
// from the data layer; nothing is fetched here.
func (o *Orchestrator) SetRealWorldData(data blend.Data) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.real = data
	o.hasReal = data.HasRealData
}

// SetRealEventTriggers forwards blender trigger candidates to the
// scheduler.
func (o *Orchestrator) SetRealEventTriggers(triggers []events.Trigger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sched.SetTriggers(triggers)
}

// SetRealTickerItems replaces the ticker tape contents.
func (o *Orchestrator) SetRealTickerItems(items []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticker = append(o.ticker[:0], items...)
}

// Tick advances the simulation one step. The elapsed wall-clock time is
// clamped to a maximum multiple of the nominal interval so a suspended
// client is never credited with unbounded retroactive yield.
func (o *Orchestrator) Tick(now time.Time) TickSummary {
	o.mu.Lock()

	o.tick++
	fraction := o.elapsedFraction(now)
	o.lastTick = now

	// 1. Sentiment advances.
	o.sent.Tick()

	// 2. Zone effects rebuild if a registry change dirtied them.
	o.zones.Recalculate()

	// 3. Per-building yield.
	gross := 0.0
	for _, b := range o.reg.All() {
		if !b.Active || b.Damaged || b.Decaying {
			continue
		}
		amount := o.buildingYield(b) / float64(o.cfg.TicksPerDay) * fraction
		o.reg.RecordYield(b.Handle, amount)
		gross += amount
	}

	// 4. Global multipliers.
	gross *= o.sent.YieldMultiplier()
	gross *= o.sched.YieldMultiplier()
	gross *= o.cityMultiplier()
	gross *= o.diversityMultiplier()

	// 5. Money sinks.
	sinks := o.sinkCosts() * fraction

	// 6. Net against the treasury.
	net := gross - sinks
	if net >= 0 {
		net = o.treas.Add(net)
	} else {
		net = o.treas.Remove(-net)
	}

	// 7. Bankruptcy and decay.
	o.resolveBankruptcy()

	// 8. History and day rollover.
	o.dailyYield += gross
	o.totalYield += gross
	o.treas.RecordHistory()
	o.sent.RecordHistory()
	if o.cfg.TicksPerDay > 0 && o.tick%uint64(o.cfg.TicksPerDay) == 0 {
		slog.Info("day complete",
			"tick", o.tick,
			"day", o.tick/uint64(o.cfg.TicksPerDay),
			"yield", o.dailyYield,
			"balance", o.treas.Balance(),
			"sentiment", o.sent.Phase(),
			"buildings", o.reg.Count(),
		)
		o.dailyYield = 0
	}

	summary := TickSummary{
		Tick:      o.tick,
		NetYield:  net,
		Balance:   o.treas.Balance(),
		Sentiment: o.sent.Value(),
		Bankrupt:  o.bankrupt,
	}
	o.mu.Unlock()

	// 9. Listener notification, outside the lock so listeners may read
	// back through the public accessors.
	o.listeners.Publish(summary)
	return summary
}

// EventCheck runs one scheduler pass. Driven by the slower event timer.
func (o *Orchestrator) EventCheck() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sched.Check(o.tick)
}

// ApplyEffect applies one one-shot event payload. Called by the scheduler
// during activation, under the orchestrator's lock.
func (o *Orchestrator) ApplyEffect(ev *events.Active, eff events.Effect) {
	switch e := eff.(type) {
	case events.SentimentShift:
		o.sent.Shift(e.Amount * ev.Magnitude)
	case events.TreasuryDelta:
		amount := e.Amount * ev.Magnitude
		if amount >= 0 {
			o.treas.Add(amount)
		} else {
			o.treas.Remove(-amount)
		}
	case events.TreasuryScale:
		o.treas.Set(o.treas.Balance() * e.Factor)
	case events.RugBuilding:
		o.rugRandomBuilding(e.Contagion)
	default:
		slog.Warn("unknown event effect", "event", ev.Type)
	}
}

// buildingYield is the per-day yield of one building before global
// multipliers.
func (o *Orchestrator) buildingYield(b *buildings.Placed) float64 {
	y := b.Type.BaseYield
	y *= buildings.TierMultiplier(b.Type.Tier)
	y *= 1 + float64(b.Level-1)*o.cfg.UpgradeBonusPerLevel
	if b.Staked {
		y *= 1 + o.cfg.StakingBonus
	}
	y *= o.syn.Multiplier(b)
	y *= 1 + o.zones.BonusAt(b.Pos.X, b.Pos.Y, b.Handle).Yield
	y *= o.realMultiplier(b)
	return y
}

func (o *Orchestrator) realMultiplier(b *buildings.Placed) float64 {
	if !o.hasReal {
		return 1
	}
	m := o.real.GlobalYieldMult
	if m == 0 {
		m = 1
	}
	if cm, ok := o.real.ChainMults[b.Type.Chain]; ok && cm != 0 {
		m *= cm
	}
	return m
}

func (o *Orchestrator) cityMultiplier() float64 {
	m := 1.0
	if o.city.Population > 0 {
		pop := float64(o.city.Population)
		if pop > 10_000 {
			pop = 10_000
		}
		m *= 1 + pop/10_000*0.25
	}
	if !o.city.Power {
		m *= 0.5
	}
	if !o.city.Water {
		m *= 0.5
	}
	m *= 0.75 + o.city.Happiness*0.5
	return m
}

// diversityMultiplier rewards spreading across categories. A single
// category earns no bonus.
func (o *Orchestrator) diversityMultiplier() float64 {
	distinct := 0
	for _, n := range o.reg.Counts().ByCategory {
		if n > 0 {
			distinct++
		}
	}
	if distinct <= 1 {
		return 1
	}
	bonus := float64(distinct-1) * o.cfg.DiversityBonus
	if bonus > o.cfg.DiversityCap {
		bonus = o.cfg.DiversityCap
	}
	return 1 + bonus
}

// sinkCosts is the per-tick cost of maintenance and service funding.
func (o *Orchestrator) sinkCosts() float64 {
	if o.cfg.TicksPerDay <= 0 {
		return 0
	}
	perDay := o.cfg.MaintenancePerBuilding * float64(o.reg.Count())
	funded := 0
	for _, level := range o.services {
		funded += level
	}
	perDay += float64(funded) * o.cfg.ServiceFundingRate
	return perDay / float64(o.cfg.TicksPerDay)
}

// resolveBankruptcy tracks time at the treasury floor and, once in
// bankruptcy mode, decays at most one building per tick at the configured
// probability.
func (o *Orchestrator) resolveBankruptcy() {
	if o.treas.Balance() <= o.cfg.TreasuryMin {
		o.bankruptTicks++
	} else {
		o.bankruptTicks = 0
		if o.bankrupt {
			slog.Info("bankruptcy resolved", "tick", o.tick)
		}
		o.bankrupt = false
		return
	}
	if !o.bankrupt && o.bankruptTicks >= o.cfg.BankruptcyThresholdTicks {
		o.bankrupt = true
		slog.Warn("entering bankruptcy", "tick", o.tick)
	}
	if !o.bankrupt {
		return
	}
	if o.rng.Float64() >= o.cfg.DecayProbability {
		return
	}
	candidates := make([]*buildings.Placed, 0)
	for _, b := range o.reg.All() {
		if b.Active && !b.Decaying {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return
	}
	victim := candidates[o.rng.Intn(len(candidates))]
	o.reg.SetDecaying(victim.Handle, true)
	slog.Info("building decaying", "type", victim.TypeID, "x", victim.Pos.X, "y", victim.Pos.Y)
}

// rugRandomBuilding damages one random active building; with contagion,
// nearby same-tier buildings each roll for cascading damage. The
// configured immune tier never catches contagion.
func (o *Orchestrator) rugRandomBuilding(contagion bool) {
	candidates := make([]*buildings.Placed, 0)
	for _, b := range o.reg.All() {
		if b.Active && !b.Damaged {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return
	}
	victim := candidates[o.rng.Intn(len(candidates))]
	o.reg.SetDamaged(victim.Handle, true)
	slog.Info("building rugged", "type", victim.TypeID, "x", victim.Pos.X, "y", victim.Pos.Y)

	if !contagion {
		return
	}
	for _, nb := range o.reg.GetInRadius(victim.Pos.X, victim.Pos.Y, o.cfg.ContagionRadius) {
		if nb.Handle == victim.Handle || nb.Damaged || !nb.Active {
			continue
		}
		if nb.Type.Tier != victim.Type.Tier {
			continue
		}
		if string(nb.Type.Tier) == o.cfg.ContagionImmuneTier {
			continue
		}
		if o.rng.Float64() < o.cfg.ContagionChance {
			o.reg.SetDamaged(nb.Handle, true)
			slog.Info("contagion spread", "type", nb.TypeID, "x", nb.Pos.X, "y", nb.Pos.Y)
		}
	}
}

// elapsedFraction converts wall-clock time since the previous tick into a
// multiple of the nominal interval, clamped to MaxElapsedTicks. The first
// tick counts as exactly one interval.
func (o *Orchestrator) elapsedFraction(now time.Time) float64 {
	if o.lastTick.IsZero() {
		return 1
	}
	interval := time.Duration(o.cfg.TickIntervalMs) * time.Millisecond
	if interval <= 0 {
		return 1
	}
	f := float64(now.Sub(o.lastTick)) / float64(interval)
	if f < 0 {
		return 0
	}
	if f > o.cfg.MaxElapsedTicks {
		return o.cfg.MaxElapsedTicks
	}
	return f
}
