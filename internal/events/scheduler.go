package events

import (
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"cryptopolis/internal/entropy"
)

// Sink receives the one-shot payloads of an activating event. Implemented
// by the orchestrator; effects are applied exactly once, at activation.
type Sink interface {
	ApplyEffect(ev *Active, eff Effect)
}

// Options holds the scheduler's tuning constants.
type Options struct {
	MaxSimultaneous int
	CooldownTicks   uint64
	HistoryCap      int
	RarityScale     float64 // Scales per-day rarity down to per-check probability
}

// Scheduler owns the active-event set and its bounded history. Check runs
// on the slower event timer: it expires events lazily, drains external
// triggers first, then rolls the random catalog.
type Scheduler struct {
	opts Options
	defs map[Type]*Definition
	rng  entropy.Source
	sink Sink

	active   []*Active
	history  []*Active
	cooldown map[Type]uint64 // type → tick the cooldown expires
	pending  []Trigger
}

// NewScheduler creates a scheduler over the given definitions.
func NewScheduler(opts Options, defs map[Type]*Definition, rng entropy.Source, sink Sink) *Scheduler {
	return &Scheduler{
		opts:     opts,
		defs:     defs,
		rng:      rng,
		sink:     sink,
		cooldown: make(map[Type]uint64),
	}
}

// SetTriggers replaces the pending externally supplied triggers. One-way
// push from the reality blender.
func (s *Scheduler) SetTriggers(triggers []Trigger) {
	s.pending = append(s.pending[:0], triggers...)
}

// Check runs one scheduling pass at the given tick: lazy expiry, then
// trigger drain, then random rolls if nothing external fired.
func (s *Scheduler) Check(tick uint64) {
	s.expire(tick)

	fired := s.drainTriggers(tick)
	if fired || len(s.active) >= s.opts.MaxSimultaneous {
		return
	}

	// Iterate the catalog in stable order so seeded runs reproduce.
	types := make([]Type, 0, len(s.defs))
	for t := range s.defs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, t := range types {
		def := s.defs[t]
		if !s.canActivate(t, tick) {
			continue
		}
		if s.rng.Float64() < def.Rarity*s.opts.RarityScale {
			s.activate(def, tick, "simulated", "", "", def.Magnitude)
			return
		}
	}
}

// Active returns the live events. Callers must not mutate the entries.
func (s *Scheduler) Active() []*Active {
	out := make([]*Active, len(s.active))
	copy(out, s.active)
	return out
}

// History returns the bounded activation history, oldest first.
func (s *Scheduler) History() []*Active {
	out := make([]*Active, len(s.history))
	copy(out, s.history)
	return out
}

// IsActive reports whether any event of the given type is live.
func (s *Scheduler) IsActive(t Type) bool {
	for _, ev := range s.active {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// YieldMultiplier is the product of the duration-gated yield multipliers
// of all currently active events.
func (s *Scheduler) YieldMultiplier() float64 {
	mult := 1.0
	for _, ev := range s.active {
		if def := s.defs[ev.Type]; def != nil && def.YieldMult != 0 {
			mult *= def.YieldMult
		}
	}
	return mult
}

// VolatilityMultiplier is the product over active events.
func (s *Scheduler) VolatilityMultiplier() float64 {
	mult := 1.0
	for _, ev := range s.active {
		if def := s.defs[ev.Type]; def != nil && def.VolatilityMult != 0 {
			mult *= def.VolatilityMult
		}
	}
	return mult
}

// Restore loads active events and history from a save. Effects are not
// re-applied: they were one-shot at original activation.
func (s *Scheduler) Restore(active, history []*Active) {
	s.active = append(s.active[:0], active...)
	s.history = append(s.history[:0], history...)
}

func (s *Scheduler) expire(tick uint64) {
	kept := s.active[:0]
	for _, ev := range s.active {
		if tick >= ev.EndTick {
			slog.Info("event expired", "type", ev.Type, "id", ev.ID)
			continue
		}
		kept = append(kept, ev)
	}
	s.active = kept
}

// drainTriggers processes externally supplied candidates. Returns true if
// one activated.
func (s *Scheduler) drainTriggers(tick uint64) bool {
	if len(s.pending) == 0 {
		return false
	}
	triggers := s.pending
	s.pending = nil

	for _, tr := range triggers {
		def := s.defs[tr.Type]
		if def == nil {
			slog.Warn("trigger for unknown event type", "type", tr.Type)
			continue
		}
		if !s.canActivate(tr.Type, tick) {
			continue
		}
		if s.rng.Float64() >= tr.Probability {
			continue
		}
		mag := tr.Magnitude
		if mag == 0 {
			mag = def.Magnitude
		}
		s.activate(def, tick, tr.Source, tr.CustomName, tr.CustomDesc, mag)
		return true
	}
	return false
}

// canActivate enforces capacity, per-type cooldown, single-instance, and
// exclusivity rules.
func (s *Scheduler) canActivate(t Type, tick uint64) bool {
	if len(s.active) >= s.opts.MaxSimultaneous {
		return false
	}
	if until, ok := s.cooldown[t]; ok && tick < until {
		return false
	}
	if s.IsActive(t) {
		return false
	}
	def := s.defs[t]
	for _, ex := range def.Excludes {
		if s.IsActive(ex) {
			return false
		}
	}
	// Exclusivity is symmetric: an active event may also exclude t.
	for _, ev := range s.active {
		other := s.defs[ev.Type]
		if other == nil {
			continue
		}
		for _, ex := range other.Excludes {
			if ex == t {
				return false
			}
		}
	}
	return true
}

func (s *Scheduler) activate(def *Definition, tick uint64, source, name, desc string, magnitude float64) {
	if name == "" {
		name = def.Name
	}
	if desc == "" {
		desc = def.Description
	}
	if source == "" {
		source = "simulated"
	}
	ev := &Active{
		ID:          uuid.NewString(),
		Type:        def.Type,
		Name:        name,
		Description: desc,
		Icon:        def.Icon,
		Magnitude:   magnitude,
		StartTick:   tick,
		EndTick:     tick + def.Duration,
		Source:      source,
	}
	s.active = append(s.active, ev)
	s.history = append(s.history, ev)
	if s.opts.HistoryCap > 0 && len(s.history) > s.opts.HistoryCap {
		s.history = s.history[len(s.history)-s.opts.HistoryCap:]
	}
	s.cooldown[def.Type] = tick + s.opts.CooldownTicks

	slog.Info("event activated", "type", def.Type, "name", name, "source", source, "until", ev.EndTick)

	if s.sink != nil {
		for _, eff := range def.OnActivate {
			s.sink.ApplyEffect(ev, eff)
		}
	}
}
