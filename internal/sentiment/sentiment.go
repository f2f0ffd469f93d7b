// Package sentiment evolves the simulated market mood: a mean-reverting
// process chasing a sinusoidal cycle target with additive noise, bounded
// to the canonical [-100, 100] scale.
package sentiment

import (
	"math"

	"cryptopolis/internal/entropy"
	"cryptopolis/internal/notify"
)

// Phase labels, ordered from most fearful to most greedy.
const (
	PhaseExtremeFear  = "extreme_fear"
	PhaseFear         = "fear"
	PhaseNeutral      = "neutral"
	PhaseGreed        = "greed"
	PhaseExtremeGreed = "extreme_greed"
)

// Change is published when the value moves by a non-zero clamped delta.
type Change struct {
	Value float64
	Delta float64
}

// Engine is the market-mood state machine.
type Engine struct {
	min, max       float64
	cyclePeriod    float64
	cycleAmplitude float64
	decayRate      float64
	noiseAmplitude float64
	impact         float64

	value float64
	tick  uint64

	history    []float64
	historyCap int

	rng       entropy.Source
	listeners notify.List[Change]
}

// Options carries the tuning constants for the process.
type Options struct {
	Min, Max       float64
	CyclePeriod    float64
	CycleAmplitude float64
	DecayRate      float64
	NoiseAmplitude float64
	Impact         float64
	HistoryCap     int
}

// New creates an Engine starting at neutral sentiment.
func New(opts Options, rng entropy.Source) *Engine {
	return &Engine{
		min:            opts.Min,
		max:            opts.Max,
		cyclePeriod:    opts.CyclePeriod,
		cycleAmplitude: opts.CycleAmplitude,
		decayRate:      opts.DecayRate,
		noiseAmplitude: opts.NoiseAmplitude,
		impact:         opts.Impact,
		historyCap:     opts.HistoryCap,
		rng:            rng,
	}
}

// Value returns the current sentiment.
func (e *Engine) Value() float64 { return e.value }

// OnChange subscribes to sentiment movements.
func (e *Engine) OnChange(fn func(Change)) { e.listeners.Subscribe(fn) }

// Tick advances the process one step: decay toward the cycle target, add
// noise, clamp.
func (e *Engine) Tick() {
	e.tick++
	prev := e.value

	cyclePos := math.Sin(2 * math.Pi * float64(e.tick) / e.cyclePeriod)
	target := cyclePos * e.cycleAmplitude

	e.value += (target - e.value) * (e.decayRate * 0.1)
	if e.noiseAmplitude != 0 {
		e.value += e.rng.Range(-1, 1) * e.noiseAmplitude
	}
	e.value = e.clamp(e.value)

	if delta := e.value - prev; delta != 0 {
		e.listeners.Publish(Change{Value: e.value, Delta: delta})
	}
}

// Shift nudges sentiment by amount (used by events). Fires a change only if
// the clamped delta is non-zero.
func (e *Engine) Shift(amount float64) {
	e.Set(e.value + amount)
}

// Set forces sentiment to value, clamped.
func (e *Engine) Set(value float64) {
	next := e.clamp(value)
	delta := next - e.value
	e.value = next
	if delta != 0 {
		e.listeners.Publish(Change{Value: e.value, Delta: delta})
	}
}

// Phase buckets sentiment into five ordered bands.
func (e *Engine) Phase() string {
	switch {
	case e.value <= -60:
		return PhaseExtremeFear
	case e.value <= -20:
		return PhaseFear
	case e.value < 20:
		return PhaseNeutral
	case e.value < 60:
		return PhaseGreed
	default:
		return PhaseExtremeGreed
	}
}

// YieldMultiplier maps sentiment into a yield factor: 1 ± impact at the
// extremes, exactly 1 at neutral.
func (e *Engine) YieldMultiplier() float64 {
	return 1 + (e.value/100)*e.impact
}

// VolatilityMultiplier grows with distance from neutral, capping at 1.5.
func (e *Engine) VolatilityMultiplier() float64 {
	return 1 + (math.Abs(e.value)/100)*0.5
}

// RecordHistory appends the current value to the bounded history.
func (e *Engine) RecordHistory() {
	e.history = append(e.history, e.value)
	if e.historyCap > 0 && len(e.history) > e.historyCap {
		e.history = e.history[len(e.history)-e.historyCap:]
	}
}

// History returns a copy of recorded values, oldest first.
func (e *Engine) History() []float64 {
	out := make([]float64, len(e.history))
	copy(out, e.history)
	return out
}

// Restore sets the process state from a save (value, tick counter).
func (e *Engine) Restore(value float64, tick uint64, history []float64) {
	e.value = e.clamp(value)
	e.tick = tick
	e.history = append(e.history[:0], history...)
}

// CurrentTick returns the internal cycle position counter.
func (e *Engine) CurrentTick() uint64 { return e.tick }

func (e *Engine) clamp(v float64) float64 {
	if v < e.min {
		return e.min
	}
	if v > e.max {
		return e.max
	}
	return v
}
