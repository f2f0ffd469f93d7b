package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Runner drives the orchestrator on two timers: the fast simulation tick
// and the slower event check. Speed is a multiplier on both; zero pauses.
type Runner struct {
	orch *Orchestrator

	tickInterval  time.Duration
	eventInterval time.Duration

	speed   atomic.Int64 // Speed ×1000, so 1000 = real-time
	running atomic.Bool
}

// NewRunner creates a runner at real-time speed.
func NewRunner(orch *Orchestrator, tickInterval, eventInterval time.Duration) *Runner {
	r := &Runner{
		orch:          orch,
		tickInterval:  tickInterval,
		eventInterval: eventInterval,
	}
	r.speed.Store(1000)
	return r
}

// Speed returns the current speed multiplier.
func (r *Runner) Speed() float64 {
	return float64(r.speed.Load()) / 1000
}

// SetSpeed changes the speed multiplier. Zero pauses; negatives clamp to
// zero. Takes effect on the next loop iteration.
func (r *Runner) SetSpeed(speed float64) {
	if speed < 0 {
		speed = 0
	}
	r.speed.Store(int64(speed * 1000))
	slog.Info("simulation speed changed", "speed", speed)
}

// Running reports whether the loop is live.
func (r *Runner) Running() bool { return r.running.Load() }

// Run blocks, ticking the orchestrator until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)

	slog.Info("simulation loop started",
		"tick_interval", r.tickInterval,
		"event_interval", r.eventInterval,
		"speed", r.Speed(),
	)

	var sinceEventCheck time.Duration
	for {
		speed := r.Speed()
		if speed <= 0 {
			select {
			case <-ctx.Done():
				slog.Info("simulation loop stopped", "tick", r.orch.CurrentTick())
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		start := time.Now()
		r.orch.Tick(start)

		sinceEventCheck += r.tickInterval
		if sinceEventCheck >= r.eventInterval {
			r.orch.EventCheck()
			sinceEventCheck = 0
		}

		// Sleep out the remainder of the interval, scaled by speed.
		target := time.Duration(float64(r.tickInterval) / speed)
		elapsed := time.Since(start)
		var wait time.Duration
		if elapsed < target {
			wait = target - elapsed
		}
		select {
		case <-ctx.Done():
			slog.Info("simulation loop stopped", "tick", r.orch.CurrentTick())
			return
		case <-time.After(wait):
		}
	}
}
