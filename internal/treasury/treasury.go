// Package treasury tracks the player's bounded token balance and its
// rolling history. Every mutator clamps to the configured bounds and
// returns the delta actually applied, which may be smaller than requested
// when the balance sits near a bound.
package treasury

import (
	"cryptopolis/internal/notify"
)

// Change is published to subscribers after every applied mutation.
type Change struct {
	Balance float64
	Delta   float64
}

// Manager is the bounded balance ledger.
type Manager struct {
	min, max float64
	balance  float64

	history    []float64
	historyCap int

	listeners notify.List[Change]
}

// New creates a Manager clamped to [min, max] with the given starting
// balance (itself clamped) and history capacity.
func New(min, max, start float64, historyCap int) *Manager {
	m := &Manager{min: min, max: max, historyCap: historyCap}
	m.balance = m.clamp(start)
	return m
}

// Balance returns the current balance.
func (m *Manager) Balance() float64 { return m.balance }

// OnChange subscribes to balance changes. A panicking listener is isolated.
func (m *Manager) OnChange(fn func(Change)) { m.listeners.Subscribe(fn) }

// Add credits amount and returns the delta actually applied.
func (m *Manager) Add(amount float64) float64 {
	return m.apply(amount)
}

// Remove debits amount and returns the delta actually applied (≤ 0).
func (m *Manager) Remove(amount float64) float64 {
	return m.apply(-amount)
}

// Set forces the balance to value (clamped) and returns the applied delta.
func (m *Manager) Set(value float64) float64 {
	next := m.clamp(value)
	delta := next - m.balance
	m.balance = next
	if delta != 0 {
		m.listeners.Publish(Change{Balance: m.balance, Delta: delta})
	}
	return delta
}

// CanAfford reports whether amount could be fully removed right now.
func (m *Manager) CanAfford(amount float64) bool {
	return m.balance-amount >= m.min
}

// TryRemove removes amount only if fully affordable. It returns the applied
// delta and whether the removal happened.
func (m *Manager) TryRemove(amount float64) (float64, bool) {
	if !m.CanAfford(amount) {
		return 0, false
	}
	return m.apply(-amount), true
}

// RecordHistory appends the current balance to the history ring. The oldest
// entry is dropped silently once capacity is reached.
func (m *Manager) RecordHistory() {
	m.history = append(m.history, m.balance)
	if m.historyCap > 0 && len(m.history) > m.historyCap {
		m.history = m.history[len(m.history)-m.historyCap:]
	}
}

// RestoreHistory replaces the history ring from a save, enforcing the cap.
func (m *Manager) RestoreHistory(h []float64) {
	m.history = append(m.history[:0], h...)
	if m.historyCap > 0 && len(m.history) > m.historyCap {
		m.history = m.history[len(m.history)-m.historyCap:]
	}
}

// History returns a copy of the recorded balances, oldest first.
func (m *Manager) History() []float64 {
	out := make([]float64, len(m.history))
	copy(out, m.history)
	return out
}

// PercentageChange reports the percent change over the last window history
// entries. Returns 0 when there is not enough history or the base is zero.
func (m *Manager) PercentageChange(window int) float64 {
	if window <= 0 || len(m.history) < 2 {
		return 0
	}
	start := len(m.history) - 1 - window
	if start < 0 {
		start = 0
	}
	base := m.history[start]
	if base == 0 {
		return 0
	}
	return (m.history[len(m.history)-1] - base) / base * 100
}

func (m *Manager) apply(delta float64) float64 {
	next := m.clamp(m.balance + delta)
	applied := next - m.balance
	m.balance = next
	if applied != 0 {
		m.listeners.Publish(Change{Balance: m.balance, Delta: applied})
	}
	return applied
}

func (m *Manager) clamp(v float64) float64 {
	if v < m.min {
		return m.min
	}
	if v > m.max {
		return m.max
	}
	return v
}
