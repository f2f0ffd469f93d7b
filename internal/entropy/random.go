// Package entropy abstracts the randomness feeding the simulation math
// (sentiment noise, event rolls, decay, contagion). Everything stochastic
// takes a Source so tests can seed it and assert exact outcomes.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
	"sync"
)

// Source yields the random draws the simulation consumes.
type Source interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// Intn returns a uniform int in [0, n). n must be > 0.
	Intn(n int) int
	// Range returns a uniform value in [lo, hi).
	Range(lo, hi float64) float64
}

// seeded is a deterministic Source backed by math/rand.
type seeded struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

// NewSeeded returns a deterministic Source for the given seed.
func NewSeeded(seed int64) Source {
	return &seeded{rng: mathrand.New(mathrand.NewSource(seed))}
}

func (s *seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *seeded) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func (s *seeded) Range(lo, hi float64) float64 {
	return lo + s.Float64()*(hi-lo)
}

// cryptoSource draws from crypto/rand. Used when no seed is supplied.
type cryptoSource struct{}

// NewCrypto returns a non-deterministic Source backed by crypto/rand.
func NewCrypto() Source { return cryptoSource{} }

func (cryptoSource) Float64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Should never happen; 0.5 is a safe neutral draw.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

func (c cryptoSource) Intn(n int) int {
	return int(c.Float64() * float64(n))
}

func (c cryptoSource) Range(lo, hi float64) float64 {
	return lo + c.Float64()*(hi-lo)
}
