// Package synergy computes per-building yield multipliers from nearby
// buildings sharing a chain or category.
package synergy

import (
	"cryptopolis/internal/buildings"
)

// Calculator scans the registry for neighbors of a building. O(n) per
// building; acceptable at a few hundred buildings. Bucket through the
// spatial index before scaling past that.
type Calculator struct {
	reg           *buildings.Registry
	radius        int
	chainBonus    float64
	categoryBonus float64
	cap           float64
}

// Options holds the synergy tuning constants.
type Options struct {
	Radius        int
	ChainBonus    float64
	CategoryBonus float64
	Cap           float64
}

// New creates a Calculator over the registry.
func New(reg *buildings.Registry, opts Options) *Calculator {
	return &Calculator{
		reg:           reg,
		radius:        opts.Radius,
		chainBonus:    opts.ChainBonus,
		categoryBonus: opts.CategoryBonus,
		cap:           opts.Cap,
	}
}

// Bonus returns the accumulated synergy bonus for b in [0, cap]. Each
// neighbor sharing a chain contributes the chain bonus, each sharing a
// category the category bonus, both attenuated linearly by
// (1 - distance/radius) using Chebyshev distance.
func (c *Calculator) Bonus(b *buildings.Placed) float64 {
	if b == nil || c.radius <= 0 {
		return 0
	}
	total := 0.0
	for _, other := range c.reg.All() {
		if other.Handle == b.Handle || !other.Active {
			continue
		}
		dist := chebyshev(b.Pos, other.Pos)
		if dist == 0 || dist > c.radius {
			continue
		}
		atten := 1 - float64(dist)/float64(c.radius)
		if other.Type.Chain == b.Type.Chain {
			total += c.chainBonus * atten
		}
		if other.Type.Category == b.Type.Category {
			total += c.categoryBonus * atten
		}
	}
	if total > c.cap {
		total = c.cap
	}
	return total
}

// Multiplier returns 1 + Bonus(b).
func (c *Calculator) Multiplier(b *buildings.Placed) float64 {
	return 1 + c.Bonus(b)
}

func chebyshev(a, b buildings.Position) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}
