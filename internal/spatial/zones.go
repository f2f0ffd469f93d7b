package spatial

import (
	"cryptopolis/internal/buildings"
)

// Effect is the derived zone effect one building projects. Never
// authoritative: recomputed from the building's static definition.
type Effect struct {
	Source             buildings.Handle
	Radius             int
	YieldBonus         float64
	HappinessBonus     float64
	VolatilityModifier float64
}

// Bonus is the aggregate of all zone effects covering a cell.
type Bonus struct {
	Yield      float64
	Happiness  float64
	Volatility float64
}

// ZoneCache derives per-building zone effects and keeps the spatial index
// in sync with the registry. Added/removed buildings update incrementally;
// enable/disable only marks the cache dirty because effect membership
// depends on active-state filtering.
type ZoneCache struct {
	reg     *buildings.Registry
	idx     *Index
	effects map[buildings.Handle]Effect
	dirty   bool
}

// NewZoneCache builds a cache over registry and index and subscribes to
// registry changes. The orchestrator calls Recalculate once per tick
// before reading effects.
func NewZoneCache(reg *buildings.Registry, idx *Index) *ZoneCache {
	zc := &ZoneCache{
		reg:     reg,
		idx:     idx,
		effects: make(map[buildings.Handle]Effect),
	}
	reg.OnChange(zc.onRegistryChange)
	return zc
}

func (zc *ZoneCache) onRegistryChange(c buildings.Change) {
	switch c.Action {
	case buildings.ActionAdded:
		zc.add(c.Building)
	case buildings.ActionRemoved:
		zc.remove(c.Building.Handle)
	case buildings.ActionEnabled, buildings.ActionDisabled:
		zc.dirty = true
	}
}

// Dirty reports whether queries would return stale data.
func (zc *ZoneCache) Dirty() bool { return zc.dirty }

// Invalidate forces a rebuild on the next Recalculate. Used after imports.
func (zc *ZoneCache) Invalidate() { zc.dirty = true }

// Recalculate rebuilds effects and index entries from the registry's
// active building set, only when dirty.
func (zc *ZoneCache) Recalculate() {
	if !zc.dirty {
		return
	}
	zc.idx.Reset()
	zc.effects = make(map[buildings.Handle]Effect)
	for _, b := range zc.reg.All() {
		if b.Active {
			zc.add(b)
		}
	}
	zc.dirty = false
}

// BonusAt sums the effects of every active building whose zone covers
// (x, y), excluding the building identified by self.
func (zc *ZoneCache) BonusAt(x, y int, self buildings.Handle) Bonus {
	var out Bonus
	for _, h := range zc.idx.At(x, y) {
		if h == self {
			continue
		}
		eff, ok := zc.effects[h]
		if !ok {
			continue
		}
		out.Yield += eff.YieldBonus
		out.Happiness += eff.HappinessBonus
		out.Volatility += eff.VolatilityModifier
	}
	return out
}

// EffectOf returns the derived effect of a building, if it has one.
func (zc *ZoneCache) EffectOf(h buildings.Handle) (Effect, bool) {
	eff, ok := zc.effects[h]
	return eff, ok
}

func (zc *ZoneCache) add(b *buildings.Placed) {
	def := b.Type.Effect
	if def == nil || !b.Active {
		return
	}
	zc.effects[b.Handle] = Effect{
		Source:             b.Handle,
		Radius:             def.Radius,
		YieldBonus:         def.YieldBonus,
		HappinessBonus:     def.HappinessBonus,
		VolatilityModifier: def.VolatilityModifier,
	}
	zc.idx.Add(b.Handle, b.Pos.X, b.Pos.Y, def.Radius)
}

func (zc *ZoneCache) remove(h buildings.Handle) {
	delete(zc.effects, h)
	zc.idx.Remove(h)
}
