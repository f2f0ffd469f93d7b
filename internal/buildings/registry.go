package buildings

import (
	"log/slog"
	"math"

	"cryptopolis/internal/notify"
)

// Change actions broadcast to registry subscribers.
const (
	ActionAdded    = "added"
	ActionRemoved  = "removed"
	ActionEnabled  = "enabled"
	ActionDisabled = "disabled"
)

// Change describes one registry mutation.
type Change struct {
	Action   string
	Building *Placed
}

// Counts is a snapshot of the registry's cached aggregates.
type Counts struct {
	Total      int            `json:"total"`
	Active     int            `json:"active"`
	ByTier     map[Tier]int   `json:"by_tier"`
	ByChain    map[string]int `json:"by_chain"`
	ByCategory map[string]int `json:"by_category"`
}

// Registry is the canonical store of placed buildings. Lookups are O(1)
// by handle and by grid position; aggregate counts update incrementally
// on every mutation path.
type Registry struct {
	catalog *Catalog

	arena      map[Handle]*Placed
	byPos      map[Position]Handle
	nextHandle Handle

	total      int
	active     int
	byTier     map[Tier]int
	byChain    map[string]int
	byCategory map[string]int

	listeners notify.List[Change]
}

// NewRegistry creates an empty registry over the given catalog.
func NewRegistry(catalog *Catalog) *Registry {
	return &Registry{
		catalog:    catalog,
		arena:      make(map[Handle]*Placed),
		byPos:      make(map[Position]Handle),
		nextHandle: 1,
		byTier:     make(map[Tier]int),
		byChain:    make(map[string]int),
		byCategory: make(map[string]int),
	}
}

// OnChange subscribes to registry mutations. Notifications are synchronous
// and panic-isolated per listener.
func (r *Registry) OnChange(fn func(Change)) { r.listeners.Subscribe(fn) }

// Register places a building of the given type at (x, y). An unknown type
// id returns nil with a logged warning. An occupied cell is not an error:
// the existing occupant is returned unchanged and no counts move.
func (r *Registry) Register(typeID string, x, y int, tick uint64) *Placed {
	t := r.catalog.Get(typeID)
	if t == nil {
		slog.Warn("register: unknown building type", "type", typeID, "x", x, "y", y)
		return nil
	}
	pos := Position{X: x, Y: y}
	if h, ok := r.byPos[pos]; ok {
		return r.arena[h]
	}

	b := &Placed{
		Handle:     r.nextHandle,
		Type:       t,
		TypeID:     t.ID,
		Pos:        pos,
		Active:     true,
		Level:      1,
		PlacedTick: tick,
	}
	r.nextHandle++
	r.arena[b.Handle] = b
	r.byPos[pos] = b.Handle
	r.countIn(b)
	r.listeners.Publish(Change{Action: ActionAdded, Building: b})
	return b
}

// Unregister removes a building. Returns false for an unknown handle.
func (r *Registry) Unregister(h Handle) bool {
	b, ok := r.arena[h]
	if !ok {
		return false
	}
	delete(r.arena, h)
	delete(r.byPos, b.Pos)
	r.countOut(b)
	r.listeners.Publish(Change{Action: ActionRemoved, Building: b})
	return true
}

// Enable reactivates a disabled building.
func (r *Registry) Enable(h Handle) bool {
	b, ok := r.arena[h]
	if !ok || b.Active {
		return false
	}
	b.Active = true
	r.active++
	r.listeners.Publish(Change{Action: ActionEnabled, Building: b})
	return true
}

// Disable deactivates a building without removing it.
func (r *Registry) Disable(h Handle) bool {
	b, ok := r.arena[h]
	if !ok || !b.Active {
		return false
	}
	b.Active = false
	r.active--
	r.listeners.Publish(Change{Action: ActionDisabled, Building: b})
	return true
}

// RecordYield accumulates lifetime yield onto a building.
func (r *Registry) RecordYield(h Handle, amount float64) {
	if b, ok := r.arena[h]; ok {
		b.LifetimeYield += amount
	}
}

// Upgrade raises a building's level, capped at 3. Returns the new level.
func (r *Registry) Upgrade(h Handle) int {
	b, ok := r.arena[h]
	if !ok {
		return 0
	}
	if b.Level < 3 {
		b.Level++
	}
	return b.Level
}

// SetDamaged marks or clears the damaged flag.
func (r *Registry) SetDamaged(h Handle, damaged bool) {
	if b, ok := r.arena[h]; ok {
		b.Damaged = damaged
	}
}

// SetDecaying marks or clears the decaying flag.
func (r *Registry) SetDecaying(h Handle, decaying bool) {
	if b, ok := r.arena[h]; ok {
		b.Decaying = decaying
	}
}

// SetStaked marks or clears the staked flag.
func (r *Registry) SetStaked(h Handle, staked bool) {
	if b, ok := r.arena[h]; ok {
		b.Staked = staked
	}
}

// Catalog returns the type catalog the registry was built over.
func (r *Registry) Catalog() *Catalog { return r.catalog }

// Get returns the building for a handle, or nil.
func (r *Registry) Get(h Handle) *Placed { return r.arena[h] }

// At returns the building occupying (x, y), or nil.
func (r *Registry) At(x, y int) *Placed {
	if h, ok := r.byPos[Position{X: x, Y: y}]; ok {
		return r.arena[h]
	}
	return nil
}

// All returns every placed building. Order is unspecified.
func (r *Registry) All() []*Placed {
	out := make([]*Placed, 0, len(r.arena))
	for _, b := range r.arena {
		out = append(out, b)
	}
	return out
}

// GetInRadius returns buildings within Euclidean distance radius of
// (cx, cy). This is the O(n) fallback path; radius queries on the hot
// path should use the spatial index instead.
func (r *Registry) GetInRadius(cx, cy, radius int) []*Placed {
	var out []*Placed
	rr := float64(radius)
	for _, b := range r.arena {
		dx := float64(b.Pos.X - cx)
		dy := float64(b.Pos.Y - cy)
		if math.Sqrt(dx*dx+dy*dy) <= rr {
			out = append(out, b)
		}
	}
	return out
}

// Count returns the total number of placed buildings.
func (r *Registry) Count() int { return r.total }

// ActiveCount returns the number of active buildings.
func (r *Registry) ActiveCount() int { return r.active }

// Counts returns a copy of the cached aggregates.
func (r *Registry) Counts() Counts {
	return Counts{
		Total:      r.total,
		Active:     r.active,
		ByTier:     copyMap(r.byTier),
		ByChain:    copyMap(r.byChain),
		ByCategory: copyMap(r.byCategory),
	}
}

// Recount computes aggregates from scratch over the live building set.
// Used by bulk import and by tests to verify the incremental caches.
func (r *Registry) Recount() Counts {
	c := Counts{
		ByTier:     make(map[Tier]int),
		ByChain:    make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for _, b := range r.arena {
		c.Total++
		if b.Active {
			c.Active++
		}
		c.ByTier[b.Type.Tier]++
		c.ByChain[b.Type.Chain]++
		c.ByCategory[b.Type.Category]++
	}
	return c
}

// Import bulk-loads buildings, replacing current contents. Entries with
// unknown types or duplicate cells are skipped with a warning. Aggregates
// are rebuilt by full recount; incremental updates do not apply here.
// Callers must reset derived caches (spatial index, zone effects) after.
func (r *Registry) Import(list []*Placed) int {
	r.arena = make(map[Handle]*Placed, len(list))
	r.byPos = make(map[Position]Handle, len(list))
	r.nextHandle = 1

	loaded := 0
	for _, b := range list {
		t := r.catalog.Get(b.TypeID)
		if t == nil {
			slog.Warn("import: unknown building type, skipping", "type", b.TypeID)
			continue
		}
		if _, occupied := r.byPos[b.Pos]; occupied {
			slog.Warn("import: duplicate cell, skipping", "x", b.Pos.X, "y", b.Pos.Y)
			continue
		}
		b.Type = t
		if b.Level < 1 {
			b.Level = 1
		}
		if b.Handle == 0 || r.arena[b.Handle] != nil {
			b.Handle = r.nextHandle
		}
		if b.Handle >= r.nextHandle {
			r.nextHandle = b.Handle + 1
		}
		r.arena[b.Handle] = b
		r.byPos[b.Pos] = b.Handle
		loaded++
	}

	fresh := r.Recount()
	r.total = fresh.Total
	r.active = fresh.Active
	r.byTier = fresh.ByTier
	r.byChain = fresh.ByChain
	r.byCategory = fresh.ByCategory
	return loaded
}

// TVL sums the notional locked value over all placed buildings.
func (r *Registry) TVL() float64 {
	total := 0.0
	for _, b := range r.arena {
		total += TierTVL(b.Type.Tier)
	}
	return total
}

func (r *Registry) countIn(b *Placed) {
	r.total++
	if b.Active {
		r.active++
	}
	r.byTier[b.Type.Tier]++
	r.byChain[b.Type.Chain]++
	r.byCategory[b.Type.Category]++
}

func (r *Registry) countOut(b *Placed) {
	r.total--
	if b.Active {
		r.active--
	}
	r.byTier[b.Type.Tier]--
	r.byChain[b.Type.Chain]--
	r.byCategory[b.Type.Category]--
}

func copyMap[K comparable](m map[K]int) map[K]int {
	out := make(map[K]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
