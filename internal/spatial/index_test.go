package spatial

import (
	"math"
	"testing"

	"cryptopolis/internal/buildings"
)

func TestDiscCoverage(t *testing.T) {
	idx := NewIndex(10)
	const r = 3
	idx.Add(1, 5, 5, r)

	for dx := -r - 1; dx <= r+1; dx++ {
		for dy := -r - 1; dy <= r+1; dy++ {
			dist := math.Sqrt(float64(dx*dx + dy*dy))
			covered := idx.Covers(1, 5+dx, 5+dy)
			if dist <= r && !covered {
				t.Errorf("cell (%d,%d) at distance %.2f should be covered", 5+dx, 5+dy, dist)
			}
			if dist > r && covered {
				t.Errorf("cell (%d,%d) at distance %.2f should not be covered", 5+dx, 5+dy, dist)
			}
		}
	}
}

func TestRemoveLeavesNoOrphans(t *testing.T) {
	idx := NewIndex(10)
	idx.Add(1, 0, 0, 2)
	idx.Add(2, 1, 0, 2)

	idx.Remove(1)
	if idx.CellsOf(1) != 0 {
		t.Fatalf("removed building still tracks cells")
	}
	for x := -3; x <= 4; x++ {
		for y := -3; y <= 3; y++ {
			for _, h := range idx.At(x, y) {
				if h == 1 {
					t.Fatalf("orphaned entry for removed building at (%d,%d)", x, y)
				}
			}
		}
	}

	idx.Remove(2)
	if idx.CellCount() != 0 {
		t.Fatalf("expected all cell entries garbage collected, %d remain", idx.CellCount())
	}
}

func TestRadiusClampedToMax(t *testing.T) {
	idx := NewIndex(2)
	idx.Add(1, 0, 0, 50)
	if idx.Covers(1, 3, 0) {
		t.Fatalf("coverage beyond the clamped radius")
	}
	if !idx.Covers(1, 2, 0) {
		t.Fatalf("expected coverage at the clamped radius")
	}
}

func TestUpdateMovesCoverage(t *testing.T) {
	idx := NewIndex(10)
	idx.Add(1, 0, 0, 1)
	idx.Update(1, 10, 10, 1)
	if idx.Covers(1, 0, 0) {
		t.Fatalf("stale coverage at old position")
	}
	if !idx.Covers(1, 10, 10) {
		t.Fatalf("missing coverage at new position")
	}
}

func TestNearCollectsDistinctHandles(t *testing.T) {
	idx := NewIndex(10)
	idx.Add(1, 0, 0, 2)
	idx.Add(2, 3, 0, 2)
	idx.Add(3, 50, 50, 2)

	got := idx.Near(1, 0, 1)
	seen := make(map[buildings.Handle]bool)
	for _, h := range got {
		if seen[h] {
			t.Fatalf("duplicate handle %d in Near result", h)
		}
		seen[h] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("expected handles 1 and 2 near (1,0), got %v", got)
	}
	if seen[3] {
		t.Fatalf("distant handle 3 must not appear")
	}
	if idx.Near(100, 100, 3) != nil {
		t.Fatalf("empty area must return nil")
	}
}

func TestZoneCacheIncrementalAndDirtyPaths(t *testing.T) {
	reg := buildings.NewRegistry(buildings.DefaultCatalog())
	idx := NewIndex(6)
	zc := NewZoneCache(reg, idx)

	// uniswap_fountain projects radius 3, yield bonus 0.05.
	b := reg.Register("uniswap_fountain", 0, 0, 0)
	if zc.Dirty() {
		t.Fatalf("add should apply incrementally, not dirty the cache")
	}
	if got := zc.BonusAt(2, 0, 0); got.Yield != 0.05 {
		t.Fatalf("expected yield bonus 0.05 near fountain, got %f", got.Yield)
	}
	// Self-exclusion.
	if got := zc.BonusAt(0, 0, b.Handle); got.Yield != 0 {
		t.Fatalf("building must not receive its own zone bonus, got %f", got.Yield)
	}

	// Disable marks dirty; queries are stale until Recalculate.
	reg.Disable(b.Handle)
	if !zc.Dirty() {
		t.Fatalf("disable must mark the cache dirty")
	}
	zc.Recalculate()
	if zc.Dirty() {
		t.Fatalf("recalculate must clear the dirty flag")
	}
	if got := zc.BonusAt(2, 0, 0); got.Yield != 0 {
		t.Fatalf("disabled building must project nothing, got %f", got.Yield)
	}

	reg.Enable(b.Handle)
	zc.Recalculate()
	if got := zc.BonusAt(2, 0, 0); got.Yield != 0.05 {
		t.Fatalf("re-enabled building must project again, got %f", got.Yield)
	}

	// Removal applies incrementally.
	reg.Unregister(b.Handle)
	if got := zc.BonusAt(2, 0, 0); got.Yield != 0 {
		t.Fatalf("removed building must project nothing, got %f", got.Yield)
	}
	if idx.CellCount() != 0 {
		t.Fatalf("index should be empty after removal, %d cells remain", idx.CellCount())
	}
}

func TestZoneCacheIgnoresTypesWithoutEffects(t *testing.T) {
	reg := buildings.NewRegistry(buildings.DefaultCatalog())
	idx := NewIndex(6)
	zc := NewZoneCache(reg, idx)

	b := reg.Register("doge_kennel", 0, 0, 0) // no effect definition
	if _, ok := zc.EffectOf(b.Handle); ok {
		t.Fatalf("type without effect definition must not produce a zone effect")
	}
	if idx.CellCount() != 0 {
		t.Fatalf("no cells should be indexed for effect-less types")
	}
}
