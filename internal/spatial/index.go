// Package spatial maintains the grid-hash index mapping cells to the
// buildings whose effect radius covers them, plus the zone-effects cache
// derived from the building registry.
package spatial

import (
	"math"

	"cryptopolis/internal/buildings"
)

// Cell is one grid coordinate in the index.
type Cell struct {
	X, Y int
}

// Index keeps two mutually-inverse maps: cell → building handles covering
// it, and handle → cells it covers. Empty cell entries are garbage
// collected on removal.
type Index struct {
	maxRadius int
	cells     map[Cell]map[buildings.Handle]struct{}
	entries   map[buildings.Handle]map[Cell]struct{}
}

// NewIndex creates an index. Radii passed to Add are clamped to maxRadius.
func NewIndex(maxRadius int) *Index {
	return &Index{
		maxRadius: maxRadius,
		cells:     make(map[Cell]map[buildings.Handle]struct{}),
		entries:   make(map[buildings.Handle]map[Cell]struct{}),
	}
}

// Add rasterizes a disc of the given radius around (x, y) and records the
// building in every covered cell. Re-adding a present handle replaces its
// previous coverage.
func (idx *Index) Add(h buildings.Handle, x, y, radius int) {
	if _, ok := idx.entries[h]; ok {
		idx.Remove(h)
	}
	if radius > idx.maxRadius {
		radius = idx.maxRadius
	}
	if radius < 0 {
		radius = 0
	}

	covered := make(map[Cell]struct{})
	rr := float64(radius)
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			if math.Sqrt(float64(dx*dx+dy*dy)) > rr {
				continue
			}
			c := Cell{X: x + dx, Y: y + dy}
			covered[c] = struct{}{}
			set := idx.cells[c]
			if set == nil {
				set = make(map[buildings.Handle]struct{})
				idx.cells[c] = set
			}
			set[h] = struct{}{}
		}
	}
	idx.entries[h] = covered
}

// Remove deletes a building from every cell it covered.
func (idx *Index) Remove(h buildings.Handle) {
	covered, ok := idx.entries[h]
	if !ok {
		return
	}
	for c := range covered {
		if set := idx.cells[c]; set != nil {
			delete(set, h)
			if len(set) == 0 {
				delete(idx.cells, c)
			}
		}
	}
	delete(idx.entries, h)
}

// Update moves a building's coverage (remove + add).
func (idx *Index) Update(h buildings.Handle, x, y, radius int) {
	idx.Remove(h)
	idx.Add(h, x, y, radius)
}

// At returns the handles whose radius covers (x, y).
func (idx *Index) At(x, y int) []buildings.Handle {
	set := idx.cells[Cell{X: x, Y: y}]
	if len(set) == 0 {
		return nil
	}
	out := make([]buildings.Handle, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

// Near returns the distinct handles covering any cell within radius of
// (x, y).
func (idx *Index) Near(x, y, radius int) []buildings.Handle {
	if radius < 0 {
		radius = 0
	}
	seen := make(map[buildings.Handle]struct{})
	rr := float64(radius)
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			if math.Sqrt(float64(dx*dx+dy*dy)) > rr {
				continue
			}
			for h := range idx.cells[Cell{X: x + dx, Y: y + dy}] {
				seen[h] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]buildings.Handle, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	return out
}

// Covers reports whether handle h covers cell (x, y).
func (idx *Index) Covers(h buildings.Handle, x, y int) bool {
	_, ok := idx.entries[h][Cell{X: x, Y: y}]
	return ok
}

// CellsOf returns how many cells a building covers. Zero means absent.
func (idx *Index) CellsOf(h buildings.Handle) int {
	return len(idx.entries[h])
}

// CellCount returns the number of non-empty cell entries.
func (idx *Index) CellCount() int { return len(idx.cells) }

// Reset drops all contents. Used after bulk imports.
func (idx *Index) Reset() {
	idx.cells = make(map[Cell]map[buildings.Handle]struct{})
	idx.entries = make(map[buildings.Handle]map[Cell]struct{})
}
