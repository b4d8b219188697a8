package grid

import "github.com/warheadgo/server/internal/core/ecs"

// MinUnloadDelay is the smallest number of idle ticks before a grid may unload.
const MinUnloadDelay = 1

// MaxBuckets bounds the number of per-type buckets a cell holds.
const MaxBuckets = 8

// Bucket selects one per-type container inside a cell.
type Bucket uint8

// State is the lifecycle state of one grid coordinate.
type State uint8

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateUnloading
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateUnloading:
		return "unloading"
	}
	return "invalid"
}

type cell struct {
	buckets [MaxBuckets]map[ecs.EntityID]struct{}
}

// NGrid is one loaded grid: a square of cells bucketing object handles by type.
// Owned by its map; never shared across maps.
type NGrid struct {
	coord GridCoord
	state State
	cells []cell
	side  int

	objectDataLoaded bool

	players    int // players currently placed in this grid
	activeRefs int // active non-player objects placed in this grid
	idleTicks  int

	unloadExplicitLock bool
	unloadActiveLock   int // held while the grid is the target of a visit
}

// NewNGrid creates an empty grid in the Loading state.
func NewNGrid(coord GridCoord, cellsPerGrid int) *NGrid {
	return &NGrid{
		coord: coord,
		state: StateLoading,
		cells: make([]cell, cellsPerGrid*cellsPerGrid),
		side:  cellsPerGrid,
	}
}

func (g *NGrid) Coord() GridCoord    { return g.coord }
func (g *NGrid) State() State        { return g.state }
func (g *NGrid) SetState(s State)    { g.state = s }
func (g *NGrid) IdleTicks() int      { return g.idleTicks }
func (g *NGrid) PlayerCount() int    { return g.players }
func (g *NGrid) ActiveRefCount() int { return g.activeRefs }
func (g *NGrid) References() int     { return g.players + g.activeRefs }

func (g *NGrid) ObjectDataLoaded() bool { return g.objectDataLoaded }

func (g *NGrid) SetObjectDataLoaded(loaded bool) { g.objectDataLoaded = loaded }

// SetUnloadExplicitLock pins the grid in memory (instances, disabled unload).
func (g *NGrid) SetUnloadExplicitLock(on bool) { g.unloadExplicitLock = on }
func (g *NGrid) UnloadExplicitLock() bool      { return g.unloadExplicitLock }

// IncUnloadActiveLock marks the grid as being visited.
func (g *NGrid) IncUnloadActiveLock() { g.unloadActiveLock++ }

// DecUnloadActiveLock releases a visit mark.
func (g *NGrid) DecUnloadActiveLock() {
	if g.unloadActiveLock > 0 {
		g.unloadActiveLock--
	}
}

func (g *NGrid) IncPlayers() { g.players++ }
func (g *NGrid) DecPlayers() {
	if g.players > 0 {
		g.players--
	}
}
func (g *NGrid) IncActive() { g.activeRefs++ }
func (g *NGrid) DecActive() {
	if g.activeRefs > 0 {
		g.activeRefs--
	}
}

// Touch resets the idle counter; called when something keeps the grid alive.
func (g *NGrid) Touch() { g.idleTicks = 0 }

// Idle advances the idle counter by one tick.
func (g *NGrid) Idle() { g.idleTicks++ }

// CanUnload reports whether the grid has been unreferenced for at least delay
// ticks and nothing pins it.
func (g *NGrid) CanUnload(delay int) bool {
	if g.state != StateLoaded || g.unloadExplicitLock || g.unloadActiveLock > 0 {
		return false
	}
	if g.References() > 0 {
		return false
	}
	return g.idleTicks >= max(delay, MinUnloadDelay)
}

func (g *NGrid) cellAt(cx, cy int) *cell {
	return &g.cells[cy*g.side+cx]
}

// Add inserts h into the bucket of cell (cx, cy).
// Returns false if it was already there.
func (g *NGrid) Add(cx, cy int, b Bucket, h ecs.EntityID) bool {
	c := g.cellAt(cx, cy)
	m := c.buckets[b]
	if m == nil {
		m = make(map[ecs.EntityID]struct{}, 4)
		c.buckets[b] = m
	}
	if _, ok := m[h]; ok {
		return false
	}
	m[h] = struct{}{}
	return true
}

// Remove takes h out of the bucket of cell (cx, cy).
// Returns false if it was not there.
func (g *NGrid) Remove(cx, cy int, b Bucket, h ecs.EntityID) bool {
	m := g.cellAt(cx, cy).buckets[b]
	if _, ok := m[h]; !ok {
		return false
	}
	delete(m, h)
	return true
}

// Has reports whether h sits in the bucket of cell (cx, cy).
func (g *NGrid) Has(cx, cy int, b Bucket, h ecs.EntityID) bool {
	_, ok := g.cellAt(cx, cy).buckets[b][h]
	return ok
}

// VisitCell calls fn for every handle in cell (cx, cy).
func (g *NGrid) VisitCell(cx, cy int, fn func(Bucket, ecs.EntityID)) {
	c := g.cellAt(cx, cy)
	for b := range c.buckets {
		for h := range c.buckets[b] {
			fn(Bucket(b), h)
		}
	}
}

// Each calls fn for every handle in every cell.
func (g *NGrid) Each(fn func(cx, cy int, b Bucket, h ecs.EntityID)) {
	for i := range g.cells {
		cx, cy := i%g.side, i/g.side
		for b := range g.cells[i].buckets {
			for h := range g.cells[i].buckets[b] {
				fn(cx, cy, Bucket(b), h)
			}
		}
	}
}

// Count returns the number of handles in bucket b across the grid.
func (g *NGrid) Count(b Bucket) int {
	n := 0
	for i := range g.cells {
		n += len(g.cells[i].buckets[b])
	}
	return n
}

// CellCount returns the number of handles in cell (cx, cy).
func (g *NGrid) CellCount(cx, cy int) int {
	n := 0
	for _, m := range g.cellAt(cx, cy).buckets {
		n += len(m)
	}
	return n
}

// Empty reports whether no cell holds any handle.
func (g *NGrid) Empty() bool {
	for i := range g.cells {
		for _, m := range g.cells[i].buckets {
			if len(m) > 0 {
				return false
			}
		}
	}
	return true
}
