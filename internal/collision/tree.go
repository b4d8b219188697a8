package collision

import (
	"math"
	"sync"

	"github.com/warheadgo/server/internal/core/ecs"
)

// BalanceCheckInterval is how often Update rebuilds an unbalanced tree, in ms.
const BalanceCheckInterval = 200

// DynamicTree indexes the collision models of a map's game objects.
// Queries take a shared lock and may run from any goroutine; mutations take
// the exclusive lock. Models inserted since the last Balance are kept on a
// pending list and tested linearly, so an insert is visible to the very next
// query.
type DynamicTree struct {
	mu sync.RWMutex

	live    map[ecs.EntityID]*Model
	pending []*Model
	index   *bih

	unbalanced bool
	elapsed    int
}

// NewDynamicTree creates an empty tree.
func NewDynamicTree() *DynamicTree {
	return &DynamicTree{
		live:  make(map[ecs.EntityID]*Model),
		index: buildBIH(nil),
	}
}

// Insert adds m. Inserting a model already present is a no-op.
func (t *DynamicTree) Insert(m *Model) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.live[m.Owner]; ok && cur == m {
		return
	}
	t.live[m.Owner] = m
	t.pending = append(t.pending, m)
	t.unbalanced = true
}

// Remove drops m. It stops matching queries immediately; the index keeps a
// stale entry until the next Balance, which queries skip.
func (t *DynamicTree) Remove(m *Model) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.live[m.Owner]; !ok || cur != m {
		return
	}
	delete(t.live, m.Owner)
	for i, p := range t.pending {
		if p == m {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			break
		}
	}
	t.unbalanced = true
}

// Contains reports whether m is in the tree.
func (t *DynamicTree) Contains(m *Model) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cur, ok := t.live[m.Owner]
	return ok && cur == m
}

// Size returns the number of live models.
func (t *DynamicTree) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.live)
}

// SetEnabled toggles whether m blocks rays (door open/closed).
func (t *DynamicTree) SetEnabled(m *Model, enabled bool) {
	t.mu.Lock()
	m.enabled = enabled
	t.mu.Unlock()
}

// SetPhaseMask changes the phases m is visible in.
func (t *DynamicTree) SetPhaseMask(m *Model, mask uint32) {
	t.mu.Lock()
	m.PhaseMask = mask
	t.mu.Unlock()
}

// Relocate moves m to new bounds. The index is rebuilt lazily.
func (t *DynamicTree) Relocate(m *Model, bounds AABox) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m.Bounds = bounds
	if _, ok := t.live[m.Owner]; ok {
		t.unbalanced = true
		for _, p := range t.pending {
			if p == m {
				return
			}
		}
		// Indexed node boxes no longer cover m; keep it on the pending list
		// until the rebuild so queries still find it.
		t.pending = append(t.pending, m)
	}
}

// Balance rebuilds the index from the live set.
func (t *DynamicTree) Balance() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balanceLocked()
}

func (t *DynamicTree) balanceLocked() {
	models := make([]*Model, 0, len(t.live))
	for _, m := range t.live {
		models = append(models, m)
	}
	t.index = buildBIH(models)
	t.pending = t.pending[:0]
	t.unbalanced = false
	t.elapsed = 0
}

// Update advances the rebuild timer by diff milliseconds and balances the
// tree once per interval if it changed.
func (t *DynamicTree) Update(diff int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.elapsed += diff
	if t.elapsed < BalanceCheckInterval {
		return
	}
	t.elapsed = 0
	if t.unbalanced {
		t.balanceLocked()
	}
}

// IntersectionTime returns the distance along r to the nearest collidable
// model within maxDist.
func (t *DynamicTree) IntersectionTime(r Ray, maxDist float32, phaseMask uint32, ignore IgnoreFlags) (float32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.intersectLocked(r, maxDist, phaseMask, ignore)
}

func (t *DynamicTree) intersectLocked(r Ray, maxDist float32, phaseMask uint32, ignore IgnoreFlags) (float32, bool) {
	best := maxDist
	found := false
	test := func(m *Model) bool {
		if cur, ok := t.live[m.Owner]; !ok || cur != m {
			return true
		}
		if !m.collides(phaseMask, ignore) {
			return true
		}
		if d, ok := m.intersect(r, best); ok {
			best = d
			found = true
			if d == 0 {
				return false
			}
		}
		return true
	}
	for _, m := range t.pending {
		if !test(m) {
			return 0, true
		}
	}
	t.index.intersect(r, &best, test)
	return best, found
}

// IsInLineOfSight reports whether no model blocks the segment a → b.
func (t *DynamicTree) IsInLineOfSight(a, b Vec3, phaseMask uint32, ignore IgnoreFlags) bool {
	maxDist := a.Distance(b)
	if maxDist < 1e-6 {
		return true
	}
	_, hit := t.IntersectionTime(NewRay(a, b), maxDist, phaseMask, ignore)
	return !hit
}

// ObjectHitPos returns where the segment a → b first meets a model, pushed
// along the segment by modifyDist (negative pulls back towards a). Without a
// hit it returns b.
func (t *DynamicTree) ObjectHitPos(a, b Vec3, phaseMask uint32, modifyDist float32) (Vec3, bool) {
	maxDist := a.Distance(b)
	if maxDist < 1e-6 {
		return b, false
	}
	r := NewRay(a, b)
	d, hit := t.IntersectionTime(r, maxDist, phaseMask, IgnoreNothing)
	if !hit {
		return b, false
	}
	pos := r.At(d)
	if modifyDist < 0 {
		if pos.Distance(a) > -modifyDist {
			pos = pos.Add(r.Dir.Scale(modifyDist))
		} else {
			pos = a
		}
	} else {
		pos = pos.Add(r.Dir.Scale(modifyDist))
	}
	return pos, true
}

// NoHeight is returned by Height when nothing lies below the query point.
var NoHeight = float32(math.Inf(-1))

// Height returns the top of the highest model below (x, y, z) within
// maxSearchDist, or NoHeight.
func (t *DynamicTree) Height(x, y, z, maxSearchDist float32, phaseMask uint32) float32 {
	r := Ray{Origin: Vec3{x, y, z}, Dir: Vec3{0, 0, -1}}
	d, hit := t.IntersectionTime(r, maxSearchDist, phaseMask, IgnoreNothing)
	if !hit {
		return NoHeight
	}
	return z - d
}
