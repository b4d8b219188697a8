package collision

import "github.com/warheadgo/server/internal/core/ecs"

// IgnoreFlags lets a query skip classes of models.
type IgnoreFlags uint8

const (
	IgnoreNothing IgnoreFlags = 0
	IgnoreM2      IgnoreFlags = 1 << 0
)

// LineOfSightChecks selects which geometry a line of sight query consults.
type LineOfSightChecks uint8

const (
	CheckVMap       LineOfSightChecks = 1 << 0 // static map geometry
	CheckGObjectWMO LineOfSightChecks = 1 << 1 // game object building models
	CheckGObjectM2  LineOfSightChecks = 1 << 2 // game object doodads

	CheckGObjectAll = CheckGObjectWMO | CheckGObjectM2
	CheckAll        = CheckVMap | CheckGObjectAll
)

// Model is the collision shape of one game object, owned by the tree while
// inserted. Fields are written only through the tree so queries see a
// consistent snapshot.
type Model struct {
	Owner     ecs.EntityID
	Bounds    AABox
	PhaseMask uint32
	M2        bool

	enabled bool
}

// NewModel creates an enabled model.
func NewModel(owner ecs.EntityID, bounds AABox, phaseMask uint32, m2 bool) *Model {
	return &Model{Owner: owner, Bounds: bounds, PhaseMask: phaseMask, M2: m2, enabled: true}
}

// Enabled reports whether the model blocks rays (a closed door does, an open one does not).
func (m *Model) Enabled() bool { return m.enabled }

func (m *Model) collides(phaseMask uint32, ignore IgnoreFlags) bool {
	if !m.enabled || m.PhaseMask&phaseMask == 0 {
		return false
	}
	return !(m.M2 && ignore&IgnoreM2 != 0)
}

// intersect returns the distance along r to the model, at most maxDist.
func (m *Model) intersect(r Ray, maxDist float32) (float32, bool) {
	loc, inside, ok := hitBox(r, m.Bounds)
	if !ok {
		return 0, false
	}
	if inside {
		return 0, true
	}
	d := loc.Distance(r.Origin)
	if d > maxDist {
		return 0, false
	}
	return d, true
}
