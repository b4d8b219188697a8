package system

import (
	"time"

	coresys "github.com/warheadgo/server/internal/core/system"
	"github.com/warheadgo/server/internal/maps"
)

// MapUpdateSystem advances every live map by the tick length. Phase 2 (Update).
type MapUpdateSystem struct {
	mgr *maps.Manager
}

func NewMapUpdateSystem(mgr *maps.Manager) *MapUpdateSystem {
	return &MapUpdateSystem{mgr: mgr}
}

func (s *MapUpdateSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *MapUpdateSystem) Update(dt time.Duration) {
	s.mgr.Update(int(dt / time.Millisecond))
}
