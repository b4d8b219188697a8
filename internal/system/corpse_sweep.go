package system

import (
	"time"

	coresys "github.com/warheadgo/server/internal/core/system"
	"github.com/warheadgo/server/internal/maps"
)

// CorpseSweepSystem turns expired corpses into bones and removes decayed
// bones every interval ticks. The sweep runs inside each map's next update
// through its action queue. Phase 3 (PostUpdate).
type CorpseSweepSystem struct {
	mgr       *maps.Manager
	tickCount int
	interval  int
}

func NewCorpseSweepSystem(mgr *maps.Manager, intervalTicks int) *CorpseSweepSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	return &CorpseSweepSystem{mgr: mgr, interval: intervalTicks}
}

func (s *CorpseSweepSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *CorpseSweepSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	for _, m := range s.mgr.Maps() {
		m.QueueAction((*maps.Map).RemoveOldCorpses)
	}
}
