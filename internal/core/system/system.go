package system

import "time"

// Phase defines execution ordering within a single server tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain cross-goroutine requests
	PhasePreUpdate               // 1: process last tick's events
	PhaseUpdate                  // 2: map updates
	PhasePostUpdate              // 3: corpse sweep, housekeeping
	PhaseOutput                  // 4: outbound notifications
	PhasePersist                 // 5: respawn/corpse writes
	PhaseCleanup                 // 6: unload expired instances

	phaseCount
)

// System is the interface every server system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
