package maps

import (
	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/world"
)

// BattlegroundData is the battleground-only state of a map.
type BattlegroundData struct {
	closing bool
}

// Closing reports whether SetUnload has been called.
func (d *BattlegroundData) Closing() bool { return d.closing }

func (m *Map) battlegroundCannotEnter(p *world.Object) EnterState {
	if m.inMap(p) {
		return CannotEnterAlreadyInMap
	}
	if p.Player.BattlegroundID != m.instanceID {
		return CannotEnterInstanceBindMismatch
	}
	return CanEnter
}

// SetUnload closes a battleground on the next update once it is empty.
func (m *Map) SetUnload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.battleground != nil {
		m.battleground.closing = true
	}
	m.unloadTimer = grid.MinUnloadDelay
}

// RemoveAllPlayers flags every player inside for teleport out. The session
// layer moves them and calls RemovePlayerFromMap.
func (m *Map) RemoveAllPlayers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h := range m.players {
		if p := m.objectLocked(h); p != nil {
			p.Player.PendingTeleport = true
		}
	}
}
