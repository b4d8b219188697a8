package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	coresys "github.com/warheadgo/server/internal/core/system"
	"github.com/warheadgo/server/internal/maps"
)

// Flusher writes drained map state to storage.
type Flusher interface {
	Flush(ctx context.Context, p maps.Persistence) error
}

// RespawnPersistSystem periodically drains respawn, corpse and instance
// writes from every map and applies them in one transaction. A failed flush
// keeps its writes for the next attempt. Phase 5 (Persist).
type RespawnPersistSystem struct {
	mgr       *maps.Manager
	store     Flusher
	log       *zap.Logger
	tickCount int
	interval  int // flush every N ticks

	retry maps.Persistence
}

func NewRespawnPersistSystem(mgr *maps.Manager, store Flusher, log *zap.Logger, intervalTicks int) *RespawnPersistSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	return &RespawnPersistSystem{
		mgr:      mgr,
		store:    store,
		log:      log,
		interval: intervalTicks,
	}
}

func (s *RespawnPersistSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *RespawnPersistSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.flush()
}

// FlushNow writes everything queued immediately. Called on shutdown after
// the maps are unloaded.
func (s *RespawnPersistSystem) FlushNow() error {
	return s.flush()
}

func (s *RespawnPersistSystem) flush() error {
	p := s.mgr.DrainPersistence()
	p = maps.Persistence{
		Respawns:  append(s.retry.Respawns, p.Respawns...),
		Corpses:   append(s.retry.Corpses, p.Corpses...),
		Instances: append(s.retry.Instances, p.Instances...),
	}
	s.retry = maps.Persistence{}
	if p.Empty() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Flush(ctx, p); err != nil {
		s.retry = p
		s.log.Error("flush map state failed, will retry",
			zap.Int("respawns", len(p.Respawns)),
			zap.Int("corpses", len(p.Corpses)),
			zap.Int("instances", len(p.Instances)),
			zap.Error(err))
		return err
	}
	s.log.Debug("map state flushed",
		zap.Int("respawns", len(p.Respawns)),
		zap.Int("corpses", len(p.Corpses)),
		zap.Int("instances", len(p.Instances)))
	return nil
}
