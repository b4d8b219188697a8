package maps

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warheadgo/server/internal/world"
)

// MapEntries looks up static map definitions.
type MapEntries interface {
	MapEntry(id uint32) (world.MapEntry, bool)
}

// InstanceWrite is one pending change to the persisted instance table.
type InstanceWrite struct {
	MapID      uint32
	InstanceID uint32
	Difficulty world.Difficulty
	Save       uuid.UUID
	Data       string
	Delete     bool
}

// InstanceSave is the persisted state of one instance.
type InstanceSave struct {
	MapID      uint32
	InstanceID uint32
	Difficulty world.Difficulty
	Save       uuid.UUID
	Data       string
}

// InstanceStore loads persisted instance state.
type InstanceStore interface {
	LoadInstance(ctx context.Context, instanceID uint32) (InstanceSave, bool, error)
}

// Persistence is everything queued for the database since the last drain.
type Persistence struct {
	Respawns  []RespawnWrite
	Corpses   []CorpseWrite
	Instances []InstanceWrite
}

// Empty reports whether nothing is queued.
func (p Persistence) Empty() bool {
	return len(p.Respawns) == 0 && len(p.Corpses) == 0 && len(p.Instances) == 0
}

// ManagerConfig tunes the manager.
type ManagerConfig struct {
	Workers             int // maps updated in parallel; 0 means one per map
	MaxInstancesPerHour int
	FirstInstanceID     uint32
}

// DefaultMaxInstancesPerHour is the hourly cap on distinct instances entered.
const DefaultMaxInstancesPerHour = 5

type mapKey struct {
	mapID      uint32
	instanceID uint32
}

// Manager owns every live map and drives their updates.
type Manager struct {
	log     *zap.Logger
	deps    Deps
	entries MapEntries
	cfg     ManagerConfig

	mu   sync.RWMutex
	maps map[mapKey]*Map

	nextInstanceID atomic.Uint32

	pendingMu sync.Mutex
	pending   Persistence
}

// NewManager creates an empty manager.
func NewManager(deps Deps, entries MapEntries, cfg ManagerConfig) *Manager {
	deps = deps.withDefaults()
	if cfg.MaxInstancesPerHour <= 0 {
		cfg.MaxInstancesPerHour = DefaultMaxInstancesPerHour
	}
	mgr := &Manager{
		log:     deps.Log.Named("maps"),
		deps:    deps,
		entries: entries,
		cfg:     cfg,
		maps:    make(map[mapKey]*Map),
	}
	first := cfg.FirstInstanceID
	if first == 0 {
		first = 1
	}
	mgr.nextInstanceID.Store(first - 1)
	return mgr
}

// GenerateInstanceID returns a fresh instance id.
func (mgr *Manager) GenerateInstanceID() uint32 { return mgr.nextInstanceID.Add(1) }

// FindMap returns a live map. Base maps use instance id 0.
func (mgr *Manager) FindMap(mapID, instanceID uint32) *Map {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return mgr.maps[mapKey{mapID: mapID, instanceID: instanceID}]
}

// Maps returns every live map.
func (mgr *Manager) Maps() []*Map {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	out := make([]*Map, 0, len(mgr.maps))
	for _, m := range mgr.maps {
		out = append(out, m)
	}
	return out
}

// Count returns the number of live maps.
func (mgr *Manager) Count() int {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return len(mgr.maps)
}

// CreateBaseMap returns the shared map of a continent, creating it on first use.
func (mgr *Manager) CreateBaseMap(ctx context.Context, mapID uint32) (*Map, error) {
	entry, ok := mgr.entries.MapEntry(mapID)
	if !ok {
		return nil, fmt.Errorf("create base map %d: unknown map", mapID)
	}
	if entry.Instanceable() {
		return nil, fmt.Errorf("create base map %d: map is instanceable", mapID)
	}
	return mgr.create(ctx, entry, 0, KindBase, world.DifficultyNormal, "")
}

// CreateInstance returns instance instanceID of a dungeon, creating it if
// needed. An id of 0 allocates a new one. saved restores script state.
func (mgr *Manager) CreateInstance(ctx context.Context, mapID, instanceID uint32, diff world.Difficulty, saved string) (*Map, error) {
	entry, ok := mgr.entries.MapEntry(mapID)
	if !ok {
		return nil, fmt.Errorf("create instance of map %d: unknown map", mapID)
	}
	if !entry.IsDungeon() {
		return nil, fmt.Errorf("create instance of map %d: not a dungeon", mapID)
	}
	if !entry.HasDifficulty(diff) {
		diff = world.DifficultyNormal
	}
	if instanceID == 0 {
		instanceID = mgr.GenerateInstanceID()
	}
	return mgr.create(ctx, entry, instanceID, KindInstance, diff, saved)
}

// CreateBattleground creates the map of one battleground match.
func (mgr *Manager) CreateBattleground(ctx context.Context, mapID, instanceID uint32) (*Map, error) {
	entry, ok := mgr.entries.MapEntry(mapID)
	if !ok {
		return nil, fmt.Errorf("create battleground of map %d: unknown map", mapID)
	}
	if !entry.IsBattlegroundOrArena() {
		return nil, fmt.Errorf("create battleground of map %d: not a battleground", mapID)
	}
	if instanceID == 0 {
		instanceID = mgr.GenerateInstanceID()
	}
	return mgr.create(ctx, entry, instanceID, KindBattleground, world.DifficultyNormal, "")
}

func (mgr *Manager) create(ctx context.Context, entry world.MapEntry, instanceID uint32, kind Kind, diff world.Difficulty, saved string) (*Map, error) {
	key := mapKey{mapID: entry.ID, instanceID: instanceID}
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if m, ok := mgr.maps[key]; ok {
		return m, nil
	}
	m := New(entry, instanceID, kind, diff, mgr.deps)
	if err := m.LoadRespawnTimes(ctx); err != nil {
		return nil, fmt.Errorf("create %s: %w", m, err)
	}
	if err := m.LoadCorpseData(ctx); err != nil {
		return nil, fmt.Errorf("create %s: %w", m, err)
	}
	if kind == KindInstance {
		stored, err := mgr.loadInstance(ctx, entry.ID, instanceID)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", m, err)
		}
		if saved == "" {
			saved = stored.Data
		}
		if stored.Save != uuid.Nil {
			m.SetInstanceSave(stored.Save)
		}
		m.CreateInstanceData(saved)
		mgr.queueInstance(InstanceWrite{
			MapID:      m.id,
			InstanceID: instanceID,
			Difficulty: diff,
			Save:       m.instance.Save(),
			Data:       m.InstanceSaveData(),
		})
	}
	mgr.maps[key] = m
	mgr.log.Info("map created", zap.Uint32("map", entry.ID), zap.Uint32("instance", instanceID), zap.Stringer("kind", kind))
	return m, nil
}

func (mgr *Manager) loadInstance(ctx context.Context, mapID, instanceID uint32) (InstanceSave, error) {
	if mgr.deps.Instances == nil {
		return InstanceSave{}, nil
	}
	save, ok, err := mgr.deps.Instances.LoadInstance(ctx, instanceID)
	if err != nil {
		return InstanceSave{}, fmt.Errorf("load instance %d: %w", instanceID, err)
	}
	if !ok || save.MapID != mapID {
		return InstanceSave{}, nil
	}
	return save, nil
}

// PlayerCannotEnter runs the admission checks that do not need the target
// instance, then the instance's own checks when it is live.
func (mgr *Manager) PlayerCannotEnter(mapID uint32, p *world.Object, loginCheck bool) EnterState {
	entry, ok := mgr.entries.MapEntry(mapID)
	if !ok {
		return CannotEnterNoEntry
	}
	if p == nil || p.Player == nil {
		return CannotEnterUnspecifiedReason
	}
	if !entry.Instanceable() {
		return CanEnter
	}
	pd := p.Player
	if entry.IsBattlegroundOrArena() {
		if m := mgr.FindMap(mapID, pd.BattlegroundID); m != nil {
			return m.CannotEnter(p, loginCheck)
		}
		return CannotEnterInstanceBindMismatch
	}
	if entry.Uninstanced {
		return CannotEnterUninstancedDungeon
	}
	diff := pd.Difficulty
	if !entry.HasDifficulty(diff) {
		return CannotEnterDifficultyUnavailable
	}
	if pd.GM {
		return CanEnter
	}
	if entry.IsRaid() && (pd.GroupID == 0 || !pd.GroupIsRaid) {
		return CannotEnterNotInRaid
	}
	if pd.Dead && pd.Corpse != nil && pd.Corpse.MapID != mapID {
		return CannotEnterCorpseInDifferentInstance
	}

	var instanceID uint32
	if b, ok := pd.Bind(mapID, diff); ok {
		instanceID = b.InstanceID
	}
	if !pd.Dead && !mgr.checkInstanceCount(pd, instanceID) {
		return CannotEnterTooManyInstances
	}
	if instanceID != 0 {
		if m := mgr.FindMap(mapID, instanceID); m != nil {
			return m.CannotEnter(p, loginCheck)
		}
	}
	return CanEnter
}

func (mgr *Manager) checkInstanceCount(pd *world.PlayerData, instanceID uint32) bool {
	since := mgr.deps.Clock().Add(-time.Hour)
	if pd.InstancesEnteredSince(since) < mgr.cfg.MaxInstancesPerHour {
		return true
	}
	if instanceID == 0 {
		return false
	}
	at, ok := pd.RecentInstances[instanceID]
	return ok && at.After(since)
}

// MapForPlayer returns the map p should be placed in when entering mapID,
// creating the instance if needed.
func (mgr *Manager) MapForPlayer(ctx context.Context, mapID uint32, p *world.Object) (*Map, EnterState, error) {
	if st := mgr.PlayerCannotEnter(mapID, p, false); st != CanEnter {
		return nil, st, nil
	}
	entry, _ := mgr.entries.MapEntry(mapID)
	pd := p.Player
	switch {
	case !entry.Instanceable():
		m, err := mgr.CreateBaseMap(ctx, mapID)
		return m, CanEnter, err
	case entry.IsBattlegroundOrArena():
		return mgr.FindMap(mapID, pd.BattlegroundID), CanEnter, nil
	}
	diff := pd.Difficulty
	var instanceID uint32
	if b, ok := pd.Bind(mapID, diff); ok {
		instanceID = b.InstanceID
	}
	m, err := mgr.CreateInstance(ctx, mapID, instanceID, diff, "")
	if err != nil {
		return nil, CannotEnterUnspecifiedReason, err
	}
	if st := m.CannotEnter(p, false); st != CanEnter {
		return nil, st, nil
	}
	if instanceID == 0 {
		pd.SetBind(mapID, m.Difficulty(), world.InstanceBind{InstanceID: m.InstanceID(), Save: m.instance.Save()})
	}
	return m, CanEnter, nil
}

// Update advances every map by diff ms on a bounded worker pool, then
// destroys instances whose empty timer ran out.
func (mgr *Manager) Update(diff int) {
	maps := mgr.Maps()
	var g errgroup.Group
	if mgr.cfg.Workers > 0 {
		g.SetLimit(mgr.cfg.Workers)
	}
	for _, m := range maps {
		g.Go(func() error {
			m.Update(diff)
			return nil
		})
	}
	_ = g.Wait()

	for _, m := range maps {
		if m.kind == KindBase {
			continue
		}
		if m.CanUnload(diff) && !m.HavePlayers() {
			mgr.destroy(m)
		}
	}
}

// destroy unloads m and forgets it. Instances flagged for reset lose their
// respawn times, corpses and saved state.
func (mgr *Manager) destroy(m *Map) {
	mgr.mu.Lock()
	delete(mgr.maps, mapKey{mapID: m.id, instanceID: m.instanceID})
	mgr.mu.Unlock()

	m.UnloadAll()
	in := m.instance
	if in != nil && in.ResetAfterUnload() {
		m.DeleteRespawnTimes()
		m.DeleteCorpseData()
	}
	// Writes the map queued itself go first so the final state wins.
	mgr.collect(m)
	if in != nil {
		if in.ResetAfterUnload() {
			mgr.queueInstance(InstanceWrite{MapID: m.id, InstanceID: m.instanceID, Delete: true})
		} else {
			mgr.queueInstance(InstanceWrite{
				MapID:      m.id,
				InstanceID: m.instanceID,
				Difficulty: m.difficulty,
				Save:       in.Save(),
				Data:       m.InstanceSaveData(),
			})
		}
	}
	mgr.log.Info("map destroyed", zap.Uint32("map", m.id), zap.Uint32("instance", m.instanceID))
}

func (mgr *Manager) collect(m *Map) {
	r, c, in := m.DrainRespawnWrites(), m.DrainCorpseWrites(), m.DrainInstanceWrites()
	mgr.pendingMu.Lock()
	mgr.pending.Respawns = append(mgr.pending.Respawns, r...)
	mgr.pending.Corpses = append(mgr.pending.Corpses, c...)
	mgr.pending.Instances = append(mgr.pending.Instances, in...)
	mgr.pendingMu.Unlock()
}

func (mgr *Manager) queueInstance(w InstanceWrite) {
	mgr.pendingMu.Lock()
	mgr.pending.Instances = append(mgr.pending.Instances, w)
	mgr.pendingMu.Unlock()
}

// UnloadAll destroys every map.
func (mgr *Manager) UnloadAll() {
	for _, m := range mgr.Maps() {
		mgr.destroy(m)
	}
}

// DrainPersistence collects the queued writes of every map.
func (mgr *Manager) DrainPersistence() Persistence {
	for _, m := range mgr.Maps() {
		mgr.collect(m)
	}
	mgr.pendingMu.Lock()
	defer mgr.pendingMu.Unlock()
	out := mgr.pending
	mgr.pending = Persistence{}
	return out
}
