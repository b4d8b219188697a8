package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/warheadgo/server/internal/maps"
	"github.com/warheadgo/server/internal/world"
)

type RespawnRepo struct {
	db *DB
}

func NewRespawnRepo(db *DB) *RespawnRepo {
	return &RespawnRepo{db: db}
}

func respawnTable(kind world.SpawnKind) string {
	if kind == world.SpawnGameObject {
		return "gameobject_respawn"
	}
	return "creature_respawn"
}

// LoadRespawnTimes returns the pending respawn deadlines of one map instance.
func (r *RespawnRepo) LoadRespawnTimes(ctx context.Context, mapID, instanceID uint32) (maps.RespawnTimes, error) {
	out := maps.RespawnTimes{
		Creatures:   make(map[uint32]int64),
		GameObjects: make(map[uint32]int64),
	}
	for kind, dst := range map[world.SpawnKind]map[uint32]int64{
		world.SpawnCreature:   out.Creatures,
		world.SpawnGameObject: out.GameObjects,
	} {
		rows, err := r.db.Pool.Query(ctx,
			`SELECT spawn_id, respawn_at FROM `+respawnTable(kind)+`
			 WHERE map_id = $1 AND instance_id = $2`, mapID, instanceID,
		)
		if err != nil {
			return maps.RespawnTimes{}, fmt.Errorf("load %s: %w", respawnTable(kind), err)
		}
		for rows.Next() {
			var spawnID uint32
			var at int64
			if err := rows.Scan(&spawnID, &at); err != nil {
				rows.Close()
				return maps.RespawnTimes{}, fmt.Errorf("scan %s: %w", respawnTable(kind), err)
			}
			dst[spawnID] = at
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return maps.RespawnTimes{}, fmt.Errorf("load %s: %w", respawnTable(kind), err)
		}
	}
	return out, nil
}

// DeleteRespawnTimes wipes both respawn tables for one map instance.
func (r *RespawnRepo) DeleteRespawnTimes(ctx context.Context, mapID, instanceID uint32) error {
	return r.Apply(ctx, []maps.RespawnWrite{{MapID: mapID, InstanceID: instanceID, DeleteAll: true}})
}

// Apply writes a batch of respawn changes in one transaction.
func (r *RespawnRepo) Apply(ctx context.Context, ws []maps.RespawnWrite) error {
	if len(ws) == 0 {
		return nil
	}
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		queueRespawns(b, ws)
		return sendBatch(ctx, tx, b)
	})
}

type respawnKey struct {
	kind    world.SpawnKind
	s       scope
	spawnID uint32
}

func queueRespawns(b *pgx.Batch, ws []maps.RespawnWrite) {
	ws = compact(ws, func(w maps.RespawnWrite) (respawnKey, scope, bool) {
		s := scope{mapID: w.MapID, instanceID: w.InstanceID}
		return respawnKey{kind: w.Kind, s: s, spawnID: w.SpawnID}, s, w.DeleteAll
	})
	for _, w := range ws {
		switch {
		case w.DeleteAll:
			for _, kind := range []world.SpawnKind{world.SpawnCreature, world.SpawnGameObject} {
				b.Queue(`DELETE FROM `+respawnTable(kind)+` WHERE map_id = $1 AND instance_id = $2`,
					w.MapID, w.InstanceID)
			}
		case w.RespawnAt == 0:
			b.Queue(`DELETE FROM `+respawnTable(w.Kind)+` WHERE map_id = $1 AND instance_id = $2 AND spawn_id = $3`,
				w.MapID, w.InstanceID, w.SpawnID)
		default:
			b.Queue(`INSERT INTO `+respawnTable(w.Kind)+` (map_id, instance_id, spawn_id, respawn_at)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (map_id, instance_id, spawn_id) DO UPDATE SET respawn_at = EXCLUDED.respawn_at`,
				w.MapID, w.InstanceID, w.SpawnID, w.RespawnAt)
		}
	}
}

// sendBatch runs every queued statement and reports the first failure.
func sendBatch(ctx context.Context, tx pgx.Tx, b *pgx.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
