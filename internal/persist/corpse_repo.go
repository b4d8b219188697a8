package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/warheadgo/server/internal/maps"
	"github.com/warheadgo/server/internal/world"
)

type CorpseRepo struct {
	db *DB
}

func NewCorpseRepo(db *DB) *CorpseRepo {
	return &CorpseRepo{db: db}
}

// LoadCorpses returns the corpses lying in one map instance.
func (r *CorpseRepo) LoadCorpses(ctx context.Context, mapID, instanceID uint32) ([]maps.CorpseRecord, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT owner_guid, pos_x, pos_y, pos_z, orientation, phase_mask, corpse_type, created_at
		 FROM corpse WHERE map_id = $1 AND instance_id = $2`, mapID, instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("load corpses: %w", err)
	}
	defer rows.Close()

	var result []maps.CorpseRecord
	for rows.Next() {
		var (
			owner int64
			kind  int16
			c     = maps.CorpseRecord{MapID: mapID, InstanceID: instanceID}
		)
		if err := rows.Scan(
			&owner, &c.Pos.X, &c.Pos.Y, &c.Pos.Z, &c.Pos.O,
			&c.PhaseMask, &kind, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan corpse: %w", err)
		}
		c.Owner = world.ObjectGuid(owner)
		c.Kind = world.CorpseType(kind)
		result = append(result, c)
	}
	return result, rows.Err()
}

// Apply writes a batch of corpse changes in one transaction.
func (r *CorpseRepo) Apply(ctx context.Context, ws []maps.CorpseWrite) error {
	if len(ws) == 0 {
		return nil
	}
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		queueCorpses(b, ws)
		return sendBatch(ctx, tx, b)
	})
}

func queueCorpses(b *pgx.Batch, ws []maps.CorpseWrite) {
	ws = compact(ws, func(w maps.CorpseWrite) (world.ObjectGuid, scope, bool) {
		return w.Record.Owner, scope{mapID: w.Record.MapID, instanceID: w.Record.InstanceID}, w.DeleteAll
	})
	for _, w := range ws {
		c := w.Record
		switch {
		case w.DeleteAll:
			b.Queue(`DELETE FROM corpse WHERE map_id = $1 AND instance_id = $2`, c.MapID, c.InstanceID)
		case w.Delete:
			b.Queue(`DELETE FROM corpse WHERE owner_guid = $1`, int64(c.Owner))
		default:
			b.Queue(`INSERT INTO corpse (owner_guid, map_id, instance_id, pos_x, pos_y, pos_z, orientation, phase_mask, corpse_type, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				 ON CONFLICT (owner_guid) DO UPDATE SET
				   map_id = EXCLUDED.map_id, instance_id = EXCLUDED.instance_id,
				   pos_x = EXCLUDED.pos_x, pos_y = EXCLUDED.pos_y, pos_z = EXCLUDED.pos_z,
				   orientation = EXCLUDED.orientation, phase_mask = EXCLUDED.phase_mask,
				   corpse_type = EXCLUDED.corpse_type, created_at = EXCLUDED.created_at`,
				int64(c.Owner), c.MapID, c.InstanceID, c.Pos.X, c.Pos.Y, c.Pos.Z, c.Pos.O,
				c.PhaseMask, int16(c.Kind), c.CreatedAt)
		}
	}
}
