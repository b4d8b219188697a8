package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/warheadgo/server/internal/maps"
	"github.com/warheadgo/server/internal/world"
)

type InstanceRepo struct {
	db *DB
}

func NewInstanceRepo(db *DB) *InstanceRepo {
	return &InstanceRepo{db: db}
}

// LoadInstance returns the saved state of an instance id.
func (r *InstanceRepo) LoadInstance(ctx context.Context, instanceID uint32) (maps.InstanceSave, bool, error) {
	var (
		s    = maps.InstanceSave{InstanceID: instanceID}
		diff int16
	)
	err := r.db.Pool.QueryRow(ctx,
		`SELECT map_id, difficulty, save_token, data FROM instance WHERE instance_id = $1`, instanceID,
	).Scan(&s.MapID, &diff, &s.Save, &s.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return maps.InstanceSave{}, false, nil
	}
	if err != nil {
		return maps.InstanceSave{}, false, fmt.Errorf("load instance %d: %w", instanceID, err)
	}
	s.Difficulty = world.Difficulty(diff)
	return s, true, nil
}

// NextInstanceID returns one past the highest stored instance id.
func (r *InstanceRepo) NextInstanceID(ctx context.Context) (uint32, error) {
	var maxID int64
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(instance_id), 0) FROM instance`,
	).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("max instance id: %w", err)
	}
	return uint32(maxID) + 1, nil
}

// Apply writes a batch of instance saves and deletes in one transaction.
func (r *InstanceRepo) Apply(ctx context.Context, ws []maps.InstanceWrite) error {
	if len(ws) == 0 {
		return nil
	}
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		queueInstances(b, ws)
		return sendBatch(ctx, tx, b)
	})
}

func queueInstances(b *pgx.Batch, ws []maps.InstanceWrite) {
	ws = compact(ws, func(w maps.InstanceWrite) (uint32, scope, bool) {
		return w.InstanceID, scope{}, false
	})
	for _, w := range ws {
		if w.Delete {
			b.Queue(`DELETE FROM instance WHERE instance_id = $1`, w.InstanceID)
			continue
		}
		b.Queue(`INSERT INTO instance (instance_id, map_id, difficulty, save_token, data, updated_at)
			 VALUES ($1, $2, $3, $4, $5, now())
			 ON CONFLICT (instance_id) DO UPDATE SET
			   map_id = EXCLUDED.map_id, difficulty = EXCLUDED.difficulty,
			   save_token = EXCLUDED.save_token, data = EXCLUDED.data, updated_at = now()`,
			w.InstanceID, w.MapID, int16(w.Difficulty), w.Save, w.Data)
	}
}
