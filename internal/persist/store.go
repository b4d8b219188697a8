package persist

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/warheadgo/server/internal/maps"
)

// Store groups the map-state repos.
type Store struct {
	db        *DB
	Respawns  *RespawnRepo
	Corpses   *CorpseRepo
	Instances *InstanceRepo
}

func NewStore(db *DB) *Store {
	return &Store{
		db:        db,
		Respawns:  NewRespawnRepo(db),
		Corpses:   NewCorpseRepo(db),
		Instances: NewInstanceRepo(db),
	}
}

// Flush applies everything drained from the maps in one transaction.
func (s *Store) Flush(ctx context.Context, p maps.Persistence) error {
	if p.Empty() {
		return nil
	}
	return s.db.InTx(ctx, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		queueRespawns(b, p.Respawns)
		queueCorpses(b, p.Corpses)
		queueInstances(b, p.Instances)
		return sendBatch(ctx, tx, b)
	})
}
