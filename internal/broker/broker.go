// Package broker persists the checkpoint spec.md §4.4 advances after every acknowledged
// batch: the monotonic txmin_committed watermark, one per (database, index) Sync.
package broker

import "context"

// Store is the checkpoint contract the Sync Engine reads at startup and writes after
// every Checkpointing transition. Implementations must make Set durable before
// returning — the engine treats a successful Set as "safe to acknowledge upstream".
type Store interface {
	// Get returns the persisted txmin_committed for (database, index), or ok=false if
	// none has ever been written (a fresh sync starts a full backfill from scratch).
	Get(ctx context.Context, database, index string) (txmin int64, ok bool, err error)
	// Set durably persists txmin as the new checkpoint for (database, index).
	Set(ctx context.Context, database, index string, txmin int64) error
	Close() error
}

func key(database, index string) string {
	return "pgsync:checkpoint:" + database + ":" + index
}
