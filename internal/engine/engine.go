// Package engine implements the Sync Engine (spec.md §4.4): the main loop draining the
// Change Capture queue, resolving affected pivot documents, invoking the Synthesizer, and
// submitting the result to the bulk indexer, advancing the checkpoint only once a batch
// has been durably acknowledged.
package engine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/pgsync-io/pgsync/internal/broker"
	"github.com/pgsync-io/pgsync/internal/capture"
	"github.com/pgsync-io/pgsync/internal/config"
	"github.com/pgsync-io/pgsync/internal/indexer"
	"github.com/pgsync-io/pgsync/internal/metrics"
	"github.com/pgsync-io/pgsync/internal/synth"
	"github.com/pgsync-io/pgsync/internal/tree"
)

// State is one node of spec.md §4.4's state machine:
// Idle -> Draining -> Querying -> Indexing -> Checkpointing -> Idle.
type State int

const (
	StateIdle State = iota
	StateDraining
	StateQuerying
	StateIndexing
	StateCheckpointing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDraining:
		return "Draining"
	case StateQuerying:
		return "Querying"
	case StateIndexing:
		return "Indexing"
	case StateCheckpointing:
		return "Checkpointing"
	default:
		return "Unknown"
	}
}

// Engine runs one Sync's main loop.
type Engine struct {
	Sync  config.Sync
	Tree  *tree.Tree
	Queue *capture.Queue

	Pool    *pgxpool.Pool
	Indexer *indexer.Client
	Store   broker.Store

	// ChunkSize bounds how many events are drained per iteration (REDIS_CHUNK_SIZE).
	ChunkSize int

	state          State
	txminCommitted int64
}

// New constructs an Engine, loading its starting checkpoint from store. A Sync that has
// never run starts with txminCommitted == 0 — a full backfill is the caller's job before
// Run begins consuming the live queue.
func New(ctx context.Context, sync config.Sync, t *tree.Tree, queue *capture.Queue, pool *pgxpool.Pool, idx *indexer.Client, store broker.Store, chunkSize int) (*Engine, error) {
	e := &Engine{
		Sync:      sync,
		Tree:      t,
		Queue:     queue,
		Pool:      pool,
		Indexer:   idx,
		Store:     store,
		ChunkSize: chunkSize,
	}
	if txmin, ok, err := store.Get(ctx, sync.Database, sync.IndexName()); err != nil {
		return nil, err
	} else if ok {
		e.txminCommitted = txmin
	}
	return e, nil
}

// State reports the engine's current position in the state machine, for /stat reporting.
func (e *Engine) State() State { return e.state }

// TxminCommitted reports the last durably persisted checkpoint.
func (e *Engine) TxminCommitted() int64 { return e.txminCommitted }

// Status renders one line for metrics.StatusSource's /stat page.
func (e *Engine) Status() string {
	return fmt.Sprintf("%s/%s: %s txmin_committed=%d", e.Sync.Database, e.Sync.IndexName(), e.state, e.txminCommitted)
}

func (e *Engine) setState(s State) {
	e.state = s
	metrics.SetEngineState(e.Sync.Database, e.Sync.IndexName(), int(s))
}

// Run drives the main loop until ctx is cancelled or a step returns an error.
func (e *Engine) Run(ctx context.Context) error {
	for {
		e.setState(StateDraining)
		events := e.Queue.Drain(e.ChunkSize)
		if events == nil {
			return ctx.Err()
		}
		metrics.SetQueueDepth(e.Sync.Database, e.Queue.Len())

		e.setState(StateQuerying)
		batch, err := e.resolve(ctx, events)
		if err != nil {
			return err
		}

		if batch.truncateRoot {
			if err := e.Indexer.DeleteAll(ctx, e.Sync.IndexName()); err != nil {
				return err
			}
			e.advanceCheckpoint(ctx, batch.maxXmin)
			continue
		}

		var actions []indexer.Action
		if batch.fullResync {
			actions, err = e.synthesizeFilter(ctx, synth.Filter{})
		} else {
			actions, err = e.synthesizePivots(ctx, batch.pivotKeys)
		}
		if err != nil {
			return err
		}
		for _, id := range batch.rootDeletes {
			actions = append(actions, indexer.Action{Op: indexer.OpDelete, Index: e.Sync.IndexName(), ID: id})
		}

		if len(actions) == 0 {
			continue
		}

		e.setState(StateIndexing)
		result, err := e.Indexer.Submit(ctx, actions)
		if err != nil {
			return err
		}
		metrics.RecordIndexed(e.Sync.Database, e.Sync.IndexName(), "index", result.Succeeded)
		if len(result.FatalFailures) > 0 {
			metrics.RecordBulkFailure(e.Sync.Database, e.Sync.IndexName(), "fatal", len(result.FatalFailures))
		}

		e.setState(StateCheckpointing)
		if len(result.FatalFailures) > 0 {
			log.Error().Int("count", len(result.FatalFailures)).Str("database", e.Sync.Database).Msg("quarantined fatal bulk failures, checkpoint not advanced")
			e.setState(StateIdle)
			continue
		}
		e.advanceCheckpoint(ctx, batch.maxXmin)
	}
}

func (e *Engine) advanceCheckpoint(ctx context.Context, maxXmin int64) {
	if maxXmin <= e.txminCommitted {
		e.setState(StateIdle)
		return
	}
	if err := e.Store.Set(ctx, e.Sync.Database, e.Sync.IndexName(), maxXmin); err != nil {
		log.Error().Err(err).Msg("failed to persist checkpoint")
		e.setState(StateIdle)
		return
	}
	e.txminCommitted = maxXmin
	metrics.SetTxminCommitted(e.Sync.Database, e.Sync.IndexName(), maxXmin)
	e.setState(StateIdle)
}

func (e *Engine) synthesizePivots(ctx context.Context, pivotKeys []map[string]interface{}) ([]indexer.Action, error) {
	if len(pivotKeys) == 0 {
		return nil, nil
	}
	var actions []indexer.Action
	for _, chunk := range synth.ChunkPrimaryKeys(pivotKeys, synth.FilterChunkSize) {
		chunkActions, err := e.synthesizeFilter(ctx, synth.Filter{PrimaryKeys: chunk})
		if err != nil {
			return nil, err
		}
		actions = append(actions, chunkActions...)
	}
	return actions, nil
}

// synthesizeFilter runs one Synthesizer statement and projects every resulting document
// into an upsert action, applying the Sync's transforms and deriving its _id along the way.
func (e *Engine) synthesizeFilter(ctx context.Context, f synth.Filter) ([]indexer.Action, error) {
	return SynthesizeDocuments(ctx, e.Pool, e.Tree, e.Sync.IndexName(), f)
}

// SynthesizeDocuments runs one Synthesizer statement against pool and projects every
// resulting document into an upsert action, applying t's transforms and deriving each
// document's _id along the way. Exported so parallelsync's backfill workers can drive the
// same query-synthesize-transform pipeline the Sync Engine uses for a pointed sync,
// differing only in which synth.Filter selects the rows.
func SynthesizeDocuments(ctx context.Context, pool *pgxpool.Pool, t *tree.Tree, indexName string, f synth.Filter) ([]indexer.Action, error) {
	sql, args := synth.Build(t, f)
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapTransient(err)
	}

	var actions []indexer.Action
	err = forEachRow(rows, func(doc map[string]interface{}) error {
		if err := applyTransforms(t, doc); err != nil {
			log.Warn().Err(err).Msg("skipping document with transform error")
			return nil
		}
		id, err := documentID(t.Root(), doc)
		if err != nil {
			log.Warn().Err(err).Msg("skipping document with missing primary key")
			return nil
		}
		actions = append(actions, indexer.Action{
			Op:       indexer.OpUpsert,
			Index:    indexName,
			ID:       id,
			Document: doc,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return actions, nil
}
