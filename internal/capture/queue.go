// Package capture implements spec.md §4.3's two ingestion surfaces — the trigger
// notification channel and the logical replication slot — merged into one ordered
// in-process queue that the Sync Engine drains.
package capture

import (
	"context"
	"fmt"
	"sync"
)

// ChangeEvent is one normalized row (or table, for TRUNCATE) change, carrying the
// originating xmin the Sync Engine checkpoints on.
type ChangeEvent struct {
	Xmin   int64
	Schema string
	Table  string
	// Op is one of INSERT, UPDATE, DELETE, TRUNCATE — Postgres's own TG_OP spelling.
	Op  string
	New map[string]interface{}
	Old map[string]interface{}
}

func (e *ChangeEvent) key() string {
	if e.Op == "TRUNCATE" {
		return e.Schema + "." + e.Table + ":truncate"
	}
	row := e.New
	if row == nil {
		row = e.Old
	}
	return e.Schema + "." + e.Table + ":" + pkSignature(row)
}

func pkSignature(row map[string]interface{}) string {
	// Primary/foreign key columns are the only ones either ingestion surface ever
	// carries (spec.md §4.3: full row content is never required), so any populated
	// column is part of the row's identity for coalescing purposes.
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sortStrings(keys)
	sig := ""
	for _, k := range keys {
		sig += k + "=" + toString(row[k]) + ";"
	}
	return sig
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func toString(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Queue is an ordered, coalescing buffer of ChangeEvents shared by the notification
// listener and replication reader goroutines. It has no capacity limit: Push never
// blocks, and the queue grows until Drain takes events out. Grounded on the teacher's
// pkg/cache.Cache (mutex + sync.Cond, dedup-by-key, Broadcast on push and on context
// cancellation), generalized from a relationship dedup cache to a Change Event queue
// keyed by table+row identity: repeat notifications for the same row coalesce into the
// latest event, matching that the Synthesizer always re-reads current state rather than
// trusting payload content (spec.md §4.3).
type Queue struct {
	sync.Mutex
	sync.Cond
	ctx context.Context

	order  []string
	events map[string]*ChangeEvent
}

// NewQueue returns a Queue tied to ctx's lifetime; Drain unblocks and returns nil once ctx
// is cancelled.
func NewQueue(ctx context.Context) *Queue {
	q := &Queue{
		ctx:    ctx,
		order:  make([]string, 0),
		events: make(map[string]*ChangeEvent),
	}
	q.L = q
	go func() {
		<-ctx.Done()
		q.Broadcast()
	}()
	return q
}

// Push appends or coalesces ev into the queue. A TRUNCATE event drops every other queued
// event for the same table first — spec.md §4.3: "a single synthetic event that the Sync
// Engine interprets as delete all documents whose pivot row derived from rows of this
// table", so per-row events queued ahead of it are superseded.
func (q *Queue) Push(ev *ChangeEvent) {
	q.Lock()
	defer q.Unlock()
	defer q.Broadcast()

	if ev.Op == "TRUNCATE" {
		q.dropTable(ev.Schema, ev.Table)
	}

	key := ev.key()
	if _, ok := q.events[key]; !ok {
		q.order = append(q.order, key)
	}
	q.events[key] = ev
}

func (q *Queue) dropTable(schema, table string) {
	prefix := schema + "." + table + ":"
	kept := q.order[:0]
	for _, key := range q.order {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(q.events, key)
			continue
		}
		kept = append(kept, key)
	}
	q.order = kept
}

// Drain blocks until at least one event is queued (or ctx is done) and returns up to max
// events in arrival order, per spec.md §4.4 step 1 ("Drain up to REDIS_CHUNK_SIZE events").
func (q *Queue) Drain(max int) []*ChangeEvent {
	q.Lock()
	defer q.Unlock()
	for len(q.order) == 0 {
		if q.ctx.Err() != nil {
			return nil
		}
		q.Wait()
		if q.ctx.Err() != nil {
			return nil
		}
	}

	n := len(q.order)
	if n > max {
		n = max
	}
	out := make([]*ChangeEvent, 0, n)
	for _, key := range q.order[:n] {
		if ev, ok := q.events[key]; ok {
			out = append(out, ev)
			delete(q.events, key)
		}
	}
	q.order = q.order[n:]
	return out
}

// Len reports the number of distinct events currently queued, for the queue depth gauge.
func (q *Queue) Len() int {
	q.Lock()
	defer q.Unlock()
	return len(q.order)
}
