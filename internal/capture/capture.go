package capture

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pglogrepl"
	"github.com/rs/zerolog/log"
)

// Capture owns the Queue and the two goroutines feeding it, mirroring the shape of the
// teacher's run command (pkg/cmd/run/connector.go: launch the follower in a goroutine,
// consume the cache in the foreground). Run launches both producers and returns
// immediately; callers drain the returned Queue themselves.
type Capture struct {
	Queue *Queue

	listener *Listener
	follower *Follower
}

// New builds a Capture over two already-established connections: listenConn is an
// ordinary connection used for LISTEN, replConn was established with the replication
// protocol option and is used for the logical decoding stream. Neither connection is
// safe to share with any other caller afterward.
func New(ctx context.Context, listenConn, replConn *pgconn.PgConn, database string) *Capture {
	queue := NewQueue(ctx)
	return &Capture{
		Queue:    queue,
		listener: NewListener(listenConn, database, queue),
		follower: NewFollower(replConn, database, queue),
	}
}

// Run starts the notification listener and replication follower in their own goroutines.
// Either can fail independently; failures are logged rather than propagated, matching the
// teacher's own "stopped" log-and-continue treatment of follower errors, since spec.md
// §4.3 treats the two paths as redundant (the replication path exists precisely to cover
// gaps the trigger path misses).
func (c *Capture) Run(ctx context.Context, startpos pglogrepl.LSN) {
	go func() {
		if err := c.listener.Listen(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("notification listener stopped")
		}
	}()
	go func() {
		if err := c.follower.Follow(ctx, startpos); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("replication follower stopped")
		}
	}()
}
