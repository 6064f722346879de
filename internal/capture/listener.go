package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"

	"github.com/pgsync-io/pgsync/internal/errs"
)

// triggerPayload mirrors the JSON_BUILD_OBJECT keys the installed notify function emits
// (internal/ddl/triggers.go): {xmin, new, old, indices, tg_op, table, schema}.
type triggerPayload struct {
	Xmin   int64                  `json:"xmin"`
	New    map[string]interface{} `json:"new"`
	Old    map[string]interface{} `json:"old"`
	TgOp   string                 `json:"tg_op"`
	Table  string                 `json:"table"`
	Schema string                 `json:"schema"`
}

// Listener subscribes to a database's notification channel and pushes decoded
// ChangeEvents onto a Queue. The channel name is the database name, matching the
// trigger function's `channel := CURRENT_DATABASE()`.
type Listener struct {
	conn     *pgconn.PgConn
	database string
	queue    *Queue
}

// NewListener wraps conn (an ordinary, non-replication connection) for the trigger path
// of spec.md §4.3.
func NewListener(conn *pgconn.PgConn, database string, queue *Queue) *Listener {
	return &Listener{conn: conn, database: database, queue: queue}
}

// Listen issues LISTEN and blocks, pushing one ChangeEvent per notification until ctx is
// cancelled or the connection is lost.
func (l *Listener) Listen(ctx context.Context) error {
	channel := quoteIdent(l.database)
	if _, err := l.conn.Exec(ctx, fmt.Sprintf("LISTEN %s;", channel)).ReadAll(); err != nil {
		return errs.Wrap(errs.DatabaseConnectionLost, "issue LISTEN", err)
	}

	for {
		notification, err := l.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errs.Wrap(errs.DatabaseConnectionLost, "wait for notification", err)
		}

		ev, err := decodePayload(notification.Payload)
		if err != nil {
			// A malformed payload is a data-class problem with this one event, not
			// the connection; drop it and keep listening rather than tear down the
			// whole capture pipeline over one bad row.
			continue
		}
		l.queue.Push(ev)
	}
}

func decodePayload(payload string) (*ChangeEvent, error) {
	var p triggerPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, errs.Wrap(errs.UnsupportedJSONPath, "decode notification payload", err)
	}
	return &ChangeEvent{
		Xmin:   p.Xmin,
		Schema: p.Schema,
		Table:  p.Table,
		Op:     p.TgOp,
		New:    p.New,
		Old:    p.Old,
	}, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
