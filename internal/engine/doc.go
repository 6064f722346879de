package engine

import (
	"encoding/json"

	"github.com/jackc/pgx/v4"

	"github.com/pgsync-io/pgsync/internal/errs"
	"github.com/pgsync-io/pgsync/internal/tree"
)

// forEachRow scans the Synthesizer's single "document" jsonb column per row, decoding it
// into a map and handing it to fn. The Synthesizer's cursor streams rows server-side
// (spec.md §4.2: "pivot tables may be arbitrarily large"), so this never materializes the
// whole result set at once.
func forEachRow(rows pgx.Rows, fn func(doc map[string]interface{}) error) error {
	defer rows.Close()
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return wrapTransient(err)
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return errs.Wrap(errs.UnsupportedJSONPath, "decode synthesized document", err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return wrapTransient(err)
	}
	return nil
}

func documentID(root *tree.Node, doc map[string]interface{}) (string, error) {
	return tree.DocumentID(root, doc)
}

// wrapTransient classifies a query/scan failure as a lost connection — the caller retries
// the whole Sync rather than trying to salvage a half-read cursor.
func wrapTransient(err error) error {
	return errs.Wrap(errs.DatabaseConnectionLost, "query synthesized document", err)
}
