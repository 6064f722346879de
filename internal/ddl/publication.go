package ddl

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/pgsync-io/pgsync/internal/errs"
	"github.com/pgsync-io/pgsync/internal/pgcat"
)

// PublicationName derives the logical replication publication name for a database,
// mirroring SlotName's sanitization so the two always refer to the same sync.
func PublicationName(database string) string {
	return "pgsync_" + sanitize(database)
}

// CreatePublication (re)creates a publication covering exactly the tables in cat, the way
// the teacher's Follow drops and recreates its publication on every startup rather than
// trying to diverge it incrementally (pkg/follow/follower.go).
func CreatePublication(ctx context.Context, pool *pgxpool.Pool, database string, cat *pgcat.Catalog) error {
	name := PublicationName(database)
	if _, err := pool.Exec(ctx, fmt.Sprintf("DROP PUBLICATION IF EXISTS %s;", quoteIdent(name))); err != nil {
		return errs.Wrap(errs.DatabaseConnectionLost, fmt.Sprintf("drop publication %q", name), err)
	}

	tables := make([]string, 0, len(cat.Tables))
	for key := range cat.Tables {
		tables = append(tables, quoteQualified(key.Schema, key.Table))
	}
	if len(tables) == 0 {
		return errs.New(errs.InvalidSchema, "no tables to publish")
	}

	stmt := fmt.Sprintf("CREATE PUBLICATION %s FOR TABLE %s;", quoteIdent(name), strings.Join(tables, ", "))
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return errs.Wrap(errs.DatabaseConnectionLost, fmt.Sprintf("create publication %q", name), err)
	}
	return nil
}

// DropPublication removes the publication for database. Absence is not an error.
func DropPublication(ctx context.Context, pool *pgxpool.Pool, database string) error {
	name := PublicationName(database)
	if _, err := pool.Exec(ctx, fmt.Sprintf("DROP PUBLICATION IF EXISTS %s;", quoteIdent(name))); err != nil {
		return errs.Wrap(errs.DatabaseConnectionLost, fmt.Sprintf("drop publication %q", name), err)
	}
	return nil
}
