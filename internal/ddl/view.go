package ddl

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/pgsync-io/pgsync/internal/errs"
	"github.com/pgsync-io/pgsync/internal/pgcat"
)

// ViewSchema is the schema the helper view lives in. Every sync's tables may span
// several schemas, but the view that describes them is created once per database,
// alongside the trigger function, in "public".
const ViewSchema = "public"

const dropView = `DROP MATERIALIZED VIEW IF EXISTS %s CASCADE;`

const dropViewIndex = `DROP INDEX IF EXISTS %s._view_idx;`

const createViewIndex = `CREATE UNIQUE INDEX _view_idx ON %s (table_name);`

// tableRow is one row of the _view materialized view: a table's name plus the primary
// and foreign key column names the trigger function needs to build a notification
// payload, per spec.md §4.5.
type tableRow struct {
	Table      string
	PrimaryKey []string
	ForeignKey []string
}

// CreateViewSQL renders the statement (re)creating the _view materialized view from the
// reflected catalog. Grounded on original_source/pgsync/view.py's create_view, which
// assembles the same table_name/primary_keys/foreign_keys rows via a VALUES list rather
// than a live join against pg_catalog, so that a table dropped mid-run doesn't break the
// trigger function for every other table.
func CreateViewSQL(cat *pgcat.Catalog) string {
	rows := viewRows(cat)

	values := make([]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, fmt.Sprintf(
			"(%s, ARRAY[%s]::text[], ARRAY[%s]::text[])",
			quoteLiteral(r.Table), literalList(r.PrimaryKey), literalList(r.ForeignKey),
		))
	}
	if len(values) == 0 {
		values = append(values, "(NULL, NULL, NULL)")
	}

	return fmt.Sprintf(
		"CREATE MATERIALIZED VIEW %s AS\nSELECT * FROM (VALUES %s) AS t(table_name, primary_keys, foreign_keys);",
		quoteQualified(ViewSchema, ViewName), strings.Join(values, ",\n  "),
	)
}

func viewRows(cat *pgcat.Catalog) []tableRow {
	fkByChild := make(map[pgcat.TableKey][]string)
	for _, fk := range cat.ForeignKeys {
		fkByChild[fk.Child] = append(fkByChild[fk.Child], fk.ChildColumns...)
	}

	rows := make([]tableRow, 0, len(cat.Tables))
	for key, table := range cat.Tables {
		rows = append(rows, tableRow{
			Table:      key.Table,
			PrimaryKey: table.PrimaryKey,
			ForeignKey: fkByChild[key],
		})
	}
	return rows
}

func literalList(values []string) string {
	if len(values) == 0 {
		return ""
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteLiteral(v)
	}
	return strings.Join(quoted, ", ")
}

// RefreshViewSQL renders a statement refreshing the helper view after the set of tables
// a document tree touches has changed (spec.md §4.5: re-run on every bootstrap).
func RefreshViewSQL() string {
	return fmt.Sprintf("REFRESH MATERIALIZED VIEW %s;", quoteQualified(ViewSchema, ViewName))
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteQualified(schema, name string) string {
	return quoteIdent(schema) + "." + quoteIdent(name)
}

// dropHelperView drops and recreates the view from scratch; PostgreSQL has no
// CREATE OR REPLACE MATERIALIZED VIEW.
func dropHelperView(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf(dropView, quoteQualified(ViewSchema, ViewName))); err != nil {
		return errs.Wrap(errs.DatabaseConnectionLost, "drop helper view", err)
	}
	return nil
}
