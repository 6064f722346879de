// Package pgcat reflects PostgreSQL's own catalog — columns, primary keys, and foreign
// keys — as the source of truth for the Schema Tree (spec.md §9 "Reflection
// dependency": do not re-derive these from the schema file). Grounded on the teacher's
// pkg/pgschema package, generalized from a single implicit schema to the set of
// (schema, table) pairs a parsed config.Document actually references.
package pgcat

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/pgsync-io/pgsync/internal/errs"
)

// TableKey identifies a table by its Postgres schema and name.
type TableKey struct {
	Schema string
	Table  string
}

func (k TableKey) String() string { return k.Schema + "." + k.Table }

// Column is a single reflected column and its 1-indexed ordinal position.
type Column struct {
	Name     string
	Position int
}

// Table holds everything reflected about one table.
type Table struct {
	Key        TableKey
	OID        uint32
	Columns    []Column
	PrimaryKey []string
}

// HasColumn reports whether name is a real column on this table.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ForeignKey is a single FK constraint between two reflected tables.
type ForeignKey struct {
	Name          string
	Child         TableKey
	ChildColumns  []string
	Parent        TableKey
	ParentColumns []string
}

// Catalog is the reflected subset of the database needed to build a Schema Tree.
type Catalog struct {
	Tables      map[TableKey]*Table
	ForeignKeys []ForeignKey
}

// ForeignKeysBetween returns every FK constraint connecting a and b in either direction.
// More than one result means the tree builder must see an explicit foreign_key override
// (spec.md §4.1 AmbiguousForeignKey).
func (c *Catalog) ForeignKeysBetween(a, b TableKey) []ForeignKey {
	var out []ForeignKey
	for _, fk := range c.ForeignKeys {
		if (fk.Child == a && fk.Parent == b) || (fk.Child == b && fk.Parent == a) {
			out = append(out, fk)
		}
	}
	return out
}

// Reflect builds a Catalog covering exactly the given tables (and every FK whose child
// table is one of them), using a single connection from pool.
func Reflect(ctx context.Context, pool *pgxpool.Pool, tables []TableKey) (*Catalog, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.DatabaseConnectionLost, "acquire reflection connection", err)
	}
	defer conn.Release()

	cat := &Catalog{Tables: make(map[TableKey]*Table, len(tables))}
	schemasChecked := make(map[string]bool)

	for _, key := range tables {
		if !schemasChecked[key.Schema] {
			var exists bool
			if err := conn.QueryRow(ctx, querySchemaExists, key.Schema).Scan(&exists); err != nil {
				return nil, errs.Wrap(errs.DatabaseConnectionLost, "check schema existence", err)
			}
			if !exists {
				return nil, errs.New(errs.UnknownSchema, fmt.Sprintf("schema %q does not exist", key.Schema))
			}
			schemasChecked[key.Schema] = true
		}

		var oid uint32
		if err := conn.QueryRow(ctx, queryTableOID, key.Schema, key.Table).Scan(&oid); err != nil {
			return nil, errs.Wrap(errs.UnknownTable, fmt.Sprintf("table %q not found in reflection", key), err)
		}

		rows, err := conn.Query(ctx, queryColumns, oid)
		if err != nil {
			return nil, errs.Wrap(errs.DatabaseConnectionLost, "reflect columns", err)
		}
		var cols []Column
		for rows.Next() {
			var c Column
			if err := rows.Scan(&c.Name, &c.Position); err != nil {
				rows.Close()
				return nil, errs.Wrap(errs.DatabaseConnectionLost, "scan column", err)
			}
			cols = append(cols, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, errs.Wrap(errs.DatabaseConnectionLost, "reflect columns", err)
		}

		pkRows, err := conn.Query(ctx, queryPrimaryKey, oid)
		if err != nil {
			return nil, errs.Wrap(errs.DatabaseConnectionLost, "reflect primary key", err)
		}
		var pk []string
		for pkRows.Next() {
			var num int
			var name string
			if err := pkRows.Scan(&num, &name); err != nil {
				pkRows.Close()
				return nil, errs.Wrap(errs.DatabaseConnectionLost, "scan primary key", err)
			}
			pk = append(pk, name)
		}
		pkRows.Close()
		if err := pkRows.Err(); err != nil {
			return nil, errs.Wrap(errs.DatabaseConnectionLost, "reflect primary key", err)
		}

		cat.Tables[key] = &Table{Key: key, OID: oid, Columns: cols, PrimaryKey: pk}

		fkRows, err := conn.Query(ctx, queryForeignKeys, oid)
		if err != nil {
			return nil, errs.Wrap(errs.DatabaseConnectionLost, "reflect foreign keys", err)
		}
		for fkRows.Next() {
			var fk ForeignKey
			fk.Child = key
			if err := fkRows.Scan(
				&fk.Name,
				&fk.Child.Schema, &fk.Child.Table, &fk.ChildColumns,
				&fk.Parent.Schema, &fk.Parent.Table, &fk.ParentColumns,
			); err != nil {
				fkRows.Close()
				return nil, errs.Wrap(errs.DatabaseConnectionLost, "scan foreign key", err)
			}
			cat.ForeignKeys = append(cat.ForeignKeys, fk)
		}
		fkRows.Close()
		if err := fkRows.Err(); err != nil {
			return nil, errs.Wrap(errs.DatabaseConnectionLost, "reflect foreign keys", err)
		}
	}

	return cat, nil
}

// HasSuperuserOrReplication reports whether the connected role may install triggers and
// a replication slot (spec.md §4.5 InsufficientPrivilege).
func HasSuperuserOrReplication(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
	var ok bool
	if err := pool.QueryRow(ctx, queryHasPrivilege).Scan(&ok); err != nil {
		return false, errs.Wrap(errs.DatabaseConnectionLost, "check role privilege", err)
	}
	return ok, nil
}
