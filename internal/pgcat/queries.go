package pgcat

// Reflection queries. Grounded on the teacher's pkg/pgschema/queries.go, generalized to
// be schema-aware (the teacher only ever reflected a single unqualified namespace) since
// spec.md §3.2 lets every Node declare its own schema.

const querySchemaExists = `
SELECT EXISTS (
	SELECT 1 FROM pg_catalog.pg_namespace WHERE nspname = $1
);
`

const queryTableOID = `
SELECT c.oid
FROM   pg_catalog.pg_class c
JOIN   pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE  n.nspname = $1
AND    c.relname = $2
AND    c.relkind IN ('r', 'p');
`

const queryColumns = `
SELECT a.attname, a.attnum
FROM   pg_catalog.pg_attribute a
WHERE  a.attrelid = $1
AND    a.attnum > 0
AND    NOT a.attisdropped
ORDER BY a.attnum;
`

const queryPrimaryKey = `
SELECT a.attnum, a.attname
FROM   pg_catalog.pg_index i
JOIN   pg_catalog.pg_attribute a
       ON a.attrelid = i.indrelid
      AND a.attnum = ANY(i.indkey)
WHERE  i.indrelid = $1
AND    i.indisprimary
ORDER BY array_position(i.indkey, a.attnum);
`

// queryForeignKeys returns every FK constraint whose child table is oid $1, scoped by
// the catalog so ambiguity detection (spec.md §4.1 AmbiguousForeignKey) sees every
// candidate between the same pair of tables.
const queryForeignKeys = `
SELECT con.conname,
       ns.nspname                AS child_schema,
       cl.relname                AS child_table,
       array_agg(att.attname ORDER BY u.ord)  AS child_columns,
       fns.nspname               AS parent_schema,
       fcl.relname               AS parent_table,
       array_agg(fatt.attname ORDER BY u.ord) AS parent_columns
FROM   pg_catalog.pg_constraint con
JOIN   pg_catalog.pg_class cl ON cl.oid = con.conrelid
JOIN   pg_catalog.pg_namespace ns ON ns.oid = cl.relnamespace
JOIN   pg_catalog.pg_class fcl ON fcl.oid = con.confrelid
JOIN   pg_catalog.pg_namespace fns ON fns.oid = fcl.relnamespace
JOIN   LATERAL unnest(con.conkey) WITH ORDINALITY AS u(attnum, ord) ON true
JOIN   pg_catalog.pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = u.attnum
JOIN   pg_catalog.pg_attribute fatt ON fatt.attrelid = con.confrelid
       AND fatt.attnum = con.confkey[u.ord]
WHERE  con.contype = 'f'
AND    con.conrelid = $1
GROUP BY con.conname, ns.nspname, cl.relname, fns.nspname, fcl.relname;
`

// queryHasPrivilege checks whether the connected role is either a superuser or holds
// the replication attribute, required by the Installer (spec.md §4.5).
const queryHasPrivilege = `
SELECT rolsuper OR rolreplication
FROM   pg_catalog.pg_roles
WHERE  rolname = current_user;
`
