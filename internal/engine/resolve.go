package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgsync-io/pgsync/internal/capture"
	"github.com/pgsync-io/pgsync/internal/pgcat"
	"github.com/pgsync-io/pgsync/internal/tree"
)

// resolvedBatch is what one drained group of capture.ChangeEvents resolves to: either a
// wholesale index wipe (root TRUNCATE), a wholesale re-sync (a non-root TRUNCATE, since
// the truncated rows are already gone by the time this runs and there is no way to
// recover which pivot rows they used to feed), or a set of root primary keys to
// re-synthesize plus a set of root ids to delete outright.
type resolvedBatch struct {
	truncateRoot bool
	fullResync   bool
	maxXmin      int64
	pivotKeys    []map[string]interface{}
	rootDeletes  []string
}

// resolve turns a batch of raw change events into the pivot-level work the Sync Engine
// actually performs, per spec.md §4.4 step 2: "for each event, walk from the changed
// table up to the pivot using the tree's join plan, collecting affected pivot primary
// keys".
func (e *Engine) resolve(ctx context.Context, events []*capture.ChangeEvent) (*resolvedBatch, error) {
	batch := &resolvedBatch{}
	root := e.Tree.Root()
	seen := make(map[string]bool)

	for _, ev := range events {
		if ev.Xmin > batch.maxXmin {
			batch.maxXmin = ev.Xmin
		}

		nodes := e.Tree.Lookup(pgcat.TableKey{Schema: ev.Schema, Table: ev.Table})
		if len(nodes) == 0 {
			continue
		}

		if ev.Op == "TRUNCATE" {
			if nodeIsRoot(nodes, root) {
				batch.truncateRoot = true
			} else {
				batch.fullResync = true
			}
			continue
		}

		row := ev.New
		if row == nil {
			row = ev.Old
		}

		for _, n := range nodes {
			if n == root {
				if ev.Op == "DELETE" {
					id, err := tree.DocumentID(root, ev.Old)
					if err != nil {
						continue
					}
					batch.rootDeletes = append(batch.rootDeletes, id)
					continue
				}
				pk := projectPrimaryKey(root.PrimaryKey, row)
				if pk == nil {
					continue
				}
				if !seen[signature(pk, root.PrimaryKey)] {
					seen[signature(pk, root.PrimaryKey)] = true
					batch.pivotKeys = append(batch.pivotKeys, pk)
				}
				continue
			}

			sourceRow := row
			if ev.Op == "DELETE" {
				sourceRow = ev.Old
			}
			keys, err := e.resolveAncestorPivots(ctx, n, sourceRow)
			if err != nil {
				return nil, err
			}
			for _, pk := range keys {
				sig := signature(pk, root.PrimaryKey)
				if seen[sig] {
					continue
				}
				seen[sig] = true
				batch.pivotKeys = append(batch.pivotKeys, pk)
			}
		}
	}

	return batch, nil
}

func nodeIsRoot(nodes []*tree.Node, root *tree.Node) bool {
	for _, n := range nodes {
		if n == root {
			return true
		}
	}
	return false
}

func projectPrimaryKey(cols []string, row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(cols))
	for _, c := range cols {
		v, ok := row[c]
		if !ok || v == nil {
			return nil
		}
		out[c] = v
	}
	return out
}

func signature(pk map[string]interface{}, cols []string) string {
	var sb strings.Builder
	for _, c := range cols {
		fmt.Fprintf(&sb, "%s=%v;", c, pk[c])
	}
	return sb.String()
}

// reversedJoinPlan walks n's own join_plan backwards: where n.Relationship.JoinPlan runs
// tree-parent -> ... -> n through any through-tables, the reversed chain runs n -> ... ->
// tree-parent, which is the direction the ancestor query actually needs to join in.
func reversedJoinPlan(n *tree.Node) []tree.JoinStep {
	steps := n.Relationship.JoinPlan
	out := make([]tree.JoinStep, len(steps))
	for i, s := range steps {
		out[len(steps)-1-i] = tree.JoinStep{
			From:        s.To,
			To:          s.From,
			FromColumns: s.ToColumns,
			ToColumns:   s.FromColumns,
		}
	}
	return out
}

// ancestorChain composes n's reversed join_plan with every ancestor level's reversed
// join_plan above it, producing one continuous chain from n's own table up to the root's
// table. This is valid because each level's join_plan always starts at that level's own
// tree-parent table and ends at its own table (tree/build.go's resolveRelationship), so
// reversing it starts at the node's table and ends exactly where the next level up begins.
func ancestorChain(t *tree.Tree, n *tree.Node) []tree.JoinStep {
	var chain []tree.JoinStep
	cur := n
	for !cur.IsRoot() {
		chain = append(chain, reversedJoinPlan(cur)...)
		cur = t.Node(cur.ParentID)
	}
	return chain
}

// resolveAncestorPivots queries the database for the root primary key(s) reachable from
// changedRow's identity at node n, walking n's ancestorChain up to the root.
func (e *Engine) resolveAncestorPivots(ctx context.Context, n *tree.Node, changedRow map[string]interface{}) ([]map[string]interface{}, error) {
	pk := projectPrimaryKey(n.PrimaryKey, changedRow)
	if pk == nil {
		return nil, nil
	}

	chain := ancestorChain(e.Tree, n)
	if len(chain) == 0 {
		return nil, nil
	}

	root := e.Tree.Root()
	sql, args := buildAncestorQuery(root, n, chain, pk)
	rows, err := e.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapTransient(err)
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, wrapTransient(err)
		}
		row := make(map[string]interface{}, len(root.PrimaryKey))
		for i, col := range root.PrimaryKey {
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapTransient(err)
	}
	return out, nil
}

func buildAncestorQuery(root, n *tree.Node, chain []tree.JoinStep, pk map[string]interface{}) (string, []interface{}) {
	aliases := make([]string, len(chain)+1)
	for i := range aliases {
		aliases[i] = fmt.Sprintf("a%d", i)
	}

	var args []interface{}
	bind := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	selectCols := make([]string, len(root.PrimaryKey))
	for i, c := range root.PrimaryKey {
		selectCols[i] = qIdent(aliases[len(aliases)-1]) + "." + qIdent(c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s\nFROM %s AS %s", strings.Join(selectCols, ", "), qQualified(chain[0].From), aliases[0])
	for i, step := range chain {
		fmt.Fprintf(&sb, "\nJOIN %s AS %s ON %s", qQualified(step.To), aliases[i+1], eqClause(aliases[i], step.FromColumns, aliases[i+1], step.ToColumns))
	}

	var where []string
	for _, col := range n.PrimaryKey {
		where = append(where, fmt.Sprintf("%s.%s = %s", qIdent(aliases[0]), qIdent(col), bind(pk[col])))
	}
	sb.WriteString("\nWHERE ")
	sb.WriteString(strings.Join(where, " AND "))

	return sb.String(), args
}

func eqClause(aliasA string, colsA []string, aliasB string, colsB []string) string {
	clauses := make([]string, len(colsA))
	for i := range colsA {
		clauses[i] = fmt.Sprintf("%s.%s = %s.%s", qIdent(aliasA), qIdent(colsA[i]), qIdent(aliasB), qIdent(colsB[i]))
	}
	return strings.Join(clauses, " AND ")
}

func qQualified(key pgcat.TableKey) string {
	return qIdent(key.Schema) + "." + qIdent(key.Table)
}

func qIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
