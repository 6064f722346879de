package tree

import (
	"fmt"

	"github.com/pgsync-io/pgsync/internal/config"
	"github.com/pgsync-io/pgsync/internal/errs"
	"github.com/pgsync-io/pgsync/internal/pgcat"
)

// RequiredTables returns every (schema, table) pair the sync touches — every node
// placement plus every through-table named on a relationship — so the caller can reflect
// exactly those tables before calling Build.
func RequiredTables(sync config.Sync) []pgcat.TableKey {
	seen := make(map[pgcat.TableKey]bool)
	var out []pgcat.TableKey
	add := func(k pgcat.TableKey) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	var walk func(n config.Node)
	walk = func(n config.Node) {
		add(pgcat.TableKey{Schema: n.SchemaName(), Table: n.Table})
		if n.Relationship != nil {
			for _, through := range n.Relationship.ThroughTables {
				add(pgcat.TableKey{Schema: n.SchemaName(), Table: through})
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(sync.Nodes)
	return out
}

// Build validates and constructs the Schema Tree for sync against cat, which must already
// cover every key returned by RequiredTables(sync).
func Build(sync config.Sync, cat *pgcat.Catalog) (*Tree, error) {
	t := &Tree{Catalog: cat, byKey: make(map[pgcat.TableKey][]int)}

	root, err := t.addNode(sync.Nodes, -1, nil, nil)
	if err != nil {
		return nil, err
	}
	t.RootID = root

	return t, nil
}

// addNode resolves cfg (and recursively its children) into the arena, returning the new
// node's ID. parentID is -1 for the root; parentKey/parentTable are nil in that case.
func (t *Tree) addNode(cfg config.Node, parentID int, parentKey *pgcat.TableKey, parentTable *pgcat.Table) (int, error) {
	key := pgcat.TableKey{Schema: cfg.SchemaName(), Table: cfg.Table}
	table, ok := t.Catalog.Tables[key]
	if !ok {
		return 0, errs.New(errs.UnknownTable, fmt.Sprintf("table %q was not reflected", key))
	}

	if parentID < 0 && cfg.Relationship != nil {
		return 0, errs.New(errs.InvalidSchema, "root node must not declare a relationship")
	}
	if parentID >= 0 && cfg.Relationship == nil {
		return 0, errs.New(errs.MissingRelationship, fmt.Sprintf("node %q has no parent relationship", key))
	}

	cols, err := columnsForTable(cfg.Columns, table)
	if err != nil {
		return 0, err
	}

	n := &Node{
		ID:         len(t.Nodes),
		ParentID:   parentID,
		Key:        key,
		Label:      cfg.LabelName(),
		PrimaryKey: table.PrimaryKey,
		Columns:    cols,
		Transform:  cfg.Transform,
	}

	if cfg.Relationship != nil {
		rel, err := resolveRelationship(t.Catalog, *parentKey, key, *cfg.Relationship)
		if err != nil {
			return 0, err
		}
		n.Relationship = rel
	}

	t.Nodes = append(t.Nodes, n)
	t.byKey[key] = append(t.byKey[key], n.ID)
	if parentID >= 0 {
		parent := t.Nodes[parentID]
		parent.ChildIDs = append(parent.ChildIDs, n.ID)
	}

	seenLabels := make(map[string]bool)
	for _, childCfg := range cfg.Children {
		label := childCfg.LabelName()
		if seenLabels[label] {
			return 0, errs.New(errs.InvalidSchema, fmt.Sprintf("duplicate child label %q under %q", label, key))
		}
		seenLabels[label] = true

		if _, err := t.addNode(childCfg, n.ID, &key, table); err != nil {
			return 0, err
		}
	}

	return n.ID, nil
}

// resolveRelationship validates rel's declared shape and resolves its FK chain — parent,
// through through-tables (if any), to child — into an ordered JoinPlan.
func resolveRelationship(cat *pgcat.Catalog, parent, child pgcat.TableKey, rel config.Relationship) (*Relationship, error) {
	if rel.Variant != config.VariantObject && rel.Variant != config.VariantScalar {
		return nil, errs.New(errs.MissingRelationship, fmt.Sprintf("relationship on %q has no valid variant", child))
	}
	if rel.Type != config.TypeOneToOne && rel.Type != config.TypeOneToMany {
		return nil, errs.New(errs.MissingRelationship, fmt.Sprintf("relationship on %q has no valid type", child))
	}

	throughs := make([]pgcat.TableKey, 0, len(rel.ThroughTables))
	for _, name := range rel.ThroughTables {
		throughs = append(throughs, pgcat.TableKey{Schema: child.Schema, Table: name})
	}

	chain := make([]pgcat.TableKey, 0, len(throughs)+2)
	chain = append(chain, parent)
	chain = append(chain, throughs...)
	chain = append(chain, child)

	seen := make(map[pgcat.TableKey]bool, len(chain))
	for _, k := range chain {
		if seen[k] {
			return nil, errs.New(errs.CycleDetected, fmt.Sprintf("through-table chain for %q revisits %q", child, k))
		}
		seen[k] = true
	}

	var steps []JoinStep
	for i := 0; i < len(chain)-1; i++ {
		from, to := chain[i], chain[i+1]
		var fromCols, toCols []string

		if rel.ForeignKey != nil && len(chain) == 2 {
			fromCols, toCols = rel.ForeignKey.Parent, rel.ForeignKey.Child
		} else {
			candidates := cat.ForeignKeysBetween(from, to)
			switch len(candidates) {
			case 0:
				return nil, errs.New(errs.UnreachableNode, fmt.Sprintf("no foreign key connects %q to %q", from, to))
			case 1:
				fromCols, toCols = columnsFor(candidates[0], from, to)
			default:
				return nil, errs.New(errs.AmbiguousForeignKey, fmt.Sprintf("multiple foreign keys connect %q to %q", from, to))
			}
		}

		steps = append(steps, JoinStep{From: from, To: to, FromColumns: fromCols, ToColumns: toCols})
	}

	return &Relationship{Variant: rel.Variant, Type: rel.Type, Throughs: throughs, JoinPlan: steps}, nil
}

// columnsFor orients fk's column lists so the first return value names a's columns and
// the second names b's, regardless of which side of the constraint a happens to be.
func columnsFor(fk pgcat.ForeignKey, a, b pgcat.TableKey) (aCols, bCols []string) {
	if fk.Child == a {
		return fk.ChildColumns, fk.ParentColumns
	}
	return fk.ParentColumns, fk.ChildColumns
}
