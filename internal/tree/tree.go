// Package tree builds the validated Schema Tree of spec.md §4.1 from a parsed
// config.Sync and a reflected pgcat.Catalog: one Node per document placement, each
// carrying its resolved primary key, column projection, and — for every non-root node —
// a join_plan connecting it back to its parent through any declared through-tables.
//
// Grounded on the original's pgsync/node.py Node/Tree dataclasses and the teacher's
// pgschema.Schema, which plays the same "reflection is truth" role for a single table.
package tree

import (
	"github.com/pgsync-io/pgsync/internal/config"
	"github.com/pgsync-io/pgsync/internal/pgcat"
)

// JoinStep is one hop of a node's join_plan: From and To name reflected tables, and
// FromColumns/ToColumns are the matching FK column lists, in order.
type JoinStep struct {
	From        pgcat.TableKey
	To          pgcat.TableKey
	FromColumns []string
	ToColumns   []string
}

// Relationship is the resolved (not merely declared) link from a node to its parent.
type Relationship struct {
	Variant  config.RelationshipVariant
	Type     config.RelationshipType
	Throughs []pgcat.TableKey
	JoinPlan []JoinStep
}

// Node is one table placement in the tree. The root has ParentID -1 and a nil
// Relationship; every other node has both.
type Node struct {
	ID           int
	ParentID     int
	ChildIDs     []int
	Key          pgcat.TableKey
	Label        string
	PrimaryKey   []string
	Columns      []Column
	Relationship *Relationship
	Transform    *config.Transform
}

func (n *Node) IsRoot() bool { return n.ParentID < 0 }

// Tree is a fully validated, reflection-backed document tree for one Sync.
type Tree struct {
	Nodes   []*Node
	RootID  int
	Catalog *pgcat.Catalog

	byKey map[pgcat.TableKey][]int
}

func (t *Tree) Root() *Node { return t.Nodes[t.RootID] }

func (t *Tree) Node(id int) *Node { return t.Nodes[id] }

func (t *Tree) Children(n *Node) []*Node {
	out := make([]*Node, 0, len(n.ChildIDs))
	for _, id := range n.ChildIDs {
		out = append(out, t.Nodes[id])
	}
	return out
}

// Lookup returns every node placed at (schema, table); the same table may appear at
// several independent positions (spec.md §4.1 invariant).
func (t *Tree) Lookup(key pgcat.TableKey) []*Node {
	ids := t.byKey[key]
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.Nodes[id])
	}
	return out
}

// DepthFirst returns every node in pre-order (root first, then each subtree).
func (t *Tree) DepthFirst() []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		out = append(out, n)
		for _, c := range t.Children(n) {
			walk(c)
		}
	}
	walk(t.Root())
	return out
}

// PostOrder returns every node with every subtree visited before its own parent
// (bottom-up order).
func (t *Tree) PostOrder() []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		for _, c := range t.Children(n) {
			walk(c)
		}
		out = append(out, n)
	}
	walk(t.Root())
	return out
}
