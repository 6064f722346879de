package engine

import (
	"github.com/pgsync-io/pgsync/internal/config"
	"github.com/pgsync-io/pgsync/internal/transform"
	"github.com/pgsync-io/pgsync/internal/tree"
)

// applyTransforms walks every node of t over a synthesized document, applying each
// node's rename/replace/concat in place and queuing its move rules, which address the
// document by label path from the root (spec.md §4.3) and so can only run once every
// node's rename/replace/concat has already settled the final key names.
func applyTransforms(t *tree.Tree, doc map[string]interface{}) error {
	type pendingMove struct {
		path []string
		node *tree.Node
	}
	var moves []pendingMove

	var walk func(n *tree.Node, m map[string]interface{}, path []string) error
	walk = func(n *tree.Node, m map[string]interface{}, path []string) error {
		transform.Apply(m, n.Transform)
		if n.Transform != nil && len(n.Transform.Move) > 0 {
			moves = append(moves, pendingMove{path: path, node: n})
		}

		for _, child := range t.Children(n) {
			v, ok := m[child.Label]
			if !ok || v == nil {
				continue
			}
			childPath := append(append([]string{}, path...), child.Label)
			if child.Relationship != nil && child.Relationship.Type == config.TypeOneToMany {
				list, ok := v.([]interface{})
				if !ok {
					continue
				}
				for _, elem := range list {
					obj, ok := elem.(map[string]interface{})
					if !ok {
						continue
					}
					if err := walk(child, obj, childPath); err != nil {
						return err
					}
				}
				continue
			}
			obj, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			if err := walk(child, obj, childPath); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(t.Root(), doc, nil); err != nil {
		return err
	}

	for _, pm := range moves {
		for _, rule := range pm.node.Transform.Move {
			if err := transform.Move(doc, pm.path, rule); err != nil {
				return err
			}
		}
	}
	return nil
}
