package transform

import (
	"fmt"
	"strings"

	"github.com/pgsync-io/pgsync/internal/config"
	"github.com/pgsync-io/pgsync/internal/errs"
)

// Move relocates rule.Column out of the node living at sourcePath (its label path from
// the document root, root itself being an empty path) into the object addressed by
// rule.Destination's "$root.a.b" syntax. Called once per move rule, after every node in
// the document has been projected and transformed, since the destination may be an
// entirely different node.
//
// Object variants only: a destination (or source) path that resolves through a
// one_to_many node — a JSON array, not a single object — has no single place to put or
// take the value, so it is reported as a data error rather than guessed at.
func Move(doc map[string]interface{}, sourcePath []string, rule config.MoveRule) error {
	src, err := resolveContainer(doc, sourcePath)
	if err != nil {
		return err
	}
	v, ok := src[rule.Column]
	if !ok {
		return errs.New(errs.TransformRuleMissingColumn, fmt.Sprintf("move source column %q not found", rule.Column))
	}

	destPath, destKey, err := splitDestination(rule.Destination)
	if err != nil {
		return err
	}
	dst, err := resolveContainer(doc, destPath)
	if err != nil {
		return err
	}

	delete(src, rule.Column)
	dst[destKey] = v
	return nil
}

func resolveContainer(doc map[string]interface{}, path []string) (map[string]interface{}, error) {
	cur := doc
	for _, label := range path {
		v, ok := cur[label]
		if !ok {
			return nil, errs.New(errs.TransformRuleMissingColumn, fmt.Sprintf("move path segment %q not found", label))
		}
		obj, ok := v.(map[string]interface{})
		if !ok {
			return nil, errs.New(errs.TransformRuleMissingColumn, fmt.Sprintf("move path segment %q is not a single object (one_to_many node?)", label))
		}
		cur = obj
	}
	return cur, nil
}

func splitDestination(dest string) (path []string, key string, err error) {
	const prefix = "$root."
	if !strings.HasPrefix(dest, prefix) {
		return nil, "", errs.New(errs.InvalidSchema, fmt.Sprintf("move destination %q must start with %q", dest, prefix))
	}
	segments := strings.Split(strings.TrimPrefix(dest, prefix), ".")
	if len(segments) == 0 || segments[len(segments)-1] == "" {
		return nil, "", errs.New(errs.InvalidSchema, fmt.Sprintf("move destination %q is empty", dest))
	}
	return segments[:len(segments)-1], segments[len(segments)-1], nil
}
