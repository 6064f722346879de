package tree

import (
	"fmt"
	"strings"

	"github.com/pgsync-io/pgsync/internal/errs"
)

// PrimaryKeyDelimiter joins composite primary key values into one document id, matching
// original_source/pgsync/constants.py's PRIMARY_KEY_DELIMITER.
const PrimaryKeyDelimiter = "|"

// DocumentID renders root's canonical _id from a decoded document, preserving the column
// order declared by reflection (root.PrimaryKey), per spec.md §6's "Document on the wire".
func DocumentID(root *Node, doc map[string]interface{}) (string, error) {
	parts := make([]string, len(root.PrimaryKey))
	for i, col := range root.PrimaryKey {
		v, ok := doc[col]
		if !ok || v == nil {
			return "", errs.New(errs.UnknownColumn, fmt.Sprintf("document missing primary key column %q", col))
		}
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, PrimaryKeyDelimiter), nil
}

// SplitDocumentID reverses DocumentID, returning root's primary key columns paired with
// their string values in declared order.
func SplitDocumentID(root *Node, id string) (map[string]interface{}, error) {
	parts := strings.Split(id, PrimaryKeyDelimiter)
	if len(parts) != len(root.PrimaryKey) {
		return nil, errs.New(errs.UnknownColumn, fmt.Sprintf("document id %q does not match primary key arity", id))
	}
	out := make(map[string]interface{}, len(parts))
	for i, col := range root.PrimaryKey {
		out[col] = parts[i]
	}
	return out, nil
}
