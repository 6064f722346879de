package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentIDJoinsCompositeKeyInDeclaredOrder(t *testing.T) {
	root := &Node{PrimaryKey: []string{"book_isbn", "author_id"}}
	id, err := DocumentID(root, map[string]interface{}{"author_id": "7", "book_isbn": "978-1"})
	require.NoError(t, err)
	assert.Equal(t, "978-1|7", id)
}

func TestDocumentIDMissingColumnErrors(t *testing.T) {
	root := &Node{PrimaryKey: []string{"isbn"}}
	_, err := DocumentID(root, map[string]interface{}{})
	assert.Error(t, err)
}

func TestSplitDocumentIDRoundTrips(t *testing.T) {
	root := &Node{PrimaryKey: []string{"book_isbn", "author_id"}}
	parts, err := SplitDocumentID(root, "978-1|7")
	require.NoError(t, err)
	assert.Equal(t, "978-1", parts["book_isbn"])
	assert.Equal(t, "7", parts["author_id"])
}
