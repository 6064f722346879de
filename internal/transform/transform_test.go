package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgsync-io/pgsync/internal/config"
	"github.com/pgsync-io/pgsync/internal/errs"
)

func TestApplyRename(t *testing.T) {
	row := map[string]interface{}{"isbn": "123", "title": "Kafka on the Shore"}
	out := Apply(row, &config.Transform{Rename: map[string]string{"isbn": "book_isbn", "title": "book_title"}})

	assert.Equal(t, "123", out["book_isbn"])
	assert.Equal(t, "Kafka on the Shore", out["book_title"])
	_, hasOld := out["isbn"]
	assert.False(t, hasOld)
}

func TestApplyReplaceStringOnly(t *testing.T) {
	row := map[string]interface{}{"code": "A-B-C", "count": 3, "note": nil}
	Apply(row, &config.Transform{Replace: map[string]map[string]string{"code": {"-": "="}}})

	assert.Equal(t, "A=B=C", row["code"])
	assert.Equal(t, 3, row["count"])
	assert.Nil(t, row["note"])
}

func TestApplyConcatMissingColumnIsEmptyString(t *testing.T) {
	row := map[string]interface{}{"first": "Haruki"}
	Apply(row, &config.Transform{Concat: []config.ConcatRule{
		{Columns: []string{"first", "last"}, Destination: "full_name", Delimiter: " "},
	}})

	assert.Equal(t, "Haruki ", row["full_name"])
}

func TestApplyOrderRenameThenConcat(t *testing.T) {
	row := map[string]interface{}{"a": "x", "b": "y"}
	Apply(row, &config.Transform{
		Rename: map[string]string{"a": "aa"},
		Concat: []config.ConcatRule{{Columns: []string{"aa", "b"}, Destination: "ab", Delimiter: "-"}},
	})
	assert.Equal(t, "x-y", row["ab"])
}

func TestMoveRelocatesIntoAnotherNode(t *testing.T) {
	doc := map[string]interface{}{
		"isbn":      "123",
		"publisher": map[string]interface{}{"name": "Vintage"},
	}
	err := Move(doc, nil, config.MoveRule{Column: "isbn", Destination: "$root.publisher.book_isbn"})
	require.NoError(t, err)

	publisher := doc["publisher"].(map[string]interface{})
	assert.Equal(t, "123", publisher["book_isbn"])
	_, hasIsbn := doc["isbn"]
	assert.False(t, hasIsbn)
}

func TestMoveMissingSourceColumn(t *testing.T) {
	doc := map[string]interface{}{"publisher": map[string]interface{}{}}
	err := Move(doc, nil, config.MoveRule{Column: "nope", Destination: "$root.publisher.x"})
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.TransformRuleMissingColumn, kind)
}

func TestMoveThroughOneToManyIsRejected(t *testing.T) {
	doc := map[string]interface{}{
		"isbn":    "123",
		"authors": []interface{}{map[string]interface{}{"name": "Haruki"}},
	}
	err := Move(doc, nil, config.MoveRule{Column: "isbn", Destination: "$root.authors.book_isbn"})
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.TransformRuleMissingColumn, kind)
}
