package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgsync-io/pgsync/internal/capture"
	"github.com/pgsync-io/pgsync/internal/config"
	"github.com/pgsync-io/pgsync/internal/pgcat"
	"github.com/pgsync-io/pgsync/internal/tree"
)

func bookCatalog() *pgcat.Catalog {
	book := pgcat.TableKey{Schema: "public", Table: "book"}
	author := pgcat.TableKey{Schema: "public", Table: "author"}
	bookAuthor := pgcat.TableKey{Schema: "public", Table: "book_author"}

	return &pgcat.Catalog{
		Tables: map[pgcat.TableKey]*pgcat.Table{
			book: {
				Key:        book,
				Columns:    []pgcat.Column{{Name: "isbn", Position: 1}, {Name: "title", Position: 2}},
				PrimaryKey: []string{"isbn"},
			},
			author: {
				Key:        author,
				Columns:    []pgcat.Column{{Name: "id", Position: 1}, {Name: "name", Position: 2}},
				PrimaryKey: []string{"id"},
			},
			bookAuthor: {
				Key:        bookAuthor,
				Columns:    []pgcat.Column{{Name: "book_isbn", Position: 1}, {Name: "author_id", Position: 2}},
				PrimaryKey: []string{"book_isbn", "author_id"},
			},
		},
		ForeignKeys: []pgcat.ForeignKey{
			{Name: "ba_book_fk", Child: bookAuthor, ChildColumns: []string{"book_isbn"}, Parent: book, ParentColumns: []string{"isbn"}},
			{Name: "ba_author_fk", Child: bookAuthor, ChildColumns: []string{"author_id"}, Parent: author, ParentColumns: []string{"id"}},
		},
	}
}

func bookSync() config.Sync {
	return config.Sync{
		Database: "books",
		Nodes: config.Node{
			Table: "book",
			Children: []config.Node{
				{
					Table: "author",
					Label: "authors",
					Relationship: &config.Relationship{
						Variant:       config.VariantObject,
						Type:          config.TypeOneToMany,
						ThroughTables: []string{"book_author"},
					},
				},
			},
		},
	}
}

func bookTree(t *testing.T) *tree.Tree {
	t.Helper()
	tr, err := tree.Build(bookSync(), bookCatalog())
	require.NoError(t, err)
	return tr
}

func TestAncestorChainReversesJoinPlanUpToRoot(t *testing.T) {
	tr := bookTree(t)
	authorNode := tr.Lookup(pgcat.TableKey{Schema: "public", Table: "author"})[0]

	chain := ancestorChain(tr, authorNode)
	require.Len(t, chain, 2)

	assert.Equal(t, "author", chain[0].From.Table)
	assert.Equal(t, "book_author", chain[0].To.Table)
	assert.Equal(t, []string{"id"}, chain[0].FromColumns)
	assert.Equal(t, []string{"author_id"}, chain[0].ToColumns)

	assert.Equal(t, "book_author", chain[1].From.Table)
	assert.Equal(t, "book", chain[1].To.Table)
	assert.Equal(t, []string{"book_isbn"}, chain[1].FromColumns)
	assert.Equal(t, []string{"isbn"}, chain[1].ToColumns)
}

func TestAncestorChainEmptyForRoot(t *testing.T) {
	tr := bookTree(t)
	assert.Empty(t, ancestorChain(tr, tr.Root()))
}

func TestProjectPrimaryKeyMissingColumnReturnsNil(t *testing.T) {
	assert.Nil(t, projectPrimaryKey([]string{"isbn"}, map[string]interface{}{"title": "x"}))
}

func TestProjectPrimaryKeyCopiesOnlyNamedColumns(t *testing.T) {
	pk := projectPrimaryKey([]string{"isbn"}, map[string]interface{}{"isbn": "978-1", "title": "x"})
	assert.Equal(t, map[string]interface{}{"isbn": "978-1"}, pk)
}

func TestSignatureIsOrderedByDeclaredColumns(t *testing.T) {
	a := signature(map[string]interface{}{"isbn": "1", "author_id": "2"}, []string{"isbn", "author_id"})
	b := signature(map[string]interface{}{"author_id": "2", "isbn": "1"}, []string{"isbn", "author_id"})
	assert.Equal(t, a, b)
}

func TestResolveRootInsertProducesPivotKey(t *testing.T) {
	tr := bookTree(t)
	e := &Engine{Tree: tr}

	batch, err := e.resolve(context.Background(), []*capture.ChangeEvent{
		{Xmin: 5, Schema: "public", Table: "book", Op: "INSERT", New: map[string]interface{}{"isbn": "978-1"}},
	})
	require.NoError(t, err)
	require.Len(t, batch.pivotKeys, 1)
	assert.Equal(t, "978-1", batch.pivotKeys[0]["isbn"])
	assert.EqualValues(t, 5, batch.maxXmin)
}

func TestResolveRootDeleteProducesRootDelete(t *testing.T) {
	tr := bookTree(t)
	e := &Engine{Tree: tr}

	batch, err := e.resolve(context.Background(), []*capture.ChangeEvent{
		{Xmin: 2, Schema: "public", Table: "book", Op: "DELETE", Old: map[string]interface{}{"isbn": "978-1"}},
	})
	require.NoError(t, err)
	require.Len(t, batch.rootDeletes, 1)
	assert.Equal(t, "978-1", batch.rootDeletes[0])
	assert.Empty(t, batch.pivotKeys)
}

func TestResolveRootTruncateSetsTruncateRoot(t *testing.T) {
	tr := bookTree(t)
	e := &Engine{Tree: tr}

	batch, err := e.resolve(context.Background(), []*capture.ChangeEvent{
		{Xmin: 9, Schema: "public", Table: "book", Op: "TRUNCATE"},
	})
	require.NoError(t, err)
	assert.True(t, batch.truncateRoot)
	assert.False(t, batch.fullResync)
}

func TestResolveNonRootTruncateSetsFullResync(t *testing.T) {
	tr := bookTree(t)
	e := &Engine{Tree: tr}

	batch, err := e.resolve(context.Background(), []*capture.ChangeEvent{
		{Xmin: 9, Schema: "public", Table: "author", Op: "TRUNCATE"},
	})
	require.NoError(t, err)
	assert.False(t, batch.truncateRoot)
	assert.True(t, batch.fullResync)
}

func TestResolveUnknownTableIsIgnored(t *testing.T) {
	tr := bookTree(t)
	e := &Engine{Tree: tr}

	batch, err := e.resolve(context.Background(), []*capture.ChangeEvent{
		{Xmin: 1, Schema: "public", Table: "unrelated", Op: "INSERT", New: map[string]interface{}{"id": "1"}},
	})
	require.NoError(t, err)
	assert.Empty(t, batch.pivotKeys)
	assert.EqualValues(t, 1, batch.maxXmin)
}

func TestApplyTransformsRenamesWithinOneToManyChildren(t *testing.T) {
	tr := bookTree(t)
	authorNode := tr.Lookup(pgcat.TableKey{Schema: "public", Table: "author"})[0]
	authorNode.Transform = &config.Transform{Rename: map[string]string{"name": "full_name"}}

	doc := map[string]interface{}{
		"isbn": "978-1",
		"authors": []interface{}{
			map[string]interface{}{"id": "1", "name": "Ada"},
			map[string]interface{}{"id": "2", "name": "Alan"},
		},
	}

	require.NoError(t, applyTransforms(tr, doc))

	authors := doc["authors"].([]interface{})
	first := authors[0].(map[string]interface{})
	assert.Equal(t, "Ada", first["full_name"])
	_, stillPresent := first["name"]
	assert.False(t, stillPresent)
}

func TestApplyTransformsMoveThroughOneToManyErrors(t *testing.T) {
	tr := bookTree(t)
	authorNode := tr.Lookup(pgcat.TableKey{Schema: "public", Table: "author"})[0]
	authorNode.Transform = &config.Transform{
		Move: []config.MoveRule{{Column: "name", Destination: "$root.author_name"}},
	}

	doc := map[string]interface{}{
		"isbn": "978-1",
		"authors": []interface{}{
			map[string]interface{}{"id": "1", "name": "Ada"},
		},
	}

	assert.Error(t, applyTransforms(tr, doc))
}
