package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgsync-io/pgsync/internal/config"
	"github.com/pgsync-io/pgsync/internal/errs"
	"github.com/pgsync-io/pgsync/internal/pgcat"
)

func bookCatalog() *pgcat.Catalog {
	book := pgcat.TableKey{Schema: "public", Table: "book"}
	author := pgcat.TableKey{Schema: "public", Table: "author"}
	bookAuthor := pgcat.TableKey{Schema: "public", Table: "book_author"}

	return &pgcat.Catalog{
		Tables: map[pgcat.TableKey]*pgcat.Table{
			book: {
				Key:        book,
				Columns:    []pgcat.Column{{Name: "isbn", Position: 1}, {Name: "title", Position: 2}, {Name: "description", Position: 3}},
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
			{Name: "book_author_book_fk", Child: bookAuthor, ChildColumns: []string{"book_isbn"}, Parent: book, ParentColumns: []string{"isbn"}},
			{Name: "book_author_author_fk", Child: bookAuthor, ChildColumns: []string{"author_id"}, Parent: author, ParentColumns: []string{"id"}},
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
						Variant:       config.VariantScalar,
						Type:          config.TypeOneToMany,
						ThroughTables: []string{"book_author"},
					},
				},
			},
		},
	}
}

func TestBuildBookAuthorTree(t *testing.T) {
	tr, err := Build(bookSync(), bookCatalog())
	require.NoError(t, err)

	root := tr.Root()
	assert.True(t, root.IsRoot())
	assert.Equal(t, "book", root.Key.Table)
	assert.Equal(t, []string{"isbn"}, root.PrimaryKey)

	children := tr.Children(root)
	require.Len(t, children, 1)

	author := children[0]
	assert.Equal(t, "authors", author.Label)
	require.NotNil(t, author.Relationship)
	assert.Equal(t, config.VariantScalar, author.Relationship.Variant)
	assert.Equal(t, config.TypeOneToMany, author.Relationship.Type)

	require.Len(t, author.Relationship.JoinPlan, 2)
	first := author.Relationship.JoinPlan[0]
	assert.Equal(t, "book", first.From.Table)
	assert.Equal(t, "book_author", first.To.Table)
	assert.Equal(t, []string{"isbn"}, first.FromColumns)
	assert.Equal(t, []string{"book_isbn"}, first.ToColumns)

	second := author.Relationship.JoinPlan[1]
	assert.Equal(t, "book_author", second.From.Table)
	assert.Equal(t, "author", second.To.Table)
	assert.Equal(t, []string{"author_id"}, second.FromColumns)
	assert.Equal(t, []string{"id"}, second.ToColumns)
}

func TestBuildUnknownColumn(t *testing.T) {
	sync := bookSync()
	sync.Nodes.Columns = []string{"isbn", "nope"}

	_, err := Build(sync, bookCatalog())
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.UnknownColumn, kind)
}

func TestBuildMissingRelationship(t *testing.T) {
	sync := bookSync()
	sync.Nodes.Children[0].Relationship = nil

	_, err := Build(sync, bookCatalog())
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.MissingRelationship, kind)
}

func TestBuildAmbiguousForeignKey(t *testing.T) {
	cat := bookCatalog()
	book := pgcat.TableKey{Schema: "public", Table: "book"}
	bookAuthor := pgcat.TableKey{Schema: "public", Table: "book_author"}
	// A second FK between book and book_author makes the first join-plan hop ambiguous.
	cat.ForeignKeys = append(cat.ForeignKeys, pgcat.ForeignKey{
		Name: "book_author_book_fk2", Child: bookAuthor, ChildColumns: []string{"book_isbn"}, Parent: book, ParentColumns: []string{"isbn"},
	})

	_, err := Build(bookSync(), cat)
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.AmbiguousForeignKey, kind)
}

func TestBuildUnreachableNode(t *testing.T) {
	cat := bookCatalog()
	cat.ForeignKeys = nil

	_, err := Build(bookSync(), cat)
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.UnreachableNode, kind)
}

func TestBuildCycleDetected(t *testing.T) {
	sync := bookSync()
	sync.Nodes.Children[0].Relationship.ThroughTables = []string{"book_author", "book"}

	_, err := Build(sync, bookCatalog())
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.CycleDetected, kind)
}

func TestParseJSONPathColumn(t *testing.T) {
	table := bookCatalog().Tables[pgcat.TableKey{Schema: "public", Table: "book"}]
	table.Columns = append(table.Columns, pgcat.Column{Name: "data", Position: 4})

	col, err := parseColumn("data->meta->0", table)
	require.NoError(t, err)
	assert.Equal(t, "data_meta_0", col.OutputKey)
	assert.Equal(t, `(("t"."data" -> 'meta') -> 0)`, col.Expr("t"))
}

func TestParseJSONPathUnknownBaseColumn(t *testing.T) {
	table := bookCatalog().Tables[pgcat.TableKey{Schema: "public", Table: "book"}]

	_, err := parseColumn("missing->key", table)
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.UnknownColumn, kind)
}
