package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func bookTree(t *testing.T) *tree.Tree {
	sync := config.Sync{
		Database: "books",
		Nodes: config.Node{
			Table:   "book",
			Columns: []string{"isbn", "title"},
			Children: []config.Node{
				{
					Table:   "author",
					Label:   "authors",
					Columns: []string{"name"},
					Relationship: &config.Relationship{
						Variant:       config.VariantScalar,
						Type:          config.TypeOneToMany,
						ThroughTables: []string{"book_author"},
					},
				},
			},
		},
	}
	tr, err := tree.Build(sync, bookCatalog())
	require.NoError(t, err)
	return tr
}

func TestBuildFullSyncQuery(t *testing.T) {
	txmin := int64(100)
	sql, args := Build(bookTree(t), Filter{TxMin: &txmin})

	assert.Contains(t, sql, "JSON_BUILD_OBJECT('isbn', \"n1\".\"isbn\", 'title', \"n1\".\"title\", 'authors', n")
	assert.Contains(t, sql, "LEFT JOIN LATERAL")
	assert.Contains(t, sql, "COALESCE(JSON_AGG(")
	assert.Contains(t, sql, `"n1".xmin`) // loose: ensures txmin filter references pivot alias
	assert.Contains(t, sql, "WHERE")
	require.Len(t, args, 1)
	assert.Equal(t, int64(100), args[0])
}

func TestBuildPointedSyncQuery(t *testing.T) {
	sql, args := Build(bookTree(t), Filter{
		PrimaryKeys: []map[string]interface{}{
			{"isbn": "9788374950978"},
			{"isbn": "9781471331435"},
		},
	})

	assert.Contains(t, sql, `"n1"."isbn" IN ($1, $2)`)
	require.Len(t, args, 2)
	assert.Equal(t, "9788374950978", args[0])
}

func TestBuildTupleIDQuery(t *testing.T) {
	sql, args := Build(bookTree(t), Filter{Ctids: []string{"(12,4)", "(12,5)"}})

	assert.Contains(t, sql, "ctid = ANY(ARRAY[$1, $2]::tid[])")
	require.Len(t, args, 2)
}
