package options

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
- database: books
  nodes:
    table: book
`

func TestConfigOptionsCompleteLoadsAndParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchema), 0o600))

	o := &ConfigOptions{MappingFile: path}
	require.NoError(t, o.Complete())
	require.Len(t, o.Document, 1)
	assert.Equal(t, "books", o.Document[0].Database)
}

func TestConfigOptionsCompleteRequiresFile(t *testing.T) {
	o := &ConfigOptions{}
	assert.Error(t, o.Complete())
}
