package options

import (
	"fmt"
	"os"

	"github.com/pgsync-io/pgsync/internal/config"
)

// ConfigOptions resolves the user-authored schema document (spec.md §2/§6: a tree of
// tables rooted at a pivot) from a file, unless one was already parsed.
type ConfigOptions struct {
	MappingFile string

	Document config.Document
}

// Complete loads and strictly decodes the schema document, unless one was already set.
func (o *ConfigOptions) Complete() error {
	if o.Document != nil {
		return nil
	}
	if o.MappingFile == "" {
		return fmt.Errorf("must provide a schema config file")
	}

	raw, err := os.ReadFile(o.MappingFile)
	if err != nil {
		return err
	}
	doc, err := config.Parse(raw)
	if err != nil {
		return err
	}
	o.Document = doc
	return nil
}
