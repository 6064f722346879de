// Package config decodes and represents the schema document described in spec.md §3:
// a list of Syncs, each rooted at a single pivot Node, with relationships, column
// projections, and transforms. It performs no database access — that is pgcat's job —
// and no tree validation — that is tree's job. This package only owns the document shape
// and its strict decoding.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/pgsync-io/pgsync/internal/errs"
)

const DefaultSchema = "public"

// Document is the top-level schema file: a list of independent Syncs.
type Document []Sync

// Sync binds one pivot tree to one search index.
type Sync struct {
	Database string                 `json:"database"`
	Index    string                 `json:"index,omitempty"`
	Mappings map[string]interface{} `json:"mappings,omitempty"`
	Settings map[string]interface{} `json:"settings,omitempty"`
	Plugins  []string               `json:"plugins,omitempty"`
	Nodes    Node                   `json:"nodes"`
}

// IndexName returns the Sync's target index, defaulting to its database name.
func (s Sync) IndexName() string {
	if s.Index == "" {
		return s.Database
	}
	return s.Index
}

// Node is one table placement in a document tree.
type Node struct {
	Table        string          `json:"table"`
	Schema       string          `json:"schema,omitempty"`
	Columns      []string        `json:"columns,omitempty"`
	Label        string          `json:"label,omitempty"`
	Relationship *Relationship   `json:"relationship,omitempty"`
	Transform    *Transform      `json:"transform,omitempty"`
	Children     []Node          `json:"children,omitempty"`
}

// SchemaName returns the node's Postgres schema, defaulting to "public".
func (n Node) SchemaName() string {
	if n.Schema == "" {
		return DefaultSchema
	}
	return n.Schema
}

// LabelName returns the key the node's value appears under in its parent's document,
// defaulting to the table name.
func (n Node) LabelName() string {
	if n.Label == "" {
		return n.Table
	}
	return n.Label
}

// RelationshipVariant is the shape a child renders as in its parent's document.
type RelationshipVariant string

const (
	VariantObject RelationshipVariant = "object"
	VariantScalar RelationshipVariant = "scalar"
)

// RelationshipType is whether one or many child rows apply per parent row.
type RelationshipType string

const (
	TypeOneToOne  RelationshipType = "one_to_one"
	TypeOneToMany RelationshipType = "one_to_many"
)

// Relationship is required on every non-root node.
type Relationship struct {
	Variant       RelationshipVariant `json:"variant"`
	Type          RelationshipType    `json:"type"`
	ThroughTables []string            `json:"through_tables,omitempty"`
	ForeignKey    *ForeignKey         `json:"foreign_key,omitempty"`
}

// ForeignKey is an explicit override used when more than one FK connects two tables.
type ForeignKey struct {
	Parent []string `json:"parent"`
	Child  []string `json:"child"`
}

// Transform describes the rename/replace/concat/move/mapping rules applied to a node's
// projected row before serialization, in that fixed order (spec.md §3.4).
type Transform struct {
	Rename  map[string]string            `json:"rename,omitempty"`
	Replace map[string]map[string]string `json:"replace,omitempty"`
	Concat  []ConcatRule                  `json:"concat,omitempty"`
	Move    []MoveRule                    `json:"move,omitempty"`
	Mapping map[string]string             `json:"mapping,omitempty"`
}

// ConcatRule joins the values of Columns (in order) with Delimiter into Destination.
type ConcatRule struct {
	Columns     []string `json:"columns"`
	Destination string   `json:"destination"`
	Delimiter   string   `json:"delimiter,omitempty"`
}

// MoveRule relocates Column into another node's namespace, addressed by Destination
// using "$root.a.b" syntax.
type MoveRule struct {
	Column      string `json:"column"`
	Destination string `json:"destination"`
}

// Parse strictly decodes a schema document from YAML or JSON bytes. Unknown keys at any
// level are rejected with errs.InvalidSchema, matching spec.md §6's "Validation is
// strict" requirement.
func Parse(raw []byte) (Document, error) {
	jsonBytes, err := yaml.YAMLToJSON(raw)
	if err != nil {
		return nil, errs.New(errs.InvalidSchema, fmt.Sprintf("invalid YAML/JSON: %v", err))
	}

	var doc Document
	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errs.New(errs.InvalidSchema, fmt.Sprintf("schema document: %v", err))
	}
	if len(doc) == 0 {
		return nil, errs.New(errs.InvalidSchema, "schema document contains no syncs")
	}
	for i, sync := range doc {
		if sync.Database == "" {
			return nil, errs.New(errs.InvalidSchema, fmt.Sprintf("sync %d: database is required", i))
		}
		if sync.Nodes.Table == "" {
			return nil, errs.New(errs.InvalidSchema, fmt.Sprintf("sync %d: nodes.table is required", i))
		}
		if sync.Nodes.Relationship != nil {
			return nil, errs.New(errs.InvalidSchema, fmt.Sprintf("sync %d: root node must not declare a relationship", i))
		}
	}
	return doc, nil
}
