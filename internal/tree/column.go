package tree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pgsync-io/pgsync/internal/errs"
	"github.com/pgsync-io/pgsync/internal/pgcat"
)

// Column is one projected field of a node, resolved against the reflected table. Most
// columns are plain; JSONB columns carry a chain of ->/->>/#>/#>> hops (spec.md §3.2).
type Column struct {
	Raw        string
	OutputKey  string
	BaseColumn string
	Ops        []string
	Keys       []string
}

var jsonOperator = regexp.MustCompile(`(#>>|#>|->>|->)`)

// parseColumn resolves a raw column spec against table, producing its SQL access chain
// and the pre-rename output key it contributes to the node's document.
func parseColumn(raw string, table *pgcat.Table) (Column, error) {
	ops := jsonOperator.FindAllString(raw, -1)
	if len(ops) == 0 {
		if !table.HasColumn(raw) {
			return Column{}, errs.New(errs.UnknownColumn, fmt.Sprintf("column %q not found on %s", raw, table.Key))
		}
		return Column{Raw: raw, OutputKey: raw, BaseColumn: raw}, nil
	}

	parts := jsonOperator.Split(raw, -1)
	if len(parts) != len(ops)+1 {
		return Column{}, errs.New(errs.UnsupportedJSONPath, fmt.Sprintf("malformed JSON path column %q", raw))
	}
	base := parts[0]
	if !table.HasColumn(base) {
		return Column{}, errs.New(errs.UnknownColumn, fmt.Sprintf("column %q not found on %s", base, table.Key))
	}
	keys := parts[1:]

	outputParts := make([]string, 0, len(keys)+1)
	outputParts = append(outputParts, base)
	for _, k := range keys {
		outputParts = append(outputParts, strings.NewReplacer("{", "", "}", "").Replace(k))
	}

	return Column{
		Raw:        raw,
		OutputKey:  strings.Join(outputParts, "_"),
		BaseColumn: base,
		Ops:        ops,
		Keys:       keys,
	}, nil
}

// columnsForTable resolves every entry of raw (or, if empty, every reflected column) into
// Columns, in declared/reflected order.
func columnsForTable(raw []string, table *pgcat.Table) ([]Column, error) {
	if len(raw) == 0 {
		out := make([]Column, 0, len(table.Columns))
		for _, c := range table.Columns {
			out = append(out, Column{Raw: c.Name, OutputKey: c.Name, BaseColumn: c.Name})
		}
		return out, nil
	}
	out := make([]Column, 0, len(raw))
	for _, r := range raw {
		col, err := parseColumn(r, table)
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, nil
}

// Expr renders the column's SQL access expression against alias, the FROM-clause alias
// of the table it was reflected from.
func (c Column) Expr(alias string) string {
	expr := quoteIdent(alias) + "." + quoteIdent(c.BaseColumn)
	for i, op := range c.Ops {
		key := c.Keys[i]
		switch {
		case strings.HasPrefix(op, "#"):
			expr = fmt.Sprintf("%s %s '%s'", expr, op, key)
		case isInteger(key):
			expr = fmt.Sprintf("(%s %s %s)", expr, op, key)
		default:
			expr = fmt.Sprintf("(%s %s %s)", expr, op, quoteLiteral(key))
		}
	}
	return expr
}

func isInteger(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
