package ctl

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

// table prints aligned columns with a dimmed header row.
type table struct {
	w      *tabwriter.Writer
	indent string
}

func newTable(indent string, columns ...string) *table {
	t := &table{
		w:      tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0),
		indent: indent,
	}
	fmt.Println()
	t.row(columns...)
	rule := make([]string, len(columns))
	for i, c := range columns {
		rule[i] = strings.Repeat("-", len(c))
	}
	t.row(rule...)
	return t
}

// row adds one line. Cells must not carry color codes, which would
// throw off the column widths.
func (t *table) row(cells ...string) {
	fmt.Fprintln(t.w, t.indent+strings.Join(cells, "\t"))
}

func (t *table) flush() {
	_ = t.w.Flush()
}
