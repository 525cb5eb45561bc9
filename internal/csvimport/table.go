package csvimport

import "strings"

// Table is a parsed CSV file with a normalized header.
type Table struct {
	// Columns holds the header names lower-cased and trimmed, in file order.
	// Duplicates and empty names are kept here but only the first
	// occurrence of a name is addressable.
	Columns []string
	Rows    [][]string

	index map[string]int
}

// NewTable builds a table from a raw header and data rows.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{
		Columns: make([]string, len(header)),
		Rows:    rows,
		index:   make(map[string]int, len(header)),
	}
	for i, h := range header {
		name := normalizeColumn(h)
		t.Columns[i] = name
		if _, dup := t.index[name]; name != "" && !dup {
			t.index[name] = i
		}
	}
	return t
}

func normalizeColumn(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, utf8BOM)))
}

// Has reports whether the header contains col.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// ColumnSet returns the distinct, non-empty column names.
func (t *Table) ColumnSet() map[string]struct{} {
	set := make(map[string]struct{}, len(t.index))
	for name := range t.index {
		set[name] = struct{}{}
	}
	return set
}

// Value returns the trimmed cell for col in row, or "" when the column or
// cell is missing.
func (t *Table) Value(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// DistinctColumns returns the addressable columns in file order.
func (t *Table) DistinctColumns() []string {
	cols := make([]string, 0, len(t.index))
	for i, name := range t.Columns {
		if j, ok := t.index[name]; ok && j == i {
			cols = append(cols, name)
		}
	}
	return cols
}
