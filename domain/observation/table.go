package observation

import (
	"fmt"

	"palin/domain/core"
)

// Table is an ordered, in-memory observation table. Each row holds one
// stimulus-dimension-response instance with cells aligned to Columns.
type Table struct {
	Columns []string
	Rows    [][]Value

	index map[string]int
}

// NewTable creates an empty table with the given schema
func NewTable(columns ...string) *Table {
	t := &Table{Columns: append([]string(nil), columns...)}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Append adds a row. Short rows are padded with missing cells; long rows are
// rejected.
func (t *Table) Append(row ...Value) error {
	if len(row) > len(t.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(row), len(t.Columns))
	}
	cells := make([]Value, len(t.Columns))
	copy(cells, row)
	for i := len(row); i < len(cells); i++ {
		cells[i] = NewMissingValue()
	}
	t.Rows = append(t.Rows, cells)
	return nil
}

// Index returns the position of a column
func (t *Table) Index(name string) (int, bool) {
	if t.index != nil {
		if i, ok := t.index[name]; ok && i < len(t.Columns) && t.Columns[i] == name {
			return i, true
		}
	}
	// literal tables and stale indexes fall back to a scan; Index never writes
	// so concurrent readers are safe
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// Has reports whether the column is part of the schema
func (t *Table) Has(name string) bool {
	_, ok := t.Index(name)
	return ok
}

// Require fails with core.ErrMissingColumn on the first absent column
func (t *Table) Require(names ...string) error {
	for _, name := range names {
		if !t.Has(name) {
			return core.NewMissingColumnError(name)
		}
	}
	return nil
}

// Column returns a copy of one column's cells
func (t *Table) Column(name string) ([]Value, error) {
	i, ok := t.Index(name)
	if !ok {
		return nil, core.NewMissingColumnError(name)
	}
	out := make([]Value, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// ColumnType reports the single non-missing type of a column. A column with
// no observed values reports ValueTypeMissing; mixed columns report an error.
func (t *Table) ColumnType(name string) (ValueType, error) {
	i, ok := t.Index(name)
	if !ok {
		return "", core.NewMissingColumnError(name)
	}
	kind := ValueTypeMissing
	for _, row := range t.Rows {
		v := row[i]
		if v.IsMissing() {
			continue
		}
		if kind == ValueTypeMissing {
			kind = v.Type
			continue
		}
		if v.Type != kind {
			return "", core.NewColumnTypeError(name, string(kind), "mixed")
		}
	}
	return kind, nil
}

// Strings renders every row as text, for fingerprinting and export
func (t *Table) Strings() [][]string {
	out := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}
		out[r] = cells
	}
	return out
}

// Fingerprint hashes the table's schema and content
func (t *Table) Fingerprint() core.Hash {
	return core.FingerprintRows(t.Columns, t.Strings())
}

// Rename returns a copy of the table with columns renamed. Names absent from
// the table are ignored.
func (t *Table) Rename(names map[string]string) *Table {
	columns := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		if n, ok := names[c]; ok && n != "" {
			columns[i] = n
		} else {
			columns[i] = c
		}
	}
	out := NewTable(columns...)
	out.Rows = make([][]Value, len(t.Rows))
	for r, row := range t.Rows {
		out.Rows[r] = append([]Value(nil), row...)
	}
	return out
}

// Concat stacks tables. The schema is the union of columns in first-seen
// order; cells a source table lacks become missing.
func Concat(tables ...*Table) *Table {
	var columns []string
	seen := make(map[string]bool)
	for _, t := range tables {
		for _, c := range t.Columns {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}
	out := NewTable(columns...)
	for _, t := range tables {
		pos := make([]int, len(t.Columns))
		for i, c := range t.Columns {
			pos[i], _ = out.Index(c)
		}
		for _, row := range t.Rows {
			cells := make([]Value, len(columns))
			for i := range cells {
				cells[i] = NewMissingValue()
			}
			for i, v := range row {
				cells[pos[i]] = v
			}
			out.Rows = append(out.Rows, cells)
		}
	}
	return out
}
