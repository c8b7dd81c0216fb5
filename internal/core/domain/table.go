package domain

import (
	"fmt"
	"math"
	"strings"
)

// Kind is the inferred storage type of a table column.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "text"
	}
}

type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"-"`
}

// Table is an in-memory tabular dataset. Cells hold int64, float64, string or nil.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// NewTable builds a table from column names and rows and infers column kinds.
func NewTable(names []string, rows [][]any) (*Table, error) {
	t := &Table{
		Columns: make([]Column, len(names)),
		Rows:    rows,
	}
	for i, name := range names {
		t.Columns[i] = Column{Name: name}
	}
	for i, row := range rows {
		if len(row) != len(names) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i+1, len(row), len(names))
		}
	}
	t.Infer()
	return t, nil
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of the named column or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Lookup finds a column by name, also accepting the underscore spelling
// produced by older SQL dumps ("Credit_Score" for "Credit Score").
func (t *Table) Lookup(name string) int {
	if i := t.Index(name); i >= 0 {
		return i
	}
	want := normalizeColumnName(name)
	for i, c := range t.Columns {
		if normalizeColumnName(c.Name) == want {
			return i
		}
	}
	return -1
}

func normalizeColumnName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", " "))
}

// Head returns a copy of the table limited to the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	head := &Table{
		Columns: append([]Column(nil), t.Columns...),
		Rows:    make([][]any, n),
	}
	for i := 0; i < n; i++ {
		head.Rows[i] = append([]any(nil), t.Rows[i]...)
	}
	return head
}

// WithColumn returns a copy of the table with one more column appended.
func (t *Table) WithColumn(name string, values []any) (*Table, error) {
	if len(values) != len(t.Rows) {
		return nil, fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.Rows))
	}
	if t.Index(name) >= 0 {
		return nil, fmt.Errorf("column %q already exists", name)
	}
	out := &Table{
		Columns: append(append([]Column(nil), t.Columns...), Column{Name: name}),
		Rows:    make([][]any, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = append(append(make([]any, 0, len(row)+1), row...), values[i])
	}
	out.Infer()
	return out, nil
}

// Drop returns a copy of the table without the named column. The table is
// returned unchanged when it has no such column.
func (t *Table) Drop(name string) *Table {
	idx := t.Index(name)
	if idx < 0 {
		return t
	}
	out := &Table{
		Columns: make([]Column, 0, len(t.Columns)-1),
		Rows:    make([][]any, len(t.Rows)),
	}
	out.Columns = append(append(out.Columns, t.Columns[:idx]...), t.Columns[idx+1:]...)
	for i, row := range t.Rows {
		out.Rows[i] = append(append(make([]any, 0, len(row)-1), row[:idx]...), row[idx+1:]...)
	}
	return out
}

// Records returns rows as column-name keyed maps, mainly for JSON responses.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for j, c := range t.Columns {
			rec[c.Name] = row[j]
		}
		out[i] = rec
	}
	return out
}

// Infer assigns a kind to every column and normalizes cells to it.
// Integers next to a float or a null are promoted to float, the same way a
// dataframe widens an integer column.
func (t *Table) Infer() {
	for j := range t.Columns {
		kind := KindInt
		hasNull := false
		seen := false
		for _, row := range t.Rows {
			switch v := row[j].(type) {
			case nil:
				hasNull = true
			case int64:
				seen = true
			case float64:
				seen = true
				if math.IsNaN(v) {
					hasNull = true
				}
				if kind == KindInt {
					kind = KindFloat
				}
			default:
				seen = true
				kind = KindText
			}
			if kind == KindText {
				break
			}
		}
		if !seen && hasNull {
			kind = KindFloat
		}
		if kind == KindInt && hasNull {
			kind = KindFloat
		}
		t.Columns[j].Kind = kind

		for _, row := range t.Rows {
			switch v := row[j].(type) {
			case int64:
				if kind == KindFloat {
					row[j] = float64(v)
				}
			case float64:
				if math.IsNaN(v) {
					row[j] = nil
				}
			}
		}
	}
}

// NormalizeCell converts decoder values to the cell types a Table stores.
func NormalizeCell(v any) any {
	switch x := v.(type) {
	case nil, int64, float64, string:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
