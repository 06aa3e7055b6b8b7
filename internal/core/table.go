package core

import (
	"strconv"
	"strings"
	"time"
)

// Kind identifies what a cell holds.
type Kind uint8

const (
	KindMissing Kind = iota
	KindText
	KindNumber
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindTime:
		return "time"
	default:
		return "missing"
	}
}

// DisplayTimeLayout is how timestamps are rendered in the viewer and filters.
const DisplayTimeLayout = "2006-01-02 15:04"

// Value is a single cell of a Table.
//
// Text keeps the workbook's formatted representation for numbers, so a value
// like "00123" survives a round trip even though it also parses as a number.
type Value struct {
	Kind   Kind
	Text   string
	Number float64
	Time   time.Time
}

// Missing returns the explicit missing marker.
func Missing() Value { return Value{} }

// Text returns a text cell. Blank strings become missing.
func Text(s string) Value {
	if strings.TrimSpace(s) == "" {
		return Value{}
	}
	return Value{Kind: KindText, Text: s}
}

// Number returns a numeric cell. formatted may be empty.
func Number(f float64, formatted string) Value {
	if formatted == "" {
		formatted = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return Value{Kind: KindNumber, Number: f, Text: formatted}
}

// Timestamp returns a time cell.
func Timestamp(t time.Time) Value {
	return Value{Kind: KindTime, Time: t}
}

// IsMissing reports whether v is the missing marker.
func (v Value) IsMissing() bool { return v.Kind == KindMissing }

// String renders v for display and for matching filter selections.
func (v Value) String() string {
	switch v.Kind {
	case KindText, KindNumber:
		return v.Text
	case KindTime:
		return v.Time.Format(DisplayTimeLayout)
	default:
		return ""
	}
}

// Table is an ordered set of named columns and positional rows.
// Every row has exactly len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]Value
}

// NewTable returns a table with the given columns and no rows.
func NewTable(columns []string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Append adds a row, padding or truncating it to the column count.
func (t *Table) Append(row []Value) {
	out := make([]Value, len(t.Columns))
	copy(out, row)
	t.Rows = append(t.Rows, out)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether the table has a column called name.
func (t *Table) Has(name string) bool {
	return t.Index(name) >= 0
}

// Column returns the cells of column name in row order.
func (t *Table) Column(name string) ([]Value, bool) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, true
}

// Select returns a table holding only the named columns, in the given order.
// Unknown names are skipped.
func (t *Table) Select(names []string) *Table {
	var idx []int
	var cols []string
	for _, name := range names {
		if i := t.Index(name); i >= 0 {
			idx = append(idx, i)
			cols = append(cols, name)
		}
	}

	out := &Table{Columns: cols, Rows: make([][]Value, len(t.Rows))}
	for r, row := range t.Rows {
		cells := make([]Value, len(idx))
		for j, i := range idx {
			cells[j] = row[i]
		}
		out.Rows[r] = cells
	}
	return out
}

// Head returns a table with at most n rows. Row slices are shared.
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= len(t.Rows) {
		return t
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// Clone returns a deep copy of the column list and row slices.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]Value, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = append([]Value(nil), row...)
	}
	return out
}

// HeaderNames turns raw header cells into unique column names.
// Blank headers become "columna N" (1-based position) and repeated names get
// a ".1", ".2" suffix in order of appearance.
func HeaderNames(raw []string) []string {
	names := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	for i, h := range raw {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "columna " + strconv.Itoa(i+1)
		} else {
			// keep the original spelling, only whitespace-only cells are blank
			name = h
		}
		names[i] = uniqueName(name, used)
	}
	return names
}

func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for n := 1; used[candidate]; n++ {
		candidate = name + "." + strconv.Itoa(n)
	}
	used[candidate] = true
	return candidate
}
