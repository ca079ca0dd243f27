// Package frame provides the in-memory tabular store backing eventstreams.
// A Frame is a set of named columns of equal length with stable column order.
// Cell values are dynamically typed; nil marks a missing value.
package frame

import (
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Frame is an ordered collection of equally sized columns.
type Frame struct {
	names []string
	cols  map[string][]interface{}
	rows  int
}

// New creates an empty frame with no columns and no rows.
func New() *Frame {
	return &Frame{cols: make(map[string][]interface{})}
}

// NewSized creates a frame with the given columns, each filled with nulls.
func NewSized(names []string, rows int) *Frame {
	f := &Frame{cols: make(map[string][]interface{}, len(names)), rows: rows}
	for _, name := range names {
		f.names = append(f.names, name)
		f.cols[name] = make([]interface{}, rows)
	}
	return f
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int {
	return f.rows
}

// NumCols returns the number of columns.
func (f *Frame) NumCols() int {
	return len(f.names)
}

// Columns returns the column names in declaration order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// HasCol reports whether the column exists.
func (f *Frame) HasCol(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Col returns the backing slice for a column, or nil if absent.
// The slice is shared, not copied.
func (f *Frame) Col(name string) []interface{} {
	return f.cols[name]
}

// Value returns the cell at (row, col), or nil if the column is absent.
func (f *Frame) Value(name string, row int) interface{} {
	col, ok := f.cols[name]
	if !ok {
		return nil
	}
	return col[row]
}

// SetCol sets a column wholesale. A new name is appended to the column
// order; an existing name is replaced in place.
func (f *Frame) SetCol(name string, values []interface{}) error {
	if len(f.names) > 0 && len(values) != f.rows {
		return fmt.Errorf("frame: column %q has %d values, frame has %d rows", name, len(values), f.rows)
	}
	if _, ok := f.cols[name]; !ok {
		f.names = append(f.names, name)
	}
	f.cols[name] = values
	f.rows = len(values)
	return nil
}

// SetConst sets a column to a single repeated value.
func (f *Frame) SetConst(name string, value interface{}) error {
	values := make([]interface{}, f.rows)
	if value != nil {
		for i := range values {
			values[i] = value
		}
	}
	return f.SetCol(name, values)
}

// Drop removes a column if present.
func (f *Frame) Drop(name string) {
	if _, ok := f.cols[name]; !ok {
		return
	}
	delete(f.cols, name)
	for i, n := range f.names {
		if n == name {
			f.names = append(f.names[:i], f.names[i+1:]...)
			break
		}
	}
}

// RenameAll renames every column through fn, preserving order.
func (f *Frame) RenameAll(fn func(string) string) {
	renamed := make(map[string][]interface{}, len(f.cols))
	for i, name := range f.names {
		next := fn(name)
		renamed[next] = f.cols[name]
		f.names[i] = next
	}
	f.cols = renamed
}

// Select returns a new frame with exactly the requested columns, in the
// requested order. Missing columns come back filled with nulls. When copy is
// false the column slices are shared with the source.
func (f *Frame) Select(names []string, copyData bool) *Frame {
	out := &Frame{cols: make(map[string][]interface{}, len(names)), rows: f.rows}
	for _, name := range names {
		if _, ok := out.cols[name]; ok {
			continue
		}
		src, exists := f.cols[name]
		var col []interface{}
		switch {
		case !exists:
			col = make([]interface{}, f.rows)
		case copyData:
			col = make([]interface{}, f.rows)
			copy(col, src)
		default:
			col = src
		}
		out.names = append(out.names, name)
		out.cols[name] = col
	}
	return out
}

// Filter returns a new frame containing the rows for which keep returns true.
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	idx := make([]int, 0, f.rows)
	for i := 0; i < f.rows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return f.take(idx)
}

// SortStable reorders rows by the given comparator using a stable sort, so
// ties keep their original relative order.
func (f *Frame) SortStable(less func(i, j int) bool) {
	idx := make([]int, f.rows)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return less(idx[a], idx[b]) })
	for name, col := range f.cols {
		next := make([]interface{}, f.rows)
		for pos, i := range idx {
			next[pos] = col[i]
		}
		f.cols[name] = next
	}
}

// Copy returns a deep copy of the frame.
func (f *Frame) Copy() *Frame {
	out := &Frame{
		names: append([]string(nil), f.names...),
		cols:  make(map[string][]interface{}, len(f.cols)),
		rows:  f.rows,
	}
	for name, col := range f.cols {
		dup := make([]interface{}, len(col))
		copy(dup, col)
		out.cols[name] = dup
	}
	return out
}

// take returns a new frame with the rows at the given indices.
func (f *Frame) take(idx []int) *Frame {
	out := &Frame{
		names: append([]string(nil), f.names...),
		cols:  make(map[string][]interface{}, len(f.cols)),
		rows:  len(idx),
	}
	for name, col := range f.cols {
		next := make([]interface{}, len(idx))
		for pos, i := range idx {
			next[pos] = col[i]
		}
		out.cols[name] = next
	}
	return out
}

// IsNull reports whether a cell value counts as missing.
func IsNull(v interface{}) bool {
	if v == nil {
		return true
	}
	if fv, ok := v.(float64); ok {
		return math.IsNaN(fv)
	}
	return false
}

// Coalesce returns the first non-null of two cell values.
func Coalesce(a, b interface{}) interface{} {
	if IsNull(a) {
		return b
	}
	return a
}

// Equal reports whether two frames hold the same columns (any order) with
// equal values row by row. Intended for tests.
func Equal(a, b *Frame) bool {
	if a.rows != b.rows || len(a.names) != len(b.names) {
		return false
	}
	for _, name := range a.names {
		bc, ok := b.cols[name]
		if !ok {
			return false
		}
		ac := a.cols[name]
		for i := 0; i < a.rows; i++ {
			if IsNull(ac[i]) && IsNull(bc[i]) {
				continue
			}
			if !reflect.DeepEqual(ac[i], bc[i]) {
				return false
			}
		}
	}
	return true
}
