package processor

import (
	"github.com/pathlens/pathlens/internal/frame"
)

// rowSpec describes one output row of a processor: a source row in the
// parent view, cell overrides, and the ref value linking back to the parent
// (nil for brand-new synthetic rows).
type rowSpec struct {
	src      int
	override map[string]interface{}
	ref      interface{}
}

// buildOutput clones the given view rows into a processor output frame with
// the listed columns plus the ref column.
func buildOutput(view *frame.Frame, cols []string, rows []rowSpec) *frame.Frame {
	out := frame.New()
	for _, col := range cols {
		values := make([]interface{}, len(rows))
		for i, row := range rows {
			if v, ok := row.override[col]; ok {
				values[i] = v
				continue
			}
			values[i] = view.Value(col, row.src)
		}
		_ = out.SetCol(col, values)
	}
	refs := make([]interface{}, len(rows))
	for i, row := range rows {
		refs[i] = row.ref
	}
	_ = out.SetCol(RefCol, refs)
	return out
}
