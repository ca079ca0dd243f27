package eventstream

import (
	"strconv"

	"github.com/pathlens/pathlens/internal/errors"
	"github.com/pathlens/pathlens/internal/frame"
	"github.com/pathlens/pathlens/pkg/types"
)

// mergeRow describes one output row of a merge: a preferred source row, an
// optional fallback row for null cells, and an optional forced tombstone.
type mergeRow struct {
	pf          *frame.Frame
	pr          int
	ff          *frame.Frame
	fr          int
	forceDelete bool
}

// Append unions another stream of identical schema into the receiver.
//
// Rows are matched by event id. Matched pairs are partitioned by their
// tombstone flags: right-only, left-deleted-only and neither-deleted rows
// resolve preferring the argument's values; left-only and right-deleted-only
// rows resolve preferring the receiver's; rows deleted on both sides prefer
// the receiver but stay tombstoned. Within a resolved row, each cell takes
// the first non-null value across the two sides, preferred side first. The
// receiver's table is replaced wholesale and re-sorted.
//
// The operator is commutative in content only when neither side carries
// conflicting deletions; otherwise the preference rules above are the
// tie-break contract.
func (es *Eventstream) Append(other *Eventstream) error {
	if !es.schema.IsEqual(other.schema) {
		return errors.NewValidationError(errors.CodeSchemaMismatch, "appended eventstream has a different schema")
	}

	left := es.Frame(ViewOptions{RawCols: true, ShowDeleted: true})
	right := other.Frame(ViewOptions{RawCols: true, ShowDeleted: true})

	leftIDs := left.Col(es.schema.EventID)
	rightIDs := right.Col(es.schema.EventID)
	leftDel := left.Col(deleteColName)
	rightDel := right.Col(deleteColName)

	rightByID := make(map[types.EventID]int, right.NumRows())
	for r, v := range rightIDs {
		if id, ok := v.(types.EventID); ok {
			rightByID[id] = r
		}
	}
	leftHas := make(map[types.EventID]struct{}, left.NumRows())
	for _, v := range leftIDs {
		if id, ok := v.(types.EventID); ok {
			leftHas[id] = struct{}{}
		}
	}

	var (
		leftPref  []mergeRow // left-only, then right-deleted-only
		bothDel   []mergeRow
		rightPref []mergeRow // right-only, then left-deleted-only, then neither-deleted
	)

	for l, v := range leftIDs {
		id, _ := v.(types.EventID)
		r, matched := rightByID[id]
		if !matched {
			leftPref = append(leftPref, mergeRow{pf: left, pr: l})
			continue
		}
		ld := leftDel[l] == true
		rd := rightDel[r] == true
		switch {
		case ld && rd:
			bothDel = append(bothDel, mergeRow{pf: left, pr: l, ff: right, fr: r, forceDelete: true})
		case !ld && rd:
			leftPref = append(leftPref, mergeRow{pf: left, pr: l, ff: right, fr: r})
		default:
			// left deleted only, or neither deleted: the argument wins.
			rightPref = append(rightPref, mergeRow{pf: right, pr: r, ff: left, fr: l})
		}
	}
	for r, v := range rightIDs {
		id, _ := v.(types.EventID)
		if _, matched := leftHas[id]; !matched {
			rightPref = append(rightPref, mergeRow{pf: right, pr: r})
		}
	}

	outCols := unionCols(left.Columns(), right.Columns())
	rows := make([]mergeRow, 0, len(leftPref)+len(bothDel)+len(rightPref))
	rows = append(rows, leftPref...)
	rows = append(rows, bothDel...)
	rows = append(rows, rightPref...)

	es.events = materializeMerge(outCols, rows, nil)
	es.IndexEvents()
	return nil
}

// Join splices a derived stream back into its ancestor. The argument must
// carry a relation to the receiver; its relation column matches argument rows
// to the receiver rows they were derived from.
//
// Receiver rows never referenced stay untouched. Referenced rows are replaced
// by the argument's values, keeping the receiver's event id and taking the
// argument's tombstone flag. Argument rows with a null relation value are
// brand-new synthetic rows and are appended with their fresh ids. Custom
// columns of both sides are unioned into the schema; the result's lineage is
// the argument's.
func (es *Eventstream) Join(other *Eventstream) error {
	if !es.schema.rolesEqual(other.schema) {
		return errors.NewValidationError(errors.CodeSchemaMismatch, "joined eventstream has a different schema")
	}

	relIdx := -1
	for i, rel := range other.relations {
		if rel.Stream == es.id {
			relIdx = i
			break
		}
	}
	if relIdx == -1 {
		return errors.NewIntegrityError(errors.CodeRelationNotFound,
			"joined eventstream has no relation to this stream")
	}
	refCol := relationColPrefix + strconv.Itoa(relIdx)

	left := es.Frame(ViewOptions{RawCols: true, ShowDeleted: true})
	right := other.Frame(ViewOptions{RawCols: true, ShowDeleted: true})

	userIDTemplate := firstNonNull(left.Col(es.schema.UserID))

	leftIdx := make(map[types.EventID]int, left.NumRows())
	for l, v := range left.Col(es.schema.EventID) {
		if id, ok := v.(types.EventID); ok {
			leftIdx[id] = l
		}
	}

	matches := make([][]int, left.NumRows())
	var newRows []int
	for r, v := range right.Col(refCol) {
		if frame.IsNull(v) {
			newRows = append(newRows, r)
			continue
		}
		id, ok := v.(types.EventID)
		if !ok {
			continue
		}
		if l, hit := leftIdx[id]; hit {
			matches[l] = append(matches[l], r)
		}
		// A non-null reference to an id absent from the receiver points at
		// a row the receiver never had; such rows are discarded.
	}

	// The receiver's own relation columns are consumed by this join; the
	// result carries the argument's lineage columns instead.
	leftCols := diffCols(left.Columns(), es.relationCols())
	outCols := unionCols(leftCols, right.Columns())

	leftRaw := make(map[string]struct{})
	for _, c := range es.rawCols() {
		leftRaw[c] = struct{}{}
	}

	var rows []mergeRow
	for l := range matches {
		if len(matches[l]) == 0 {
			rows = append(rows, mergeRow{pf: left, pr: l})
		}
	}
	for _, r := range newRows {
		rows = append(rows, mergeRow{pf: right, pr: r})
	}
	joined := &joinSpec{
		left:    left,
		right:   right,
		eventID: es.schema.EventID,
		leftRaw: leftRaw,
	}
	for l, rs := range matches {
		for _, r := range rs {
			rows = append(rows, mergeRow{pf: right, pr: r, ff: left, fr: l})
			joined.replaced = append(joined.replaced, len(rows)-1)
		}
	}

	es.events = materializeMerge(outCols, rows, joined)
	coerceColumn(es.events.Col(es.schema.UserID), userIDTemplate)

	for _, cc := range other.schema.CustomCols {
		es.schema.AddCustomCol(cc)
	}
	es.relations = other.Relations()
	es.IndexEvents()
	return nil
}

// joinSpec captures the join-specific overrides applied on replaced rows:
// the receiver keeps its event id, and raw columns preserved from the
// receiver's input win over the argument's.
type joinSpec struct {
	left     *frame.Frame
	right    *frame.Frame
	eventID  string
	leftRaw  map[string]struct{}
	replaced []int
}

// materializeMerge builds the merged table for the given output rows.
// For ordinary rows each cell takes the preferred side's value, falling back
// to the other side when null. Rows listed in spec.replaced use
// column-presence resolution instead: the argument's column wins wherever the
// argument has it, apart from the event id and the receiver's raw columns.
func materializeMerge(outCols []string, rows []mergeRow, spec *joinSpec) *frame.Frame {
	replaced := make(map[int]struct{})
	if spec != nil {
		for _, i := range spec.replaced {
			replaced[i] = struct{}{}
		}
	}

	out := frame.New()
	for _, col := range outCols {
		values := make([]interface{}, len(rows))
		for i, row := range rows {
			if _, isReplaced := replaced[i]; isReplaced && spec != nil {
				values[i] = spec.resolveReplaced(col, row)
				continue
			}
			v := row.pf.Value(col, row.pr)
			if frame.IsNull(v) && row.ff != nil {
				v = row.ff.Value(col, row.fr)
			}
			if col == deleteColName {
				if row.forceDelete {
					v = true
				}
				if frame.IsNull(v) {
					v = false
				}
			}
			values[i] = v
		}
		_ = out.SetCol(col, values)
	}
	return out
}

// resolveReplaced picks the cell for a row whose values are superseded by
// the derived side of a join. row.pf is the argument, row.ff the receiver.
func (s *joinSpec) resolveReplaced(col string, row mergeRow) interface{} {
	if col == s.eventID {
		return s.left.Value(col, row.fr)
	}
	if _, isLeftRaw := s.leftRaw[col]; isLeftRaw {
		return s.left.Value(col, row.fr)
	}
	if s.right.HasCol(col) {
		return s.right.Value(col, row.pr)
	}
	return s.left.Value(col, row.fr)
}

// rolesEqual compares only the semantic-role mapping, ignoring custom
// columns. Join tolerates custom column asymmetry and unions the sets.
func (s *Schema) rolesEqual(other *Schema) bool {
	return other != nil &&
		s.EventID == other.EventID &&
		s.EventName == other.EventName &&
		s.EventType == other.EventType &&
		s.EventTimestamp == other.EventTimestamp &&
		s.UserID == other.UserID &&
		s.EventIndex == other.EventIndex
}

// unionCols merges column lists preserving first-seen order.
func unionCols(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, col := range list {
			if _, ok := seen[col]; !ok {
				seen[col] = struct{}{}
				out = append(out, col)
			}
		}
	}
	return out
}

// diffCols returns cols minus the given exclusions, preserving order.
func diffCols(cols, exclude []string) []string {
	drop := make(map[string]struct{}, len(exclude))
	for _, c := range exclude {
		drop[c] = struct{}{}
	}
	var out []string
	for _, c := range cols {
		if _, ok := drop[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func firstNonNull(col []interface{}) interface{} {
	for _, v := range col {
		if !frame.IsNull(v) {
			return v
		}
	}
	return nil
}

// coerceColumn restores a column's value type to match a template value.
// Joins can widen numeric user ids; this narrows them back.
func coerceColumn(col []interface{}, template interface{}) {
	if template == nil {
		return
	}
	for i, v := range col {
		if frame.IsNull(v) {
			continue
		}
		col[i] = coerceValue(v, template)
	}
}

func coerceValue(v, template interface{}) interface{} {
	switch template.(type) {
	case int64:
		switch tv := v.(type) {
		case int64:
			return tv
		case int:
			return int64(tv)
		case float64:
			return int64(tv)
		}
	case float64:
		switch tv := v.(type) {
		case float64:
			return tv
		case int64:
			return float64(tv)
		case int:
			return float64(tv)
		}
	case string:
		if sv, ok := v.(string); ok {
			return sv
		}
	}
	return v
}
