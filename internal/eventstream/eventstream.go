package eventstream

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pathlens/pathlens/internal/errors"
	"github.com/pathlens/pathlens/internal/frame"
	"github.com/pathlens/pathlens/pkg/types"
)

// RawColPrefix namespaces preserved raw input columns so they cannot collide
// with generated system columns.
const RawColPrefix = "raw_"

// relationColPrefix namespaces lineage columns: ref_0, ref_1, ...
const relationColPrefix = "ref_"

// deleteColName is the tombstone column. Rows are never physically removed
// from a live table; they are marked here and filtered out of views.
const deleteColName = "_deleted"

// rawEventType marks events that came straight from raw input, as opposed to
// synthetic events added by processors.
const rawEventType = "raw"

// DefaultIndexOrder is the default event_type priority list used to break
// timestamp ties when sorting. Types not listed sort after all listed ones.
var DefaultIndexOrder = []string{
	"profile",
	"path_start",
	"new_user",
	"existing_user",
	"cropped_left",
	"session_start",
	"session_start_cropped",
	"group_alias",
	"raw",
	"raw_sleep",
	"synthetic",
	"synthetic_sleep",
	"positive_target",
	"negative_target",
	"session_end_cropped",
	"session_end",
	"session_sleep",
	"cropped_right",
	"absent_user",
	"lost_user",
	"path_end",
}

// Eventstream is an event log with schema, deterministic ordering, and
// lineage metadata. The backing table is exclusively owned: cross-stream
// effects happen only through Append and Join, which read the other stream's
// materialized view and write only to the receiver.
type Eventstream struct {
	id         types.StreamID
	schema     *Schema
	rawSchema  *RawDataSchema
	events     *frame.Frame
	indexOrder []string
	relations  []Relation
	dropped    int
	idgen      *types.EventIDGenerator
}

// Options configures eventstream construction.
type Options struct {
	// RawDataSchema maps raw input columns; nil selects the default mapping,
	// with event_type picked up automatically when the input carries it.
	RawDataSchema *RawDataSchema

	// Schema of the created stream; nil selects DefaultSchema.
	Schema *Schema

	// Prepare controls normalization. When false the input frame must
	// already be in internal form (system columns, tombstones, prefixed raw
	// columns); it is adopted as-is apart from the data-quality filter and
	// re-sort. Nil means true.
	Prepare *bool

	// IndexOrder overrides DefaultIndexOrder.
	IndexOrder []string

	// Relations records lineage to ancestor streams. Relation i materializes
	// as column ref_i.
	Relations []Relation

	// Sample restricts the input to a deterministic random subset of users
	// before any other processing.
	Sample *UserSample

	// ID forces the stream identity. Used by Copy; a copy is the same
	// logical stream, which keeps relation matching intact.
	ID types.StreamID
}

// New constructs an eventstream from raw tabular data. The input frame is
// never mutated. Rows missing a required field (event name, timestamp, or
// user id) are dropped with a logged warning; their count is available via
// DroppedRows.
func New(raw *frame.Frame, opts Options) (*Eventstream, error) {
	es := &Eventstream{
		id:    opts.ID,
		idgen: types.NewEventIDGenerator(),
	}
	if es.id.IsZero() {
		es.id = types.NewStreamID()
	}

	if opts.Schema != nil {
		es.schema = opts.Schema.Copy()
	} else {
		es.schema = DefaultSchema()
	}

	if opts.RawDataSchema != nil {
		es.rawSchema = opts.RawDataSchema.Copy()
	} else {
		es.rawSchema = DefaultRawDataSchema()
		if raw.HasCol(DefaultEventTypeCol) {
			es.rawSchema.EventType = DefaultEventTypeCol
		}
	}

	if len(opts.IndexOrder) > 0 {
		es.indexOrder = append([]string(nil), opts.IndexOrder...)
	} else {
		es.indexOrder = append([]string(nil), DefaultIndexOrder...)
	}
	es.relations = append([]Relation(nil), opts.Relations...)

	if opts.Sample != nil {
		sampled, err := sampleUserPaths(raw, es.rawSchema.UserID, *opts.Sample)
		if err != nil {
			return nil, err
		}
		raw = sampled
	}

	prepare := opts.Prepare == nil || *opts.Prepare
	if prepare {
		prepared, err := es.prepareEvents(raw)
		if err != nil {
			return nil, err
		}
		es.events = prepared
	} else {
		if err := es.checkInternalForm(raw); err != nil {
			return nil, err
		}
		es.events = raw.Copy()
	}

	es.requiredCleanup()
	es.IndexEvents()
	return es, nil
}

// Copy makes an independent copy of the stream. The copy shares the stream
// identity but owns its own table, schema, and relation list.
func (es *Eventstream) Copy() *Eventstream {
	prepare := false
	cp, err := New(es.events.Copy(), Options{
		RawDataSchema: es.rawSchema.Copy(),
		Schema:        es.schema.Copy(),
		Prepare:       &prepare,
		IndexOrder:    append([]string(nil), es.indexOrder...),
		Relations:     append([]Relation(nil), es.relations...),
		ID:            es.id,
	})
	if err != nil {
		// The internal table is by construction in internal form.
		panic(fmt.Sprintf("eventstream: copy failed: %v", err))
	}
	return cp
}

// ID returns the stable stream identifier assigned at construction.
func (es *Eventstream) ID() types.StreamID {
	return es.id
}

// Schema returns the stream's schema. Mutations must go through
// AddCustomCol to keep the table consistent.
func (es *Eventstream) Schema() *Schema {
	return es.schema
}

// RawDataSchema returns the raw input mapping the stream was built with.
func (es *Eventstream) RawDataSchema() *RawDataSchema {
	return es.rawSchema
}

// Relations returns the lineage edges recorded at construction.
func (es *Eventstream) Relations() []Relation {
	return append([]Relation(nil), es.relations...)
}

// IndexOrder returns the event_type priority list.
func (es *Eventstream) IndexOrder() []string {
	return append([]string(nil), es.indexOrder...)
}

// DroppedRows returns the number of rows removed by the data-quality filter
// at construction.
func (es *Eventstream) DroppedRows() int {
	return es.dropped
}

// ViewOptions selects the columns and rows of a materialized view.
type ViewOptions struct {
	// RawCols includes the preserved raw input columns.
	RawCols bool

	// ShowDeleted includes tombstoned rows and the tombstone column.
	ShowDeleted bool

	// Copy detaches the returned frame's storage from the stream's table.
	Copy bool
}

// Frame projects the event table to a materialized view: system and custom
// columns plus relation columns, optionally raw columns and the tombstone
// column. Tombstoned rows are excluded unless ShowDeleted is set. Rows arrive
// in the deterministic order established by IndexEvents; the view never
// mutates the source table.
func (es *Eventstream) Frame(opts ViewOptions) *frame.Frame {
	cols := es.schema.Cols()
	cols = append(cols, es.relationCols()...)
	if opts.RawCols {
		cols = append(cols, es.rawCols()...)
	}
	if opts.ShowDeleted {
		cols = append(cols, deleteColName)
	}

	events := es.events
	if !opts.ShowDeleted {
		deleted := events.Col(deleteColName)
		events = events.Filter(func(i int) bool { return deleted[i] != true })
		return events.Select(cols, false)
	}
	return events.Select(cols, opts.Copy)
}

// RowCount returns the number of live (non-deleted) rows.
func (es *Eventstream) RowCount() int {
	n := 0
	for _, v := range es.events.Col(deleteColName) {
		if v != true {
			n++
		}
	}
	return n
}

// IndexEvents re-sorts the table by (timestamp, event type priority) using a
// stable sort and reassigns contiguous event_index positions. Idempotent.
func (es *Eventstream) IndexEvents() {
	ts := es.events.Col(es.schema.EventTimestamp)
	et := es.events.Col(es.schema.EventType)

	prio := make([]int, es.events.NumRows())
	for i := range prio {
		prio[i] = es.eventTypePriority(et[i])
	}

	es.events.SortStable(func(i, j int) bool {
		ti, iok := ts[i].(time.Time)
		tj, jok := ts[j].(time.Time)
		switch {
		case !iok && !jok:
			return prio[i] < prio[j]
		case !iok:
			return true
		case !jok:
			return false
		}
		if ti.Before(tj) {
			return true
		}
		if tj.Before(ti) {
			return false
		}
		return prio[i] < prio[j]
	})

	index := make([]interface{}, es.events.NumRows())
	for i := range index {
		index[i] = int64(i)
	}
	_ = es.events.SetCol(es.schema.EventIndex, index)
}

// SoftDelete tombstones the rows whose event id is listed. If the table has
// relation columns, a row whose value in the last relation column matches a
// listed id is tombstoned too: deletion propagates one hop through the most
// recent lineage edge only. Tombstones are never cleared.
func (es *Eventstream) SoftDelete(ids []types.EventID) {
	set := make(map[types.EventID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	deleted := es.events.Col(deleteColName)
	eventIDs := es.events.Col(es.schema.EventID)
	for i, v := range eventIDs {
		if id, ok := v.(types.EventID); ok {
			if _, hit := set[id]; hit {
				deleted[i] = true
			}
		}
	}

	if rels := es.relationCols(); len(rels) > 0 {
		refs := es.events.Col(rels[len(rels)-1])
		for i, v := range refs {
			if id, ok := v.(types.EventID); ok {
				if _, hit := set[id]; hit {
					deleted[i] = true
				}
			}
		}
	}
}

// AddCustomCol adds a custom column, registering it on both the schema and
// the raw-data schema. A nil values slice fills the column with nulls.
func (es *Eventstream) AddCustomCol(name string, values []interface{}) error {
	if name == "" {
		return errors.NewValidationError(errors.CodeInvalidColumn, "custom column name is empty")
	}
	if values != nil && len(values) != es.events.NumRows() {
		return errors.NewValidationError(errors.CodeInvalidColumn,
			fmt.Sprintf("custom column %q has %d values, table has %d rows", name, len(values), es.events.NumRows()))
	}
	if values == nil {
		values = make([]interface{}, es.events.NumRows())
	}
	es.rawSchema.CustomCols = append(es.rawSchema.CustomCols, RawCustomCol{RawCol: name, CustomCol: name})
	es.schema.AddCustomCol(name)
	return es.events.SetCol(name, values)
}

// prepareEvents normalizes a raw input frame into internal form.
func (es *Eventstream) prepareEvents(raw *frame.Frame) (*frame.Frame, error) {
	events := raw.Copy()
	events.RenameAll(func(col string) string { return RawColPrefix + col })

	n := events.NumRows()

	if err := events.SetConst(deleteColName, false); err != nil {
		return nil, err
	}

	tsRaw, err := rawColumn(raw, es.rawSchema.EventTimestamp)
	if err != nil {
		return nil, err
	}
	timestamps := make([]interface{}, n)
	for i, v := range tsRaw {
		if t, ok := parseTimestamp(v); ok {
			timestamps[i] = t
		}
	}

	// Event ids are stamped from row timestamps so they sort with the
	// stream; rows without a timestamp get wall-clock ids and are dropped
	// by the data-quality filter anyway.
	ids := make([]interface{}, n)
	for i := range ids {
		var id types.EventID
		var err error
		if t, ok := timestamps[i].(time.Time); ok {
			id, err = es.idgen.At(t)
		} else {
			id, err = es.idgen.Next()
		}
		if err != nil {
			return nil, errors.NewInternalError("event id generation failed", err)
		}
		ids[i] = id
	}
	_ = events.SetCol(es.schema.EventID, ids)

	names, err := rawColumn(raw, es.rawSchema.EventName)
	if err != nil {
		return nil, err
	}
	_ = events.SetCol(es.schema.EventName, cloneColumn(names))
	_ = events.SetCol(es.schema.EventTimestamp, timestamps)

	users, err := rawColumn(raw, es.rawSchema.UserID)
	if err != nil {
		return nil, err
	}
	_ = events.SetCol(es.schema.UserID, cloneColumn(users))

	if es.rawSchema.EventType != "" {
		typ, err := rawColumn(raw, es.rawSchema.EventType)
		if err != nil {
			return nil, err
		}
		_ = events.SetCol(es.schema.EventType, cloneColumn(typ))
	} else {
		_ = events.SetConst(es.schema.EventType, rawEventType)
	}

	for _, cc := range es.rawSchema.CustomCols {
		col, err := rawColumn(raw, cc.RawCol)
		if err != nil {
			return nil, err
		}
		es.schema.AddCustomCol(cc.CustomCol)
		_ = events.SetCol(cc.CustomCol, cloneColumn(col))
	}

	// Custom columns declared on the schema but absent from the input are
	// created all-null; this is not an error.
	for _, cc := range es.schema.CustomCols {
		if !events.HasCol(cc) {
			_ = events.SetConst(cc, nil)
		}
	}

	for i, rel := range es.relations {
		name := relationColPrefix + strconv.Itoa(i)
		if rel.RawCol != "" && raw.HasCol(rel.RawCol) {
			_ = events.SetCol(name, cloneColumn(raw.Col(rel.RawCol)))
		} else {
			_ = events.SetConst(name, nil)
		}
	}

	return events, nil
}

// checkInternalForm validates that a prepare=false input frame carries the
// system columns the schema requires.
func (es *Eventstream) checkInternalForm(raw *frame.Frame) error {
	required := []string{
		es.schema.EventID,
		es.schema.EventName,
		es.schema.EventTimestamp,
		es.schema.UserID,
		es.schema.EventType,
		deleteColName,
	}
	for _, col := range required {
		if !raw.HasCol(col) {
			return errors.NewValidationError(errors.CodeMissingRawColumn,
				fmt.Sprintf("internal-form input misses column %q", col))
		}
	}
	return nil
}

// requiredCleanup drops rows missing a mandatory field. This is the
// data-quality filter: recovered automatically, reported as a warning.
func (es *Eventstream) requiredCleanup() {
	names := es.events.Col(es.schema.EventName)
	ts := es.events.Col(es.schema.EventTimestamp)
	users := es.events.Col(es.schema.UserID)

	before := es.events.NumRows()
	es.events = es.events.Filter(func(i int) bool {
		return !frame.IsNull(names[i]) && !frame.IsNull(ts[i]) && !frame.IsNull(users[i])
	})
	if removed := before - es.events.NumRows(); removed > 0 {
		es.dropped += removed
		log.Printf("eventstream: removed %d rows with empty %s, %s or %s",
			removed, es.schema.EventName, es.schema.EventTimestamp, es.schema.UserID)
	}
}

// rawCols returns the preserved raw input columns, in table order.
func (es *Eventstream) rawCols() []string {
	var cols []string
	for _, col := range es.events.Columns() {
		if strings.HasPrefix(col, RawColPrefix) {
			cols = append(cols, col)
		}
	}
	return cols
}

// relationCols returns the lineage columns ref_0..ref_n in slot order.
func (es *Eventstream) relationCols() []string {
	var cols []string
	for _, col := range es.events.Columns() {
		if strings.HasPrefix(col, relationColPrefix) {
			cols = append(cols, col)
		}
	}
	sort.Slice(cols, func(i, j int) bool {
		a, _ := strconv.Atoi(strings.TrimPrefix(cols[i], relationColPrefix))
		b, _ := strconv.Atoi(strings.TrimPrefix(cols[j], relationColPrefix))
		return a < b
	})
	return cols
}

// eventTypePriority ranks an event type by its position in the index order.
// Unlisted and null types sort after all listed ones.
func (es *Eventstream) eventTypePriority(v interface{}) int {
	t, ok := v.(string)
	if !ok {
		return len(es.indexOrder)
	}
	for i, known := range es.indexOrder {
		if known == t {
			return i
		}
	}
	return len(es.indexOrder)
}

// rawColumn fetches a required raw input column.
func rawColumn(raw *frame.Frame, name string) ([]interface{}, error) {
	if !raw.HasCol(name) {
		return nil, errors.NewValidationError(errors.CodeMissingRawColumn,
			fmt.Sprintf("invalid raw data: column %q does not exist", name))
	}
	return raw.Col(name), nil
}

func cloneColumn(col []interface{}) []interface{} {
	out := make([]interface{}, len(col))
	copy(out, col)
	return out
}

// timestampLayouts are tried in order when parsing string timestamps.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

// parseTimestamp converts a raw cell into a time.Time. Integers are read as
// unix seconds, or milliseconds when the magnitude demands it.
func parseTimestamp(v interface{}) (time.Time, bool) {
	switch tv := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return tv, true
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, tv); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case int64:
		return unixToTime(tv), true
	case int:
		return unixToTime(int64(tv)), true
	case float64:
		return unixToTime(int64(tv)), true
	default:
		return time.Time{}, false
	}
}

func unixToTime(v int64) time.Time {
	if v > 1e12 || v < -1e12 {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}
