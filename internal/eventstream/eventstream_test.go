package eventstream

import (
	"testing"
	"time"

	"github.com/pathlens/pathlens/internal/errors"
	"github.com/pathlens/pathlens/internal/frame"
	"github.com/pathlens/pathlens/pkg/types"
)

func ts(sec int) time.Time {
	return time.Date(2024, 3, 1, 12, 0, sec, 0, time.UTC)
}

// rawFrame builds a raw input frame with the default column names.
func rawFrame(events []string, times []interface{}, users []interface{}) *frame.Frame {
	f := frame.New()
	vals := make([]interface{}, len(events))
	for i, e := range events {
		vals[i] = e
	}
	_ = f.SetCol("event", vals)
	_ = f.SetCol("timestamp", times)
	_ = f.SetCol("user_id", users)
	return f
}

func newTestStream(t *testing.T, events []string, times []interface{}, users []interface{}) *Eventstream {
	t.Helper()
	es, err := New(rawFrame(events, times, users), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return es
}

func eventIDs(t *testing.T, es *Eventstream) []types.EventID {
	t.Helper()
	view := es.Frame(ViewOptions{})
	col := view.Col(es.Schema().EventID)
	ids := make([]types.EventID, len(col))
	for i, v := range col {
		id, ok := v.(types.EventID)
		if !ok {
			t.Fatalf("row %d has no event id", i)
		}
		ids[i] = id
	}
	return ids
}

func names(es *Eventstream) []string {
	view := es.Frame(ViewOptions{})
	col := view.Col(es.Schema().EventName)
	out := make([]string, len(col))
	for i, v := range col {
		out[i], _ = v.(string)
	}
	return out
}

func TestNewNormalizesRawInput(t *testing.T) {
	es := newTestStream(t,
		[]string{"login", "browse", "buy"},
		[]interface{}{ts(0), ts(1), ts(2)},
		[]interface{}{"u1", "u1", "u2"},
	)

	if es.RowCount() != 3 {
		t.Fatalf("RowCount = %d, want 3", es.RowCount())
	}
	if es.DroppedRows() != 0 {
		t.Fatalf("DroppedRows = %d, want 0", es.DroppedRows())
	}

	view := es.Frame(ViewOptions{})
	seen := make(map[types.EventID]struct{})
	for _, id := range eventIDs(t, es) {
		if id.IsZero() {
			t.Fatal("generated event id is zero")
		}
		if _, dup := seen[id]; dup {
			t.Fatal("event ids are not unique")
		}
		seen[id] = struct{}{}
	}

	for i, v := range view.Col(es.Schema().EventType) {
		if v != "raw" {
			t.Fatalf("event_type[%d] = %v, want raw", i, v)
		}
	}
	for i, v := range view.Col(es.Schema().EventIndex) {
		if v != int64(i) {
			t.Fatalf("event_index[%d] = %v, want %d", i, v, i)
		}
	}
}

func TestNewPreservesRawColumns(t *testing.T) {
	raw := rawFrame([]string{"login"}, []interface{}{ts(0)}, []interface{}{"u1"})
	_ = raw.SetCol("country", []interface{}{"de"})

	es, err := New(raw, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plain := es.Frame(ViewOptions{})
	if plain.HasCol("raw_country") {
		t.Fatal("raw columns must be hidden by default")
	}
	withRaw := es.Frame(ViewOptions{RawCols: true})
	if v := withRaw.Value("raw_country", 0); v != "de" {
		t.Fatalf("raw_country = %v, want de", v)
	}
	if v := withRaw.Value("raw_event", 0); v != "login" {
		t.Fatalf("raw_event = %v, want login", v)
	}
}

func TestNewParsesStringTimestamps(t *testing.T) {
	es := newTestStream(t,
		[]string{"a", "b"},
		[]interface{}{"2024-03-01 12:00:05", "2024-03-01 12:00:01"},
		[]interface{}{"u1", "u1"},
	)
	view := es.Frame(ViewOptions{})
	first, ok := view.Value(es.Schema().EventTimestamp, 0).(time.Time)
	if !ok {
		t.Fatal("timestamp did not parse to time.Time")
	}
	if got := names(es); got[0] != "b" || got[1] != "a" {
		t.Fatalf("rows not sorted by timestamp: %v", got)
	}
	if first.Second() != 1 {
		t.Fatalf("first timestamp = %v, want second 1", first)
	}
}

func TestNewDropsRowsMissingRequiredFields(t *testing.T) {
	es := newTestStream(t,
		[]string{"a", "b", "c"},
		[]interface{}{ts(0), nil, ts(2)},
		[]interface{}{"u1", "u1", nil},
	)
	if es.RowCount() != 1 {
		t.Fatalf("RowCount = %d, want 1", es.RowCount())
	}
	if es.DroppedRows() != 2 {
		t.Fatalf("DroppedRows = %d, want 2", es.DroppedRows())
	}
}

func TestNewMissingRequiredColumn(t *testing.T) {
	f := frame.New()
	_ = f.SetCol("event", []interface{}{"a"})
	_ = f.SetCol("timestamp", []interface{}{ts(0)})

	_, err := New(f, Options{})
	if err == nil {
		t.Fatal("expected error for missing user_id column")
	}
	if !errors.IsValidation(err) {
		t.Fatalf("error should be a validation error, got %v", err)
	}
	if errors.GetCode(err) != errors.CodeMissingRawColumn {
		t.Fatalf("code = %s, want %s", errors.GetCode(err), errors.CodeMissingRawColumn)
	}
}

func TestNewPicksUpEventTypeColumn(t *testing.T) {
	raw := rawFrame([]string{"a", "b"}, []interface{}{ts(0), ts(0)}, []interface{}{"u1", "u1"})
	_ = raw.SetCol("event_type", []interface{}{"path_end", "path_start"})

	es, err := New(raw, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Same timestamp: path_start outranks path_end in the default order.
	if got := names(es); got[0] != "b" || got[1] != "a" {
		t.Fatalf("tie not broken by event type priority: %v", got)
	}
}

func TestIndexEventsIdempotent(t *testing.T) {
	es := newTestStream(t,
		[]string{"c", "a", "b"},
		[]interface{}{ts(3), ts(1), ts(2)},
		[]interface{}{"u1", "u1", "u1"},
	)
	before := es.Frame(ViewOptions{Copy: true})
	es.IndexEvents()
	after := es.Frame(ViewOptions{Copy: true})
	if !frame.Equal(before, after) {
		t.Fatal("IndexEvents is not idempotent")
	}
}

func TestSoftDelete(t *testing.T) {
	es := newTestStream(t,
		[]string{"a", "b", "c"},
		[]interface{}{ts(0), ts(1), ts(2)},
		[]interface{}{"u1", "u1", "u1"},
	)
	ids := eventIDs(t, es)

	es.SoftDelete([]types.EventID{ids[1]})

	if es.RowCount() != 2 {
		t.Fatalf("RowCount = %d, want 2", es.RowCount())
	}
	if got := names(es); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("live rows = %v, want [a c]", got)
	}

	full := es.Frame(ViewOptions{ShowDeleted: true})
	if full.NumRows() != 3 {
		t.Fatalf("ShowDeleted rows = %d, want 3", full.NumRows())
	}
	deleted := 0
	for _, v := range full.Col("_deleted") {
		if v == true {
			deleted++
		}
	}
	if deleted != 1 {
		t.Fatalf("tombstoned rows = %d, want 1", deleted)
	}
}

func TestSoftDeletePropagatesThroughLastRelation(t *testing.T) {
	parent := newTestStream(t,
		[]string{"a", "b"},
		[]interface{}{ts(0), ts(1)},
		[]interface{}{"u1", "u1"},
	)
	parentIDs := eventIDs(t, parent)

	raw := rawFrame([]string{"a2", "b2"}, []interface{}{ts(0), ts(1)}, []interface{}{"u1", "u1"})
	_ = raw.SetCol("ref", []interface{}{parentIDs[0], parentIDs[1]})

	child, err := New(raw, Options{
		Relations: []Relation{{RawCol: "ref", Stream: parent.ID()}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Deleting the parent id tombstones the child row referencing it.
	child.SoftDelete([]types.EventID{parentIDs[0]})
	if child.RowCount() != 1 {
		t.Fatalf("RowCount = %d, want 1", child.RowCount())
	}
	if got := names(child); got[0] != "b2" {
		t.Fatalf("surviving row = %v, want b2", got[0])
	}
}

func TestRelationColumnVisibleInView(t *testing.T) {
	parent := newTestStream(t, []string{"a"}, []interface{}{ts(0)}, []interface{}{"u1"})
	parentIDs := eventIDs(t, parent)

	raw := rawFrame([]string{"a2"}, []interface{}{ts(0)}, []interface{}{"u1"})
	_ = raw.SetCol("ref", []interface{}{parentIDs[0]})

	child, err := New(raw, Options{
		Relations: []Relation{{RawCol: "ref", Stream: parent.ID()}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	view := child.Frame(ViewOptions{})
	if !view.HasCol("ref_0") {
		t.Fatal("relation column ref_0 missing from view")
	}
	if got := view.Value("ref_0", 0); got != parentIDs[0] {
		t.Fatalf("ref_0 = %v, want %v", got, parentIDs[0])
	}
}

func TestCopySharesIdentityNotStorage(t *testing.T) {
	es := newTestStream(t, []string{"a", "b"}, []interface{}{ts(0), ts(1)}, []interface{}{"u1", "u1"})
	cp := es.Copy()

	if cp.ID() != es.ID() {
		t.Fatal("a copy must keep the stream identity")
	}

	ids := eventIDs(t, cp)
	cp.SoftDelete([]types.EventID{ids[0]})
	if es.RowCount() != 2 {
		t.Fatal("deleting on the copy must not affect the original")
	}
	if cp.RowCount() != 1 {
		t.Fatal("delete on the copy did not apply")
	}
}

func TestAddCustomCol(t *testing.T) {
	es := newTestStream(t, []string{"a", "b"}, []interface{}{ts(0), ts(1)}, []interface{}{"u1", "u1"})

	if err := es.AddCustomCol("score", []interface{}{int64(1)}); err == nil {
		t.Fatal("expected error for wrong value count")
	}
	if err := es.AddCustomCol("score", []interface{}{int64(1), int64(2)}); err != nil {
		t.Fatalf("AddCustomCol: %v", err)
	}

	if !es.Schema().HasCustomCol("score") {
		t.Fatal("custom column not registered on schema")
	}
	view := es.Frame(ViewOptions{})
	if v := view.Value("score", 0); v != int64(1) {
		t.Fatalf("score[0] = %v, want 1", v)
	}
}

func TestUserSamplingDeterministic(t *testing.T) {
	users := make([]interface{}, 20)
	events := make([]string, 20)
	times := make([]interface{}, 20)
	for i := range users {
		users[i] = string(rune('a' + i%10))
		events[i] = "e"
		times[i] = ts(i)
	}

	sample := &UserSample{Count: 3, Seed: 42}
	first, err := New(rawFrame(events, times, users), Options{Sample: sample})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	second, err := New(rawFrame(events, times, users), Options{Sample: sample})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	distinct := func(es *Eventstream) map[interface{}]struct{} {
		out := make(map[interface{}]struct{})
		for _, v := range es.Frame(ViewOptions{}).Col(es.Schema().UserID) {
			out[v] = struct{}{}
		}
		return out
	}

	got := distinct(first)
	if len(got) != 3 {
		t.Fatalf("sampled %d users, want 3", len(got))
	}
	for u := range distinct(second) {
		if _, ok := got[u]; !ok {
			t.Fatal("same seed produced a different sample")
		}
	}
}

func TestUserSamplingFraction(t *testing.T) {
	users := make([]interface{}, 10)
	events := make([]string, 10)
	times := make([]interface{}, 10)
	for i := range users {
		users[i] = string(rune('a' + i))
		events[i] = "e"
		times[i] = ts(i)
	}

	es, err := New(rawFrame(events, times, users), Options{Sample: &UserSample{Fraction: 0.5, Seed: 7}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if es.RowCount() != 5 {
		t.Fatalf("RowCount = %d, want 5", es.RowCount())
	}
}

func TestUserSamplingValidation(t *testing.T) {
	cases := []UserSample{
		{},
		{Count: 2, Fraction: 0.5},
		{Count: -1},
		{Fraction: 1.5},
	}
	for _, sample := range cases {
		s := sample
		_, err := New(rawFrame([]string{"e"}, []interface{}{ts(0)}, []interface{}{"u"}), Options{Sample: &s})
		if err == nil {
			t.Fatalf("sample %+v should be rejected", s)
		}
		if errors.GetCode(err) != errors.CodeInvalidSampleSize {
			t.Fatalf("sample %+v: code = %s, want %s", s, errors.GetCode(err), errors.CodeInvalidSampleSize)
		}
	}
}
