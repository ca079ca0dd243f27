package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathlens/pathlens/internal/errors"
	"github.com/pathlens/pathlens/internal/eventstream"
	"github.com/pathlens/pathlens/internal/frame"
	"github.com/pathlens/pathlens/pkg/types"
)

func newSnapshotStream(t *testing.T) *eventstream.Eventstream {
	t.Helper()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := frame.New()
	require.NoError(t, raw.SetCol("event", []interface{}{"login", "browse", "buy"}))
	require.NoError(t, raw.SetCol("timestamp", []interface{}{
		base, base.Add(10 * time.Second), base.Add(20 * time.Second),
	}))
	require.NoError(t, raw.SetCol("user_id", []interface{}{"u1", "u1", "u2"}))
	require.NoError(t, raw.SetCol("country", []interface{}{"de", nil, "fr"}))

	es, err := eventstream.New(raw, eventstream.Options{})
	require.NoError(t, err)
	return es
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	es := newSnapshotStream(t)
	require.NoError(t, es.AddCustomCol("amount", []interface{}{int64(10), nil, float64(2.5)}))

	path := filepath.Join(t.TempDir(), "snapshots", "stream.snapshot")
	require.NoError(t, Write(ctx, path, es))

	got, err := Read(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, es.ID(), got.ID())
	assert.Equal(t, es.RowCount(), got.RowCount())
	assert.True(t, es.Schema().IsEqual(got.Schema()))
	assert.Equal(t, es.IndexOrder(), got.IndexOrder())

	wantView := es.Frame(eventstream.ViewOptions{RawCols: true})
	gotView := got.Frame(eventstream.ViewOptions{RawCols: true})
	require.Equal(t, wantView.Columns(), gotView.Columns())

	for _, col := range wantView.Columns() {
		wantCol := wantView.Col(col)
		gotCol := gotView.Col(col)
		require.Len(t, gotCol, len(wantCol), "column %s", col)
		for i := range wantCol {
			// Deserialized timestamps carry a different wall-clock
			// representation; compare instants, not struct layout.
			if wt, ok := wantCol[i].(time.Time); ok {
				gt, ok := gotCol[i].(time.Time)
				require.True(t, ok, "column %s row %d is not a time", col, i)
				assert.True(t, wt.Equal(gt), "column %s row %d: %v != %v", col, i, wt, gt)
				continue
			}
			assert.Equal(t, wantCol[i], gotCol[i], "column %s row %d", col, i)
		}
	}
}

func TestSnapshotPreservesTombstones(t *testing.T) {
	ctx := context.Background()
	es := newSnapshotStream(t)
	ids := es.Frame(eventstream.ViewOptions{}).Col("event_id")
	es.SoftDelete([]types.EventID{ids[1].(types.EventID)})
	require.Equal(t, 2, es.RowCount())

	path := filepath.Join(t.TempDir(), "stream.snapshot")
	require.NoError(t, Write(ctx, path, es))

	got, err := Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RowCount())
	assert.Equal(t, 3, got.Frame(eventstream.ViewOptions{ShowDeleted: true}).NumRows())
}

func TestSnapshotPreservesRelations(t *testing.T) {
	ctx := context.Background()
	parent := newSnapshotStream(t)

	raw := frame.New()
	base := time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)
	require.NoError(t, raw.SetCol("event", []interface{}{"checkout"}))
	require.NoError(t, raw.SetCol("timestamp", []interface{}{base}))
	require.NoError(t, raw.SetCol("user_id", []interface{}{"u1"}))
	ids := parent.Frame(eventstream.ViewOptions{}).Col("event_id")
	require.NoError(t, raw.SetCol("ref", []interface{}{ids[0]}))

	child, err := eventstream.New(raw, eventstream.Options{
		Relations: []eventstream.Relation{{RawCol: "ref", Stream: parent.ID()}},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "child.snapshot")
	require.NoError(t, Write(ctx, path, child))

	got, err := Read(ctx, path)
	require.NoError(t, err)
	require.Len(t, got.Relations(), 1)
	assert.Equal(t, parent.ID(), got.Relations()[0].Stream)

	refs := got.Frame(eventstream.ViewOptions{}).Col("ref_0")
	require.Len(t, refs, 1)
	assert.Equal(t, ids[0], refs[0])
}

func TestSnapshotWriteIsAtomic(t *testing.T) {
	ctx := context.Background()
	es := newSnapshotStream(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "stream.snapshot")
	require.NoError(t, Write(ctx, path, es))
	// Overwriting an existing snapshot leaves no temp files behind.
	require.NoError(t, Write(ctx, path, es))

	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Equal(t, []string{path}, entries)
}

func TestReadMissingSnapshot(t *testing.T) {
	_, err := Read(context.Background(), filepath.Join(t.TempDir(), "absent.snapshot"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeSnapshotFailed, errors.GetCode(err))
}

func TestCellCodecRoundTrip(t *testing.T) {
	id, err := types.NewEventIDGenerator().Next()
	require.NoError(t, err)
	values := []interface{}{
		nil,
		"text",
		int64(1 << 60),
		3.25,
		true,
		id,
	}
	for _, v := range values {
		c, err := encodeCell(v)
		require.NoError(t, err)
		got, err := decodeCell(c)
		require.NoError(t, err)
		assert.Equal(t, normalizeInt(v), got)
	}

	c, err := encodeCell(time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC))
	require.NoError(t, err)
	got, err := decodeCell(c)
	require.NoError(t, err)
	assert.True(t, got.(time.Time).Equal(time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)))
}

// normalizeInt mirrors the codec's widening of int to int64.
func normalizeInt(v interface{}) interface{} {
	if i, ok := v.(int); ok {
		return int64(i)
	}
	return v
}

func TestEncodeCellRejectsUnsupportedType(t *testing.T) {
	_, err := encodeCell(struct{ X int }{1})
	require.Error(t, err)
	assert.Equal(t, errors.CodeSnapshotFailed, errors.GetCode(err))
}
