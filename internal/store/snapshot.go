// Package store persists eventstream snapshots as single-file SQLite
// databases. A snapshot captures the full internal table, tombstones
// included, plus the schema, raw mapping, index order, and lineage needed to
// reconstruct the stream exactly.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pathlens/pathlens/internal/errors"
	"github.com/pathlens/pathlens/internal/eventstream"
	"github.com/pathlens/pathlens/internal/frame"
	"github.com/pathlens/pathlens/pkg/types"
)

// formatVersion is bumped whenever the snapshot layout changes.
const formatVersion = 1

// snapshotMeta is the serialized header of a snapshot.
type snapshotMeta struct {
	Version    int                        `json:"version"`
	StreamID   types.StreamID             `json:"stream_id"`
	Schema     *eventstream.Schema        `json:"schema"`
	RawSchema  *eventstream.RawDataSchema `json:"raw_schema"`
	IndexOrder []string                   `json:"index_order"`
	Relations  []relationMeta             `json:"relations"`
	Columns    []string                   `json:"columns"`
	RowCount   int                        `json:"row_count"`
	CreatedAt  time.Time                  `json:"created_at"`
}

type relationMeta struct {
	RawCol string         `json:"raw_col"`
	Stream types.StreamID `json:"stream"`
}

// Write persists the stream to a snapshot file at path. Existing files are
// replaced.
func Write(ctx context.Context, path string, es *eventstream.Eventstream) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewStorageError(errors.CodeSnapshotFailed, "creating snapshot directory", err)
	}
	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError(errors.CodeSnapshotFailed, "clearing stale snapshot", err)
	}

	if err := writeFile(ctx, tmp, es); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.NewStorageError(errors.CodeSnapshotFailed, "publishing snapshot", err)
	}
	return nil
}

func writeFile(ctx context.Context, path string, es *eventstream.Eventstream) error {
	view := es.Frame(eventstream.ViewOptions{RawCols: true, ShowDeleted: true})

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return errors.NewStorageError(errors.CodeSnapshotFailed, "opening snapshot database", err)
	}
	defer db.Close()

	// WAL speeds up the bulk insert; the file is switched back to DELETE
	// mode before close so the snapshot is a single immutable file.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return errors.NewStorageError(errors.CodeSnapshotFailed, "setting journal mode", err)
	}

	ddl := []string{
		`CREATE TABLE meta (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		) WITHOUT ROWID`,
		`CREATE TABLE events (
			pos INTEGER PRIMARY KEY,
			payload BLOB NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.NewStorageError(errors.CodeSnapshotFailed, "creating snapshot tables", err)
		}
	}

	meta := snapshotMeta{
		Version:    formatVersion,
		StreamID:   es.ID(),
		Schema:     es.Schema(),
		RawSchema:  es.RawDataSchema(),
		IndexOrder: es.IndexOrder(),
		Columns:    view.Columns(),
		RowCount:   view.NumRows(),
		CreatedAt:  time.Now().UTC(),
	}
	for _, rel := range es.Relations() {
		meta.Relations = append(meta.Relations, relationMeta{RawCol: rel.RawCol, Stream: rel.Stream})
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return errors.NewStorageError(errors.CodeSnapshotFailed, "marshaling snapshot meta", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('snapshot', ?)`, metaJSON); err != nil {
		return errors.NewStorageError(errors.CodeSnapshotFailed, "writing snapshot meta", err)
	}

	stmt, err := db.PrepareContext(ctx, `INSERT INTO events (pos, payload) VALUES (?, ?)`)
	if err != nil {
		return errors.NewStorageError(errors.CodeSnapshotFailed, "preparing row insert", err)
	}
	defer stmt.Close()

	cols := view.Columns()
	for i := 0; i < view.NumRows(); i++ {
		row := make([]cell, len(cols))
		for c, name := range cols {
			enc, err := encodeCell(view.Value(name, i))
			if err != nil {
				return errors.NewStorageError(errors.CodeSnapshotFailed,
					fmt.Sprintf("encoding row %d column %q", i, name), err)
			}
			row[c] = enc
		}
		rowJSON, err := json.Marshal(row)
		if err != nil {
			return errors.NewStorageError(errors.CodeSnapshotFailed, "marshaling row", err)
		}
		if _, err := stmt.ExecContext(ctx, i, snappy.Encode(nil, rowJSON)); err != nil {
			return errors.NewStorageError(errors.CodeSnapshotFailed, "inserting row", err)
		}
	}

	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.NewStorageError(errors.CodeSnapshotFailed, "checkpointing snapshot", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=DELETE"); err != nil {
		return errors.NewStorageError(errors.CodeSnapshotFailed, "finalizing journal mode", err)
	}
	if err := db.Close(); err != nil {
		return errors.NewStorageError(errors.CodeSnapshotFailed, "closing snapshot database", err)
	}
	return nil
}

// Read reconstructs an eventstream from a snapshot file. The returned stream
// has the same identity, schema, lineage, and row set that was written.
func Read(ctx context.Context, path string) (*eventstream.Eventstream, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotFailed, "opening snapshot database", err)
	}
	defer db.Close()

	var metaJSON []byte
	err = db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'snapshot'`).Scan(&metaJSON)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotFailed, "reading snapshot meta", err)
	}
	var meta snapshotMeta
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotFailed, "unmarshaling snapshot meta", err)
	}
	if meta.Version != formatVersion {
		return nil, errors.NewStorageError(errors.CodeSnapshotFailed,
			fmt.Sprintf("unsupported snapshot version %d", meta.Version), nil)
	}

	table := frame.NewSized(meta.Columns, meta.RowCount)

	rows, err := db.QueryContext(ctx, `SELECT pos, payload FROM events ORDER BY pos`)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotFailed, "querying snapshot rows", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pos int
		var payload []byte
		if err := rows.Scan(&pos, &payload); err != nil {
			return nil, errors.NewStorageError(errors.CodeSnapshotFailed, "scanning snapshot row", err)
		}
		rowJSON, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, errors.NewStorageError(errors.CodeSnapshotFailed, "decompressing row", err)
		}
		var row []cell
		if err := json.Unmarshal(rowJSON, &row); err != nil {
			return nil, errors.NewStorageError(errors.CodeSnapshotFailed, "unmarshaling row", err)
		}
		if pos < 0 || pos >= meta.RowCount || len(row) != len(meta.Columns) {
			return nil, errors.NewStorageError(errors.CodeSnapshotFailed,
				fmt.Sprintf("snapshot row %d is out of shape", pos), nil)
		}
		for c, name := range meta.Columns {
			v, err := decodeCell(row[c])
			if err != nil {
				return nil, errors.NewStorageError(errors.CodeSnapshotFailed,
					fmt.Sprintf("decoding row %d column %q", pos, name), err)
			}
			table.Col(name)[pos] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotFailed, "iterating snapshot rows", err)
	}

	relations := make([]eventstream.Relation, 0, len(meta.Relations))
	for _, rel := range meta.Relations {
		relations = append(relations, eventstream.Relation{RawCol: rel.RawCol, Stream: rel.Stream})
	}

	prepare := false
	return eventstream.New(table, eventstream.Options{
		RawDataSchema: meta.RawSchema,
		Schema:        meta.Schema,
		Prepare:       &prepare,
		IndexOrder:    meta.IndexOrder,
		Relations:     relations,
		ID:            meta.StreamID,
	})
}
