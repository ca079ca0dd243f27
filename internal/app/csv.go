package app

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/pathlens/pathlens/internal/frame"
)

// loadCSV reads a CSV file into a frame. The first record is the header;
// empty cells become nulls. All values load as strings; timestamp parsing
// happens downstream during eventstream construction.
func loadCSV(path string) (*frame.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("input file %s has no header row", path)
	}

	header := records[0]
	rows := records[1:]

	f := frame.NewSized(header, len(rows))
	for c, name := range header {
		col := f.Col(name)
		for r, record := range rows {
			if record[c] != "" {
				col[r] = record[c]
			}
		}
	}
	return f, nil
}
