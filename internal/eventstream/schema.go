// Package eventstream implements the core event log entity: schema-aware
// construction from raw tabular data, stable ordering, soft deletion, the two
// merge operators (union append and lineage join), and materialized views.
package eventstream

import "sort"

// Default physical column names for the semantic roles of a schema.
const (
	DefaultEventIDCol   = "event_id"
	DefaultEventNameCol = "event"
	DefaultEventTypeCol = "event_type"
	DefaultTimestampCol = "timestamp"
	DefaultUserIDCol    = "user_id"
	DefaultIndexCol     = "event_index"
)

// Schema maps the semantic roles of an eventstream to physical column names
// and tracks the registered custom columns.
type Schema struct {
	EventID        string
	EventName      string
	EventType      string
	EventTimestamp string
	UserID         string
	EventIndex     string
	CustomCols     []string
}

// DefaultSchema returns a schema with the default physical column names and
// no custom columns.
func DefaultSchema() *Schema {
	return &Schema{
		EventID:        DefaultEventIDCol,
		EventName:      DefaultEventNameCol,
		EventType:      DefaultEventTypeCol,
		EventTimestamp: DefaultTimestampCol,
		UserID:         DefaultUserIDCol,
		EventIndex:     DefaultIndexCol,
	}
}

// Cols returns the full ordered set of physical columns a materialized view
// exposes: system columns in stable order, then custom columns in declared
// order.
func (s *Schema) Cols() []string {
	cols := []string{
		s.EventID,
		s.EventType,
		s.EventIndex,
		s.EventName,
		s.EventTimestamp,
		s.UserID,
	}
	return append(cols, s.CustomCols...)
}

// IsEqual reports whether both schemas map every semantic role to the same
// physical name and declare the same custom columns. Custom column order is
// not significant.
func (s *Schema) IsEqual(other *Schema) bool {
	if other == nil {
		return false
	}
	if s.EventID != other.EventID ||
		s.EventName != other.EventName ||
		s.EventType != other.EventType ||
		s.EventTimestamp != other.EventTimestamp ||
		s.UserID != other.UserID ||
		s.EventIndex != other.EventIndex {
		return false
	}
	if len(s.CustomCols) != len(other.CustomCols) {
		return false
	}
	a := append([]string(nil), s.CustomCols...)
	b := append([]string(nil), other.CustomCols...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Copy returns a deep, independent copy of the schema.
func (s *Schema) Copy() *Schema {
	cp := *s
	cp.CustomCols = append([]string(nil), s.CustomCols...)
	return &cp
}

// HasCustomCol reports whether the custom column is registered.
func (s *Schema) HasCustomCol(name string) bool {
	for _, c := range s.CustomCols {
		if c == name {
			return true
		}
	}
	return false
}

// AddCustomCol registers a custom column if not already present.
func (s *Schema) AddCustomCol(name string) {
	if !s.HasCustomCol(name) {
		s.CustomCols = append(s.CustomCols, name)
	}
}

// ToRawDataSchema projects the schema into a raw-data schema, mapping every
// role to its own physical name. Used when a processor's output frame, whose
// columns already carry schema names, becomes a new eventstream's raw input.
func (s *Schema) ToRawDataSchema() *RawDataSchema {
	raw := &RawDataSchema{
		EventName:      s.EventName,
		EventTimestamp: s.EventTimestamp,
		EventType:      s.EventType,
		UserID:         s.UserID,
	}
	for _, c := range s.CustomCols {
		raw.CustomCols = append(raw.CustomCols, RawCustomCol{RawCol: c, CustomCol: c})
	}
	return raw
}

// RawCustomCol maps a raw input column onto a custom column of the schema.
type RawCustomCol struct {
	RawCol    string
	CustomCol string
}

// RawDataSchema maps the semantic roles onto the column names of raw input
// data. EventType is optional; when empty, incoming rows are typed "raw".
type RawDataSchema struct {
	EventName      string
	EventTimestamp string
	EventType      string
	UserID         string
	CustomCols     []RawCustomCol
}

// DefaultRawDataSchema returns the conventional raw input column mapping.
func DefaultRawDataSchema() *RawDataSchema {
	return &RawDataSchema{
		EventName:      DefaultEventNameCol,
		EventTimestamp: DefaultTimestampCol,
		UserID:         DefaultUserIDCol,
	}
}

// Copy returns a deep, independent copy.
func (s *RawDataSchema) Copy() *RawDataSchema {
	cp := *s
	cp.CustomCols = append([]RawCustomCol(nil), s.CustomCols...)
	return &cp
}
