package types

import "github.com/google/uuid"

// StreamID identifies an eventstream. Ids are assigned once at construction
// and preserved by copies, so lineage relations can be matched by value
// instead of object identity.
type StreamID string

// NewStreamID returns a fresh stream identifier.
func NewStreamID() StreamID {
	return StreamID(uuid.NewString())
}

// IsZero reports whether the id is unset.
func (s StreamID) IsZero() bool {
	return s == ""
}

func (s StreamID) String() string {
	return string(s)
}
