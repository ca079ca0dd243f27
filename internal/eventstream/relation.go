package eventstream

import "github.com/pathlens/pathlens/pkg/types"

// Relation is a lineage edge recorded on a derived eventstream at
// construction time. It names the ancestor stream by id and the raw input
// column whose values map rows back to the ancestor's event ids. RawCol may
// be empty, in which case the relation column is created all-null.
//
// Relations are immutable after construction; copies of a stream copy them.
type Relation struct {
	RawCol string
	Stream types.StreamID
}
