// Package graph implements the preprocessing graph: a DAG of transformation
// nodes over eventstreams. Combine executes the subgraph behind a node in
// dependency order, folding every derived stream back into the running
// result through the eventstream merge operators, with per-node caching.
package graph

import (
	"github.com/google/uuid"

	"github.com/pathlens/pathlens/internal/eventstream"
	"github.com/pathlens/pathlens/internal/processor"
)

// Node is a unit of the preprocessing graph. Every node has a stable
// identifier used for addressing, export, and cache keys.
type Node interface {
	// PK returns the node's stable identifier.
	PK() string

	// Description returns the optional human-readable description.
	Description() string

	// kind returns the node kind name used in exports.
	kind() string
}

// Node kind names used in exported records.
const (
	KindSource = "SourceNode"
	KindEvents = "EventsNode"
	KindMerge  = "MergeNode"
)

type baseNode struct {
	pk          string
	description string
}

func newBaseNode(description string) baseNode {
	return baseNode{pk: uuid.NewString(), description: description}
}

func (n *baseNode) PK() string {
	return n.pk
}

func (n *baseNode) Description() string {
	return n.description
}

// SourceNode wraps a root eventstream. It has no upstream dependency; its
// output is the wrapped stream itself.
type SourceNode struct {
	baseNode
	stream *eventstream.Eventstream
}

// NewSourceNode creates a source node over a root stream.
func NewSourceNode(stream *eventstream.Eventstream, description string) *SourceNode {
	return &SourceNode{baseNode: newBaseNode(description), stream: stream}
}

// Stream returns the wrapped root stream.
func (n *SourceNode) Stream() *eventstream.Eventstream {
	return n.stream
}

func (n *SourceNode) kind() string { return KindSource }

// EventsNode wraps one processor. Its output is the parent's stream with the
// processor's derived stream spliced in through the lineage join.
type EventsNode struct {
	baseNode
	proc processor.Processor
}

// NewEventsNode creates an events node for a processor.
func NewEventsNode(proc processor.Processor, description string) *EventsNode {
	return &EventsNode{baseNode: newBaseNode(description), proc: proc}
}

// Processor returns the wrapped processor.
func (n *EventsNode) Processor() processor.Processor {
	return n.proc
}

// SetProcessor swaps the node's processor. The node's cache key covers the
// processor parameters, so the next Combine recomputes this node and every
// descendant.
func (n *EventsNode) SetProcessor(proc processor.Processor) {
	n.proc = proc
}

func (n *EventsNode) kind() string { return KindEvents }

// MergeNode is a fan-in point. Its output folds all parents' streams
// together: lineage joins where a parent relates to the running result's
// ancestor, union appends otherwise.
type MergeNode struct {
	baseNode
}

// NewMergeNode creates a merge node.
func NewMergeNode(description string) *MergeNode {
	return &MergeNode{baseNode: newBaseNode(description)}
}

func (n *MergeNode) kind() string { return KindMerge }
