package graph

import (
	"fmt"
	"time"

	"github.com/pathlens/pathlens/internal/errors"
	"github.com/pathlens/pathlens/internal/eventstream"
	"github.com/pathlens/pathlens/internal/observability"
	"github.com/pathlens/pathlens/internal/processor"
)

// Graph is a DAG of preprocessing nodes rooted at a source stream.
// Evaluation is single-threaded; node output caches are private to the
// graph instance.
type Graph struct {
	registry *processor.Registry
	root     *SourceNode
	nodes    map[string]Node
	order    []string
	parents  map[string][]string
	cache    map[string]cacheEntry
	stats    *observability.CombineStats
}

type cacheEntry struct {
	key    fingerprint
	stream *eventstream.Eventstream
}

// New creates a graph over a source stream. The registry resolves processor
// names during import; it is injected rather than global.
func New(source *eventstream.Eventstream, registry *processor.Registry) *Graph {
	g := &Graph{
		registry: registry,
		nodes:    make(map[string]Node),
		parents:  make(map[string][]string),
		cache:    make(map[string]cacheEntry),
	}
	g.root = NewSourceNode(source, "")
	g.addNode(g.root, nil)
	return g
}

// Root returns the graph's source node.
func (g *Graph) Root() *SourceNode {
	return g.root
}

// Registry returns the injected processor registry.
func (g *Graph) Registry() *processor.Registry {
	return g.registry
}

// SetStats attaches an evaluation statistics tracker. Nil detaches it.
func (g *Graph) SetStats(stats *observability.CombineStats) {
	g.stats = stats
}

// Node returns a node by identifier.
func (g *Graph) Node(pk string) (Node, bool) {
	n, ok := g.nodes[pk]
	return n, ok
}

// Terminal returns the most recently added node, the conventional target for
// Combine on imported graphs. Nil only for an empty graph.
func (g *Graph) Terminal() Node {
	if len(g.order) == 0 {
		return nil
	}
	return g.nodes[g.order[len(g.order)-1]]
}

// AddNode adds a node with its parent edges. Events nodes take exactly one
// parent; merge nodes at least one; source nodes none.
func (g *Graph) AddNode(node Node, parents ...Node) error {
	if _, ok := g.nodes[node.PK()]; ok {
		return errors.NewValidationError(errors.CodeInvalidParams,
			fmt.Sprintf("node %s is already in the graph", node.PK()))
	}
	pks, err := g.parentPKs(node, parents)
	if err != nil {
		return err
	}
	g.addNode(node, pks)
	return nil
}

// SetParents rewires a node's parent edges and drops the cached outputs of
// the node and all its descendants.
func (g *Graph) SetParents(node Node, parents ...Node) error {
	if _, ok := g.nodes[node.PK()]; !ok {
		return errors.NewIntegrityError(errors.CodeNodeNotFound,
			fmt.Sprintf("node %s is not in the graph", node.PK()))
	}
	pks, err := g.parentPKs(node, parents)
	if err != nil {
		return err
	}
	g.parents[node.PK()] = pks
	g.Invalidate(node)
	return nil
}

// Invalidate drops the cached output of a node and, transitively, of every
// descendant.
func (g *Graph) Invalidate(node Node) {
	dirty := map[string]struct{}{node.PK(): {}}
	// Children edges are derived from the parent map; walk until fixpoint.
	for {
		grew := false
		for pk, parents := range g.parents {
			if _, done := dirty[pk]; done {
				continue
			}
			for _, p := range parents {
				if _, hit := dirty[p]; hit {
					dirty[pk] = struct{}{}
					grew = true
					break
				}
			}
		}
		if !grew {
			break
		}
	}
	for pk := range dirty {
		delete(g.cache, pk)
	}
}

// Combine executes the subgraph ending at the given node and returns its
// output eventstream. Leaves evaluate first; every node's output is cached
// under a key derived from its identifier, its parameters, and its parents'
// outputs, so unchanged branches are not recomputed on repeated calls.
func (g *Graph) Combine(node Node) (*eventstream.Eventstream, error) {
	if _, ok := g.nodes[node.PK()]; !ok {
		return nil, errors.NewIntegrityError(errors.CodeNodeNotFound,
			fmt.Sprintf("node %s is not in the graph", node.PK()))
	}
	out, _, err := g.eval(node.PK(), make(map[string]bool))
	if err != nil {
		return nil, err
	}
	// Hand out a copy so callers cannot corrupt cached outputs.
	return out.Copy(), nil
}

func (g *Graph) addNode(node Node, parentPKs []string) {
	g.nodes[node.PK()] = node
	g.order = append(g.order, node.PK())
	g.parents[node.PK()] = parentPKs
}

func (g *Graph) parentPKs(node Node, parents []Node) ([]string, error) {
	pks := make([]string, 0, len(parents))
	for _, p := range parents {
		if _, ok := g.nodes[p.PK()]; !ok {
			return nil, errors.NewIntegrityError(errors.CodeNodeNotFound,
				fmt.Sprintf("parent node %s is not in the graph", p.PK()))
		}
		pks = append(pks, p.PK())
	}
	switch node.(type) {
	case *SourceNode:
		if len(pks) != 0 {
			return nil, errors.NewValidationError(errors.CodeInvalidParams, "source nodes take no parents")
		}
	case *EventsNode:
		if len(pks) != 1 {
			return nil, errors.NewValidationError(errors.CodeInvalidParams, "events nodes take exactly one parent")
		}
	case *MergeNode:
		if len(pks) == 0 {
			return nil, errors.NewValidationError(errors.CodeInvalidParams, "merge nodes take at least one parent")
		}
	}
	return pks, nil
}

// eval computes a node's output bottom-up. visiting tracks the DFS path for
// cycle detection.
func (g *Graph) eval(pk string, visiting map[string]bool) (*eventstream.Eventstream, fingerprint, error) {
	if visiting[pk] {
		return nil, fingerprint{}, errors.NewIntegrityError(errors.CodeGraphCycle,
			fmt.Sprintf("node %s is part of a dependency cycle", pk))
	}
	visiting[pk] = true
	defer delete(visiting, pk)

	node := g.nodes[pk]

	switch n := node.(type) {
	case *SourceNode:
		key := cacheKey(pk, streamFingerprint(n.stream))
		return n.stream, key, nil

	case *EventsNode:
		parents := g.parents[pk]
		if len(parents) != 1 {
			return nil, fingerprint{}, errors.NewIntegrityError(errors.CodeUnreachableNode,
				fmt.Sprintf("events node %s is not connected to a source", pk))
		}
		parentOut, parentKey, err := g.eval(parents[0], visiting)
		if err != nil {
			return nil, fingerprint{}, err
		}
		key := cacheKey(pk, processorFingerprint(n.proc), parentKey)
		if entry, ok := g.cache[pk]; ok && entry.key == key {
			if g.stats != nil {
				g.stats.RecordCacheHit(pk)
			}
			return entry.stream, key, nil
		}
		start := time.Now()
		derived, err := n.proc.Apply(parentOut)
		if err != nil {
			return nil, fingerprint{}, err
		}
		combined := parentOut.Copy()
		if err := combined.Join(derived); err != nil {
			return nil, fingerprint{}, err
		}
		g.cache[pk] = cacheEntry{key: key, stream: combined}
		if g.stats != nil {
			g.stats.RecordEvaluation(pk, time.Since(start))
		}
		return combined, key, nil

	case *MergeNode:
		parents := g.parents[pk]
		if len(parents) == 0 {
			return nil, fingerprint{}, errors.NewIntegrityError(errors.CodeUnreachableNode,
				fmt.Sprintf("merge node %s is not connected to a source", pk))
		}
		outs := make([]*eventstream.Eventstream, 0, len(parents))
		keys := make([]fingerprint, 0, len(parents))
		for _, p := range parents {
			out, k, err := g.eval(p, visiting)
			if err != nil {
				return nil, fingerprint{}, err
			}
			outs = append(outs, out)
			keys = append(keys, k)
		}
		key := cacheKey(pk, keys...)
		if entry, ok := g.cache[pk]; ok && entry.key == key {
			if g.stats != nil {
				g.stats.RecordCacheHit(pk)
			}
			return entry.stream, key, nil
		}
		start := time.Now()
		merged := outs[0].Copy()
		for _, out := range outs[1:] {
			if hasRelationTo(out, merged) {
				if err := merged.Join(out); err != nil {
					return nil, fingerprint{}, err
				}
			} else {
				if err := merged.Append(out); err != nil {
					return nil, fingerprint{}, err
				}
			}
		}
		g.cache[pk] = cacheEntry{key: key, stream: merged}
		if g.stats != nil {
			g.stats.RecordEvaluation(pk, time.Since(start))
		}
		return merged, key, nil

	default:
		return nil, fingerprint{}, errors.NewInternalError(
			fmt.Sprintf("unknown node kind for %s", pk), nil)
	}
}

// hasRelationTo reports whether stream carries a lineage relation to target.
func hasRelationTo(stream, target *eventstream.Eventstream) bool {
	for _, rel := range stream.Relations() {
		if rel.Stream == target.ID() {
			return true
		}
	}
	return false
}
