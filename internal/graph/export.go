package graph

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/pathlens/pathlens/internal/errors"
	"github.com/pathlens/pathlens/internal/eventstream"
	"github.com/pathlens/pathlens/internal/processor"
)

// ProcessorRecord is the serializable form of a processor binding.
type ProcessorRecord struct {
	Name   string                 `yaml:"name" json:"name"`
	Params map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
}

// NodeRecord is the serializable form of one graph node. Parents reference
// earlier records by PK.
type NodeRecord struct {
	Kind        string           `yaml:"kind" json:"kind"`
	PK          string           `yaml:"pk" json:"pk"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Processor   *ProcessorRecord `yaml:"processor,omitempty" json:"processor,omitempty"`
	Parents     []string         `yaml:"parents,omitempty" json:"parents,omitempty"`
}

// Export dumps the graph structure as node records in insertion order. Cached
// outputs and the source stream's data are not part of the export.
func (g *Graph) Export() []NodeRecord {
	records := make([]NodeRecord, 0, len(g.order))
	for _, pk := range g.order {
		node := g.nodes[pk]
		rec := NodeRecord{
			Kind:        node.kind(),
			PK:          pk,
			Description: node.Description(),
			Parents:     append([]string(nil), g.parents[pk]...),
		}
		if en, ok := node.(*EventsNode); ok {
			rec.Processor = &ProcessorRecord{
				Name:   en.proc.Name(),
				Params: en.proc.Params(),
			}
		}
		records = append(records, rec)
	}
	return records
}

// ExportYAML dumps the graph structure as YAML.
func (g *Graph) ExportYAML() ([]byte, error) {
	out, err := yaml.Marshal(g.Export())
	if err != nil {
		return nil, errors.NewInternalError("marshaling graph export", err)
	}
	return out, nil
}

// Import rebuilds a graph from exported records over a new source stream.
// The first record must be the source node; processor names resolve through
// the registry.
func Import(source *eventstream.Eventstream, registry *processor.Registry, records []NodeRecord) (*Graph, error) {
	if len(records) == 0 || records[0].Kind != KindSource {
		return nil, errors.NewValidationError(errors.CodeInvalidParams,
			"graph import requires a leading source node record")
	}

	g := &Graph{
		registry: registry,
		nodes:    make(map[string]Node),
		parents:  make(map[string][]string),
		cache:    make(map[string]cacheEntry),
	}
	g.root = &SourceNode{
		baseNode: baseNode{pk: records[0].PK, description: records[0].Description},
		stream:   source,
	}
	g.addNode(g.root, nil)

	for _, rec := range records[1:] {
		var node Node
		switch rec.Kind {
		case KindSource:
			return nil, errors.NewValidationError(errors.CodeInvalidParams,
				fmt.Sprintf("node %s: a graph has exactly one source node", rec.PK))
		case KindEvents:
			if rec.Processor == nil {
				return nil, errors.NewValidationError(errors.CodeInvalidParams,
					fmt.Sprintf("node %s: events node record has no processor", rec.PK))
			}
			proc, err := registry.New(rec.Processor.Name, rec.Processor.Params)
			if err != nil {
				return nil, err
			}
			node = &EventsNode{
				baseNode: baseNode{pk: rec.PK, description: rec.Description},
				proc:     proc,
			}
		case KindMerge:
			node = &MergeNode{baseNode: baseNode{pk: rec.PK, description: rec.Description}}
		default:
			return nil, errors.NewValidationError(errors.CodeInvalidParams,
				fmt.Sprintf("node %s: unknown node kind %q", rec.PK, rec.Kind))
		}

		parents := make([]Node, 0, len(rec.Parents))
		for _, ppk := range rec.Parents {
			p, ok := g.nodes[ppk]
			if !ok {
				return nil, errors.NewIntegrityError(errors.CodeNodeNotFound,
					fmt.Sprintf("node %s: parent %s is not defined before use", rec.PK, ppk))
			}
			parents = append(parents, p)
		}
		if err := g.AddNode(node, parents...); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ImportYAML rebuilds a graph from YAML produced by ExportYAML.
func ImportYAML(source *eventstream.Eventstream, registry *processor.Registry, data []byte) (*Graph, error) {
	var records []NodeRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, errors.NewValidationError(errors.CodeInvalidParams,
			fmt.Sprintf("unmarshaling graph definition: %v", err))
	}
	return Import(source, registry, records)
}
