// Package processor defines the transformation contract applied by
// preprocessing graph nodes: a processor is a pure function from one
// eventstream to a derived eventstream that carries a lineage relation back
// to its input. Processors are looked up through an explicit registry that is
// injected into graph construction.
package processor

import (
	"fmt"
	"sort"

	"github.com/pathlens/pathlens/internal/errors"
	"github.com/pathlens/pathlens/internal/eventstream"
	"github.com/pathlens/pathlens/internal/frame"
)

// RefCol is the raw column on a processor's output frame that carries the
// parent's event ids; it materializes as the derived stream's relation
// column.
const RefCol = "ref"

// Processor transforms an eventstream into a derived eventstream. Apply must
// not mutate its input; the returned stream must declare a relation pointing
// back to it.
type Processor interface {
	// Name is the registered processor name.
	Name() string

	// Params exports the validated parameters as a plain record.
	Params() map[string]interface{}

	// Apply computes the derived stream.
	Apply(parent *eventstream.Eventstream) (*eventstream.Eventstream, error)
}

// Factory builds a processor from a plain parameter record, validating it.
type Factory func(params map[string]interface{}) (Processor, error)

// Registry maps processor names to factories. Registration order is
// deterministic; duplicate registration is an integrity error.
type Registry struct {
	names     []string
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with all built-in processors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.Register(NameStartEndEvents, newStartEndEvents))
	must(r.Register(NameFilterEvents, newFilterEvents))
	must(r.Register(NameRenameEvents, newRenameEvents))
	must(r.Register(NameSplitSessions, newSplitSessions))
	return r
}

// Register adds a factory under a name.
func (r *Registry) Register(name string, factory Factory) error {
	if _, ok := r.factories[name]; ok {
		return errors.NewIntegrityError(errors.CodeDuplicateProcessor,
			fmt.Sprintf("processor %q is already registered", name))
	}
	r.names = append(r.names, name)
	r.factories[name] = factory
	return nil
}

// New builds a processor by registered name.
func (r *Registry) New(name string, params map[string]interface{}) (Processor, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, errors.NewIntegrityError(errors.CodeProcessorNotFound,
			fmt.Sprintf("processor %q is not registered", name))
	}
	return factory(params)
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// derive builds the derived eventstream from a processor output frame. The
// frame's columns are named by the parent's schema, plus the ref column
// carrying parent event ids (null for brand-new synthetic rows). extraCustom
// lists custom columns introduced by the processor.
func derive(parent *eventstream.Eventstream, out *frame.Frame, extraCustom ...string) (*eventstream.Eventstream, error) {
	rawSchema := parent.Schema().ToRawDataSchema()
	for _, cc := range extraCustom {
		rawSchema.CustomCols = append(rawSchema.CustomCols, eventstream.RawCustomCol{RawCol: cc, CustomCol: cc})
	}
	return eventstream.New(out, eventstream.Options{
		RawDataSchema: rawSchema,
		Schema:        parent.Schema().Copy(),
		IndexOrder:    parent.IndexOrder(),
		Relations:     []eventstream.Relation{{RawCol: RefCol, Stream: parent.ID()}},
	})
}

// errParamsNotEmpty rejects parameters passed to a parameterless processor.
var errParamsNotEmpty = errors.NewValidationError(errors.CodeInvalidParams, "processor takes no parameters")

// Parameter record decoding helpers shared by factories.

func paramString(params map[string]interface{}, key string) (string, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, errors.NewValidationError(errors.CodeInvalidParams,
			fmt.Sprintf("parameter %q must be a string", key))
	}
	return s, true, nil
}

func paramStringSlice(params map[string]interface{}, key string) ([]string, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	switch tv := v.(type) {
	case []string:
		return append([]string(nil), tv...), true, nil
	case []interface{}:
		out := make([]string, 0, len(tv))
		for _, e := range tv {
			s, ok := e.(string)
			if !ok {
				return nil, false, errors.NewValidationError(errors.CodeInvalidParams,
					fmt.Sprintf("parameter %q must be a list of strings", key))
			}
			out = append(out, s)
		}
		return out, true, nil
	default:
		return nil, false, errors.NewValidationError(errors.CodeInvalidParams,
			fmt.Sprintf("parameter %q must be a list of strings", key))
	}
}

func paramStringMap(params map[string]interface{}, key string) (map[string]string, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	out := make(map[string]string)
	switch tv := v.(type) {
	case map[string]string:
		for k, s := range tv {
			out[k] = s
		}
	case map[string]interface{}:
		for k, e := range tv {
			s, ok := e.(string)
			if !ok {
				return nil, false, errors.NewValidationError(errors.CodeInvalidParams,
					fmt.Sprintf("parameter %q must map strings to strings", key))
			}
			out[k] = s
		}
	default:
		return nil, false, errors.NewValidationError(errors.CodeInvalidParams,
			fmt.Sprintf("parameter %q must map strings to strings", key))
	}
	return out, true, nil
}

// sortedKeys returns map keys in deterministic order for export.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
