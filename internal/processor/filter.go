package processor

import (
	"github.com/pathlens/pathlens/internal/errors"
	"github.com/pathlens/pathlens/internal/eventstream"
	"github.com/pathlens/pathlens/pkg/types"
)

// NameFilterEvents is the registered name of FilterEvents.
const NameFilterEvents = "filter_events"

// FilterEvents keeps the events selected by a predicate and tombstones the
// rest. Every parent row maps 1:1 onto a derived row; discarded rows are
// soft-deleted on the derived stream, so the lineage join replaces all parent
// rows and the tombstones take effect in the combined result.
//
// Either Events (a keep-list of event names, serializable) or Keep (a
// programmatic predicate) selects rows; when both are set, Keep wins.
type FilterEvents struct {
	Events []string
	Keep   func(eventName string) bool
}

func newFilterEvents(params map[string]interface{}) (Processor, error) {
	events, ok, err := paramStringSlice(params, "events")
	if err != nil {
		return nil, err
	}
	if !ok || len(events) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidParams,
			"filter_events requires a non-empty \"events\" list")
	}
	return FilterEvents{Events: events}, nil
}

func (FilterEvents) Name() string {
	return NameFilterEvents
}

func (p FilterEvents) Params() map[string]interface{} {
	out := map[string]interface{}{}
	if p.Events != nil {
		names := make([]interface{}, len(p.Events))
		for i, e := range p.Events {
			names[i] = e
		}
		out["events"] = names
	}
	return out
}

func (p FilterEvents) keep() func(string) bool {
	if p.Keep != nil {
		return p.Keep
	}
	set := make(map[string]struct{}, len(p.Events))
	for _, e := range p.Events {
		set[e] = struct{}{}
	}
	return func(name string) bool {
		_, ok := set[name]
		return ok
	}
}

func (p FilterEvents) Apply(parent *eventstream.Eventstream) (*eventstream.Eventstream, error) {
	if p.Keep == nil && len(p.Events) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidParams,
			"filter_events requires a keep-list or a predicate")
	}

	schema := parent.Schema()
	view := parent.Frame(eventstream.ViewOptions{})
	ids := view.Col(schema.EventID)

	rows := make([]rowSpec, view.NumRows())
	for i := range rows {
		rows[i] = rowSpec{src: i, ref: ids[i]}
	}

	child, err := derive(parent, buildOutput(view, schema.Cols(), rows))
	if err != nil {
		return nil, err
	}

	keep := p.keep()
	childView := child.Frame(eventstream.ViewOptions{})
	childIDs := childView.Col(schema.EventID)
	names := childView.Col(schema.EventName)

	var drop []types.EventID
	for i := range names {
		name, _ := names[i].(string)
		if !keep(name) {
			if id, ok := childIDs[i].(types.EventID); ok {
				drop = append(drop, id)
			}
		}
	}
	child.SoftDelete(drop)
	return child, nil
}
