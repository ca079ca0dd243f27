package processor

import (
	"fmt"

	"github.com/pathlens/pathlens/internal/eventstream"
)

// NameStartEndEvents is the registered name of StartEndEvents.
const NameStartEndEvents = "add_start_end_events"

// StartEndEvents adds a synthetic path_start event before the first event of
// every user path and a path_end event after the last one. The synthetic
// rows are brand new: they carry no back-reference and are appended by the
// lineage join.
type StartEndEvents struct{}

func newStartEndEvents(params map[string]interface{}) (Processor, error) {
	if len(params) > 0 {
		return nil, fmt.Errorf("processor %s: %w", NameStartEndEvents, errParamsNotEmpty)
	}
	return StartEndEvents{}, nil
}

func (StartEndEvents) Name() string {
	return NameStartEndEvents
}

func (StartEndEvents) Params() map[string]interface{} {
	return map[string]interface{}{}
}

func (p StartEndEvents) Apply(parent *eventstream.Eventstream) (*eventstream.Eventstream, error) {
	schema := parent.Schema()
	view := parent.Frame(eventstream.ViewOptions{})
	users := view.Col(schema.UserID)

	first := make(map[string]int)
	last := make(map[string]int)
	var order []string
	for i := range users {
		key := cellKey(users[i])
		if _, ok := first[key]; !ok {
			first[key] = i
			order = append(order, key)
		}
		last[key] = i
	}

	var rows []rowSpec
	for _, key := range order {
		rows = append(rows, rowSpec{
			src: first[key],
			override: map[string]interface{}{
				schema.EventName: "path_start",
				schema.EventType: "path_start",
			},
		})
	}
	for _, key := range order {
		rows = append(rows, rowSpec{
			src: last[key],
			override: map[string]interface{}{
				schema.EventName: "path_end",
				schema.EventType: "path_end",
			},
		})
	}

	return derive(parent, buildOutput(view, schema.Cols(), rows))
}

// cellKey folds a cell into a comparable key regardless of physical type.
func cellKey(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
