package processor

import (
	"github.com/pathlens/pathlens/internal/errors"
	"github.com/pathlens/pathlens/internal/eventstream"
)

// NameRenameEvents is the registered name of RenameEvents.
const NameRenameEvents = "rename_events"

// groupAliasType marks events whose name was collapsed into an alias.
const groupAliasType = "group_alias"

// RenameEvents collapses event names through a rename table. Only affected
// rows appear in the derived stream, each referencing the parent row it
// supersedes; unaffected rows pass through the lineage join untouched.
type RenameEvents struct {
	Rules map[string]string
}

func newRenameEvents(params map[string]interface{}) (Processor, error) {
	rules, ok, err := paramStringMap(params, "rules")
	if err != nil {
		return nil, err
	}
	if !ok || len(rules) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidParams,
			"rename_events requires a non-empty \"rules\" mapping")
	}
	return RenameEvents{Rules: rules}, nil
}

func (RenameEvents) Name() string {
	return NameRenameEvents
}

func (p RenameEvents) Params() map[string]interface{} {
	rules := make(map[string]interface{}, len(p.Rules))
	for _, k := range sortedKeys(p.Rules) {
		rules[k] = p.Rules[k]
	}
	return map[string]interface{}{"rules": rules}
}

func (p RenameEvents) Apply(parent *eventstream.Eventstream) (*eventstream.Eventstream, error) {
	if len(p.Rules) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidParams,
			"rename_events requires a non-empty rename table")
	}

	schema := parent.Schema()
	view := parent.Frame(eventstream.ViewOptions{})
	ids := view.Col(schema.EventID)
	names := view.Col(schema.EventName)

	var rows []rowSpec
	for i := range names {
		name, _ := names[i].(string)
		alias, hit := p.Rules[name]
		if !hit {
			continue
		}
		rows = append(rows, rowSpec{
			src: i,
			ref: ids[i],
			override: map[string]interface{}{
				schema.EventName: alias,
				schema.EventType: groupAliasType,
			},
		})
	}

	return derive(parent, buildOutput(view, schema.Cols(), rows))
}
