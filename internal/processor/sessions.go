package processor

import (
	"fmt"
	"time"

	"github.com/pathlens/pathlens/internal/errors"
	"github.com/pathlens/pathlens/internal/eventstream"
)

// NameSplitSessions is the registered name of SplitSessions.
const NameSplitSessions = "split_sessions"

// DefaultSessionCol is the custom column SplitSessions populates when none
// is configured.
const DefaultSessionCol = "session_id"

// SplitSessions cuts every user path into sessions: consecutive events whose
// gaps do not exceed Timeout. Every parent row maps 1:1 onto a derived row
// annotated with a session id custom column, and synthetic session_start /
// session_end events wrap each session.
type SplitSessions struct {
	Timeout    time.Duration
	SessionCol string
}

func newSplitSessions(params map[string]interface{}) (Processor, error) {
	timeoutStr, ok, err := paramString(params, "timeout")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewValidationError(errors.CodeInvalidParams,
			"split_sessions requires a \"timeout\" duration")
	}
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, errors.NewValidationError(errors.CodeInvalidParams,
			fmt.Sprintf("split_sessions timeout %q is not a duration", timeoutStr))
	}
	col, _, err := paramString(params, "session_col")
	if err != nil {
		return nil, err
	}
	p := SplitSessions{Timeout: timeout, SessionCol: col}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p SplitSessions) validate() error {
	if p.Timeout <= 0 {
		return errors.NewValidationError(errors.CodeInvalidParams,
			"split_sessions timeout must be positive")
	}
	return nil
}

func (SplitSessions) Name() string {
	return NameSplitSessions
}

func (p SplitSessions) Params() map[string]interface{} {
	out := map[string]interface{}{"timeout": p.Timeout.String()}
	if p.SessionCol != "" {
		out["session_col"] = p.SessionCol
	}
	return out
}

func (p SplitSessions) Apply(parent *eventstream.Eventstream) (*eventstream.Eventstream, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	sessionCol := p.SessionCol
	if sessionCol == "" {
		sessionCol = DefaultSessionCol
	}

	schema := parent.Schema()
	view := parent.Frame(eventstream.ViewOptions{})
	ids := view.Col(schema.EventID)
	users := view.Col(schema.UserID)
	timestamps := view.Col(schema.EventTimestamp)

	// Rows arrive sorted; group each user's rows in path order.
	byUser := make(map[string][]int)
	var order []string
	for i := range users {
		key := cellKey(users[i])
		if _, ok := byUser[key]; !ok {
			order = append(order, key)
		}
		byUser[key] = append(byUser[key], i)
	}

	var clones, starts, ends []rowSpec
	for _, key := range order {
		path := byUser[key]
		session := 1
		sessionStart := 0
		label := func() string { return fmt.Sprintf("%s_%d", key, session) }

		for i, row := range path {
			if i > 0 {
				prev, pok := timestamps[path[i-1]].(time.Time)
				curr, cok := timestamps[row].(time.Time)
				if pok && cok && curr.Sub(prev) > p.Timeout {
					starts, ends = p.wrapSession(schema, sessionCol, label(),
						path[sessionStart], path[i-1], starts, ends)
					session++
					sessionStart = i
				}
			}
			clones = append(clones, rowSpec{
				src:      row,
				ref:      ids[row],
				override: map[string]interface{}{sessionCol: label()},
			})
		}
		starts, ends = p.wrapSession(schema, sessionCol, label(),
			path[sessionStart], path[len(path)-1], starts, ends)
	}

	cols := append(schema.Cols(), sessionCol)
	rows := append(append(clones, starts...), ends...)
	return derive(parent, buildOutput(view, cols, rows), sessionCol)
}

// wrapSession emits the session_start and session_end synthetic rows for a
// closed session.
func (p SplitSessions) wrapSession(schema *eventstream.Schema, sessionCol, label string,
	first, last int, starts, ends []rowSpec) ([]rowSpec, []rowSpec) {
	starts = append(starts, rowSpec{
		src: first,
		override: map[string]interface{}{
			schema.EventName: "session_start",
			schema.EventType: "session_start",
			sessionCol:       label,
		},
	})
	ends = append(ends, rowSpec{
		src: last,
		override: map[string]interface{}{
			schema.EventName: "session_end",
			schema.EventType: "session_end",
			sessionCol:       label,
		},
	})
	return starts, ends
}
