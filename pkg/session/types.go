// Package session provides durable conversational sessions: a SQLite-backed
// store for sessions, their event logs, and the app/user/session state
// partitions, plus the service that merges state on read and appends
// events atomically.
package session

// Session is a durable conversational context scoped to
// (app name, user id, session id). State holds the merged view: session
// keys plus app- and user-prefixed keys reattached. The persisted state
// column only ever holds the session partition.
type Session struct {
	ID         string         `json:"id"`
	AppName    string         `json:"app_name"`
	UserID     string         `json:"user_id"`
	State      map[string]any `json:"state"`
	Events     []*Event       `json:"events,omitempty"`
	CreateTime float64        `json:"create_time"`
	UpdateTime float64        `json:"update_time"`
}

// Event is one atomic record of something that happened in a session.
// Events within a session are totally ordered by ascending timestamp;
// insertion order breaks ties.
type Event struct {
	ID                 string         `json:"id"`
	InvocationID       string         `json:"invocation_id"`
	Author             string         `json:"author"`
	Branch             string         `json:"branch,omitempty"`
	Timestamp          float64        `json:"timestamp"`
	Content            *Content       `json:"content"`
	Actions            *Actions       `json:"actions"`
	LongRunningToolIDs []string       `json:"long_running_tool_ids,omitempty"`
	GroundingMetadata  map[string]any `json:"grounding_metadata,omitempty"`
	Partial            bool           `json:"partial"`
	TurnComplete       bool           `json:"turn_complete"`
	Interrupted        bool           `json:"interrupted"`
	ErrorCode          string         `json:"error_code,omitempty"`
	ErrorMessage       string         `json:"error_message,omitempty"`
}

// Content is the structured message payload of an event.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Actions describes an event's side effects. A non-nil StateDelta is the
// only mechanism by which state changes after session creation.
type Actions struct {
	StateDelta map[string]any `json:"state_delta,omitempty"`
	Escalate   bool           `json:"escalate,omitempty"`
}

// Text returns the concatenated text of all text parts, or "" when the
// event carries no content.
func (e *Event) Text() string {
	if e.Content == nil {
		return ""
	}
	var out string
	for _, p := range e.Content.Parts {
		if p.Type == "text" {
			if out != "" {
				out += "\n"
			}
			out += p.Text
		}
	}
	return out
}

// GetConfig narrows what GetSession returns. AfterTimestamp excludes
// events at or after the cutoff (strictly less-than survives);
// NumRecentEvents caps the result to the most recent N, still in
// ascending order. Zero values disable each filter.
type GetConfig struct {
	NumRecentEvents int
	AfterTimestamp  float64
}
