// Package agent defines the narrow surface the RPC layer needs from an
// agent runtime: given a session and a user message, produce an ordered,
// finite sequence of turn events. The last event before the channel
// closes is the turn's final event.
package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/switchboard-dev/switchboard/pkg/session"
)

// TurnEvent is one step of an agent turn. Err is set on a failed turn;
// no further events follow an error.
type TurnEvent struct {
	Event *session.Event
	Err   error
}

// Runtime runs one agent turn against a session. Implementations append
// the events they produce to the session before yielding them, so the
// event log and the returned sequence agree.
type Runtime interface {
	RunTurn(ctx context.Context, sess *session.Session, message *session.Content) (<-chan TurnEvent, error)
}

// EchoRuntime is the built-in placeholder runtime: it records the user
// message and replies with an acknowledgement. Useful for wiring tests
// and for running the backend without a model attached.
type EchoRuntime struct {
	sessions *session.Service
}

func NewEchoRuntime(sessions *session.Service) *EchoRuntime {
	return &EchoRuntime{sessions: sessions}
}

func (r *EchoRuntime) RunTurn(ctx context.Context, sess *session.Session, message *session.Content) (<-chan TurnEvent, error) {
	if message == nil {
		return nil, fmt.Errorf("agent: nil message")
	}

	invocationID := uuid.NewString()
	out := make(chan TurnEvent, 2)

	userEvent := &session.Event{
		InvocationID: invocationID,
		Author:       "user",
		Content:      message,
	}
	if _, err := r.sessions.AppendEvent(ctx, sess, userEvent); err != nil {
		return nil, fmt.Errorf("agent: recording user event: %w", err)
	}
	out <- TurnEvent{Event: userEvent}

	reply := &session.Event{
		InvocationID: invocationID,
		Author:       "agent",
		TurnComplete: true,
		Content: &session.Content{
			Role:  "agent",
			Parts: []session.Part{{Type: "text", Text: "Task received: " + contentText(message)}},
		},
		Actions: &session.Actions{
			StateDelta: map[string]any{"user:last_message": contentText(message)},
		},
	}
	if _, err := r.sessions.AppendEvent(ctx, sess, reply); err != nil {
		return nil, fmt.Errorf("agent: recording reply event: %w", err)
	}
	out <- TurnEvent{Event: reply}

	close(out)
	return out, nil
}

func contentText(c *session.Content) string {
	var out string
	for _, p := range c.Parts {
		if p.Type == "text" {
			if out != "" {
				out += "\n"
			}
			out += p.Text
		}
	}
	return out
}
