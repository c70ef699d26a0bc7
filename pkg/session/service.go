package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/switchboard-dev/switchboard/pkg/state"
)

// Service is the public session API. It owns merge-on-read (the three
// state partitions collapse into one flat view) and the atomic event
// append path.
type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// CreateRequest carries the identity and optional initial state for a
// new session. SessionID is generated when empty.
type CreateRequest struct {
	AppName   string
	UserID    string
	SessionID string
	State     map[string]any
}

// CreateSession splits the initial state across the three partitions,
// lazily materializes the app/user state rows, and persists the session
// with only its session-partition keys. The returned session carries the
// merged view. An explicit SessionID that is already taken fails with
// ErrSessionExists.
func (s *Service) CreateSession(ctx context.Context, req CreateRequest) (*Session, error) {
	sid := req.SessionID
	if sid == "" {
		sid = uuid.NewString()
	}
	now := nowSeconds()

	appDelta, userDelta, sessDelta := state.Split(req.State)

	appState, userState, err := s.store.createSession(ctx, sessionRow{
		AppName:    req.AppName,
		UserID:     req.UserID,
		ID:         sid,
		State:      sessDelta,
		CreateTime: now,
		UpdateTime: now,
	}, appDelta, userDelta)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:         sid,
		AppName:    req.AppName,
		UserID:     req.UserID,
		State:      state.Merge(appState, userState, sessDelta),
		CreateTime: now,
		UpdateTime: now,
	}, nil
}

// GetSession returns the session with merged state and its filtered,
// ascending event list, or (nil, nil) when no such session exists.
func (s *Service) GetSession(ctx context.Context, appName, userID, sessionID string, cfg *GetConfig) (*Session, error) {
	row, err := s.store.getSessionRow(ctx, appName, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if row == nil {
		return nil, nil
	}

	appState, err := s.store.appState(ctx, appName)
	if err != nil {
		return nil, fmt.Errorf("loading app state: %w", err)
	}
	userState, err := s.store.userState(ctx, appName, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user state: %w", err)
	}

	var afterTs float64
	if cfg != nil {
		afterTs = cfg.AfterTimestamp
	}
	events, err := s.store.listEvents(ctx, sessionID, afterTs)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	// filter first, then keep the most recent N in ascending order
	if cfg != nil && cfg.NumRecentEvents > 0 && len(events) > cfg.NumRecentEvents {
		events = events[len(events)-cfg.NumRecentEvents:]
	}

	return &Session{
		ID:         row.ID,
		AppName:    row.AppName,
		UserID:     row.UserID,
		State:      state.Merge(appState, userState, row.State),
		Events:     events,
		CreateTime: row.CreateTime,
		UpdateTime: row.UpdateTime,
	}, nil
}

// ListSessions is a summary view: returned sessions carry empty state
// and no events.
func (s *Service) ListSessions(ctx context.Context, appName, userID string) ([]*Session, error) {
	rows, err := s.store.listSessionRows(ctx, appName, userID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	sessions := make([]*Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, &Session{
			ID:         r.ID,
			AppName:    appName,
			UserID:     userID,
			State:      map[string]any{},
			CreateTime: r.CreateTime,
			UpdateTime: r.UpdateTime,
		})
	}
	return sessions, nil
}

// DeleteSession hard-deletes the session; its events cascade. Deleting
// an absent session is a no-op.
func (s *Service) DeleteSession(ctx context.Context, appName, userID, sessionID string) error {
	return s.store.deleteSession(ctx, appName, userID, sessionID)
}

// AppendEvent applies the event to the in-memory session first, then
// persists the state mutation and the event row in a single commit. The
// event's state delta is routed across all three partitions, the same
// way CreateSession routes initial state. Events without content are
// rejected with ErrInvalidEvent.
func (s *Service) AppendEvent(ctx context.Context, sess *Session, ev *Event) (*Event, error) {
	if ev.Content == nil {
		return nil, ErrInvalidEvent
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	now := nowSeconds()
	if ev.Timestamp == 0 {
		ev.Timestamp = now
	}

	// caller's handle reflects the append regardless of persistence
	// outcome
	applyToSession(sess, ev, now)

	row, err := s.store.getSessionRow(ctx, sess.AppName, sess.UserID, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("loading session state: %w", err)
	}
	if row == nil {
		return nil, ErrSessionNotFound
	}

	w := appendWrite{
		AppName:      sess.AppName,
		UserID:       sess.UserID,
		SessionID:    sess.ID,
		SessionState: row.State,
		UpdateTime:   now,
		Event:        ev,
	}

	if ev.Actions != nil && len(ev.Actions.StateDelta) > 0 {
		appDelta, userDelta, sessDelta := state.Split(ev.Actions.StateDelta)
		for k, v := range sessDelta {
			w.SessionState[k] = v
		}
		if len(appDelta) > 0 {
			appState, err := s.store.appState(ctx, sess.AppName)
			if err != nil {
				return nil, fmt.Errorf("loading app state: %w", err)
			}
			for k, v := range appDelta {
				appState[k] = v
			}
			w.AppState = appState
		}
		if len(userDelta) > 0 {
			userState, err := s.store.userState(ctx, sess.AppName, sess.UserID)
			if err != nil {
				return nil, fmt.Errorf("loading user state: %w", err)
			}
			for k, v := range userDelta {
				userState[k] = v
			}
			w.UserState = userState
		}
	}

	if err := s.store.appendEvent(ctx, w); err != nil {
		return nil, err
	}
	return ev, nil
}

// ListEvents returns the full event history for a session, ascending by
// timestamp, independent of any Session object.
func (s *Service) ListEvents(ctx context.Context, appName, userID, sessionID string) ([]*Event, error) {
	events, err := s.store.listEvents(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

func applyToSession(sess *Session, ev *Event, now float64) {
	sess.Events = append(sess.Events, ev)
	sess.UpdateTime = now
	if ev.Actions == nil || len(ev.Actions.StateDelta) == 0 {
		return
	}
	if sess.State == nil {
		sess.State = map[string]any{}
	}
	// the in-memory view is the merged one, so prefixed keys apply
	// directly; temp keys still never land
	for k, v := range ev.Actions.StateDelta {
		if strings.HasPrefix(k, state.TempPrefix) {
			continue
		}
		sess.State[k] = v
	}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
