package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func testService(t *testing.T) (*Service, *Store) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewStore(dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store), store
}

func textEvent(author, text string) *Event {
	return &Event{
		Author:  author,
		Content: &Content{Role: author, Parts: []Part{{Type: "text", Text: text}}},
	}
}

func TestCreateThenGetSession(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, CreateRequest{
		AppName: "app", UserID: "u1",
		State: map[string]any{
			"app:theme":    "dark",
			"user:name":    "ada",
			"temp:scratch": "dropped",
			"counter":      float64(1),
		},
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated session id")
	}
	if created.CreateTime != created.UpdateTime {
		t.Errorf("CreateTime = %v, UpdateTime = %v, want equal", created.CreateTime, created.UpdateTime)
	}

	got, err := svc.GetSession(ctx, "app", "u1", created.ID, nil)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil {
		t.Fatal("GetSession returned nil for existing session")
	}
	if len(got.Events) != 0 {
		t.Errorf("Events len = %d, want 0", len(got.Events))
	}
	if got.State["app:theme"] != "dark" {
		t.Errorf(`State["app:theme"] = %v, want "dark"`, got.State["app:theme"])
	}
	if got.State["user:name"] != "ada" {
		t.Errorf(`State["user:name"] = %v, want "ada"`, got.State["user:name"])
	}
	if got.State["counter"] != float64(1) {
		t.Errorf(`State["counter"] = %v, want 1`, got.State["counter"])
	}
	if _, ok := got.State["temp:scratch"]; ok {
		t.Error("temp key persisted across create/get")
	}
}

func TestGetSessionAbsentReturnsNil(t *testing.T) {
	svc, _ := testService(t)

	got, err := svc.GetSession(context.Background(), "app", "u1", "missing", nil)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil for absent session", got)
	}
}

func TestCreateSessionExplicitIDCollision(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, CreateRequest{AppName: "app", UserID: "u1", SessionID: "fixed"}); err != nil {
		t.Fatalf("first CreateSession: %v", err)
	}
	_, err := svc.CreateSession(ctx, CreateRequest{AppName: "app", UserID: "u1", SessionID: "fixed"})
	if !errors.Is(err, ErrSessionExists) {
		t.Errorf("err = %v, want ErrSessionExists", err)
	}
}

func TestAppendEventRejectsNilContent(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, CreateRequest{AppName: "app", UserID: "u1"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	_, err = svc.AppendEvent(ctx, sess, &Event{Author: "agent"})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("err = %v, want ErrInvalidEvent", err)
	}
}

func TestAppendEventUpdatesCallerHandle(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, CreateRequest{AppName: "app", UserID: "u1"})

	ev := textEvent("agent", "hello")
	ev.Actions = &Actions{StateDelta: map[string]any{"k": "v", "temp:x": 1}}
	if _, err := svc.AppendEvent(ctx, sess, ev); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if len(sess.Events) != 1 {
		t.Fatalf("in-memory Events len = %d, want 1", len(sess.Events))
	}
	if sess.State["k"] != "v" {
		t.Errorf(`in-memory State["k"] = %v, want "v"`, sess.State["k"])
	}
	if _, ok := sess.State["temp:x"]; ok {
		t.Error("temp key applied to in-memory state")
	}
}

func TestAppendEventRoutesAllPartitions(t *testing.T) {
	// An event's state delta is routed to the app/user/session
	// partitions the same way CreateSession routes initial state.
	svc, _ := testService(t)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, CreateRequest{AppName: "app", UserID: "u1"})

	ev := textEvent("agent", "update")
	ev.Actions = &Actions{StateDelta: map[string]any{
		"app:mode":   "sandbox",
		"user:quota": float64(10),
		"step":       "two",
	}}
	if _, err := svc.AppendEvent(ctx, sess, ev); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	got, err := svc.GetSession(ctx, "app", "u1", sess.ID, nil)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.State["app:mode"] != "sandbox" {
		t.Errorf(`State["app:mode"] = %v, want "sandbox"`, got.State["app:mode"])
	}
	if got.State["user:quota"] != float64(10) {
		t.Errorf(`State["user:quota"] = %v, want 10`, got.State["user:quota"])
	}
	if got.State["step"] != "two" {
		t.Errorf(`State["step"] = %v, want "two"`, got.State["step"])
	}

	// app/user partitions are visible to sibling sessions of the scope
	other, _ := svc.CreateSession(ctx, CreateRequest{AppName: "app", UserID: "u1"})
	if other.State["app:mode"] != "sandbox" {
		t.Errorf(`sibling State["app:mode"] = %v, want "sandbox"`, other.State["app:mode"])
	}
}

func TestAppendEventAtomicity(t *testing.T) {
	svc, store := testService(t)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, CreateRequest{AppName: "app", UserID: "u1"})

	ev := textEvent("agent", "doomed")
	ev.Actions = &Actions{StateDelta: map[string]any{"written": true}}
	store.appendFault = func() error { return errors.New("injected fault") }
	if _, err := svc.AppendEvent(ctx, sess, ev); err == nil {
		t.Fatal("expected injected fault to surface")
	}
	store.appendFault = nil

	got, err := svc.GetSession(ctx, "app", "u1", sess.ID, nil)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if _, ok := got.State["written"]; ok {
		t.Error("state updated without its event: append is not atomic")
	}
	if len(got.Events) != 0 {
		t.Errorf("Events len = %d, want 0 after rolled-back append", len(got.Events))
	}
}

func TestEventOrderingByTimestamp(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, CreateRequest{AppName: "app", UserID: "u1"})

	for _, tc := range []struct {
		text string
		ts   float64
	}{
		{"E1", 1.0}, {"E2", 2.0}, {"E3", 1.5},
	} {
		ev := textEvent("agent", tc.text)
		ev.Timestamp = tc.ts
		if _, err := svc.AppendEvent(ctx, sess, ev); err != nil {
			t.Fatalf("AppendEvent(%s): %v", tc.text, err)
		}
	}

	events, err := svc.ListEvents(ctx, "app", "u1", sess.ID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	want := []string{"E1", "E3", "E2"}
	if len(events) != len(want) {
		t.Fatalf("events len = %d, want %d", len(events), len(want))
	}
	for i, w := range want {
		if got := events[i].Text(); got != w {
			t.Errorf("events[%d] = %q, want %q", i, got, w)
		}
	}
}

func TestGetSessionNumRecentEvents(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, CreateRequest{AppName: "app", UserID: "u1"})
	for i := 1; i <= 5; i++ {
		ev := textEvent("agent", string(rune('A'+i-1)))
		ev.Timestamp = float64(i)
		if _, err := svc.AppendEvent(ctx, sess, ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	got, err := svc.GetSession(ctx, "app", "u1", sess.ID, &GetConfig{NumRecentEvents: 2})
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(got.Events) != 2 {
		t.Fatalf("Events len = %d, want 2", len(got.Events))
	}
	if got.Events[0].Text() != "D" || got.Events[1].Text() != "E" {
		t.Errorf("events = [%q %q], want [D E]", got.Events[0].Text(), got.Events[1].Text())
	}
}

func TestGetSessionAfterTimestamp(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, CreateRequest{AppName: "app", UserID: "u1"})
	for i := 1; i <= 4; i++ {
		ev := textEvent("agent", string(rune('A'+i-1)))
		ev.Timestamp = float64(i)
		if _, err := svc.AppendEvent(ctx, sess, ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	// strictly less-than: the event at the cutoff is excluded
	got, err := svc.GetSession(ctx, "app", "u1", sess.ID, &GetConfig{AfterTimestamp: 3.0})
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(got.Events) != 2 {
		t.Fatalf("Events len = %d, want 2", len(got.Events))
	}
	if got.Events[0].Text() != "A" || got.Events[1].Text() != "B" {
		t.Errorf("events = [%q %q], want [A B]", got.Events[0].Text(), got.Events[1].Text())
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, CreateRequest{AppName: "app", UserID: "u1"})
	if _, err := svc.AppendEvent(ctx, sess, textEvent("agent", "one")); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if err := svc.DeleteSession(ctx, "app", "u1", sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	events, err := svc.ListEvents(ctx, "app", "u1", sess.ID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events len = %d, want 0 after cascade delete", len(events))
	}

	// deleting again is a no-op, not an error
	if err := svc.DeleteSession(ctx, "app", "u1", sess.ID); err != nil {
		t.Errorf("DeleteSession on absent session: %v", err)
	}
}

func TestListSessionsSummaryView(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, CreateRequest{
		AppName: "app", UserID: "u1",
		State: map[string]any{"k": "v"},
	})
	if _, err := svc.AppendEvent(ctx, sess, textEvent("agent", "one")); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if _, err := svc.CreateSession(ctx, CreateRequest{AppName: "app", UserID: "u1"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sessions, err := svc.ListSessions(ctx, "app", "u1")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions len = %d, want 2", len(sessions))
	}
	for _, s := range sessions {
		if len(s.State) != 0 {
			t.Errorf("summary session %s carries state %v, want empty", s.ID, s.State)
		}
		if len(s.Events) != 0 {
			t.Errorf("summary session %s carries events, want none", s.ID)
		}
	}
}

func TestAppendEventOnDeletedSession(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, CreateRequest{AppName: "app", UserID: "u1"})
	if err := svc.DeleteSession(ctx, "app", "u1", sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	_, err := svc.AppendEvent(ctx, sess, textEvent("agent", "late"))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}
