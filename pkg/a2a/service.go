package a2a

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/switchboard-dev/switchboard/pkg/agent"
	"github.com/switchboard-dev/switchboard/pkg/audit"
	"github.com/switchboard-dev/switchboard/pkg/session"
	"github.com/switchboard-dev/switchboard/pkg/telemetry"
)

// Service implements the seven task operations. Tasks and push configs
// live in injected in-memory stores; conversational state goes through
// the session service. Access to the same task id from concurrent
// requests is not serialized beyond the stores' own locking.
type Service struct {
	tasks    *TaskStore
	push     *PushStore
	sessions *session.Service
	runtime  agent.Runtime
	auditLog *audit.Logger
	logger   *slog.Logger
	appName  string
}

type ServiceConfig struct {
	Tasks    *TaskStore
	Push     *PushStore
	Sessions *session.Service
	Runtime  agent.Runtime
	AuditLog *audit.Logger
	Logger   *slog.Logger
	AppName  string
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Tasks == nil {
		cfg.Tasks = NewTaskStore()
	}
	if cfg.Push == nil {
		cfg.Push = NewPushStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AppName == "" {
		cfg.AppName = "switchboard"
	}
	return &Service{
		tasks:    cfg.Tasks,
		push:     cfg.Push,
		sessions: cfg.Sessions,
		runtime:  cfg.Runtime,
		auditLog: cfg.AuditLog,
		logger:   cfg.Logger,
		appName:  cfg.AppName,
	}
}

// SendTask creates a task, resolves or creates its session, and drives
// one agent turn, appending every yielded event to the task history.
// Sessions are single-user by construction: the session id doubles as
// the user id.
func (s *Service) SendTask(ctx context.Context, params TaskSendParams) (*Task, error) {
	start := time.Now()
	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	task := &Task{
		ID:        params.ID,
		SessionID: sessionID,
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Message:   &params.Message,
			Timestamp: time.Now(),
		},
		History:  []Message{params.Message},
		Metadata: params.Metadata,
	}
	s.tasks.Put(task)
	telemetry.Metrics.TasksActive.Inc()
	defer telemetry.Metrics.TasksActive.Dec()

	if params.PushNotification != nil {
		s.push.Set(task.ID, params.PushNotification)
	}

	sess, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		s.failTask(ctx, task, err)
		return nil, err
	}

	task.Status.State = TaskStateWorking
	s.audit(ctx, audit.EventTaskSend, task.ID, sessionID)

	content := toSessionContent(params.Message)
	events, err := s.runtime.RunTurn(ctx, sess, content)
	if err != nil {
		s.failTask(ctx, task, err)
		return nil, err
	}

	var final *session.Event
	for turn := range events {
		if turn.Err != nil {
			s.failTask(ctx, task, turn.Err)
			return nil, turn.Err
		}
		telemetry.Metrics.EventsAppended.Inc()
		if msg := toMessage(turn.Event); msg != nil {
			task.History = append(task.History, *msg)
		}
		final = turn.Event
	}

	if final != nil && final.Content != nil {
		msg := toMessage(final)
		task.Status = TaskStatus{
			State:     TaskStateCompleted,
			Message:   msg,
			Timestamp: time.Now(),
		}
		task.Artifacts = append(task.Artifacts, Artifact{Parts: msg.Parts, Index: 0})
		telemetry.Metrics.TasksTotal.WithLabelValues(string(TaskStateCompleted)).Inc()
		s.audit(ctx, audit.EventTaskDone, task.ID, sessionID)
	} else {
		// absence of final content is an anomaly, not a failure; the
		// task stays WORKING pending a follow-up turn
		s.logger.Warn("agent turn ended without final content",
			slog.String("task_id", task.ID),
			slog.String("session_id", sessionID),
		)
	}

	telemetry.Metrics.AgentTurnDuration.Observe(time.Since(start).Seconds())
	return taskView(task, params.HistoryLength), nil
}

// GetTask returns the task or a TaskNotFound error.
func (s *Service) GetTask(ctx context.Context, params TaskQueryParams) (*Task, error) {
	task := s.tasks.Get(params.ID)
	if task == nil {
		return nil, Errorf(CodeTaskNotFound, "task %q not found", params.ID)
	}
	return taskView(task, params.HistoryLength), nil
}

// CancelTask unconditionally moves the task to CANCELED, terminal
// states included. It does not signal an in-flight agent turn; a
// dispatched turn runs to completion regardless.
func (s *Service) CancelTask(ctx context.Context, params TaskIDParams) (*Task, error) {
	task := s.tasks.Get(params.ID)
	if task == nil {
		return nil, Errorf(CodeTaskNotFound, "task %q not found", params.ID)
	}
	task.Status = TaskStatus{State: TaskStateCanceled, Timestamp: time.Now()}
	telemetry.Metrics.TasksTotal.WithLabelValues(string(TaskStateCanceled)).Inc()
	s.audit(ctx, audit.EventTaskCancel, task.ID, task.SessionID)
	return task, nil
}

// SetPush stores the task's push config and echoes the params back. The
// URL is not probed for reachability at set time.
func (s *Service) SetPush(ctx context.Context, params TaskPushNotificationParams) (*TaskPushNotificationParams, error) {
	cfg := params.PushNotificationConfig
	s.push.Set(params.ID, &cfg)
	s.audit(ctx, audit.EventPushConfigSet, params.ID, "")
	return &params, nil
}

// GetPush returns the task's push config, or nil when none was set.
func (s *Service) GetPush(ctx context.Context, params TaskIDParams) (*PushNotificationConfig, error) {
	return s.push.Get(params.ID), nil
}

// StreamItem is one element of a task-update stream.
type StreamItem struct {
	Task *Task
	Err  error
}

// SubscribeStream runs SendTask and yields the resulting task once.
// The sequence is finite and single-shot; a fresh call re-runs the task
// from scratch.
func (s *Service) SubscribeStream(ctx context.Context, params TaskSendParams) <-chan StreamItem {
	out := make(chan StreamItem, 1)
	go func() {
		defer close(out)
		task, err := s.SendTask(ctx, params)
		if err != nil {
			out <- StreamItem{Err: err}
			return
		}
		s.audit(ctx, audit.EventTaskStreamed, task.ID, task.SessionID)
		out <- StreamItem{Task: task}
	}()
	return out
}

// ResubscribeStream yields the task's current snapshot once. Historical
// increments are not replayed.
func (s *Service) ResubscribeStream(ctx context.Context, params TaskIDParams) (<-chan StreamItem, error) {
	task := s.tasks.Get(params.ID)
	if task == nil {
		return nil, Errorf(CodeTaskNotFound, "task %q not found", params.ID)
	}
	out := make(chan StreamItem, 1)
	out <- StreamItem{Task: task}
	close(out)
	return out, nil
}

func (s *Service) resolveSession(ctx context.Context, sessionID string) (*session.Session, error) {
	// user id deliberately equals session id: every session is
	// single-user by construction
	sess, err := s.sessions.GetSession(ctx, s.appName, sessionID, sessionID, nil)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}
	sess, err = s.sessions.CreateSession(ctx, session.CreateRequest{
		AppName:   s.appName,
		UserID:    sessionID,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}
	telemetry.Metrics.SessionsCreated.Inc()
	s.audit(ctx, audit.EventSessionNew, "", sessionID)
	return sess, nil
}

func (s *Service) failTask(ctx context.Context, task *Task, cause error) {
	task.Status = TaskStatus{State: TaskStateFailed, Timestamp: time.Now()}
	telemetry.Metrics.TasksTotal.WithLabelValues(string(TaskStateFailed)).Inc()
	s.logger.Error("task failed",
		slog.String("task_id", task.ID),
		slog.String("session_id", task.SessionID),
		slog.Any("error", cause),
	)
	s.audit(ctx, audit.EventTaskFail, task.ID, task.SessionID)
}

func (s *Service) audit(ctx context.Context, eventType, taskID, sessionID string) {
	if s.auditLog == nil {
		return
	}
	_ = s.auditLog.Log(ctx, eventType, taskID, sessionID, "a2a", "")
}

// taskView applies the caller's history cap without mutating the stored
// task.
func taskView(task *Task, historyLength int) *Task {
	if historyLength <= 0 || len(task.History) <= historyLength {
		return task
	}
	view := *task
	view.History = task.History[len(task.History)-historyLength:]
	return &view
}

func toSessionContent(msg Message) *session.Content {
	parts := make([]session.Part, len(msg.Parts))
	for i, p := range msg.Parts {
		parts[i] = session.Part{Type: p.Type, Text: p.Text}
	}
	return &session.Content{Role: msg.Role, Parts: parts}
}

// toMessage converts an event's content to a wire message; nil when the
// event carries none.
func toMessage(ev *session.Event) *Message {
	if ev == nil || ev.Content == nil {
		return nil
	}
	parts := make([]Part, len(ev.Content.Parts))
	for i, p := range ev.Content.Parts {
		parts[i] = Part{Type: p.Type, Text: p.Text}
	}
	role := ev.Content.Role
	if role == "" {
		role = ev.Author
	}
	return &Message{Role: role, Parts: parts}
}
