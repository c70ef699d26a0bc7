package a2a

import "sync"

// TaskStore is the in-memory task table, guarded by a mutex so
// concurrent RPC handlers can interleave safely. It is injected into
// the service rather than held as a package global so tests can
// substitute a fresh one per case.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*Task)}
}

func (s *TaskStore) Put(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
}

// Get returns the task, or nil when the id is unknown.
func (s *TaskStore) Get(id string) *Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[id]
}

func (s *TaskStore) List() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// PushStore is the in-memory push-notification config table, keyed by
// task id. Deliberately ephemeral: configs do not survive a restart
// even though sessions and events do.
type PushStore struct {
	mu      sync.RWMutex
	configs map[string]*PushNotificationConfig
}

func NewPushStore() *PushStore {
	return &PushStore{configs: make(map[string]*PushNotificationConfig)}
}

func (s *PushStore) Set(taskID string, cfg *PushNotificationConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[taskID] = cfg
}

// Get returns the config for the task, or nil when none was set.
func (s *PushStore) Get(taskID string) *PushNotificationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configs[taskID]
}
