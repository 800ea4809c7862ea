package worker

import (
	"context"
	"fmt"
	"sync"

	"project-tachyon/internal/runqueue"
	"project-tachyon/internal/taskstore"
)

// Manager implements runqueue.Spawner and runqueue.SpeedSetter, owning
// the live Handle for every (uid, task_id) currently running.
type Manager struct {
	deps Deps

	mu      sync.Mutex
	handles map[runqueue.Key]*Handle
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, handles: make(map[runqueue.Key]*Handle)}
}

// Spawn builds a Handle for task and runs it on its own goroutine,
// satisfying runqueue.Spawner.
func (m *Manager) Spawn(ctx context.Context, task taskstore.Task, speedBPS int64) (context.CancelFunc, error) {
	runCtx, cancel := context.WithCancel(ctx)
	key := runqueue.Key{UID: task.UID, TaskID: task.TaskID}

	handle := NewHandle(m.deps, task, speedBPS)

	m.mu.Lock()
	m.handles[key] = handle
	m.mu.Unlock()

	if m.deps.Store != nil {
		if err := m.deps.Store.UpdateState(task.TaskID, taskstore.Running, taskstore.ReasonOK); err != nil {
			cancel()
			m.mu.Lock()
			delete(m.handles, key)
			m.mu.Unlock()
			return nil, fmt.Errorf("worker: mark task %d running: %w", task.TaskID, err)
		}
	}

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.handles, key)
			m.mu.Unlock()
		}()
		if err := handle.Run(runCtx); err != nil && m.deps.Logger != nil {
			m.deps.Logger.Warn("task ended with error", "task_id", task.TaskID, "error", err)
		}
	}()

	return cancel, nil
}

// SetSpeed adjusts a live handle's bandwidth limit, satisfying
// runqueue.SpeedSetter.
func (m *Manager) SetSpeed(key runqueue.Key, speedBPS int64) {
	m.mu.Lock()
	h, ok := m.handles[key]
	m.mu.Unlock()
	if ok {
		h.SetSpeed(speedBPS)
	}
}

// Running reports whether a handle for key is currently active.
func (m *Manager) Running(key runqueue.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handles[key]
	return ok
}
