// Package runqueue materializes a qos.Changes admission plan (C6): starts,
// restarts, and cancels workers, keeping a map (uid,task_id)→handle.
// Grounded on the teacher's internal/queue/queue.go DownloadQueue (cond-
// guarded container, Move*/reorder idiom) generalized from a single
// priority queue into the plan-diffing reconciler the spec requires.
package runqueue

import (
	"context"
	"fmt"
	"sync"

	"project-tachyon/internal/qos"
	"project-tachyon/internal/taskstore"
)

// Key identifies a running slot.
type Key struct {
	UID    uint64
	TaskID uint32
}

// Handle is what the queue holds for a live worker.
type Handle struct {
	Key      Key
	SpeedBPS int64
	cancel   context.CancelFunc
}

// Spawner starts a worker for task at the given speed limit and returns a
// cancel func the queue can call to cooperatively abort it. It is the
// queue's sole collaborator for actually running work, injected so this
// package never imports the worker package directly (avoiding a cycle and
// keeping the queue testable with a fake).
type Spawner interface {
	Spawn(ctx context.Context, task taskstore.Task, speedBPS int64) (context.CancelFunc, error)
}

// SpeedSetter is implemented by spawners that can adjust a live worker's
// bandwidth limit without restarting it.
type SpeedSetter interface {
	SetSpeed(key Key, speedBPS int64)
}

// Loader fetches a task row by id for newly admitted entries.
type Loader func(taskID uint32) (taskstore.Task, error)

// Queue holds the two running maps and their cancel handles.
type Queue struct {
	mu       sync.Mutex
	download map[Key]*Handle
	upload   map[Key]*Handle

	spawner Spawner
	load    Loader

	runningCount int
}

// New constructs an empty Queue.
func New(spawner Spawner, load Loader) *Queue {
	return &Queue{
		download: make(map[Key]*Handle),
		upload:   make(map[Key]*Handle),
		spawner:  spawner,
		load:     load,
	}
}

// RunningCount is the cross-task shared counter (§5), read by observers on
// a best-effort basis.
func (q *Queue) RunningCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.runningCount
}

// Reschedule applies the 5 steps of §4.6 for both actions.
func (q *Queue) Reschedule(ctx context.Context, plan qos.Changes) error {
	if err := q.reconcile(ctx, q.download, plan.Download); err != nil {
		return fmt.Errorf("runqueue: reconcile download: %w", err)
	}
	if err := q.reconcile(ctx, q.upload, plan.Upload); err != nil {
		return fmt.Errorf("runqueue: reconcile upload: %w", err)
	}
	return nil
}

func (q *Queue) reconcile(ctx context.Context, running map[Key]*Handle, directions []qos.Direction) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	newSet := make(map[Key]qos.Direction, len(directions))
	for _, d := range directions {
		newSet[Key{UID: d.UID, TaskID: d.TaskID}] = d
	}

	// Step 2: update speed on survivors.
	for key, h := range running {
		if d, ok := newSet[key]; ok {
			h.SpeedBPS = d.SpeedBPS
			if setter, ok := q.spawner.(SpeedSetter); ok {
				setter.SetSpeed(key, d.SpeedBPS)
			}
		}
	}

	// Step 3: spawn newly admitted entries.
	for key, d := range newSet {
		if _, exists := running[key]; exists {
			continue
		}
		task, err := q.load(d.TaskID)
		if err != nil {
			return fmt.Errorf("load task %d: %w", d.TaskID, err)
		}
		cancel, err := q.spawner.Spawn(ctx, task, d.SpeedBPS)
		if err != nil {
			return fmt.Errorf("spawn task %d: %w", d.TaskID, err)
		}
		running[key] = &Handle{Key: key, SpeedBPS: d.SpeedBPS, cancel: cancel}
		q.runningCount++
	}

	// Step 4: cooperatively cancel dropped entries.
	for key, h := range running {
		if _, keep := newSet[key]; !keep {
			h.cancel()
			delete(running, key)
			q.runningCount--
		}
	}
	return nil
}

// Handles returns a snapshot of every currently running (uid, task_id).
func (q *Queue) Handles() []Key {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Key, 0, len(q.download)+len(q.upload))
	for k := range q.download {
		out = append(out, k)
	}
	for k := range q.upload {
		out = append(out, k)
	}
	return out
}

// CancelAll cooperatively cancels every running worker, used on shutdown.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for key, h := range q.download {
		h.cancel()
		delete(q.download, key)
	}
	for key, h := range q.upload {
		h.cancel()
		delete(q.upload, key)
	}
	q.runningCount = 0
}
