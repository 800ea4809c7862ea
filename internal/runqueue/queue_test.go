package runqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"project-tachyon/internal/qos"
	"project-tachyon/internal/taskstore"
)

type fakeSpawner struct {
	spawned  []Key
	canceled []Key
	speeds   map[Key]int64
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{speeds: make(map[Key]int64)}
}

func (f *fakeSpawner) Spawn(ctx context.Context, task taskstore.Task, speedBPS int64) (context.CancelFunc, error) {
	key := Key{UID: task.UID, TaskID: task.TaskID}
	f.spawned = append(f.spawned, key)
	return func() { f.canceled = append(f.canceled, key) }, nil
}

func (f *fakeSpawner) SetSpeed(key Key, speedBPS int64) {
	f.speeds[key] = speedBPS
}

func loaderFor(tasks map[uint32]taskstore.Task) Loader {
	return func(taskID uint32) (taskstore.Task, error) {
		return tasks[taskID], nil
	}
}

func TestRescheduleSpawnsNewEntries(t *testing.T) {
	spawner := newFakeSpawner()
	tasks := map[uint32]taskstore.Task{1: {UID: 10, TaskID: 1}}
	q := New(spawner, loaderFor(tasks))

	err := q.Reschedule(context.Background(), qos.Changes{
		Download: []qos.Direction{{UID: 10, TaskID: 1, SpeedBPS: 1000}},
	})
	require.NoError(t, err)
	require.Equal(t, []Key{{UID: 10, TaskID: 1}}, spawner.spawned)
	require.Equal(t, 1, q.RunningCount())
}

func TestRescheduleCancelsDroppedEntries(t *testing.T) {
	spawner := newFakeSpawner()
	tasks := map[uint32]taskstore.Task{1: {UID: 10, TaskID: 1}}
	q := New(spawner, loaderFor(tasks))

	require.NoError(t, q.Reschedule(context.Background(), qos.Changes{
		Download: []qos.Direction{{UID: 10, TaskID: 1, SpeedBPS: 1000}},
	}))
	require.NoError(t, q.Reschedule(context.Background(), qos.Changes{}))

	require.Equal(t, []Key{{UID: 10, TaskID: 1}}, spawner.canceled)
	require.Equal(t, 0, q.RunningCount())
}

func TestRescheduleUpdatesSpeedOnSurvivors(t *testing.T) {
	spawner := newFakeSpawner()
	tasks := map[uint32]taskstore.Task{1: {UID: 10, TaskID: 1}}
	q := New(spawner, loaderFor(tasks))

	require.NoError(t, q.Reschedule(context.Background(), qos.Changes{
		Download: []qos.Direction{{UID: 10, TaskID: 1, SpeedBPS: 1000}},
	}))
	require.NoError(t, q.Reschedule(context.Background(), qos.Changes{
		Download: []qos.Direction{{UID: 10, TaskID: 1, SpeedBPS: 2000}},
	}))

	require.Len(t, spawner.spawned, 1) // not respawned
	require.Equal(t, int64(2000), spawner.speeds[Key{UID: 10, TaskID: 1}])
}

func TestCancelAll(t *testing.T) {
	spawner := newFakeSpawner()
	tasks := map[uint32]taskstore.Task{1: {UID: 10, TaskID: 1}, 2: {UID: 10, TaskID: 2}}
	q := New(spawner, loaderFor(tasks))
	require.NoError(t, q.Reschedule(context.Background(), qos.Changes{
		Download: []qos.Direction{{UID: 10, TaskID: 1}, {UID: 10, TaskID: 2}},
	}))

	q.CancelAll()
	require.Equal(t, 0, q.RunningCount())
	require.Len(t, spawner.canceled, 2)
}
