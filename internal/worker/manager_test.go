package worker

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"project-tachyon/internal/runqueue"
	"project-tachyon/internal/taskstore"
)

func TestManagerSpawnRunsAndCleansUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	deps := baseDeps(t)
	mgr := NewManager(deps)

	task := taskstore.Task{
		TaskID: 10, UID: 1, URL: srv.URL, SavePath: filepath.Join(t.TempDir(), "out.bin"),
	}
	require.NoError(t, deps.Store.Insert(task))

	cancel, err := mgr.Spawn(t.Context(), task, 0)
	require.NoError(t, err)
	defer cancel()

	key := runqueue.Key{UID: 1, TaskID: 10}
	require.Eventually(t, func() bool {
		return !mgr.Running(key)
	}, 2*time.Second, 10*time.Millisecond)

	row, err := deps.Store.Get(10)
	require.NoError(t, err)
	require.Equal(t, taskstore.Completed, row.State)
}

func TestManagerSetSpeedOnLiveHandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte("slow response"))
	}))
	defer srv.Close()

	deps := baseDeps(t)
	mgr := NewManager(deps)

	task := taskstore.Task{
		TaskID: 11, UID: 1, URL: srv.URL, SavePath: filepath.Join(t.TempDir(), "out.bin"),
	}
	require.NoError(t, deps.Store.Insert(task))

	cancel, err := mgr.Spawn(t.Context(), task, 1024)
	require.NoError(t, err)
	defer cancel()

	key := runqueue.Key{UID: 1, TaskID: 11}
	mgr.SetSpeed(key, 4096)

	require.Eventually(t, func() bool {
		return !mgr.Running(key)
	}, 2*time.Second, 10*time.Millisecond)
}
