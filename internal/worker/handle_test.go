package worker

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"project-tachyon/internal/config"
	"project-tachyon/internal/diagnostics"
	"project-tachyon/internal/policy"
	"project-tachyon/internal/taskstore"
	"project-tachyon/internal/transport"
)

type memKV struct{ m map[string]string }

func (s *memKV) GetString(key string) (string, error) { return s.m[key], nil }
func (s *memKV) SetString(key, value string) error {
	s.m[key] = value
	return nil
}

func setupStore(t *testing.T) *taskstore.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store, err := taskstore.New(db)
	require.NoError(t, err)
	return store
}

func baseDeps(t *testing.T) Deps {
	t.Helper()
	client, err := transport.New(transport.DefaultConfig())
	require.NoError(t, err)
	return Deps{
		Transport: client,
		Store:     setupStore(t),
		Policy:    policy.New(nil),
		Config:    config.New(&memKV{m: map[string]string{}}),
		Allocator: diagnostics.NewAllocator(),
		Organizer: &diagnostics.Organizer{Enabled: false},
		Verifier:  NewVerifier(),
	}
}

func TestHandleRunSequentialSuccess(t *testing.T) {
	const body = "the quick brown fox jumps over the lazy dog"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	deps := baseDeps(t)
	savePath := filepath.Join(t.TempDir(), "out.bin")

	task := taskstore.Task{
		TaskID: 1, UID: 1,
		Action: taskstore.ActionDownload, URL: srv.URL, SavePath: savePath,
		RetryAllowed: true,
	}
	require.NoError(t, deps.Store.Insert(task))

	h := NewHandle(deps, task, 0)
	require.NoError(t, h.Run(t.Context()))

	data, err := os.ReadFile(savePath)
	require.NoError(t, err)
	require.Equal(t, body, string(data))

	row, err := deps.Store.Get(1)
	require.NoError(t, err)
	require.Equal(t, taskstore.Completed, row.State)
}

func TestHandleRunPolicyDenied(t *testing.T) {
	deps := baseDeps(t)
	deps.Policy = policy.New([]policy.Rule{{Host: "blocked.example.com", Allow: false}})

	task := taskstore.Task{
		TaskID: 2, UID: 1,
		URL: "https://blocked.example.com/x", SavePath: filepath.Join(t.TempDir(), "out.bin"),
		Bundle: "b", BundleType: policy.BundleTypeAtomicService,
	}
	require.NoError(t, deps.Store.Insert(task))

	h := NewHandle(deps, task, 0)
	err := h.Run(t.Context())
	require.Error(t, err)

	row, err := deps.Store.Get(2)
	require.NoError(t, err)
	require.Equal(t, taskstore.Failed, row.State)
}

func TestHandleRunConnectErrorRetries(t *testing.T) {
	deps := baseDeps(t)
	task := taskstore.Task{
		TaskID: 3, UID: 1,
		URL: "http://127.0.0.1:1/unreachable", SavePath: filepath.Join(t.TempDir(), "out.bin"),
		RetryAllowed: true,
	}
	require.NoError(t, deps.Store.Insert(task))

	h := NewHandle(deps, task, 0)
	err := h.Run(t.Context())
	require.Error(t, err)

	row, err := deps.Store.Get(3)
	require.NoError(t, err)
	require.Equal(t, taskstore.Retrying, row.State)
	require.Equal(t, 1, row.Tries)
}

func TestHandleSetSpeedAdjustsLimiter(t *testing.T) {
	deps := baseDeps(t)
	task := taskstore.Task{TaskID: 4, UID: 1, URL: "http://example.invalid", SavePath: "/dev/null"}
	h := NewHandle(deps, task, 1024)
	h.SetSpeed(2048)
	require.Equal(t, float64(2048), float64(h.limiter.Limit()))
}
