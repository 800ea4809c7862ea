package worker

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"project-tachyon/internal/taskstore"
)

func TestHandleRunParallelMultiPart(t *testing.T) {
	total := int(partSize*2 + 1024)
	body := strings.Repeat("a", total)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.Header().Set("Accept-Ranges", "bytes")
			w.Header().Set("Content-Length", strconv.Itoa(total))
			w.Write([]byte(body))
			return
		}
		var start, end int
		_, err := fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end)
		require.NoError(t, err)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(body[start : end+1]))
	}))
	defer srv.Close()

	deps := baseDeps(t)
	deps.Congestion = NewCongestionController(2, 4)
	savePath := filepath.Join(t.TempDir(), "out.bin")

	task := taskstore.Task{
		TaskID: 20, UID: 1, URL: srv.URL, SavePath: savePath,
	}
	require.NoError(t, deps.Store.Insert(task))

	h := NewHandle(deps, task, 0)
	require.NoError(t, h.Run(t.Context()))

	data, err := os.ReadFile(savePath)
	require.NoError(t, err)
	require.Equal(t, total, len(data))
	require.Equal(t, body, string(data))

	row, err := deps.Store.Get(20)
	require.NoError(t, err)
	require.Equal(t, taskstore.Completed, row.State)
}
