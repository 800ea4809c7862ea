package taskstore

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s, err := New(db)
	require.NoError(t, err)
	return s
}

func sampleTask(id uint32, uid uint64) Task {
	return Task{
		TaskID:             id,
		UID:                uid,
		Action:             ActionDownload,
		Mode:               ModeBackground,
		URL:                "https://example.com/file.bin",
		RetryAllowed:       true,
		RedirectAllowed:    true,
		NetworkRequirement: NetworkAny,
		MeteredAllowed:     true,
		RoamingAllowed:     true,
		State:              Initialized,
		Reason:             ReasonOK,
	}
}

func TestInsertGetRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	task := sampleTask(1, 100)
	require.NoError(t, s.Insert(task))

	got, err := s.Get(1)
	require.NoError(t, err)
	require.Equal(t, task.URL, got.URL)
	require.Equal(t, Initialized, got.State)
}

func TestInsertDuplicateID(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Insert(sampleTask(1, 100)))
	err := s.Insert(sampleTask(1, 200))
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestInsertQuotaExceeded(t *testing.T) {
	s := setupTestStore(t)
	s.UIDQuota = 1
	require.NoError(t, s.Insert(sampleTask(1, 100)))
	err := s.Insert(sampleTask(2, 100))
	require.ErrorIs(t, err, ErrQuota)
}

func TestUpdateStateNotFound(t *testing.T) {
	s := setupTestStore(t)
	err := s.UpdateState(999, Running, ReasonOK)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStateTransition(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Insert(sampleTask(1, 100)))
	require.NoError(t, s.UpdateState(1, Running, ReasonOK))

	got, err := s.Get(1)
	require.NoError(t, err)
	require.Equal(t, Running, got.State)
}

func TestUpdateProgress(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Insert(sampleTask(1, 100)))
	require.NoError(t, s.UpdateProgress(1, Progress{
		Processed:      []int64{500},
		Total:          []int64{1000},
		TotalProcessed: 500,
	}))

	got, err := s.Get(1)
	require.NoError(t, err)
	require.Equal(t, int64(500), got.Progress.TotalProcessed)
}

func TestDeleteByUID(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Insert(sampleTask(1, 100)))
	require.NoError(t, s.Insert(sampleTask(2, 100)))
	require.NoError(t, s.DeleteByUID(100))

	_, err := s.Get(1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestQueryActiveUIDs(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Insert(sampleTask(1, 100)))
	t2 := sampleTask(2, 200)
	t2.State = Completed
	t2.Reason = ReasonOK
	require.NoError(t, s.Insert(t2))

	uids, err := s.QueryActiveUIDs()
	require.NoError(t, err)
	require.Equal(t, []uint64{100}, uids)
}

func TestQueryTasksForUIDOrdering(t *testing.T) {
	s := setupTestStore(t)
	bg := sampleTask(1, 100)
	bg.Mode = ModeBackground
	bg.Priority = 0
	fg := sampleTask(2, 100)
	fg.Mode = ModeForeground
	fg.Priority = 0
	require.NoError(t, s.Insert(bg))
	require.NoError(t, s.Insert(fg))

	tasks, err := s.QueryTasksForUID(100)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, uint32(2), tasks[0].TaskID) // foreground (mode=0) sorts first
}

func TestBulkAppUnavailableAndAvailable(t *testing.T) {
	s := setupTestStore(t)
	dl := sampleTask(1, 100)
	dl.Mode = ModeForeground
	dl.State = Running
	dl.Reason = ReasonOK
	require.NoError(t, s.Insert(dl))

	require.NoError(t, s.BulkUpdate(AppUnavailable(100)))
	got, err := s.Get(1)
	require.NoError(t, err)
	require.Equal(t, Waiting, got.State)
	require.Equal(t, ReasonAppBackground, got.Reason)

	require.NoError(t, s.BulkUpdate(AppAvailable(100)))
	got, err = s.Get(1)
	require.NoError(t, err)
	require.Equal(t, ReasonMeetLimits, got.Reason)
}

func TestBulkAppUnavailableIdempotent(t *testing.T) {
	s := setupTestStore(t)
	dl := sampleTask(1, 100)
	dl.Mode = ModeForeground
	dl.State = Running
	require.NoError(t, s.Insert(dl))

	require.NoError(t, s.BulkUpdate(AppUnavailable(100)))
	first, err := s.Get(1)
	require.NoError(t, err)

	require.NoError(t, s.BulkUpdate(AppUnavailable(100)))
	second, err := s.Get(1)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestBulkNetworkOfflineThenAvailable(t *testing.T) {
	s := setupTestStore(t)
	bgRetry := sampleTask(1, 100)
	bgRetry.Mode = ModeBackground
	bgRetry.RetryAllowed = true
	bgRetry.State = Running
	require.NoError(t, s.Insert(bgRetry))

	require.NoError(t, s.BulkUpdate(NetworkOffline()))
	got, err := s.Get(1)
	require.NoError(t, err)
	require.Equal(t, Waiting, got.State)
	require.Equal(t, ReasonNetworkOffline, got.Reason)

	require.NoError(t, s.BulkUpdate(NetworkAvailable()))
	got, err = s.Get(1)
	require.NoError(t, err)
	require.Equal(t, ReasonMeetLimits, got.Reason)
}

func TestBulkAppUninstallDeletesRows(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Insert(sampleTask(1, 100)))
	require.NoError(t, s.BulkUpdate(AppUninstall(100)))

	_, err := s.Get(1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBulkSpecialTerminateFailsRows(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Insert(sampleTask(1, 100)))
	require.NoError(t, s.BulkUpdate(SpecialTerminate(100)))

	got, err := s.Get(1)
	require.NoError(t, err)
	require.Equal(t, Failed, got.State)
	require.Equal(t, ReasonAccountStopped, got.Reason)
}
