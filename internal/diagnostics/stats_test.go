package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"project-tachyon/internal/taskstore"
)

type fakeStatsStore struct {
	bytes    map[string]int64
	files    map[string]int64
	order    []string
}

func newFakeStatsStore() *fakeStatsStore {
	return &fakeStatsStore{bytes: map[string]int64{}, files: map[string]int64{}}
}

func (f *fakeStatsStore) IncrementDailyBytes(date string, n int64) error {
	if _, ok := f.bytes[date]; !ok {
		f.order = append(f.order, date)
	}
	f.bytes[date] += n
	return nil
}

func (f *fakeStatsStore) IncrementDailyFiles(date string) error {
	f.files[date]++
	return nil
}

func (f *fakeStatsStore) GetTotalLifetime() (int64, error) {
	var total int64
	for _, b := range f.bytes {
		total += b
	}
	return total, nil
}

func (f *fakeStatsStore) GetTotalFiles() (int64, error) {
	var total int64
	for _, c := range f.files {
		total += c
	}
	return total, nil
}

func (f *fakeStatsStore) GetDailyHistory(days int) ([]taskstore.DailyStat, error) {
	out := make([]taskstore.DailyStat, 0, len(f.order))
	for _, d := range f.order {
		out = append(out, taskstore.DailyStat{Date: d, Bytes: f.bytes[d], Files: f.files[d]})
	}
	if len(out) > days {
		out = out[:days]
	}
	return out, nil
}

func TestStatsManagerCurrentSpeed(t *testing.T) {
	sm := NewStatsManager(newFakeStatsStore(), nil)
	require.Equal(t, int64(0), sm.GetCurrentSpeed())
	sm.UpdateDownloadSpeed(1024)
	require.Equal(t, int64(1024), sm.GetCurrentSpeed())
}

func TestStatsManagerTrackAndRead(t *testing.T) {
	store := newFakeStatsStore()
	sm := NewStatsManager(store, nil)

	sm.TrackDownloadBytes(500)
	sm.TrackDownloadBytes(500)
	sm.TrackFileCompleted()

	require.Eventually(t, func() bool {
		total, _ := sm.GetLifetimeStats()
		return total == 1000
	}, 1e9, 1e6)

	files, err := sm.GetTotalFiles()
	require.NoError(t, err)
	require.Equal(t, int64(1), files)
}

func TestStatsManagerGetDiskUsageNoPathFn(t *testing.T) {
	sm := NewStatsManager(newFakeStatsStore(), nil)
	require.Equal(t, DiskUsageInfo{}, sm.GetDiskUsage())
}

func TestStatsManagerGetDiskUsageWithPathFn(t *testing.T) {
	sm := NewStatsManager(newFakeStatsStore(), func() (string, error) { return "/tmp", nil })
	usage := sm.GetDiskUsage()
	require.GreaterOrEqual(t, usage.TotalGB, 0.0)
}

func TestStatsManagerGetAnalytics(t *testing.T) {
	store := newFakeStatsStore()
	_ = store.IncrementDailyBytes("2026-07-30", 2048)
	_ = store.IncrementDailyFiles("2026-07-30")
	sm := NewStatsManager(store, nil)

	analytics := sm.GetAnalytics()
	require.Equal(t, int64(2048), analytics.TotalDownloaded)
	require.Equal(t, int64(1), analytics.TotalFiles)
	require.Equal(t, int64(2048), analytics.DailyHistory["2026-07-30"])
}
