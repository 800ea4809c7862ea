package diagnostics

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"project-tachyon/internal/taskstore"
)

// statsStore is the subset of taskstore.Store StatsManager needs.
type statsStore interface {
	IncrementDailyBytes(date string, bytes int64) error
	IncrementDailyFiles(date string) error
	GetTotalLifetime() (int64, error)
	GetTotalFiles() (int64, error)
	GetDailyHistory(days int) ([]taskstore.DailyStat, error)
}

// DiskUsageInfo mirrors the teacher's DiskUsageInfo shape.
type DiskUsageInfo struct {
	UsedGB  float64
	FreeGB  float64
	TotalGB float64
	Percent float64
}

// AnalyticsData is the comprehensive snapshot GetAnalytics returns.
type AnalyticsData struct {
	TotalDownloaded int64
	TotalFiles      int64
	DailyHistory    map[string]int64
	DiskUsage       DiskUsageInfo
}

// StatsManager tracks lifetime/daily statistics and disk usage, grounded
// on the teacher's internal/analytics/stats.go (the GORM-API-based
// generation, not the older internal/core/stats.go).
type StatsManager struct {
	store          statsStore
	currentSpeed   int64
	downloadPathFn func() (string, error)
}

func NewStatsManager(store statsStore, downloadPathFn func() (string, error)) *StatsManager {
	return &StatsManager{store: store, downloadPathFn: downloadPathFn}
}

func (sm *StatsManager) UpdateDownloadSpeed(bytesPerSec int64) {
	atomic.StoreInt64(&sm.currentSpeed, bytesPerSec)
}

func (sm *StatsManager) GetCurrentSpeed() int64 {
	return atomic.LoadInt64(&sm.currentSpeed)
}

func (sm *StatsManager) TrackDownloadBytes(bytes int64) {
	go func() {
		_ = sm.store.IncrementDailyBytes(today(), bytes)
	}()
}

func (sm *StatsManager) TrackFileCompleted() {
	go func() {
		_ = sm.store.IncrementDailyFiles(today())
	}()
}

func (sm *StatsManager) GetLifetimeStats() (int64, error) { return sm.store.GetTotalLifetime() }
func (sm *StatsManager) GetTotalFiles() (int64, error)    { return sm.store.GetTotalFiles() }

func (sm *StatsManager) GetDailyStats(days int) (map[string]int64, error) {
	stats, err := sm.store.GetDailyHistory(days)
	if err != nil {
		return make(map[string]int64), err
	}
	res := make(map[string]int64, len(stats))
	for _, stat := range stats {
		res[stat.Date] = stat.Bytes
	}
	return res, nil
}

func (sm *StatsManager) GetDiskUsage() DiskUsageInfo {
	if sm.downloadPathFn == nil {
		return DiskUsageInfo{}
	}
	downloadPath, err := sm.downloadPathFn()
	if err != nil {
		return DiskUsageInfo{}
	}
	volumePath := filepath.VolumeName(downloadPath)
	if volumePath == "" {
		volumePath = "/"
	} else {
		volumePath += string(filepath.Separator)
	}
	usage, err := disk.Usage(volumePath)
	if err != nil {
		return DiskUsageInfo{}
	}
	const bytesPerGB = 1024 * 1024 * 1024
	return DiskUsageInfo{
		UsedGB:  float64(usage.Used) / bytesPerGB,
		FreeGB:  float64(usage.Free) / bytesPerGB,
		TotalGB: float64(usage.Total) / bytesPerGB,
		Percent: usage.UsedPercent,
	}
}

func (sm *StatsManager) GetAnalytics() AnalyticsData {
	lifetime, _ := sm.GetLifetimeStats()
	totalFiles, _ := sm.GetTotalFiles()
	daily, _ := sm.GetDailyStats(7)
	return AnalyticsData{
		TotalDownloaded: lifetime,
		TotalFiles:      totalFiles,
		DailyHistory:    daily,
		DiskUsage:       sm.GetDiskUsage(),
	}
}

func today() string { return time.Now().Format("2006-01-02") }
