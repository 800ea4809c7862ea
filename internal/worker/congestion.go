package worker

import (
	"sync"
	"time"
)

// CongestionController tunes per-host intra-task part-fetch parallelism
// with an AIMD (additive increase, multiplicative decrease) loop,
// independent of the qos ranker's admission caps: the ranker decides
// which tasks run at all, this decides how many concurrent range
// fetches one already-admitted task opens against a given host.
// Grounded on the teacher's internal/core/congestion.go
// CongestionController.
type CongestionController struct {
	mu         sync.Mutex
	hosts      map[string]*hostStats
	minWorkers int
	maxWorkers int
}

type hostStats struct {
	smoothedRTT  time.Duration
	concurrency  int
	successCount int
	errorCount   int
}

func NewCongestionController(min, max int) *CongestionController {
	return &CongestionController{hosts: make(map[string]*hostStats), minWorkers: min, maxWorkers: max}
}

// RecordOutcome updates a host's running stats after one part fetch.
func (cc *CongestionController) RecordOutcome(host string, latency time.Duration, err error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	stats, ok := cc.hosts[host]
	if !ok {
		stats = &hostStats{concurrency: cc.minWorkers, smoothedRTT: latency}
		cc.hosts[host] = stats
	}

	const alpha = 0.125
	stats.smoothedRTT = time.Duration((1-alpha)*float64(stats.smoothedRTT) + alpha*float64(latency))

	if err != nil {
		stats.errorCount++
	} else {
		stats.successCount++
	}
}

// IdealConcurrency returns the current AIMD-tuned worker count for host.
func (cc *CongestionController) IdealConcurrency(host string) int {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	stats, ok := cc.hosts[host]
	if !ok {
		return cc.minWorkers
	}

	if stats.errorCount > 0 {
		stats.concurrency = maxInt(1, stats.concurrency/2)
		stats.errorCount = 0
		return stats.concurrency
	}

	if stats.successCount > stats.concurrency {
		if stats.concurrency < cc.maxWorkers {
			stats.concurrency++
		}
		stats.successCount = 0
	}
	return stats.concurrency
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
