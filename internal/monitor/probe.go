package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/showwin/speedtest-go/speedtest"
)

// ProbeFunc classifies whether the active connection looks metered,
// letting tests inject a fake without touching the network.
type ProbeFunc func() (metered bool, err error)

// SpeedtestProbe runs a bounded speed test and classifies the link as
// metered whenever measured throughput falls below a cellular-like
// threshold, for platforms that leave "metered" ambiguous. Grounded on the
// teacher's internal/network/speedtest.go RunSpeedTestWithEvents.
func SpeedtestProbe() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := speedtest.FetchUserInfo(); err != nil {
		return false, fmt.Errorf("monitor: fetch user info: %w", err)
	}
	servers, err := speedtest.FetchServers()
	if err != nil {
		return false, fmt.Errorf("monitor: fetch servers: %w", err)
	}
	targets, err := servers.FindServer([]int{})
	if err != nil || len(targets) == 0 {
		return false, fmt.Errorf("monitor: no speed test servers available")
	}
	server := targets[0]
	if err := server.DownloadTestContext(ctx); err != nil {
		return false, fmt.Errorf("monitor: download test: %w", err)
	}
	downloadMbps := float64(server.DLSpeed) / 1000 / 1000 * 8
	const meteredThresholdMbps = 5.0
	return downloadMbps < meteredThresholdMbps, nil
}
